package coordinator

import (
	"fmt"
	"path/filepath"
)

// unmergedPath is a worker's own per-dataset intermediate output file,
// exclusively owned by that worker until it is closed.
func unmergedPath(outputDir, datasetName string, workerID int32) string {
	return filepath.Join(outputDir, fmt.Sprintf("unmerged-%s-%d.root", datasetName, workerID))
}

// finalPath is the single merged output a dataset finishes as — always
// produced by renaming a surviving intermediate file, never by copying.
func finalPath(outputDir, datasetName string) string {
	return filepath.Join(outputDir, datasetName+".root")
}
