// Package analysis defines the boundary between the job-coordination core
// and the external, ROOT-based event-processing layer, which is out of
// scope here. WorkerRuntime (pkg/coordinator) only ever talks to this
// interface; a real build wires in the ROOT-backed implementation, while
// pkg/analysis/fixture stands in for it in tests.
package analysis

// Controller runs one worker process's share of the external analysis.
// Every method is called from the worker's single reactor goroutine, so
// an implementation needs no internal locking of its own.
type Controller interface {
	// StartDataset opens outPath as this worker's output file for
	// datasetIndex. Calling it again with the same (datasetIndex, outPath)
	// is a no-op. A negative datasetIndex flushes and closes whatever
	// output file is currently open instead of opening a new one.
	StartDataset(datasetIndex int32, outPath string) error

	// StartFile prepares fileIndex as the file the next Process calls read
	// from, and returns its total event count — discovered, for a given
	// file, the first time StartFile touches it.
	StartFile(fileIndex uint32) (totalEvents uint64, err error)

	// Process runs the module over the half-open event range [first,
	// last) of the file last named by StartFile, appending its output to
	// the currently open dataset file, and reports the number of input
	// bytes it read.
	Process(first, last uint64) (nbytesRead uint64, err error)

	// Merge appends the contents of mergedPath's tree treeName onto
	// survivorPath's, then — unless keepMerged is set — removes
	// mergedPath.
	Merge(treeName, survivorPath, mergedPath string, keepMerged bool) error
}
