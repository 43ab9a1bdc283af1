// Package fixture is a deterministic, disk-based stand-in for the
// external ROOT-based analysis runtime, grounded in
// original_source/dra/test/test-processing.cpp's test_module: every event
// is one little-endian int32 record, and the module's entire transform is
// out = in + offset. Merge is plain file concatenation.
package fixture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Controller implements analysis.Controller over flat int32-record files.
type Controller struct {
	offset       int32
	datasetFiles [][]string // datasetFiles[datasetIndex] is that dataset's ordered file list
	activeFiles  []string   // datasetFiles[currentDataset], cached by StartDataset

	outPath string
	outFile *os.File

	curFileIdx uint32
	curRecords []int32
	haveFile   bool
}

// New returns a Controller that adds offset to every record it processes.
// datasetFiles holds one ordered file list per dataset index — the same
// lists the worker's config names — so one Controller instance can serve
// every dataset in a run, not just the first.
func New(offset int32, datasetFiles [][]string) *Controller {
	cp := make([][]string, len(datasetFiles))
	for i, files := range datasetFiles {
		cp[i] = append([]string(nil), files...)
	}
	return &Controller{offset: offset, datasetFiles: cp}
}

// StartDataset implements analysis.Controller.
func (c *Controller) StartDataset(datasetIndex int32, outPath string) error {
	if datasetIndex < 0 {
		if c.outFile == nil {
			return nil
		}
		err := c.outFile.Close()
		c.outFile = nil
		c.outPath = ""
		return err
	}
	if int(datasetIndex) >= len(c.datasetFiles) {
		return fmt.Errorf("fixture: dataset index %d out of range (have %d datasets)", datasetIndex, len(c.datasetFiles))
	}
	c.activeFiles = c.datasetFiles[datasetIndex]
	c.haveFile = false

	if c.outFile != nil && c.outPath == outPath {
		return nil
	}
	if c.outFile != nil {
		if err := c.outFile.Close(); err != nil {
			return err
		}
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	c.outFile = f
	c.outPath = outPath
	return nil
}

// StartFile implements analysis.Controller.
func (c *Controller) StartFile(fileIndex uint32) (uint64, error) {
	if int(fileIndex) >= len(c.activeFiles) {
		return 0, fmt.Errorf("fixture: file index %d out of range (have %d files)", fileIndex, len(c.activeFiles))
	}
	if c.haveFile && c.curFileIdx == fileIndex {
		return uint64(len(c.curRecords)), nil
	}

	data, err := os.ReadFile(c.activeFiles[fileIndex])
	if err != nil {
		return 0, err
	}
	if len(data)%4 != 0 {
		return 0, fmt.Errorf("fixture: %s: %d bytes is not a whole number of int32 records", c.activeFiles[fileIndex], len(data))
	}
	recs := make([]int32, len(data)/4)
	for i := range recs {
		recs[i] = int32(binary.LittleEndian.Uint32(data[i*4:]))
	}
	c.curFileIdx = fileIndex
	c.curRecords = recs
	c.haveFile = true
	return uint64(len(recs)), nil
}

// Process implements analysis.Controller.
func (c *Controller) Process(first, last uint64) (uint64, error) {
	if c.outFile == nil {
		return 0, errors.New("fixture: Process called before StartDataset opened an output file")
	}
	if !c.haveFile {
		return 0, errors.New("fixture: Process called before StartFile")
	}
	if first > last || last > uint64(len(c.curRecords)) {
		return 0, fmt.Errorf("fixture: range [%d,%d) out of bounds for a %d-record file", first, last, len(c.curRecords))
	}

	buf := make([]byte, 4*(last-first))
	for i := first; i < last; i++ {
		out := c.curRecords[i] + c.offset
		binary.LittleEndian.PutUint32(buf[(i-first)*4:], uint32(out))
	}
	n, err := c.outFile.Write(buf)
	return uint64(n), err
}

// Merge implements analysis.Controller. treeName is accepted to satisfy
// the interface but unused: flat record files have no tree structure to
// preserve across the concatenation.
func (c *Controller) Merge(treeName, survivorPath, mergedPath string, keepMerged bool) error {
	_ = treeName
	in, err := os.Open(mergedPath)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(survivorPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	if keepMerged {
		return nil
	}
	return os.Remove(mergedPath)
}
