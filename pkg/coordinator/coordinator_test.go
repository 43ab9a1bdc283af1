package coordinator_test

import (
	"context"
	"encoding/binary"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riftlab/dra/pkg/analysis"
	"github.com/riftlab/dra/pkg/analysis/fixture"
	"github.com/riftlab/dra/pkg/config"
	"github.com/riftlab/dra/pkg/coordinator"
	"github.com/riftlab/dra/pkg/reactor"
	"github.com/riftlab/dra/pkg/stategraph"
	"github.com/riftlab/dra/pkg/wire"
	"github.com/riftlab/dra/pkg/workerside"
)

func writeRecordFile(t *testing.T, path string, n int, first int32) {
	t.Helper()
	buf := make([]byte, 4*n)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(first+int32(i)))
	}
	require.NoError(t, os.WriteFile(path, buf, 0o644))
}

func readRecordFile(t *testing.T, path string) []int32 {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Zero(t, len(data)%4)
	out := make([]int32, len(data)/4)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

func writeConfigFile(t *testing.T, path, outDir, mergeMode string, blockSize int, files []string) {
	t.Helper()
	writeMultiDatasetConfigFile(t, path, outDir, mergeMode, blockSize, []namedDataset{{"testdataset", files}})
}

type namedDataset struct {
	name  string
	files []string
}

// writeMultiDatasetConfigFile writes one "dataset" block per entry in
// datasets, in slice order.
func writeMultiDatasetConfigFile(t *testing.T, path, outDir, mergeMode string, blockSize int, datasets []namedDataset) {
	t.Helper()
	doc := "options {\n"
	doc += "\tblocksize " + itoa(blockSize) + "\n"
	doc += "\toutput_dir \"" + outDir + "\"\n"
	doc += "\tmergemode " + mergeMode + "\n"
	doc += "\tkeep_unmerged false\n"
	doc += "}\n"
	for _, d := range datasets {
		doc += "dataset {\n\tname \"" + d.name + "\"\n\ttreename \"Events\"\n"
		for _, f := range d.files {
			doc += "\tfile \"" + f + "\"\n"
		}
		doc += "}\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// harness wires one master Reactor driving a MasterCoordinator and N
// worker-side (Reactor, Channel, workerside.Manager, WorkerRuntime)
// quadruples connected over net.Pipe, all sharing the master's Reactor so
// the whole run is deterministic within a single test goroutine.
type harness struct {
	t   *testing.T
	reg *wire.Registry
	r   *reactor.Reactor
	cc  *coordinator.MasterCoordinator
}

func newHarness(t *testing.T, cfgPath string, cfg *config.Config, mergeCtrl analysis.Controller, onDone func(error)) *harness {
	reg := wire.NewRegistry()
	wire.RegisterJobMessages(reg)
	r := reactor.New()
	cc := coordinator.New(cfgPath, cfg, mergeCtrl, onDone)
	return &harness{t: t, reg: reg, r: r, cc: cc}
}

func (h *harness) addWorker(factory coordinator.ControllerFactory) {
	h.t.Helper()
	connMaster, connWorker := net.Pipe()
	masterCh := wire.NewChannel(connMaster, h.reg, h.r.Post)
	workerCh := wire.NewChannel(connWorker, h.reg, h.r.Post)

	graph, s, _ := stategraph.JobGraph()
	wm := workerside.New(graph, s.Start, workerCh)
	wr := coordinator.NewWorkerRuntime(factory)
	wr.Register(wm, s, workerCh)
	wm.Start()

	h.cc.AddWorker(masterCh)
}

func TestMasterCoordinatorSingleWorkerSingleFile(t *testing.T) {
	dir := t.TempDir()
	inFile := filepath.Join(dir, "in.bin")
	const n = 1000
	writeRecordFile(t, inFile, n, 0)

	cfgPath := filepath.Join(dir, "config.txt")
	writeConfigFile(t, cfgPath, dir, "workers", 237, []string{inFile})
	cfg, err := config.ParseFile(cfgPath)
	require.NoError(t, err)

	done := make(chan error, 1)
	var r *reactor.Reactor
	h := newHarness(t, cfgPath, cfg, nil, func(err error) {
		done <- err
		r.Stop()
	})
	r = h.r

	h.addWorker(func(cfg *config.Config, workerIndex int32) (analysis.Controller, error) {
		return fixture.New(23, [][]string{cfg.Datasets[0].Files}), nil
	})
	h.cc.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- r.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(4 * time.Second):
		t.Fatal("timed out waiting for the run to finish")
	}
	require.NoError(t, <-runErr)

	out := readRecordFile(t, filepath.Join(dir, "testdataset.root"))
	require.Len(t, out, n)
	for i, v := range out {
		assert.Equal(t, int32(i+23), v)
	}
	_, err = os.Stat(filepath.Join(dir, "unmerged-testdataset-1.root"))
	assert.True(t, os.IsNotExist(err), "intermediate file should have been renamed away")
}

func TestMasterCoordinatorTwoWorkersMasterSideMerge(t *testing.T) {
	dir := t.TempDir()
	fileA := filepath.Join(dir, "a.bin")
	fileB := filepath.Join(dir, "b.bin")
	const n = 1000
	const offsetA, offsetB = 0, 5000
	writeRecordFile(t, fileA, n, offsetA)
	writeRecordFile(t, fileB, n, offsetB)

	cfgPath := filepath.Join(dir, "config.txt")
	writeConfigFile(t, cfgPath, dir, "master", 237, []string{fileA, fileB})
	cfg, err := config.ParseFile(cfgPath)
	require.NoError(t, err)

	done := make(chan error, 1)
	var r *reactor.Reactor
	mergeCtrl := fixture.New(0, nil)
	h := newHarness(t, cfgPath, cfg, mergeCtrl, func(err error) {
		done <- err
		r.Stop()
	})
	r = h.r

	factory := func(cfg *config.Config, workerIndex int32) (analysis.Controller, error) {
		return fixture.New(0, [][]string{cfg.Datasets[0].Files}), nil
	}
	h.addWorker(factory)
	h.addWorker(factory)
	h.cc.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- r.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(4 * time.Second):
		t.Fatal("timed out waiting for the run to finish")
	}
	require.NoError(t, <-runErr)

	out := readRecordFile(t, filepath.Join(dir, "testdataset.root"))
	require.Len(t, out, 2*n)
	seen := make(map[int32]int)
	for _, v := range out {
		seen[v]++
	}
	for i := 0; i < n; i++ {
		assert.Equal(t, 1, seen[int32(offsetA+i)])
		assert.Equal(t, 1, seen[int32(offsetB+i)])
	}
}

// TestMasterCoordinatorManyFilesManyWorkersCardinality exercises the
// many-files/many-workers shape: output cardinality must equal the sum of
// every file's event count, with each record appearing exactly once,
// regardless of which of the sixteen workers happened to process it.
func TestMasterCoordinatorManyFilesManyWorkersCardinality(t *testing.T) {
	dir := t.TempDir()
	const numFiles = 23
	const perFile = 500
	const numWorkers = 16

	files := make([]string, numFiles)
	for i := 0; i < numFiles; i++ {
		files[i] = filepath.Join(dir, "f"+itoa(i)+".bin")
		writeRecordFile(t, files[i], perFile, int32(i*perFile))
	}

	cfgPath := filepath.Join(dir, "config.txt")
	writeConfigFile(t, cfgPath, dir, "master", 237, files)
	cfg, err := config.ParseFile(cfgPath)
	require.NoError(t, err)

	done := make(chan error, 1)
	var r *reactor.Reactor
	mergeCtrl := fixture.New(0, nil)
	h := newHarness(t, cfgPath, cfg, mergeCtrl, func(err error) {
		done <- err
		r.Stop()
	})
	r = h.r

	factory := func(cfg *config.Config, workerIndex int32) (analysis.Controller, error) {
		return fixture.New(0, [][]string{cfg.Datasets[0].Files}), nil
	}
	for i := 0; i < numWorkers; i++ {
		h.addWorker(factory)
	}
	h.cc.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- r.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(14 * time.Second):
		t.Fatal("timed out waiting for the run to finish")
	}
	require.NoError(t, <-runErr)

	out := readRecordFile(t, filepath.Join(dir, "testdataset.root"))
	require.Len(t, out, numFiles*perFile)
	seen := make(map[int32]int)
	for _, v := range out {
		seen[v]++
	}
	for v := int32(0); v < numFiles*perFile; v++ {
		assert.Equal(t, 1, seen[v], "record %d should appear exactly once", v)
	}
}

// TestMasterCoordinatorTwoIndependentDatasets confirms that two datasets in
// the same run produce two independently merged output files, each
// containing only its own dataset's events.
func TestMasterCoordinatorTwoIndependentDatasets(t *testing.T) {
	dir := t.TempDir()
	fileA := filepath.Join(dir, "a.bin")
	fileB := filepath.Join(dir, "b.bin")
	const n = 400
	writeRecordFile(t, fileA, n, 0)
	writeRecordFile(t, fileB, n, 9000)

	cfgPath := filepath.Join(dir, "config.txt")
	writeMultiDatasetConfigFile(t, cfgPath, dir, "master", 97, []namedDataset{
		{"dsA", []string{fileA}},
		{"dsB", []string{fileB}},
	})
	cfg, err := config.ParseFile(cfgPath)
	require.NoError(t, err)
	require.Len(t, cfg.Datasets, 2)

	done := make(chan error, 1)
	var r *reactor.Reactor
	mergeCtrl := fixture.New(0, nil)
	h := newHarness(t, cfgPath, cfg, mergeCtrl, func(err error) {
		done <- err
		r.Stop()
	})
	r = h.r

	// One long-lived Controller per worker serves every dataset in the run,
	// since fixture.New is handed every dataset's file list up front and
	// StartDataset swaps the active one by index.
	factory := func(cfg *config.Config, workerIndex int32) (analysis.Controller, error) {
		datasetFiles := make([][]string, len(cfg.Datasets))
		for i, ds := range cfg.Datasets {
			datasetFiles[i] = ds.Files
		}
		return fixture.New(0, datasetFiles), nil
	}
	h.addWorker(factory)
	h.cc.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- r.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(4 * time.Second):
		t.Fatal("timed out waiting for the run to finish")
	}
	require.NoError(t, <-runErr)

	outA := readRecordFile(t, filepath.Join(dir, "dsA.root"))
	require.Len(t, outA, n)
	for i, v := range outA {
		assert.Equal(t, int32(i), v)
	}

	outB := readRecordFile(t, filepath.Join(dir, "dsB.root"))
	require.Len(t, outB, n)
	for i, v := range outB {
		assert.Equal(t, int32(9000+i), v)
	}
}
