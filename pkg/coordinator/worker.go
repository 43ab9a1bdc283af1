package coordinator

import (
	"fmt"

	"github.com/riftlab/dra/pkg/analysis"
	"github.com/riftlab/dra/pkg/config"
	"github.com/riftlab/dra/pkg/fingerprint"
	"github.com/riftlab/dra/pkg/stategraph"
	"github.com/riftlab/dra/pkg/wire"
	"github.com/riftlab/dra/pkg/workerside"
)

// ControllerFactory builds the analysis.Controller a worker uses for the
// duration of one run, once it has received Configure and parsed its own
// copy of the config file.
type ControllerFactory func(cfg *config.Config, workerIndex int32) (analysis.Controller, error)

// WorkerRuntime answers the worker side of the job protocol by driving an
// analysis.Controller: Configure instantiates the controller, Process runs
// it over one event range, Close flushes the dataset's output file, Merge
// combines two workers' outputs.
type WorkerRuntime struct {
	workerIndex int32
	factory     ControllerFactory
	channel     *wire.Channel

	cfg            *config.Config
	ctrl           analysis.Controller
	currentDataset int32
	currentFile    uint32
	haveFile       bool
	fileEvents     uint64
}

// NewWorkerRuntime returns a WorkerRuntime that will build its controller
// via factory once Configure arrives.
func NewWorkerRuntime(factory ControllerFactory) *WorkerRuntime {
	return &WorkerRuntime{factory: factory, currentDataset: -1}
}

// Register wires every (state, kind) handler the job protocol needs into
// m, and remembers ch so handlers can close it on a contract violation a
// generic workerside.Handler return value can't express (fingerprint
// mismatch, an analysis error).
func (wr *WorkerRuntime) Register(m *workerside.Manager, s stategraph.JobStates, ch *wire.Channel) {
	wr.channel = ch
	m.Handle(s.Start, stategraph.KindConfigure, wr.handleConfigure)
	m.Handle(s.Configure, stategraph.KindProcess, wr.handleProcess)
	m.Handle(s.Process, stategraph.KindProcess, wr.handleProcess)
	m.Handle(s.Merge, stategraph.KindProcess, wr.handleProcess)
	m.Handle(s.Close, stategraph.KindProcess, wr.handleProcess)
	m.Handle(s.Process, stategraph.KindClose, wr.handleClose)
	m.Handle(s.Close, stategraph.KindMerge, wr.handleMerge)
	m.Handle(s.Merge, stategraph.KindMerge, wr.handleMerge)
	m.Handle(s.Close, stategraph.KindStop, wr.handleStop)
	m.Handle(s.Merge, stategraph.KindStop, wr.handleStop)
	m.Handle(s.Configure, stategraph.KindStop, wr.handleStop)
	m.Handle(s.Start, stategraph.KindStop, wr.handleStop)
}

func (wr *WorkerRuntime) fail(err error) (wire.Message, bool) {
	if wr.channel != nil {
		wr.channel.Close()
	}
	_ = err // surfaced to the caller via the channel's error handler, not returned here
	return nil, false
}

func (wr *WorkerRuntime) handleConfigure(msg wire.Message) (wire.Message, bool) {
	req := msg.(*wire.Configure)

	cfg, err := config.ParseFile(req.ConfigPath)
	if err != nil {
		return wr.fail(fmt.Errorf("worker: parse config %q: %w", req.ConfigPath, err))
	}
	ctrl, err := wr.factory(cfg, req.WorkerIndex)
	if err != nil {
		return wr.fail(fmt.Errorf("worker: build analysis controller: %w", err))
	}

	wr.workerIndex = req.WorkerIndex
	wr.cfg = cfg
	wr.ctrl = ctrl
	wr.currentDataset = -1
	wr.haveFile = false
	return req, true
}

func (wr *WorkerRuntime) handleProcess(msg wire.Message) (wire.Message, bool) {
	req := msg.(*wire.Process)

	if int(req.DatasetIndex) >= len(wr.cfg.Datasets) {
		return wr.fail(fmt.Errorf("worker: dataset index %d out of range", req.DatasetIndex))
	}
	ds := wr.cfg.Datasets[req.DatasetIndex]
	if fp := fingerprint.OfPaths(ds.Files); fp != req.FilesFingerprint {
		return wr.fail(fmt.Errorf("%w: dataset %q", ErrFingerprintMismatch, ds.Name))
	}

	if wr.currentDataset != req.DatasetIndex {
		outPath := unmergedPath(wr.cfg.Options.OutputDir, ds.Name, wr.workerIndex)
		if err := wr.ctrl.StartDataset(req.DatasetIndex, outPath); err != nil {
			return wr.fail(fmt.Errorf("worker: start dataset %q: %w", ds.Name, err))
		}
		wr.currentDataset = req.DatasetIndex
		wr.haveFile = false
	}

	if !wr.haveFile || wr.currentFile != req.FileIndex {
		n, err := wr.ctrl.StartFile(req.FileIndex)
		if err != nil {
			return wr.fail(fmt.Errorf("worker: start file %d of dataset %q: %w", req.FileIndex, ds.Name, err))
		}
		wr.currentFile = req.FileIndex
		wr.fileEvents = n
		wr.haveFile = true
	}

	nbytes, err := wr.ctrl.Process(req.First, req.Last)
	if err != nil {
		return wr.fail(fmt.Errorf("worker: process [%d,%d) of file %d: %w", req.First, req.Last, req.FileIndex, err))
	}

	// Real/CPU time accounting is part of the external analysis layer's
	// telemetry, out of scope here; always reported as zero.
	return &wire.ProcessResponse{FileNEvents: wr.fileEvents, NBytesRead: nbytes, RealSeconds: 0, CPUSeconds: 0}, true
}

func (wr *WorkerRuntime) handleClose(msg wire.Message) (wire.Message, bool) {
	req := msg.(*wire.Close)
	if err := wr.ctrl.StartDataset(-1, ""); err != nil {
		return wr.fail(fmt.Errorf("worker: close dataset output: %w", err))
	}
	return req, true
}

func (wr *WorkerRuntime) handleMerge(msg wire.Message) (wire.Message, bool) {
	req := msg.(*wire.Merge)
	if int(req.DatasetIndex) >= len(wr.cfg.Datasets) {
		return wr.fail(fmt.Errorf("worker: dataset index %d out of range", req.DatasetIndex))
	}
	ds := wr.cfg.Datasets[req.DatasetIndex]
	survivorPath := unmergedPath(wr.cfg.Options.OutputDir, ds.Name, req.WorkerA)
	donorPath := unmergedPath(wr.cfg.Options.OutputDir, ds.Name, req.WorkerB)
	if err := wr.ctrl.Merge(ds.TreeName, survivorPath, donorPath, wr.cfg.Options.KeepUnmerged); err != nil {
		return wr.fail(fmt.Errorf("worker: merge worker %d into worker %d: %w", req.WorkerB, req.WorkerA, err))
	}
	return req, true
}

func (wr *WorkerRuntime) handleStop(msg wire.Message) (wire.Message, bool) {
	return msg, true
}
