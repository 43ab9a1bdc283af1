package coordinator

import (
	"fmt"
	"os"
	"sort"

	"github.com/riftlab/dra/pkg/analysis"
	"github.com/riftlab/dra/pkg/config"
	"github.com/riftlab/dra/pkg/eventrange"
	"github.com/riftlab/dra/pkg/fingerprint"
	"github.com/riftlab/dra/pkg/stategraph"
	"github.com/riftlab/dra/pkg/swarm"
	"github.com/riftlab/dra/pkg/wire"
)

// MasterCoordinator owns a SwarmManager and drives it through the job
// protocol for every dataset in cfg, in order, by supplying generators
// and result callbacks. All of its methods run on the single goroutine
// driving the owning Reactor — there is no locking.
type MasterCoordinator struct {
	configPath string
	cfg        *config.Config
	mergeCtrl  analysis.Controller // used only when Options.MergeMode == config.MergeMaster

	graph *stategraph.Graph
	s     stategraph.JobStates
	restr stategraph.JobRestrictions
	sm    *swarm.SwarmManager

	observer Observer
	onDone   func(error)
	failed   bool
	done     bool

	datasetIndex int
	erm          *eventrange.Manager
	fileFP       uint64

	lastAssignedFile map[swarm.WorkerID]uint32
	workerRanges     map[swarm.WorkerID][]eventrange.Range
	processedWorkers map[swarm.WorkerID]bool
	closedWorkers    map[swarm.WorkerID]bool
	needsMerging     map[swarm.WorkerID]bool
	bytesRead        uint64
}

// New builds a MasterCoordinator for cfg, parsed from configPath (the raw
// path is what gets handed to workers in Configure, so they can parse it
// independently rather than trust a serialised copy of cfg). mergeCtrl is
// only exercised when cfg.Options.MergeMode is config.MergeMaster; pass
// nil otherwise. onDone is called exactly once, with nil on a clean run
// through every dataset or a non-nil error on abort.
func New(configPath string, cfg *config.Config, mergeCtrl analysis.Controller, onDone func(error)) *MasterCoordinator {
	graph, s, restr := stategraph.JobGraph()
	c := &MasterCoordinator{
		configPath: configPath,
		cfg:        cfg,
		mergeCtrl:  mergeCtrl,
		graph:      graph,
		s:          s,
		restr:      restr,
		observer:   NopObserver{},
		onDone:     onDone,
	}
	c.sm = swarm.New(graph, s.Start, c.onWorkerFailed)

	c.sm.Connect(s.Start, stategraph.KindConfigure, c.generateConfigure)
	c.sm.Connect(s.Configure, stategraph.KindProcess, c.generateProcess)
	c.sm.Connect(s.Process, stategraph.KindProcess, c.generateProcess)
	c.sm.Connect(s.Merge, stategraph.KindProcess, c.generateProcess)
	c.sm.Connect(s.Close, stategraph.KindProcess, c.generateProcess)
	c.sm.Connect(s.Process, stategraph.KindClose, c.generateClose)
	c.sm.Connect(s.Close, stategraph.KindMerge, c.generateMerge)
	c.sm.Connect(s.Merge, stategraph.KindMerge, c.generateMerge)
	c.sm.Connect(s.Close, stategraph.KindStop, c.generateStop)
	c.sm.Connect(s.Merge, stategraph.KindStop, c.generateStop)
	c.sm.Connect(s.Configure, stategraph.KindStop, c.generateStop)
	c.sm.Connect(s.Start, stategraph.KindStop, c.generateStop)

	c.sm.SetResultCallback(s.Process, c.onProcessComplete)
	c.sm.SetResultCallback(s.Close, c.onCloseComplete)
	c.sm.SetResultCallback(s.Merge, c.onMergeComplete)
	c.sm.SetResultCallback(s.Stop, c.onStopComplete)

	c.resetDatasetBookkeeping()
	return c
}

// SetObserver installs the dataset/run-level progress observer.
func (c *MasterCoordinator) SetObserver(o Observer) {
	if o == nil {
		o = NopObserver{}
	}
	c.observer = o
}

// SwarmManager exposes the owned SwarmManager so a caller can attach its
// own swarm.Observer or query peers — kept separate from Observer above
// to avoid a back-pointer cycle: the Coordinator owns the SwarmManager,
// not the other way around.
func (c *MasterCoordinator) SwarmManager() *swarm.SwarmManager {
	return c.sm
}

// Graph exposes the job-protocol graph this coordinator drives its swarm
// over, so a caller (e.g. a metrics collector naming states) doesn't have
// to build its own via stategraph.JobGraph().
func (c *MasterCoordinator) Graph() *stategraph.Graph {
	return c.graph
}

// AddWorker wraps a newly accepted connection as a peer and begins
// driving it.
func (c *MasterCoordinator) AddWorker(ch *wire.Channel) swarm.WorkerID {
	return c.sm.AddPeer(ch)
}

// Start begins the run at the first dataset.
func (c *MasterCoordinator) Start() {
	c.InitDataset(0)
}

// Abort marks the run as failed and reports err through onDone exactly
// once. It does not attempt any further orchestration — this is the
// hard-abort path, which unwinds without further message traffic; the
// caller is expected to stop the Reactor from within onDone.
func (c *MasterCoordinator) Abort(err error) {
	if c.failed || c.done {
		return
	}
	c.failed = true
	c.done = true
	c.observer.OnFailed(err)
	if c.onDone != nil {
		c.onDone(err)
	}
}

// InitDataset tears down per-dataset bookkeeping and starts dataset i, or,
// once every dataset has run, drives every peer to Stop.
func (c *MasterCoordinator) InitDataset(i int) {
	c.datasetIndex = i
	c.resetDatasetBookkeeping()

	if i >= len(c.cfg.Datasets) {
		c.sm.ActivateRestrictionSet(c.restr.NoProcess)
		c.sm.SetTargetState(c.s.Stop)
		return
	}

	ds := c.cfg.Datasets[i]
	if len(ds.Files) == 0 {
		// Nothing to do for this dataset: no transition out of "process"
		// exists for a peer that was never given a Process request, so
		// skip straight to the next dataset rather than deadlocking.
		c.observer.OnDatasetComplete(i, ds.Name)
		c.InitDataset(i + 1)
		return
	}

	c.erm = eventrange.NewManager(len(ds.Files), c.cfg.Options.BlockSize)
	c.fileFP = fingerprint.OfPaths(ds.Files)
	c.observer.OnDatasetStarted(i, ds.Name)
	c.sm.DeactivateRestrictionSet(c.restr.NoProcess)
	c.sm.SetTargetState(c.s.Process)
}

func (c *MasterCoordinator) resetDatasetBookkeeping() {
	c.lastAssignedFile = make(map[swarm.WorkerID]uint32)
	c.workerRanges = make(map[swarm.WorkerID][]eventrange.Range)
	c.processedWorkers = make(map[swarm.WorkerID]bool)
	c.closedWorkers = make(map[swarm.WorkerID]bool)
	c.needsMerging = make(map[swarm.WorkerID]bool)
	c.bytesRead = 0
}

// --- generators ---

func (c *MasterCoordinator) generateConfigure(id swarm.WorkerID) (wire.Message, bool) {
	return &wire.Configure{ConfigPath: c.configPath, WorkerIndex: int32(id)}, true
}

func (c *MasterCoordinator) generateProcess(id swarm.WorkerID) (wire.Message, bool) {
	if !c.erm.Available() {
		return nil, false
	}
	preferred := eventrange.NoPreference
	if f, ok := c.lastAssignedFile[id]; ok {
		preferred = f
	}
	r := c.erm.Consume(preferred, c.cfg.Options.BlockSize)
	c.lastAssignedFile[id] = r.FileIndex
	c.workerRanges[id] = append(c.workerRanges[id], r)
	c.processedWorkers[id] = true
	c.closedWorkers[id] = false

	if !c.erm.Available() {
		c.sm.ActivateRestrictionSet(c.restr.NoProcess)
	}

	return &wire.Process{
		DatasetIndex:     int32(c.datasetIndex),
		FileIndex:        r.FileIndex,
		FilesFingerprint: c.fileFP,
		First:            r.First,
		Last:             r.Last,
	}, true
}

func (c *MasterCoordinator) generateClose(id swarm.WorkerID) (wire.Message, bool) {
	return &wire.Close{DatasetIndex: int32(c.datasetIndex), FilesFingerprint: c.fileFP}, true
}

func (c *MasterCoordinator) generateStop(id swarm.WorkerID) (wire.Message, bool) {
	return &wire.Stop{}, true
}

func (c *MasterCoordinator) generateMerge(id swarm.WorkerID) (wire.Message, bool) {
	if !c.needsMerging[id] {
		return nil, false
	}
	donor, ok := c.pickMergeDonor(id)
	if !ok {
		return nil, false
	}
	c.needsMerging[id] = false
	c.needsMerging[donor] = false
	if c.countNeedsMerging() <= 1 {
		c.sm.ActivateRestrictionSet(c.restr.NoMerge)
	}
	return &wire.Merge{DatasetIndex: int32(c.datasetIndex), WorkerA: int32(id), WorkerB: int32(donor)}, true
}

func (c *MasterCoordinator) pickMergeDonor(a swarm.WorkerID) (swarm.WorkerID, bool) {
	var ids []swarm.WorkerID
	for id, need := range c.needsMerging {
		if need && id != a {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0, false
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids[0], true
}

func (c *MasterCoordinator) countNeedsMerging() int {
	n := 0
	for _, need := range c.needsMerging {
		if need {
			n++
		}
	}
	return n
}

// --- result callbacks ---

func (c *MasterCoordinator) onProcessComplete(id swarm.WorkerID, resp wire.Message) {
	pr := resp.(*wire.ProcessResponse)
	ranges := c.workerRanges[id]
	if len(ranges) == 0 {
		return
	}
	completed := ranges[len(ranges)-1]
	c.erm.SetFileSize(completed.FileIndex, pr.FileNEvents)
	c.bytesRead += pr.NBytesRead
	c.observer.OnProgress(int32(id), uint64(completed.Last-completed.First), pr.NBytesRead)

	if c.erm.Available() {
		c.sm.DeactivateRestrictionSet(c.restr.NoProcess)
		return
	}
	if c.sm.AllIdle() {
		c.sm.SetTargetState(c.s.Close)
	}
}

func (c *MasterCoordinator) onCloseComplete(id swarm.WorkerID, resp wire.Message) {
	c.closedWorkers[id] = true
	c.needsMerging[id] = true
	if !c.allProcessedWorkersClosed() {
		return
	}
	c.beginMergePhase()
}

func (c *MasterCoordinator) allProcessedWorkersClosed() bool {
	if len(c.processedWorkers) == 0 {
		return false
	}
	for id := range c.processedWorkers {
		if !c.closedWorkers[id] {
			return false
		}
	}
	return true
}

func (c *MasterCoordinator) beginMergePhase() {
	ds := c.cfg.Datasets[c.datasetIndex]

	if c.cfg.Options.MergeMode == config.MergeNone {
		c.observer.OnDatasetComplete(c.datasetIndex, ds.Name)
		c.InitDataset(c.datasetIndex + 1)
		return
	}

	if c.countNeedsMerging() <= 1 {
		c.finalizeDataset()
		return
	}

	if c.cfg.Options.MergeMode == config.MergeMaster {
		c.masterSideMerge()
		return
	}

	c.sm.DeactivateRestrictionSet(c.restr.NoMerge)
	c.sm.SetTargetState(c.s.Merge)
}

func (c *MasterCoordinator) masterSideMerge() {
	ds := c.cfg.Datasets[c.datasetIndex]
	ids := c.sortedProcessedWorkers()
	survivor := ids[0]
	survivorPath := unmergedPath(c.cfg.Options.OutputDir, ds.Name, int32(survivor))

	for _, id := range ids[1:] {
		p := unmergedPath(c.cfg.Options.OutputDir, ds.Name, int32(id))
		if err := c.mergeCtrl.Merge(ds.TreeName, survivorPath, p, c.cfg.Options.KeepUnmerged); err != nil {
			c.Abort(fmt.Errorf("coordinator: master-side merge of dataset %q: %w", ds.Name, err))
			return
		}
	}
	if err := os.Rename(survivorPath, finalPath(c.cfg.Options.OutputDir, ds.Name)); err != nil {
		c.Abort(fmt.Errorf("coordinator: finalize dataset %q: %w", ds.Name, err))
		return
	}
	c.observer.OnDatasetComplete(c.datasetIndex, ds.Name)
	c.InitDataset(c.datasetIndex + 1)
}

// finalizeDataset handles the "at most one worker produced output"
// shortcut: rename that worker's intermediate file directly, no merge
// needed. If no worker ever processed anything for this dataset, there is
// nothing to rename.
func (c *MasterCoordinator) finalizeDataset() {
	ds := c.cfg.Datasets[c.datasetIndex]
	ids := c.sortedProcessedWorkers()
	if len(ids) > 0 {
		survivorPath := unmergedPath(c.cfg.Options.OutputDir, ds.Name, int32(ids[0]))
		if err := os.Rename(survivorPath, finalPath(c.cfg.Options.OutputDir, ds.Name)); err != nil {
			c.Abort(fmt.Errorf("coordinator: finalize dataset %q: %w", ds.Name, err))
			return
		}
	}
	c.observer.OnDatasetComplete(c.datasetIndex, ds.Name)
	c.InitDataset(c.datasetIndex + 1)
}

func (c *MasterCoordinator) sortedProcessedWorkers() []swarm.WorkerID {
	ids := make([]swarm.WorkerID, 0, len(c.processedWorkers))
	for id := range c.processedWorkers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (c *MasterCoordinator) onMergeComplete(id swarm.WorkerID, resp wire.Message) {
	mr := resp.(*wire.Merge)
	survivor := swarm.WorkerID(mr.WorkerA)
	c.needsMerging[survivor] = true

	if c.countNeedsMerging() >= 2 {
		c.sm.DeactivateRestrictionSet(c.restr.NoMerge)
		return
	}
	if c.countNeedsMerging() == 1 && c.sm.AllIdle() {
		c.finalizeDataset()
	}
}

func (c *MasterCoordinator) onStopComplete(id swarm.WorkerID, resp wire.Message) {
	if c.failed || c.done || !c.sm.AllIdle() {
		return
	}
	c.done = true
	c.observer.OnStopComplete()
	if c.onDone != nil {
		c.onDone(nil)
	}
}

// --- failure recovery ---

func (c *MasterCoordinator) onWorkerFailed(id swarm.WorkerID, lastState stategraph.StateID) {
	c.observer.OnWorkerFailed(int32(id))
	switch lastState {
	case c.s.Process:
		for _, r := range c.workerRanges[id] {
			c.erm.Add(r)
		}
		delete(c.workerRanges, id)
		delete(c.lastAssignedFile, id)
		delete(c.processedWorkers, id)
		delete(c.closedWorkers, id)
		delete(c.needsMerging, id)
		c.sm.DeactivateRestrictionSet(c.restr.NoProcess)
	case c.s.Merge:
		c.Abort(fmt.Errorf("coordinator: worker %d failed while merging dataset %q", id, c.cfg.Datasets[c.datasetIndex].Name))
	case c.s.Close:
		if !c.closedWorkers[id] {
			c.Abort(fmt.Errorf("coordinator: worker %d failed while closing dataset %q", id, c.cfg.Datasets[c.datasetIndex].Name))
		}
	default: // start, configure, stop: no event loss
	}
}
