package swarm_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riftlab/dra/pkg/reactor"
	"github.com/riftlab/dra/pkg/stategraph"
	"github.com/riftlab/dra/pkg/swarm"
	"github.com/riftlab/dra/pkg/wire"
	"github.com/riftlab/dra/pkg/workerside"
)

// echoHandler answers a request with the same message, unmodified — good
// enough for every job-protocol kind except Process, which needs a real
// ProcessResponse.
func echoHandler(msg wire.Message) (wire.Message, bool) { return msg, true }

func wireUpWorker(t *testing.T, graph *stategraph.Graph, s stategraph.JobStates, ch *wire.Channel) *workerside.Manager {
	t.Helper()
	wm := workerside.New(graph, s.Start, ch)
	wm.Handle(s.Start, stategraph.KindConfigure, echoHandler)
	wm.Handle(s.Configure, stategraph.KindProcess, func(msg wire.Message) (wire.Message, bool) {
		p := msg.(*wire.Process)
		return &wire.ProcessResponse{FileNEvents: p.Last, NBytesRead: 4 * (p.Last - p.First)}, true
	})
	wm.Handle(s.Process, stategraph.KindProcess, func(msg wire.Message) (wire.Message, bool) {
		p := msg.(*wire.Process)
		return &wire.ProcessResponse{FileNEvents: p.Last, NBytesRead: 4 * (p.Last - p.First)}, true
	})
	wm.Handle(s.Process, stategraph.KindClose, echoHandler)
	wm.Handle(s.Close, stategraph.KindMerge, echoHandler)
	wm.Handle(s.Merge, stategraph.KindMerge, echoHandler)
	wm.Handle(s.Close, stategraph.KindStop, echoHandler)
	wm.Handle(s.Merge, stategraph.KindStop, echoHandler)
	wm.Handle(s.Configure, stategraph.KindStop, echoHandler)
	wm.Handle(s.Start, stategraph.KindStop, echoHandler)
	wm.Start()
	return wm
}

func TestSwarmDrivesPeerThroughJobGraph(t *testing.T) {
	graph, s, _ := stategraph.JobGraph()
	reg := wire.NewRegistry()
	wire.RegisterJobMessages(reg)

	connA, connB := net.Pipe()
	r := reactor.New()
	masterCh := wire.NewChannel(connA, reg, r.Post)
	workerCh := wire.NewChannel(connB, reg, r.Post)
	defer masterCh.Close()
	defer workerCh.Close()

	wireUpWorker(t, graph, s, workerCh)

	transitions := make(chan string, 16)
	processDone := false

	sm := swarm.New(graph, s.Start, func(id swarm.WorkerID, last stategraph.StateID) {
		t.Errorf("unexpected worker failure for %d at %s", id, graph.Name(last))
	})
	sm.Connect(s.Start, stategraph.KindConfigure, func(id swarm.WorkerID) (wire.Message, bool) {
		return &wire.Configure{ConfigPath: "cfg", WorkerIndex: int32(id)}, true
	})
	sm.Connect(s.Configure, stategraph.KindProcess, func(id swarm.WorkerID) (wire.Message, bool) {
		if processDone {
			return nil, false
		}
		processDone = true
		return &wire.Process{DatasetIndex: 0, FileIndex: 0, First: 0, Last: 100}, true
	})
	sm.Connect(s.Process, stategraph.KindClose, func(id swarm.WorkerID) (wire.Message, bool) {
		return &wire.Close{DatasetIndex: 0}, true
	})
	sm.SetResultCallback(s.Configure, func(id swarm.WorkerID, resp wire.Message) {
		transitions <- "configured"
	})
	sm.SetResultCallback(s.Process, func(id swarm.WorkerID, resp wire.Message) {
		pr := resp.(*wire.ProcessResponse)
		assert.Equal(t, uint64(100), pr.FileNEvents)
		transitions <- "processed"
	})
	sm.SetResultCallback(s.Close, func(id swarm.WorkerID, resp wire.Message) {
		transitions <- "closed"
	})
	sm.AddPeer(masterCh)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- r.Run(ctx) }()

	r.Post(func() {
		sm.SetTargetState(s.Process)
	})

	want := []string{"configured", "processed"}
	for _, w := range want {
		select {
		case got := <-transitions:
			assert.Equal(t, w, got)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %q", w)
		}
	}

	r.Post(func() { sm.SetTargetState(s.Close) })
	select {
	case got := <-transitions:
		assert.Equal(t, "closed", got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for close")
	}

	r.Stop()
	require.NoError(t, <-runDone)
}

func TestSwarmRestrictionSetGatesProcessDispatch(t *testing.T) {
	graph, s, restr := stategraph.JobGraph()
	reg := wire.NewRegistry()
	wire.RegisterJobMessages(reg)

	connA, connB := net.Pipe()
	r := reactor.New()
	masterCh := wire.NewChannel(connA, reg, r.Post)
	workerCh := wire.NewChannel(connB, reg, r.Post)
	defer masterCh.Close()
	defer workerCh.Close()
	wireUpWorker(t, graph, s, workerCh)

	generatorCalls := make(chan struct{}, 8)
	sm := swarm.New(graph, s.Start, func(swarm.WorkerID, stategraph.StateID) {})
	sm.Connect(s.Start, stategraph.KindConfigure, func(id swarm.WorkerID) (wire.Message, bool) {
		return &wire.Configure{ConfigPath: "cfg"}, true
	})
	sm.Connect(s.Configure, stategraph.KindProcess, func(id swarm.WorkerID) (wire.Message, bool) {
		generatorCalls <- struct{}{}
		return &wire.Process{Last: 10}, true
	})
	sm.ActivateRestrictionSet(restr.NoProcess)
	sm.AddPeer(masterCh)
	sm.SetTargetState(s.Process)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	<-done

	select {
	case <-generatorCalls:
		t.Fatal("Process generator should not have been invoked while noprocess is active")
	default:
	}
}

func TestSwarmPeerFailureInvokesCallback(t *testing.T) {
	graph, s, _ := stategraph.JobGraph()
	reg := wire.NewRegistry()
	wire.RegisterJobMessages(reg)

	connA, connB := net.Pipe()
	r := reactor.New()
	masterCh := wire.NewChannel(connA, reg, r.Post)

	failed := make(chan stategraph.StateID, 1)
	sm := swarm.New(graph, s.Start, func(id swarm.WorkerID, last stategraph.StateID) {
		failed <- last
	})
	sm.Connect(s.Start, stategraph.KindConfigure, func(id swarm.WorkerID) (wire.Message, bool) {
		return &wire.Configure{ConfigPath: "cfg"}, true
	})
	require.NoError(t, connB.Close()) // peer hangs up before the master ever tries to talk to it
	sm.AddPeer(masterCh)
	sm.SetTargetState(s.Configure)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case st := <-failed:
		assert.Equal(t, s.Start, st)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for worker failure callback")
	}
	r.Stop()
	<-done
}
