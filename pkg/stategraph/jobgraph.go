package stategraph

// Message kind tags for the job-coordination protocol. These are the
// 8-character tags used both as stategraph transition labels and as the
// wire.Registry keys (see pkg/wire/messages.go) — kept here, rather than
// in pkg/wire, so that pkg/stategraph has no dependency on pkg/wire.
const (
	KindConfigure = "CONFIGUR"
	KindProcess   = "PROCESS "
	KindClose     = "CLOSE   "
	KindMerge     = "MERGE   "
	KindStop      = "STOP    "
)

// JobStates names every state a peer can be in while running the job
// protocol.
type JobStates struct {
	Start, Configure, Process, Close, Merge, Stop, Failed StateID
}

// JobRestrictions names the two restriction sets used to pause dispatch of
// Process or Merge requests when there is currently no work of that kind.
type JobRestrictions struct {
	NoProcess, NoMerge RestrictionSetID
}

// JobGraph builds the frozen state graph for the job-coordination
// protocol: start, configure, process, close, merge, stop, failed.
func JobGraph() (*Graph, JobStates, JobRestrictions) {
	g := New()

	var s JobStates
	s.Start = g.AddState("start")
	s.Configure = g.AddState("configure")
	s.Process = g.AddState("process")
	s.Close = g.AddState("close")
	s.Merge = g.AddState("merge")
	s.Stop = g.AddState("stop")
	s.Failed = g.AddState("failed")

	g.AddTransition(KindConfigure, s.Start, s.Configure)

	g.AddTransition(KindProcess, s.Configure, s.Process)
	g.AddTransition(KindProcess, s.Process, s.Process)
	g.AddTransition(KindProcess, s.Merge, s.Process)
	g.AddTransition(KindProcess, s.Close, s.Process)

	g.AddTransition(KindClose, s.Process, s.Close)

	g.AddTransition(KindMerge, s.Close, s.Merge)
	g.AddTransition(KindMerge, s.Merge, s.Merge)

	g.AddTransition(KindStop, s.Close, s.Stop)
	g.AddTransition(KindStop, s.Merge, s.Stop)
	g.AddTransition(KindStop, s.Configure, s.Stop)
	g.AddTransition(KindStop, s.Start, s.Stop)

	var r JobRestrictions
	r.NoProcess = g.AddRestrictionSet("noprocess")
	g.AddRestriction(r.NoProcess, KindProcess, s.Configure, s.Process)
	g.AddRestriction(r.NoProcess, KindProcess, s.Process, s.Process)
	g.AddRestriction(r.NoProcess, KindProcess, s.Merge, s.Process)
	g.AddRestriction(r.NoProcess, KindProcess, s.Close, s.Process)

	r.NoMerge = g.AddRestrictionSet("nomerge")
	g.AddRestriction(r.NoMerge, KindMerge, s.Close, s.Merge)
	g.AddRestriction(r.NoMerge, KindMerge, s.Merge, s.Merge)

	g.Freeze()
	return g, s, r
}
