package coordinator

// Observer reports MasterCoordinator-level progress: dataset boundaries
// and the run's terminal outcome. Separate from swarm.Observer, which
// reports peer-level state-graph transitions — a caller that wants both
// wires each in independently (SetObserver here, SwarmManager().SetObserver
// for the other).
type Observer interface {
	OnDatasetStarted(index int, name string)
	OnDatasetComplete(index int, name string)
	OnStopComplete()
	OnFailed(err error)

	// OnProgress fires after every completed Process response, reporting
	// the range's worker, the number of events in the range just
	// completed, and the number of bytes that range read.
	OnProgress(worker int32, eventsInRange uint64, bytesInRange uint64)

	// OnWorkerFailed fires whenever a peer's channel dies, regardless of
	// whether the failure proved fatal to the run.
	OnWorkerFailed(worker int32)
}

// NopObserver implements Observer with no-ops.
type NopObserver struct{}

func (NopObserver) OnDatasetStarted(int, string)     {}
func (NopObserver) OnDatasetComplete(int, string)    {}
func (NopObserver) OnStopComplete()                  {}
func (NopObserver) OnFailed(error)                   {}
func (NopObserver) OnProgress(int32, uint64, uint64) {}
func (NopObserver) OnWorkerFailed(int32)             {}
