// Package coordinator implements the job-level logic sitting on top of
// pkg/swarm and pkg/workerside: MasterCoordinator drives the dataset
// lifecycle (configure → process → close → merge → next dataset) by
// plugging generators and result callbacks into a SwarmManager it owns,
// and WorkerRuntime answers those requests on the worker side by driving
// an analysis.Controller.
//
// Grounded line-for-line in original_source/dra/src/master.cpp
// (MasterCoordinator) and original_source/dra/src/worker.cpp
// (WorkerRuntime).
package coordinator
