// Package log provides structured logging on top of zerolog: a global
// Logger initialized once via Init, and a set of child-logger
// constructors that tag every subsequent line with one piece of job
// context — WithComponent ("reactor", "swarm", "coordinator", ...),
// WithWorkerID, WithDataset, WithRunID.
//
// Child loggers compose by chaining .With() rather than by picking one
// constructor: cmd/dra attaches a worker_id and a session_id to the same
// logger for each accepted connection. JSONOutput selects JSON lines for
// production or a human-readable console writer for local runs.
package log
