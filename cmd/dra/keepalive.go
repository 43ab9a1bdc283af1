package main

import (
	"time"

	"github.com/riftlab/dra/pkg/reactor"
)

// keepAliveInterval is how often the keep-alive re-arms itself. wire.Channel
// delivers everything — reads, write completions, errors — through
// background goroutines that reach the Reactor only via Post, so between
// messages the Reactor genuinely has no posted work and no timer due; a
// bare Reactor would consider that "no strong work" and Run would return,
// exactly as it's meant to for a short-lived batch of callbacks. A
// long-running master or worker process needs the opposite: Run must keep
// blocking while it waits on the network. keepAlive supplies that by
// holding one self-rescheduling strong timer alive for as long as the
// process runs, standing in for the socket registrations the original
// epoll-based reactor used to keep it blocked on I/O.
const keepAliveInterval = time.Second

// startKeepAlive arms a self-rescheduling strong timer on r so Run never
// exits merely for lack of due work. It needs no explicit teardown:
// Reactor.Stop() takes priority over any outstanding timer, and the
// dangling handle is reclaimed when the process exits.
func startKeepAlive(r *reactor.Reactor) {
	var tick func()
	tick = func() {
		r.Schedule(tick, keepAliveInterval, false)
	}
	tick()
}
