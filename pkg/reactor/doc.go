// Package reactor implements a single-consumer event loop: one goroutine
// drains posted callbacks, due timers, and deferred signals in order,
// with no locking needed since all state mutation happens on that one
// goroutine.
//
// The original reactor multiplexed non-blocking file descriptors, timers,
// and signals with epoll. Go has no portable non-blocking fd story and
// wire.Channel already runs its own read/write goroutines per connection,
// so this redesign drops fd registration entirely: a Reactor here
// multiplexes three things instead —
//
//	posted callbacks  (Post)        — work handed in from any goroutine,
//	                                   delivered on the Reactor's own
//	                                   goroutine, draining before the loop
//	                                   looks at anything else
//	timers            (Schedule)     — a min-heap ordered by due time,
//	                                   weak or strong
//	OS signals        (NotifySignal) — delivery deferred to the loop like
//	                                   everything else, never handled in
//	                                   a true signal context
//
//	   ┌─────────────────────────────────────────────┐
//	   │                  Run (one goroutine)         │
//	   │                                               │
//	   │   drain queue   ──▶  fire due timers  ──▶    │
//	   │        ▲                                 │    │
//	   │        └─────────────  select  ◀──────────┘    │
//	   │             (wake   | sigRaw    | timer.C |    │
//	   │              stopCh | ctx.Done)                │
//	   └─────────────────────────────────────────────┘
//
// Every other goroutine in the process only ever reaches state guarded by
// a Reactor through Post — so, exactly as in the original design, no two
// callbacks ever run concurrently and no lock is needed inside them.
package reactor
