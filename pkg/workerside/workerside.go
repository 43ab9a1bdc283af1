// Package workerside implements the worker side of the state-graph-driven
// RPC: a Manager owns one Channel, tracks its own current state, and
// dispatches incoming requests to handlers registered per (state, kind).
//
// Grounded on original_source/dra/src/worker.cpp's wm.connect<...> handler
// table.
package workerside

import (
	"fmt"

	"github.com/riftlab/dra/pkg/stategraph"
	"github.com/riftlab/dra/pkg/wire"
)

// HandlerKey identifies a registered handler by the state it fires in and
// the incoming message kind it answers.
type HandlerKey struct {
	State stategraph.StateID
	Kind  string
}

// Handler answers an incoming request. The second return is false when no
// response message should be sent — the state transition still happens,
// but the peer is left waiting for its next send rather than a reply.
type Handler func(msg wire.Message) (wire.Message, bool)

// Manager owns a single Channel and routes every incoming message to the
// handler registered for (current state, message kind). An incoming
// message with no matching handler, or that names a transition the graph
// does not have, is illegal: the channel is closed.
type Manager struct {
	graph   *stategraph.Graph
	state   stategraph.StateID
	channel *wire.Channel

	handlers map[HandlerKey]Handler
	onClosed func(error)
}

// New returns a Manager for ch, starting in startState. Start must be
// called once setup (Handle calls, SetClosedHandler) is complete.
func New(graph *stategraph.Graph, startState stategraph.StateID, ch *wire.Channel) *Manager {
	m := &Manager{
		graph:    graph,
		state:    startState,
		channel:  ch,
		handlers: make(map[HandlerKey]Handler),
	}
	ch.SetErrorHandler(func(err error) {
		if m.onClosed != nil {
			m.onClosed(err)
		}
	})
	return m
}

// Handle registers h to answer messages of kind while the peer is in
// state.
func (m *Manager) Handle(state stategraph.StateID, kind string, h Handler) {
	m.handlers[HandlerKey{state, kind}] = h
}

// SetClosedHandler installs the callback run once, when the channel fails
// or is closed by an illegal incoming message.
func (m *Manager) SetClosedHandler(f func(error)) {
	m.onClosed = f
}

// State returns the manager's current state.
func (m *Manager) State() stategraph.StateID {
	return m.state
}

// Start arms the channel to receive its first request.
func (m *Manager) Start() {
	m.channel.SetReadHandler(m.onMessage)
}

func (m *Manager) onMessage(msg wire.Message) {
	to, ok := m.graph.Next(m.state, msg.Kind())
	h, hok := m.handlers[HandlerKey{m.state, msg.Kind()}]
	if !ok || !hok {
		m.channel.Close()
		if m.onClosed != nil {
			m.onClosed(fmt.Errorf("workerside: illegal message %q in state %q", msg.Kind(), m.graph.Name(m.state)))
		}
		return
	}

	resp, hasResp := h(msg)
	m.state = to

	if !hasResp {
		m.channel.SetReadHandler(m.onMessage)
		return
	}
	m.channel.WriteAsync(resp, func(err error) {
		if err == nil {
			m.channel.SetReadHandler(m.onMessage)
		}
	})
}
