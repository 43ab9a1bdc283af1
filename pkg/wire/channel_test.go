package wire

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func syncPost(f func()) { f() }

func newPipeChannels(reg *Registry) (*Channel, *Channel) {
	a, b := net.Pipe()
	return NewChannel(a, reg, syncPost), NewChannel(b, reg, syncPost)
}

func TestChannelWriteReadRoundTrip(t *testing.T) {
	reg := NewRegistry()
	RegisterJobMessages(reg)
	left, right := newPipeChannels(reg)
	defer left.Close()
	defer right.Close()

	received := make(chan Message, 1)
	right.SetReadHandler(func(m Message) { received <- m })

	done := make(chan error, 1)
	left.WriteAsync(&Stop{}, func(err error) { done <- err })

	require.NoError(t, <-done)
	select {
	case m := <-received:
		assert.Equal(t, "STOP    ", m.Kind())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestChannelSetReadHandlerTwiceWithoutFiringPanics(t *testing.T) {
	reg := NewRegistry()
	RegisterJobMessages(reg)
	left, right := newPipeChannels(reg)
	defer left.Close()
	defer right.Close()

	right.SetReadHandler(func(Message) {})
	assert.Panics(t, func() { right.SetReadHandler(func(Message) {}) })
}

func TestChannelWriteWhileInFlightPanics(t *testing.T) {
	reg := NewRegistry()
	RegisterJobMessages(reg)
	left, right := newPipeChannels(reg)
	defer left.Close()
	defer right.Close()

	// right never arms a read handler, so net.Pipe's synchronous Write on
	// left blocks forever: writeInFlight stays true for the rest of the test.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		left.WriteAsync(&Stop{}, nil)
	}()
	time.Sleep(20 * time.Millisecond)
	assert.Panics(t, func() { left.WriteAsync(&Stop{}, nil) })
	wg.Wait()
}

func TestChannelOversizeFrameClosesWithErrTooLarge(t *testing.T) {
	reg := NewRegistry()
	RegisterJobMessages(reg)
	left, right := newPipeChannels(reg)
	defer left.Close()
	defer right.Close()

	right.SetMaxMessageSize(16)

	errCh := make(chan error, 1)
	right.SetErrorHandler(func(err error) { errCh <- err })
	right.SetReadHandler(func(Message) {})

	left.WriteAsync(&Configure{ConfigPath: "this config path is long enough to exceed sixteen bytes", WorkerIndex: 1}, nil)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrTooLarge)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for error")
	}
}

// TestChannelLoopbackTCPTenRoundTrips exercises two Channels over a real
// loopback TCP connection, rather than net.Pipe's synchronous in-process
// rendezvous, writing ten small messages from client to server, each read
// by a re-armed read handler, before closing cleanly on both ends.
func TestChannelLoopbackTCPTenRoundTrips(t *testing.T) {
	reg := NewRegistry()
	RegisterJobMessages(reg)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	acceptedCh := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		require.NoError(t, err)
		acceptedCh <- conn
	}()

	clientConn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	serverConn := <-acceptedCh

	var mu sync.Mutex
	post := func(f func()) {
		mu.Lock()
		defer mu.Unlock()
		f()
	}

	client := NewChannel(clientConn, reg, post)
	server := NewChannel(serverConn, reg, post)
	defer client.Close()
	defer server.Close()

	received := make(chan Message, 10)
	var handle func(m Message)
	handle = func(m Message) {
		received <- m
		server.SetReadHandler(handle)
	}
	server.SetReadHandler(handle)

	for i := 0; i < 10; i++ {
		done := make(chan error, 1)
		client.WriteAsync(&Process{DatasetIndex: int32(i), FileIndex: uint32(i)}, func(err error) { done <- err })
		require.NoError(t, <-done)

		select {
		case m := <-received:
			got := m.(*Process)
			assert.Equal(t, int32(i), got.DatasetIndex)
			assert.Equal(t, uint32(i), got.FileIndex)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for round trip %d", i)
		}
	}

	require.NoError(t, client.Close())
	require.NoError(t, server.Close())
}

func TestChannelPeerCloseSurfacesErrPeerReset(t *testing.T) {
	reg := NewRegistry()
	RegisterJobMessages(reg)
	left, right := newPipeChannels(reg)
	defer left.Close()

	errCh := make(chan error, 1)
	right.SetErrorHandler(func(err error) { errCh <- err })
	right.SetReadHandler(func(Message) {})

	require.NoError(t, left.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrPeerReset)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for error")
	}
}
