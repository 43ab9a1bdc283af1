package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
)

// DefaultMaxMessageSize is the default ceiling on a single frame's declared
// size.
const DefaultMaxMessageSize = 1 << 20

// headerSize is the width of the little-endian total-size header, which
// counts itself.
const headerSize = 8

// Channel owns one connected byte stream and speaks the framed message
// protocol over it: at most one outstanding read handler and one
// outstanding write at a time, matching original_source/dc/src/channel.cpp.
//
// A Channel runs its own read and write goroutines so a slow or blocked
// peer never stalls the owning Reactor; every delivery to user code —
// decoded messages, write completions, errors — is marshalled back onto
// the Reactor via the post function so a single goroutine ever touches
// session state.
type Channel struct {
	conn net.Conn
	reg  *Registry
	post func(func())

	maxMessageSize uint64

	armCh      chan func(Message)
	writeReqCh chan writeRequest

	errHandler func(error)

	writeInFlight bool // touched only from the posted (reactor) goroutine

	closeOnce sync.Once
	closed    chan struct{}
}

type writeRequest struct {
	data []byte
	done func(error)
}

// NewChannel wraps conn in a Channel using reg to decode incoming frames.
// post is the function (typically Reactor.Post) used to deliver every
// callback — read, write-completion, error — onto the owning reactor
// goroutine.
func NewChannel(conn net.Conn, reg *Registry, post func(func())) *Channel {
	c := &Channel{
		conn:           conn,
		reg:            reg,
		post:           post,
		maxMessageSize: DefaultMaxMessageSize,
		armCh:          make(chan func(Message), 1),
		writeReqCh:     make(chan writeRequest, 1),
		closed:         make(chan struct{}),
	}
	go c.readLoop()
	go c.writeLoop()
	return c
}

// SetMaxMessageSize overrides the default per-channel frame size ceiling.
// Must be called before any frame larger than the default is expected.
func (c *Channel) SetMaxMessageSize(n uint64) {
	c.maxMessageSize = n
}

// SetErrorHandler installs the callback invoked, on the reactor goroutine,
// the first time this channel's I/O fails. At most one error is ever
// delivered per channel.
func (c *Channel) SetErrorHandler(f func(error)) {
	c.errHandler = f
}

// SetReadHandler arms exactly one handler for the next decoded message.
// Calling it again before the previously armed handler has fired is a
// contract violation.
func (c *Channel) SetReadHandler(h func(Message)) {
	select {
	case c.armCh <- h:
	default:
		panic(ErrReadArmed)
	}
}

// WriteAsync serializes msg and sends it. done, if non-nil, is invoked on
// the reactor goroutine once the write completes or fails. Calling
// WriteAsync again before the previous write's done fired is a contract
// violation.
func (c *Channel) WriteAsync(msg Message, done func(error)) {
	if c.writeInFlight {
		panic(ErrWriteInFlight)
	}
	c.writeInFlight = true

	e := newEncoder()
	e.WriteString(msg.Kind())
	msg.WriteTo(e)
	body := e.buf.Bytes()

	frame := make([]byte, headerSize+len(body))
	binary.LittleEndian.PutUint64(frame, uint64(headerSize+len(body)))
	copy(frame[headerSize:], body)

	select {
	case c.writeReqCh <- writeRequest{data: frame, done: done}:
	case <-c.closed:
		c.writeInFlight = false
		if done != nil {
			c.post(func() { done(net.ErrClosed) })
		}
	}
}

// Close idempotently tears down the channel: the underlying connection is
// closed, which unblocks both the read and write goroutines.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

func (c *Channel) readLoop() {
	for {
		var h func(Message)
		select {
		case h = <-c.armCh:
		case <-c.closed:
			return
		}

		msg, err := c.readOneFrame()
		if err != nil {
			c.post(func() {
				if c.errHandler != nil {
					c.errHandler(err)
				}
			})
			c.Close()
			return
		}
		c.post(func() { h(msg) })
	}
}

func (c *Channel) readOneFrame() (Message, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(c.conn, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrPeerReset
		}
		return nil, fmt.Errorf("%w: %v", ErrPeerAborted, err)
	}

	size := binary.LittleEndian.Uint64(header[:])
	if size <= headerSize {
		return nil, fmt.Errorf("%w: frame size %d too small", ErrMalformed, size)
	}
	if size > c.maxMessageSize {
		return nil, ErrTooLarge
	}

	body := make([]byte, size-headerSize)
	if _, err := io.ReadFull(c.conn, body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPeerAborted, err)
	}

	d := newDecoder(body)
	kind, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	msg, ok := c.reg.New(kind)
	if !ok {
		return nil, fmt.Errorf("%w: unregistered kind %q", ErrMalformed, kind)
	}
	if err := msg.ReadFrom(d); err != nil {
		return nil, err
	}
	return msg, nil
}

func (c *Channel) writeLoop() {
	for {
		var req writeRequest
		select {
		case req = <-c.writeReqCh:
		case <-c.closed:
			return
		}

		_, err := c.conn.Write(req.data)
		c.post(func() {
			c.writeInFlight = false
			if req.done != nil {
				req.done(err)
			}
			if err != nil && c.errHandler != nil {
				c.errHandler(err)
			}
		})
		if err != nil {
			c.Close()
			return
		}
	}
}
