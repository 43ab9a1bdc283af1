package wire

import "errors"

// ErrPeerReset is returned when the remote end closed the connection
// cleanly at a message boundary (read returned io.EOF before any byte of a
// new frame was consumed).
var ErrPeerReset = errors.New("wire: peer closed the connection")

// ErrPeerAborted is returned when the remote end closed the connection in
// the middle of a frame — the header or body was only partially delivered.
var ErrPeerAborted = errors.New("wire: peer closed the connection mid-message")

// ErrMalformed is returned when a frame does not conform to the wire
// format: an impossible size header, an unregistered kind tag, or a body
// shorter than its fields require.
var ErrMalformed = errors.New("wire: malformed frame")

// ErrTooLarge is returned when a frame's declared size exceeds the
// channel's configured MaxMessageSize.
var ErrTooLarge = errors.New("wire: frame exceeds maximum message size")

// ErrWriteInFlight is a contract violation: WriteAsync was called again
// before the previous write's completion callback ran.
var ErrWriteInFlight = errors.New("wire: write already in flight")

// ErrReadArmed is a contract violation: SetReadHandler was called again
// before the previously armed handler had a chance to fire.
var ErrReadArmed = errors.New("wire: read handler already armed")
