package protocol

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// Protocol failures. Each is attributable to one target and never aborts a run.
var (
	ErrTimeout            = errors.New("protocol timeout")
	ErrMalformedFrame     = errors.New("malformed frame")
	ErrUnexpectedPacketID = errors.New("unexpected packet id")
	ErrJSONDecode         = errors.New("status json decode")
	ErrConnectionClosed   = errors.New("connection closed")
)

// Kind returns a short stable name of the protocol failure wrapped by err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrMalformedFrame):
		return "malformed_frame"
	case errors.Is(err, ErrUnexpectedPacketID):
		return "unexpected_packet_id"
	case errors.Is(err, ErrJSONDecode):
		return "json_decode"
	case errors.Is(err, ErrConnectionClosed):
		return "connection_closed"
	default:
		return "other"
	}
}

// transportError maps a socket read/write failure to a protocol failure.
// started reports whether part of the current frame was already consumed.
func transportError(err error, started bool) error {
	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		return wrap(ErrTimeout, err)
	case errors.Is(err, io.ErrUnexpectedEOF):
		return wrap(ErrMalformedFrame, err)
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed),
		errors.Is(err, io.ErrClosedPipe), errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		if started {
			return wrap(ErrMalformedFrame, err)
		}
		return wrap(ErrConnectionClosed, err)
	case errors.Is(err, ErrMalformedFrame):
		return err
	default:
		return wrap(ErrConnectionClosed, err)
	}
}

type wrappedError struct {
	kind  error
	cause error
}

func wrap(kind, cause error) error {
	return &wrappedError{kind: kind, cause: cause}
}

func (e *wrappedError) Error() string {
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *wrappedError) Unwrap() []error {
	return []error{e.kind, e.cause}
}
