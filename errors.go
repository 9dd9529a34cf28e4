package oneshot

import "fmt"

// ErrDisconnected is returned by a receive when the sender was dropped
// without sending a value. The *SendError that Send returns when the
// receiver was dropped first unwraps to it.
var ErrDisconnected = fmt.Errorf("oneshot: channel disconnected")

// ErrEmpty is returned by TryRecv (and RecvRef) when no message is
// available yet and the sender is still attached.
var ErrEmpty = fmt.Errorf("oneshot: channel empty")

// ErrTimeout is returned by RecvTimeout when the deadline passes
// before a message arrives. RecvContext returns ctx.Err() instead.
var ErrTimeout = fmt.Errorf("oneshot: receive timed out")

// SendError is returned by Send when the receiver has already been
// dropped. It carries the value that could not be delivered so the
// caller can recover or redirect it instead of losing it silently.
type SendError[T any] struct {
	Value T
}

func (e *SendError[T]) Error() string {
	return "oneshot: send on disconnected channel"
}

func (e *SendError[T]) Unwrap() error {
	return ErrDisconnected
}
