package oneshot

// PollResult is returned by Receiver.Poll. Ready is false while the
// channel is still waiting for a value or a disconnect; the caller's
// waker will be woken when that changes, and it should call Poll
// again. Once Ready is true, Err distinguishes a delivered Value
// (Err == nil) from a disconnect (Err == ErrDisconnected).
type PollResult[T any] struct {
	Ready bool
	Value T
	Err   error
}
