package oneshot

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/brindlewood/oneshot/internal/park"
	"github.com/brindlewood/oneshot/internal/waker"
)

// Receiver is the receiving half of a one-shot channel. A Receiver
// may be read from multiple times (TryRecv, RecvRef) but only one of
// those calls will ever observe the message; concurrently mixing a
// blocking Recv with another blocking Recv or a Poll on the same
// Receiver is a misuse and panics.
type Receiver[T any] struct {
	b    *block[T]
	done atomic.Bool
}

// TryRecv returns immediately with the message if one is ready,
// ErrEmpty if the sender is still attached but hasn't sent, or
// ErrDisconnected if the sender went away without sending.
func (r *Receiver[T]) TryRecv() (T, error) {
	v, err, terminal := tryTerminal(r.b)
	if terminal {
		r.markDone()
		return v, err
	}
	var zero T
	return zero, ErrEmpty
}

// RecvRef behaves like TryRecv: it reports the message on the first
// caller to observe it and ErrDisconnected to everyone else,
// including a caller that raced it. It exists alongside TryRecv for
// callers that want to repeatedly probe a Receiver without treating a
// miss as an error condition worth logging differently from a true
// disconnect.
func (r *Receiver[T]) RecvRef() (T, error) {
	return r.TryRecv()
}

// Recv blocks until a message arrives or the sender disconnects.
func (r *Receiver[T]) Recv() (T, error) {
	return r.recv(time.Time{}, nil)
}

// RecvTimeout blocks until a message arrives, the sender disconnects,
// or d elapses, whichever comes first. A non-nil ErrTimeout means the
// deadline passed with neither a message nor a disconnect observed.
func (r *Receiver[T]) RecvTimeout(d time.Duration) (T, error) {
	return r.recv(time.Now().Add(d), nil)
}

// RecvContext blocks until a message arrives, the sender disconnects,
// or ctx is done, whichever comes first. On cancellation it returns
// ctx.Err().
func (r *Receiver[T]) RecvContext(ctx context.Context) (T, error) {
	return r.recv(time.Time{}, ctx)
}

func (r *Receiver[T]) recv(deadline time.Time, ctx context.Context) (T, error) {
	var zero T
	if r.done.Load() {
		return zero, ErrDisconnected
	}

	for {
		v, err, terminal := tryTerminal(r.b)
		if terminal {
			r.markDone()
			return v, err
		}

		cur := channelState(r.b.state.Load())
		switch cur {
		case stateEmpty:
			ticket := park.New()
			r.b.ticket = ticket
			if !r.b.state.CompareAndSwap(uint32(stateEmpty), uint32(stateReceivingThread)) {
				r.b.ticket = nil
				continue
			}

			var woke bool
			switch {
			case ctx != nil:
				woke = ticket.ParkContext(ctx)
			case deadline.IsZero():
				ticket.Park()
				woke = true
			default:
				woke = ticket.ParkDeadline(deadline)
			}
			if woke {
				continue
			}

			if r.b.state.CompareAndSwap(uint32(stateReceivingThread), uint32(stateEmpty)) {
				r.b.ticket = nil
				if ctx != nil {
					return zero, ctx.Err()
				}
				return zero, ErrTimeout
			}
			// The sender claimed the handoff between our timeout and
			// the retract CAS; loop around to pick up what it left.
			continue
		case stateReceivingThread, stateReceivingAsync:
			panic("oneshot: concurrent blocking Recv calls on the same Receiver")
		case stateUnparking:
			runtime.Gosched()
		}
	}
}

// Poll is the non-blocking counterpart to Recv for callers driven by
// an external scheduler instead of a parked goroutine: it returns
// immediately, registering w to be woken on the next Send or
// disconnect if no result is ready yet. Poll must not be called
// concurrently with a blocking Recv on the same Receiver, and panics
// if it detects that misuse.
func (r *Receiver[T]) Poll(w waker.Waker) PollResult[T] {
	if r.done.Load() {
		var zero T
		return PollResult[T]{Ready: true, Value: zero, Err: ErrDisconnected}
	}

	for {
		v, err, terminal := tryTerminal(r.b)
		if terminal {
			r.markDone()
			return PollResult[T]{Ready: true, Value: v, Err: err}
		}

		cur := channelState(r.b.state.Load())
		switch cur {
		case stateEmpty:
			r.b.waker = w
			if r.b.state.CompareAndSwap(uint32(stateEmpty), uint32(stateReceivingAsync)) {
				return PollResult[T]{Ready: false}
			}
			r.b.waker = nil
		case stateReceivingAsync:
			if r.b.waker != nil && r.b.waker.WillWake(w) {
				return PollResult[T]{Ready: false}
			}
			if !r.b.state.CompareAndSwap(uint32(stateReceivingAsync), uint32(stateUnparking)) {
				continue
			}
			r.b.waker = w
			r.b.state.Store(uint32(stateReceivingAsync))
			return PollResult[T]{Ready: false}
		case stateReceivingThread:
			panic("oneshot: Poll called concurrently with a blocking Recv on the same Receiver")
		case stateUnparking:
			runtime.Gosched()
		}
	}
}

// IsEmpty reports whether the sender is still attached and has not
// yet sent a value.
func (r *Receiver[T]) IsEmpty() bool {
	switch channelState(r.b.state.Load()) {
	case stateEmpty, stateReceivingThread, stateReceivingAsync, stateUnparking:
		return true
	default:
		return false
	}
}

// HasMessage reports whether a value is ready to be received.
func (r *Receiver[T]) HasMessage() bool {
	return channelState(r.b.state.Load()) == stateMessage
}

// IsClosed reports whether the sender has disconnected without
// sending, or the one message this channel will ever carry has
// already been consumed.
func (r *Receiver[T]) IsClosed() bool {
	return channelState(r.b.state.Load()) == stateDisconnected
}

// Close abandons the Receiver, disconnecting the channel so a
// subsequent Send on the paired Sender fails. It is a no-op once the
// Receiver has already produced a terminal result.
func (r *Receiver[T]) Close() {
	if !r.markDone() {
		return
	}

	for {
		cur := channelState(r.b.state.Load())
		switch cur {
		case stateEmpty, stateMessage:
			if r.b.state.CompareAndSwap(uint32(cur), uint32(stateDisconnected)) {
				var zero T
				r.b.message = zero
				return
			}
		case stateReceivingThread, stateReceivingAsync:
			if !r.b.state.CompareAndSwap(uint32(cur), uint32(stateUnparking)) {
				continue
			}
			r.b.ticket, r.b.waker = nil, nil
			r.b.state.Store(uint32(stateDisconnected))
			return
		case stateUnparking:
			runtime.Gosched()
		default:
			return
		}
	}
}

func (r *Receiver[T]) finalize() {
	r.Close()
}

// markDone flags the Receiver as having produced its one terminal
// result and reports whether this call was the one to do so.
func (r *Receiver[T]) markDone() bool {
	if !r.done.CompareAndSwap(false, true) {
		return false
	}
	runtime.SetFinalizer(r, nil)
	return true
}
