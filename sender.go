package oneshot

import (
	"runtime"
	"sync/atomic"
)

// Sender is the sending half of a one-shot channel. It must be used
// at most once: call Send exactly one time, or let it go without
// sending (explicitly via Close, or implicitly by leaving it for the
// garbage collector) to disconnect the Receiver.
type Sender[T any] struct {
	b    *block[T]
	used atomic.Bool
}

// Send delivers v to the receiver, waking it if it is parked or
// polling. It returns a *SendError[T] wrapping v if the receiver was
// already dropped, since delivery is impossible and the caller may
// want to recover the value rather than lose it silently.
//
// Send panics if called more than once on the same Sender.
func (s *Sender[T]) Send(v T) error {
	if !s.used.CompareAndSwap(false, true) {
		panic("oneshot: Send called more than once on the same Sender")
	}
	runtime.SetFinalizer(s, nil)
	return s.deliver(v)
}

func (s *Sender[T]) deliver(v T) error {
	for {
		cur := channelState(s.b.state.Load())
		switch cur {
		case stateEmpty:
			s.b.message = v
			if s.b.state.CompareAndSwap(uint32(stateEmpty), uint32(stateMessage)) {
				return nil
			}
			// Lost the race to the receiver disconnecting; retry.
		case stateReceivingThread, stateReceivingAsync:
			if !s.b.state.CompareAndSwap(uint32(cur), uint32(stateUnparking)) {
				continue
			}
			s.b.message = v
			ticket, w := s.b.ticket, s.b.waker
			s.b.ticket, s.b.waker = nil, nil
			s.b.state.Store(uint32(stateMessage))
			if ticket != nil {
				ticket.Unpark()
			}
			if w != nil {
				w.Wake()
			}
			return nil
		case stateDisconnected:
			return &SendError[T]{Value: v}
		case stateUnparking:
			runtime.Gosched()
		case stateMessage:
			// Unreachable: the used guard ensures deliver runs at
			// most once, and no other path writes stateMessage before
			// that single delivery.
			panic("oneshot: internal invariant violated: message already present")
		}
	}
}

// IsClosed reports whether the receiver has already been dropped,
// meaning a subsequent Send would fail.
func (s *Sender[T]) IsClosed() bool {
	return channelState(s.b.state.Load()) == stateDisconnected
}

// Close disconnects the channel without sending a value, waking a
// waiting receiver immediately rather than leaving it parked until
// garbage collection runs the finalizer. Close is a no-op if Send was
// already called.
func (s *Sender[T]) Close() {
	if !s.used.CompareAndSwap(false, true) {
		return
	}
	runtime.SetFinalizer(s, nil)
	s.disconnect()
}

func (s *Sender[T]) finalize() {
	if !s.used.CompareAndSwap(false, true) {
		return
	}
	s.disconnect()
}

func (s *Sender[T]) disconnect() {
	for {
		cur := channelState(s.b.state.Load())
		switch cur {
		case stateEmpty:
			if s.b.state.CompareAndSwap(uint32(stateEmpty), uint32(stateDisconnected)) {
				return
			}
		case stateReceivingThread, stateReceivingAsync:
			if !s.b.state.CompareAndSwap(uint32(cur), uint32(stateUnparking)) {
				continue
			}
			ticket, w := s.b.ticket, s.b.waker
			s.b.ticket, s.b.waker = nil, nil
			s.b.state.Store(uint32(stateDisconnected))
			if ticket != nil {
				ticket.Unpark()
			}
			if w != nil {
				w.Wake()
			}
			return
		case stateUnparking:
			runtime.Gosched()
		case stateDisconnected, stateMessage:
			return
		}
	}
}
