package oneshot

import (
	"sync/atomic"

	"github.com/brindlewood/oneshot/internal/park"
	"github.com/brindlewood/oneshot/internal/waker"
)

// block is the state shared between a Sender and a Receiver. Both
// sides hold a pointer to the same block; neither side ever copies it.
type block[T any] struct {
	state atomic.Uint32

	// message is written by the sender only while state is
	// stateEmpty or while the sender itself is CAS-moving a waiting
	// receiver out of stateReceivingThread/stateReceivingAsync, and
	// read by the receiver only after it wins the CompareAndSwap out
	// of stateMessage. That CAS is the happens-before edge that makes
	// touching this plain field safe without its own lock.
	message T

	// ticket and waker are written by the receiver only while it is
	// the one moving state from stateEmpty to stateReceivingThread or
	// stateReceivingAsync (or re-registering from stateUnparking back
	// to stateReceivingAsync), and read by the sender only after it
	// observes one of those states with a CAS into stateUnparking.
	// Same discipline as message.
	ticket *park.Ticket
	waker  waker.Waker
}

func newBlock[T any]() *block[T] {
	return &block[T]{}
}

// tryTerminal attempts to consume a pending message or report that
// the channel has reached its terminal disconnected state. TryRecv,
// the blocking recv loop, and Poll all funnel through this helper so
// they share one CAS discipline: only the goroutine that wins the
// CompareAndSwap out of stateMessage is allowed to read and zero the
// message slot. That guarantees at most one of two concurrent
// consumers on the same Receiver (e.g. a stray TryRecv racing a
// blocking Recv) ever observes the value; the loser sees
// ErrDisconnected, matching the "exactly one delivery" contract.
func tryTerminal[T any](b *block[T]) (v T, err error, terminal bool) {
	switch channelState(b.state.Load()) {
	case stateMessage:
		if b.state.CompareAndSwap(uint32(stateMessage), uint32(stateDisconnected)) {
			v = b.message
			var zero T
			b.message = zero
			return v, nil, true
		}
		return v, ErrDisconnected, true
	case stateDisconnected:
		return v, ErrDisconnected, true
	default:
		return v, nil, false
	}
}
