package oneshot

// channelState is the tag stored in block.state. It never moves
// backwards except through the bracketed async re-poll sequence
// (receiving -> unparking -> receiving) used while swapping wakers.
type channelState uint32

const (
	// stateEmpty: neither a message nor a waiting receiver is present.
	stateEmpty channelState = iota

	// stateMessage: the sender stored a value in block.message and has
	// not been observed yet.
	stateMessage

	// stateReceivingThread: a goroutine is parked on block.ticket
	// waiting to be unparked by a Send or a Close.
	stateReceivingThread

	// stateReceivingAsync: block.waker holds a waker to be woken by a
	// Send or a Close; no goroutine is parked.
	stateReceivingAsync

	// stateUnparking: transient. Set by the sender while it is in the
	// middle of handing off to a parked receiver or waking a waker, and
	// by the receiver while Poll swaps its registered waker or Close
	// retracts it. Whichever side did not set it yields and retries
	// until the holder stores the next state.
	stateUnparking

	// stateDisconnected: terminal. Either side has gone away, or the
	// one message the channel will ever carry has been consumed.
	stateDisconnected
)
