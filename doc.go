// Package oneshot implements a single-producer, single-consumer channel
// for sending exactly one value between a sender and a receiver.
//
// Unlike a buffered Go channel of size one, a oneshot pair is built
// around a single lock-free state word (see state.go) rather than a
// mutex-guarded ring buffer, and it distinguishes the three ways a
// channel can end: a value was delivered, the sender disconnected
// without sending, or the receiver disconnected before the sender
// could send. It also supports both blocking receives (Recv,
// RecvContext, RecvTimeout) and non-blocking polling (Poll) against a
// caller-supplied [waker.Waker], so the same channel can back either a
// goroutine that parks or an async task scheduler.
package oneshot
