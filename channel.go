package oneshot

import "runtime"

// Channel creates a connected pair that can carry exactly one value
// of type T from the Sender to the Receiver.
func Channel[T any]() (*Sender[T], *Receiver[T]) {
	b := newBlock[T]()
	s := &Sender[T]{b: b}
	r := &Receiver[T]{b: b}
	runtime.SetFinalizer(s, (*Sender[T]).finalize)
	runtime.SetFinalizer(r, (*Receiver[T]).finalize)
	return s, r
}
