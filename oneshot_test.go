package oneshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brindlewood/oneshot/internal/waker"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

func TestSendBeforeRecv(t *testing.T) {
	t.Parallel()
	s, r := Channel[int]()
	if err := s.Send(42); err != nil {
		t.Fatalf("Send: %v", err)
	}
	v, err := r.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if v != 42 {
		t.Fatalf("got %d, want 42", v)
	}
}

func TestRecvWaitsThenSend(t *testing.T) {
	t.Parallel()
	s, r := Channel[string]()
	result := make(chan string, 1)
	errs := make(chan error, 1)
	go func() {
		v, err := r.Recv()
		result <- v
		errs <- err
	}()

	waitFor(t, time.Second, func() bool {
		return channelState(r.b.state.Load()) == stateReceivingThread
	}, "receiver never parked")
	if err := s.Send("hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if err := <-errs; err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if v := <-result; v != "hello" {
		t.Fatalf("got %q, want hello", v)
	}
}

func TestSenderDisconnectBeforeSend(t *testing.T) {
	t.Parallel()
	s, r := Channel[int]()
	s.Close()
	_, err := r.Recv()
	if !errors.Is(err, ErrDisconnected) {
		t.Fatalf("got %v, want ErrDisconnected", err)
	}
}

func TestSenderDisconnectWhileReceiverParked(t *testing.T) {
	t.Parallel()
	s, r := Channel[int]()
	errs := make(chan error, 1)
	go func() {
		_, err := r.Recv()
		errs <- err
	}()

	waitFor(t, time.Second, func() bool {
		return channelState(r.b.state.Load()) == stateReceivingThread
	}, "receiver never parked")
	s.Close()

	select {
	case err := <-errs:
		if !errors.Is(err, ErrDisconnected) {
			t.Fatalf("got %v, want ErrDisconnected", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Recv never returned after sender Close")
	}
}

func TestReceiverDisconnectBeforeSend(t *testing.T) {
	t.Parallel()
	s, r := Channel[int]()
	r.Close()
	if err := s.Send(7); err == nil {
		t.Fatal("Send succeeded after receiver was closed")
	} else {
		var sendErr *SendError[int]
		if !errors.As(err, &sendErr) {
			t.Fatalf("got %T, want *SendError[int]", err)
		}
		if sendErr.Value != 7 {
			t.Fatalf("SendError.Value = %d, want 7", sendErr.Value)
		}
		if !errors.Is(err, ErrDisconnected) {
			t.Fatal("SendError should unwrap to ErrDisconnected")
		}
	}
	if !s.IsClosed() {
		t.Fatal("Sender.IsClosed false after receiver disconnected")
	}
}

func TestRecvTimeoutExpires(t *testing.T) {
	t.Parallel()
	_, r := Channel[int]()
	_, err := r.RecvTimeout(20 * time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
}

func TestRecvTimeoutRaceWithSend(t *testing.T) {
	t.Parallel()
	for i := 0; i < 200; i++ {
		s, r := Channel[int]()
		done := make(chan struct{})
		go func() {
			s.Send(i)
			close(done)
		}()

		v, err := r.RecvTimeout(time.Millisecond)
		<-done
		if err == nil {
			if v != i {
				t.Fatalf("iteration %d: got %d", i, v)
			}
		} else if !errors.Is(err, ErrTimeout) {
			t.Fatalf("iteration %d: unexpected error %v", i, err)
		}
	}
}

func TestRecvContextCancel(t *testing.T) {
	t.Parallel()
	_, r := Channel[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.RecvContext(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want DeadlineExceeded", err)
	}
}

func TestTryRecvEmptyThenMessage(t *testing.T) {
	t.Parallel()
	s, r := Channel[int]()
	if _, err := r.TryRecv(); !errors.Is(err, ErrEmpty) {
		t.Fatalf("got %v, want ErrEmpty", err)
	}
	s.Send(9)
	v, err := r.TryRecv()
	if err != nil {
		t.Fatalf("TryRecv: %v", err)
	}
	if v != 9 {
		t.Fatalf("got %d, want 9", v)
	}
}

func TestDoubleSendPanics(t *testing.T) {
	t.Parallel()
	s, _ := Channel[int]()
	s.Send(1)
	defer func() {
		if recover() == nil {
			t.Fatal("second Send did not panic")
		}
	}()
	s.Send(2)
}

func TestPollAsyncDelivery(t *testing.T) {
	t.Parallel()
	s, r := Channel[int]()
	w := waker.NewChan()

	res := r.Poll(w)
	if res.Ready {
		t.Fatal("Poll reported ready before any Send")
	}

	go s.Send(5)

	select {
	case <-w:
	case <-time.After(time.Second):
		t.Fatal("waker was never woken")
	}

	res = r.Poll(w)
	if !res.Ready || res.Err != nil {
		t.Fatalf("Poll after wake: ready=%v err=%v", res.Ready, res.Err)
	}
	if res.Value != 5 {
		t.Fatalf("got %d, want 5", res.Value)
	}
}

func TestPollSameWakerNotReplaced(t *testing.T) {
	t.Parallel()
	_, r := Channel[int]()
	w := waker.NewChan()

	r.Poll(w)
	res := r.Poll(w)
	if res.Ready {
		t.Fatal("Poll with no new data reported ready")
	}
}

func TestPollWakerSwap(t *testing.T) {
	t.Parallel()
	s, r := Channel[int]()
	first := waker.NewChan()
	second := waker.NewChan()

	r.Poll(first)
	r.Poll(second)

	go s.Send(3)

	select {
	case <-second:
	case <-time.After(time.Second):
		t.Fatal("second (most recently registered) waker was never woken")
	}

	select {
	case <-first:
		t.Fatal("stale waker was woken after being swapped out")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestPollDisconnect(t *testing.T) {
	t.Parallel()
	s, r := Channel[int]()
	w := waker.NewChan()
	r.Poll(w)
	s.Close()

	select {
	case <-w:
	case <-time.After(time.Second):
		t.Fatal("waker was never woken on disconnect")
	}

	res := r.Poll(w)
	if !res.Ready || !errors.Is(res.Err, ErrDisconnected) {
		t.Fatalf("Poll after disconnect: ready=%v err=%v", res.Ready, res.Err)
	}
}

func TestReceiverCloseAfterPollFailsSend(t *testing.T) {
	t.Parallel()
	s, r := Channel[int]()
	w := waker.NewChan()

	res := r.Poll(w)
	if res.Ready {
		t.Fatal("Poll reported ready before any Send")
	}

	r.Close()

	err := s.Send(9)
	if err == nil {
		t.Fatal("Send succeeded after receiver was closed mid-poll")
	}
	var sendErr *SendError[int]
	if !errors.As(err, &sendErr) {
		t.Fatalf("got %T, want *SendError[int]", err)
	}
	if sendErr.Value != 9 {
		t.Fatalf("SendError.Value = %d, want 9", sendErr.Value)
	}
	if !errors.Is(err, ErrDisconnected) {
		t.Fatal("SendError should unwrap to ErrDisconnected")
	}
	if !s.IsClosed() {
		t.Fatal("Sender.IsClosed false after receiver disconnected mid-poll")
	}
}

func TestRecvRefExactlyOnceAcrossConcurrentCallers(t *testing.T) {
	t.Parallel()
	for i := 0; i < 200; i++ {
		s, r := Channel[int]()
		s.Send(i)

		type outcome struct {
			v   int
			err error
		}
		results := make(chan outcome, 2)
		for n := 0; n < 2; n++ {
			go func() {
				v, err := r.RecvRef()
				results <- outcome{v, err}
			}()
		}

		successes := 0
		for n := 0; n < 2; n++ {
			o := <-results
			if o.err == nil {
				successes++
				if o.v != i {
					t.Fatalf("iteration %d: got %d", i, o.v)
				}
			} else if !errors.Is(o.err, ErrDisconnected) {
				t.Fatalf("iteration %d: unexpected error %v", i, o.err)
			}
		}
		if successes != 1 {
			t.Fatalf("iteration %d: %d callers observed the message, want exactly 1", i, successes)
		}
	}
}

func TestHasMessageAndIsEmpty(t *testing.T) {
	t.Parallel()
	s, r := Channel[int]()
	if !r.IsEmpty() || r.HasMessage() {
		t.Fatal("fresh channel should be empty, not have a message")
	}
	s.Send(1)
	if r.IsEmpty() || !r.HasMessage() {
		t.Fatal("channel after Send should have a message, not be empty")
	}
}
