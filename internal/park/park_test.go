package park

import (
	"context"
	"testing"
	"time"
)

func TestParkUnparkBeforePark(t *testing.T) {
	t.Parallel()
	tk := New()
	tk.Unpark()
	done := make(chan struct{})
	go func() {
		tk.Park()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Park did not return after a prior Unpark")
	}
}

func TestParkUnparkAfterPark(t *testing.T) {
	t.Parallel()
	tk := New()
	done := make(chan struct{})
	go func() {
		tk.Park()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Park returned before Unpark was called")
	case <-time.After(20 * time.Millisecond):
	}

	tk.Unpark()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Park did not return after Unpark")
	}
}

func TestParkDeadlineExpires(t *testing.T) {
	t.Parallel()
	tk := New()
	woke := tk.ParkDeadline(time.Now().Add(10 * time.Millisecond))
	if woke {
		t.Fatal("ParkDeadline reported woken, want timeout")
	}
}

func TestParkDeadlineZeroBlocksUntilUnpark(t *testing.T) {
	t.Parallel()
	tk := New()
	tk.Unpark()
	if !tk.ParkDeadline(time.Time{}) {
		t.Fatal("ParkDeadline with zero deadline reported timeout after Unpark")
	}
}

func TestParkContextCancel(t *testing.T) {
	t.Parallel()
	tk := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if tk.ParkContext(ctx) {
		t.Fatal("ParkContext reported woken, want cancellation")
	}
}

func TestUnparkCoalesces(t *testing.T) {
	t.Parallel()
	tk := New()
	tk.Unpark()
	tk.Unpark()
	tk.Unpark()
	tk.Park()
	// A second Park should block since only one wake was ever pending.
	if tk.ParkDeadline(time.Now().Add(20 * time.Millisecond)) {
		t.Fatal("extra Unpark calls were not coalesced")
	}
}
