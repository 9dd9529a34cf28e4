package waker

import "testing"

func TestChanWakeIsNonBlocking(t *testing.T) {
	t.Parallel()
	c := NewChan()
	c.Wake()
	c.Wake()
	c.Wake()

	select {
	case <-c:
	default:
		t.Fatal("expected a pending wake")
	}

	select {
	case <-c:
		t.Fatal("extra Wake calls should coalesce into one pending signal")
	default:
	}
}

func TestChanWillWake(t *testing.T) {
	t.Parallel()
	a := NewChan()
	b := NewChan()

	if !a.WillWake(a) {
		t.Fatal("a channel waker should report WillWake true against itself")
	}
	if a.WillWake(b) {
		t.Fatal("distinct channel wakers should not report WillWake true")
	}
	if a.WillWake(Func(func() {})) {
		t.Fatal("WillWake against a different Waker type should be false")
	}
}

func TestFuncWake(t *testing.T) {
	t.Parallel()
	called := false
	f := Func(func() { called = true })
	f.Wake()
	if !called {
		t.Fatal("Func.Wake did not invoke the underlying function")
	}
	if f.WillWake(f) {
		t.Fatal("Func.WillWake should always be false")
	}
}
