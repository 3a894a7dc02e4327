package clock

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestFakeAfterFuncFiresOnAdvance(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	var fired atomic.Int32

	c.AfterFunc(10*time.Second, func() { fired.Add(1) })

	c.Advance(9 * time.Second)
	if fired.Load() != 0 {
		t.Fatal("timer fired before its deadline")
	}

	c.Advance(time.Second)
	if fired.Load() != 1 {
		t.Fatalf("fired = %d, want 1", fired.Load())
	}

	c.Advance(time.Minute)
	if fired.Load() != 1 {
		t.Fatalf("timer fired again: %d", fired.Load())
	}
}

func TestFakeTimerStop(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	var fired atomic.Int32

	timer := c.AfterFunc(time.Second, func() { fired.Add(1) })
	if !timer.Stop() {
		t.Error("Stop() on pending timer = false, want true")
	}
	if timer.Stop() {
		t.Error("second Stop() = true, want false")
	}

	c.Advance(2 * time.Second)
	if fired.Load() != 0 {
		t.Error("stopped timer fired")
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", c.Pending())
	}
}

func TestFakeStopAfterFireIsNoop(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	timer := c.AfterFunc(time.Second, func() {})

	c.Advance(time.Second)

	if timer.Stop() {
		t.Error("Stop() after fire = true, want false")
	}
}

func TestFakeBlockUntil(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	done := make(chan struct{})

	go func() {
		c.BlockUntil(1)
		close(done)
	}()

	c.AfterFunc(time.Second, func() {})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("BlockUntil did not return after a timer was registered")
	}
}

func TestNilTimerStop(t *testing.T) {
	var timer *Timer
	if timer.Stop() {
		t.Error("nil Timer Stop() = true, want false")
	}
}
