package types

import (
	"testing"
	"time"
)

func TestRealClock(t *testing.T) {
	clock := OrRealClock(nil)
	if _, ok := clock.(*RealClock); !ok {
		t.Fatalf("expected RealClock, got %T", clock)
	}

	start := clock.Now()
	timer := clock.NewTimer(time.Millisecond)
	defer timer.Stop()

	select {
	case <-timer.C():
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	if clock.Since(start) < time.Millisecond {
		t.Errorf("expected at least 1ms to pass")
	}

	ticker := clock.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for i := 0; i < 2; i++ {
		select {
		case <-ticker.C():
		case <-time.After(time.Second):
			t.Fatal("ticker did not tick")
		}
	}

	custom := &RealClock{}
	if OrRealClock(custom) != Clock(custom) {
		t.Errorf("expected OrRealClock to keep a non-nil clock")
	}
}
