package timeutil

import (
	"context"
	"testing"
	"time"
)

func TestRealClock_Since(t *testing.T) {
	clock := RealClock{}
	past := time.Now().Add(-time.Second)
	if d := clock.Since(past); d < time.Second {
		t.Errorf("Since() returned %v, expected >= 1s", d)
	}
}

func TestRealClock_SleepContext(t *testing.T) {
	clock := RealClock{}

	start := time.Now()
	if err := clock.SleepContext(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatalf("SleepContext() = %v", err)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Error("SleepContext returned early")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start = time.Now()
	if err := clock.SleepContext(ctx, time.Hour); err != context.Canceled {
		t.Errorf("SleepContext() on cancelled ctx = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("SleepContext did not return promptly on cancellation")
	}

	if err := clock.SleepContext(context.Background(), 0); err != nil {
		t.Errorf("SleepContext(0) = %v", err)
	}
}

func TestRealClock_NewTicker(t *testing.T) {
	ticker := RealClock{}.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Error("ticker did not fire")
	}
}

func TestMockClock_SleepRecorded(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	_ = clock.SleepContext(context.Background(), 2*time.Second)
	_ = clock.SleepContext(context.Background(), 0)

	sleeps := clock.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != 2*time.Second || sleeps[1] != 0 {
		t.Errorf("Sleeps() = %v, want [2s 0s]", sleeps)
	}
	if !clock.Now().Equal(time.Unix(0, 0)) {
		t.Error("SleepContext must not move the mock clock")
	}
}

func TestMockClock_AfterFiresOnAdvance(t *testing.T) {
	clock := NewMockClock(time.Unix(100, 0))
	ch := clock.After(time.Second)

	clock.Advance(500 * time.Millisecond)
	select {
	case <-ch:
		t.Fatal("After fired before its deadline")
	default:
	}

	clock.Advance(500 * time.Millisecond)
	select {
	case got := <-ch:
		if !got.Equal(time.Unix(101, 0)) {
			t.Errorf("After delivered %v, want %v", got, time.Unix(101, 0))
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
}

func TestMockClock_Ticker(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	ticker := clock.NewTicker(100 * time.Millisecond)

	for i := 0; i < 3; i++ {
		clock.Advance(100 * time.Millisecond)
		select {
		case <-ticker.C():
		default:
			t.Fatalf("tick %d missing", i)
		}
	}

	ticker.Stop()
	clock.Advance(time.Second)
	select {
	case <-ticker.C():
		t.Error("stopped ticker fired")
	default:
	}
}
