package proc

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCoalescerConflatesUpdates(t *testing.T) {
	p, _, _ := newTestPlayer(t, "none")

	var mu sync.Mutex
	var seen []int
	release := make(chan struct{})
	first := make(chan struct{})
	var firstOnce sync.Once

	c := NewCoalescer(p, time.Hour, func(st PlayerState) error {
		firstOnce.Do(func() { close(first) })
		<-release
		mu.Lock()
		seen = append(seen, st.QueueLength)
		mu.Unlock()
		return nil
	})
	t.Cleanup(c.Stop)

	// Occupy the renderer, then flood it. Only the newest pending state
	// may survive the pile-up.
	c.Notify(PlayerState{QueueLength: 0})
	<-first
	for i := 1; i <= 9; i++ {
		c.Notify(PlayerState{QueueLength: i})
	}
	close(release)

	waitFor(t, "renders to drain", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) >= 2 && seen[len(seen)-1] == 9
	})

	mu.Lock()
	defer mu.Unlock()
	if len(seen) > 3 {
		t.Fatalf("renderer ran %d times for 10 updates, conflation failed: %v", len(seen), seen)
	}
}

func TestCoalescerTicksOnlyWhilePlaying(t *testing.T) {
	p, _, _ := newTestPlayer(t, "none")

	var renders atomic.Int32
	c := NewCoalescer(p, 5*time.Millisecond, func(PlayerState) error {
		renders.Add(1)
		return nil
	})
	t.Cleanup(c.Stop)

	// Idle player: the ticker must stay quiet.
	time.Sleep(40 * time.Millisecond)
	idle := renders.Load()
	if idle > 1 {
		t.Fatalf("renderer ran %d times while idle", idle)
	}

	p.Enqueue(testTrack("a", time.Minute))
	p.Play()
	waitFor(t, "periodic renders while playing", func() bool {
		return renders.Load() >= idle+3
	})

	// Paused playback silences the ticker again.
	p.Pause()
	time.Sleep(20 * time.Millisecond)
	paused := renders.Load()
	time.Sleep(40 * time.Millisecond)
	if got := renders.Load(); got > paused+1 {
		t.Fatalf("renderer kept ticking while paused: %d -> %d", paused, got)
	}
}

func TestCoalescerStopIsIdempotent(t *testing.T) {
	p, _, _ := newTestPlayer(t, "none")
	c := NewCoalescer(p, time.Hour, func(PlayerState) error { return nil })
	c.Stop()
	c.Stop()
}

func TestCoalescerStopUnsubscribes(t *testing.T) {
	p, _, _ := newTestPlayer(t, "none")

	c := NewCoalescer(p, time.Hour, func(PlayerState) error { return nil })
	if got := observerCount(p); got != 1 {
		t.Fatalf("observers = %d after NewCoalescer, want 1", got)
	}
	c.Stop()
	if got := observerCount(p); got != 0 {
		t.Fatalf("observers = %d after Stop, want 0", got)
	}
}
