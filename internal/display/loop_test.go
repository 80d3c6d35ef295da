package display

import (
	"sync"
	"testing"
	"time"
)

func TestLoop_QueueRunsInOrder(t *testing.T) {
	l := NewLoop(Queue)
	var got []int
	for i := 0; i < 50; i++ {
		i := i
		if i%2 == 0 {
			l.PostFrame(func() { got = append(got, i) }, nil)
		} else {
			l.Post(func() { got = append(got, i) })
		}
	}
	l.Close()
	l.Run()

	if len(got) != 50 {
		t.Fatalf("expected 50 tasks to run, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
}

func TestLoop_LatestCoalesces(t *testing.T) {
	l := NewLoop(Latest)
	var ran []int
	discarded := 0
	for i := 0; i < 5; i++ {
		i := i
		l.PostFrame(func() { ran = append(ran, i) }, func() { discarded++ })
	}
	control := false
	l.Post(func() { control = true })
	l.Close()
	l.Run()

	if len(ran) != 1 || ran[0] != 4 {
		t.Errorf("expected only the newest frame (4) to run, got %v", ran)
	}
	if discarded != 4 {
		t.Errorf("expected 4 discards, got %d", discarded)
	}
	if l.Coalesced() != 4 {
		t.Errorf("Coalesced() = %d, want 4", l.Coalesced())
	}
	if !control {
		t.Error("control task did not run")
	}
}

func TestLoop_Pending(t *testing.T) {
	l := NewLoop(Latest)
	l.Post(func() {})
	l.Post(func() {})
	l.PostFrame(func() {}, nil)
	l.PostFrame(func() {}, nil)
	if got := l.Pending(); got != 3 {
		t.Errorf("Pending() = %d, want 3 (two control tasks and one frame slot)", got)
	}
	l.Close()
	l.Run()
	if got := l.Pending(); got != 0 {
		t.Errorf("Pending() after drain = %d, want 0", got)
	}
}

func TestLoop_LatestRunsControlBeforeFrame(t *testing.T) {
	l := NewLoop(Latest)
	var order []string
	l.PostFrame(func() { order = append(order, "frame") }, nil)
	l.Post(func() { order = append(order, "control") })
	l.Close()
	l.Run()

	if len(order) != 2 || order[0] != "control" || order[1] != "frame" {
		t.Errorf("order = %v", order)
	}
}

func TestLoop_PostAfterClose(t *testing.T) {
	l := NewLoop(Queue)
	l.Close()
	if l.Post(func() {}) {
		t.Error("Post succeeded on a closed loop")
	}
	discarded := false
	if l.PostFrame(func() {}, func() { discarded = true }) {
		t.Error("PostFrame succeeded on a closed loop")
	}
	if !discarded {
		t.Error("discard was not called for a rejected frame")
	}
}

func TestLoop_NonBlockingPost(t *testing.T) {
	l := NewLoop(Queue)
	block := make(chan struct{})
	go l.Run()
	l.Post(func() { <-block })

	start := time.Now()
	for i := 0; i < 1000; i++ {
		l.PostFrame(func() {}, nil)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("posting while the loop is busy took %v", elapsed)
	}

	close(block)
	l.Close()
	select {
	case <-l.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not drain")
	}
}

func TestLoop_SerializesConcurrentPosters(t *testing.T) {
	l := NewLoop(Queue)
	go l.Run()

	counter := 0 // only touched on the loop
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				l.Post(func() { counter++ })
			}
		}()
	}
	wg.Wait()
	l.Close()
	<-l.Done()

	if counter != 1600 {
		t.Errorf("counter = %d, want 1600", counter)
	}
}

func TestParsePolicy(t *testing.T) {
	if p, err := ParsePolicy("latest"); err != nil || p != Latest {
		t.Errorf("ParsePolicy(latest) = %v, %v", p, err)
	}
	if p, err := ParsePolicy(""); err != nil || p != Queue {
		t.Errorf("ParsePolicy('') = %v, %v", p, err)
	}
	if _, err := ParsePolicy("lifo"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
