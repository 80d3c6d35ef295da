// Package display provides the single serialized context on which all overlay
// state is read and mutated.
package display

import (
	"fmt"
	"strings"
	"sync"
)

// Policy decides what happens to frame updates that arrive while the loop is busy.
type Policy int

const (
	// Queue runs every frame update in arrival order.
	Queue Policy = iota
	// Latest keeps a single pending frame slot; a new frame replaces an unconsumed one.
	Latest
)

func (p Policy) String() string {
	if p == Latest {
		return "latest"
	}
	return "queue"
}

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "queue", "":
		return Queue, nil
	case "latest", "coalesce":
		return Latest, nil
	}
	return Queue, fmt.Errorf("invalid policy '%s'. Must be 'queue' or 'latest'", s)
}

type frameTask struct {
	run     func()
	discard func()
}

// Loop executes posted tasks one at a time on the goroutine that calls Run.
//
// Control tasks posted with Post always run, FIFO. Frame tasks posted with
// PostFrame follow the loop's Policy. Posting never blocks.
type Loop struct {
	policy Policy

	mu      sync.Mutex
	cond    *sync.Cond
	tasks   []func()
	pending *frameTask // Latest policy only
	closed  bool

	coalesced uint64
	done      chan struct{}
	started   bool
}

func NewLoop(policy Policy) *Loop {
	l := &Loop{policy: policy, done: make(chan struct{})}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *Loop) Policy() Policy { return l.policy }

// Post queues a control task. It returns false once the loop is closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.tasks = append(l.tasks, fn)
	l.cond.Signal()
	return true
}

// PostFrame queues a frame update. Under Latest, an unconsumed pending update
// is replaced and its discard func (may be nil) runs on the caller's goroutine.
// If the loop is closed, discard runs immediately and PostFrame returns false.
func (l *Loop) PostFrame(run, discard func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		if discard != nil {
			discard()
		}
		return false
	}

	if l.policy == Queue {
		l.tasks = append(l.tasks, run)
		l.cond.Signal()
		l.mu.Unlock()
		return true
	}

	replaced := l.pending
	if replaced != nil {
		l.coalesced++
	}
	l.pending = &frameTask{run: run, discard: discard}
	l.cond.Signal()
	l.mu.Unlock()

	if replaced != nil && replaced.discard != nil {
		replaced.discard()
	}
	return true
}

// next blocks until there is work or the loop is closed and drained.
func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for len(l.tasks) == 0 && l.pending == nil && !l.closed {
		l.cond.Wait()
	}
	if len(l.tasks) > 0 {
		fn := l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		return fn, true
	}
	if l.pending != nil {
		fn := l.pending.run
		l.pending = nil
		return fn, true
	}
	return nil, false
}

// Run executes tasks until Close has been called and everything posted before
// it has run. It must be called from exactly one goroutine, once.
func (l *Loop) Run() {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		panic("display: Loop.Run called twice")
	}
	l.started = true
	l.mu.Unlock()

	defer close(l.done)
	for {
		fn, ok := l.next()
		if !ok {
			return
		}
		fn()
	}
}

// Close stops accepting tasks. Run drains what is already queued, then returns.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.cond.Broadcast()
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Coalesced is the number of frame updates replaced before they ran.
func (l *Loop) Coalesced() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.coalesced
}

// Pending is the number of tasks waiting to run.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.tasks)
	if l.pending != nil {
		n++
	}
	return n
}
