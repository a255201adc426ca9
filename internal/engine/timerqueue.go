package engine

import (
	"container/heap"
	"time"

	"github.com/ikeswand/ikeswand/internal/state"
)

// Timer is one scheduled event: fire handling reads out the state by
// Serial and validates the event is still the one recorded in
// State.scheduled before acting on it — the event record carries the
// serial and is validated on fire.
type Timer struct {
	At     time.Time
	Serial uint64
	Kind   state.EventKind
	Handle uint64

	index int // heap bookkeeping
}

// timerHeap is a min-heap on At, the priority queue backing the event
// loop's "timer queue keyed by absolute monotonic time".
type timerHeap []*Timer

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].At.Before(h[j].At) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// TimerQueue is the event loop's scheduling structure: a heap ordered by
// fire time, plus a monotonically increasing handle counter so a State's
// single-slot scheduled-event bookkeeping (state.State) can later
// recognize and ignore a stale timer.
type TimerQueue struct {
	h         timerHeap
	nextHandle uint64
}

// NewTimerQueue returns an empty timer queue.
func NewTimerQueue() *TimerQueue {
	return &TimerQueue{nextHandle: 1}
}

// Schedule inserts a new timer and returns its handle.
func (q *TimerQueue) Schedule(at time.Time, serial uint64, kind state.EventKind) *Timer {
	t := &Timer{At: at, Serial: serial, Kind: kind, Handle: q.nextHandle}
	q.nextHandle++
	heap.Push(&q.h, t)
	return t
}

// Cancel removes a timer by handle, if still present. No-op if it has
// already fired or was never scheduled.
func (q *TimerQueue) Cancel(handle uint64) {
	for i, t := range q.h {
		if t.Handle == handle {
			heap.Remove(&q.h, i)
			return
		}
	}
}

// Peek returns the earliest-firing timer without removing it.
func (q *TimerQueue) Peek() (*Timer, bool) {
	if len(q.h) == 0 {
		return nil, false
	}
	return q.h[0], true
}

// Pop removes and returns the earliest-firing timer.
func (q *TimerQueue) Pop() (*Timer, bool) {
	if len(q.h) == 0 {
		return nil, false
	}
	return heap.Pop(&q.h).(*Timer), true
}

// Len reports the number of pending timers.
func (q *TimerQueue) Len() int { return len(q.h) }
