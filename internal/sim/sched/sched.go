// Package sched is a cooperative delayed-task queue. Nothing runs on its own:
// the owner calls RunDue from its loop goroutine and every task executes there.
package sched

import (
	"container/heap"
	"time"
)

// Handle identifies a scheduled task. Cancel is advisory for tasks that are
// already executing; task bodies re-check their own preconditions.
type Handle struct {
	q        *Queue
	due      time.Time
	seq      uint64
	fn       func()
	every    time.Duration
	index    int
	canceled bool
}

// Cancel prevents a pending task (or the next run of a repeating task) from running.
// Safe to call more than once and on a nil handle.
func (h *Handle) Cancel() {
	if h == nil || h.canceled {
		return
	}
	h.canceled = true
	if h.q != nil && h.index >= 0 {
		heap.Remove(&h.q.items, h.index)
	}
}

func (h *Handle) Canceled() bool { return h == nil || h.canceled }

// Due reports when the task will next run.
func (h *Handle) Due() time.Time {
	if h == nil {
		return time.Time{}
	}
	return h.due
}

type Queue struct {
	items taskHeap
	seq   uint64
	now   func() time.Time
}

func New(now func() time.Time) *Queue {
	if now == nil {
		now = time.Now
	}
	return &Queue{now: now}
}

// Now is the queue's time source.
func (q *Queue) Now() time.Time { return q.now() }

// After schedules fn to run once, delay from now.
func (q *Queue) After(delay time.Duration, fn func()) *Handle {
	return q.push(q.now().Add(delay), 0, fn)
}

// Every schedules fn to run repeatedly at interval until its handle is cancelled.
func (q *Queue) Every(interval time.Duration, fn func()) *Handle {
	if interval <= 0 {
		return &Handle{canceled: true, index: -1}
	}
	return q.push(q.now().Add(interval), interval, fn)
}

func (q *Queue) push(due time.Time, every time.Duration, fn func()) *Handle {
	q.seq++
	h := &Handle{q: q, due: due, seq: q.seq, fn: fn, every: every, index: -1}
	heap.Push(&q.items, h)
	return h
}

// RunDue executes every task due at or before now, in due order (ties in
// scheduling order). Tasks scheduled by a running task for a time <= now
// also run in this call. Returns the number of tasks executed.
func (q *Queue) RunDue(now time.Time) int {
	ran := 0
	for len(q.items) > 0 {
		next := q.items[0]
		if next.due.After(now) {
			break
		}
		heap.Pop(&q.items)
		if next.canceled {
			continue
		}
		if next.every > 0 {
			q.seq++
			next.seq = q.seq
			next.due = next.due.Add(next.every)
			if !next.due.After(now) {
				// Fell behind; skip missed runs instead of replaying them.
				next.due = now.Add(next.every)
			}
			heap.Push(&q.items, next)
		}
		if next.fn != nil {
			next.fn()
		}
		ran++
	}
	return ran
}

// Len is the number of pending tasks.
func (q *Queue) Len() int { return len(q.items) }

type taskHeap []*Handle

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].seq < h[j].seq
	}
	return h[i].due.Before(h[j].due)
}
func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *taskHeap) Push(x any) {
	t := x.(*Handle)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
