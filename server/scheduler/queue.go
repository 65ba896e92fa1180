package scheduler

import (
	"container/heap"
	"time"
)

// wake is one pending "resume at FireAt" entry.
type wake struct {
	owner       string
	reminderUID string
	fireAt      time.Time
	index       int
}

func wakeKey(owner, reminderUID string) string {
	return owner + "/" + reminderUID
}

// wakeQueue is a min-heap of pending wakes ordered by fire time, with one
// entry per reminder. Pushing an existing key replaces its fire time.
type wakeQueue struct {
	entries []*wake
	byKey   map[string]*wake
}

func newWakeQueue() *wakeQueue {
	q := &wakeQueue{byKey: make(map[string]*wake)}
	heap.Init(q)
	return q
}

func (q *wakeQueue) Len() int { return len(q.entries) }

func (q *wakeQueue) Less(i, j int) bool {
	return q.entries[i].fireAt.Before(q.entries[j].fireAt)
}

func (q *wakeQueue) Swap(i, j int) {
	q.entries[i], q.entries[j] = q.entries[j], q.entries[i]
	q.entries[i].index = i
	q.entries[j].index = j
}

func (q *wakeQueue) Push(x any) {
	w := x.(*wake)
	w.index = len(q.entries)
	q.entries = append(q.entries, w)
}

func (q *wakeQueue) Pop() any {
	old := q.entries
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	q.entries = old[:n-1]
	return w
}

// Schedule adds or updates the wake for a reminder.
func (q *wakeQueue) Schedule(owner, reminderUID string, fireAt time.Time) {
	key := wakeKey(owner, reminderUID)
	if existing, ok := q.byKey[key]; ok {
		existing.fireAt = fireAt
		heap.Fix(q, existing.index)
		return
	}
	w := &wake{owner: owner, reminderUID: reminderUID, fireAt: fireAt}
	q.byKey[key] = w
	heap.Push(q, w)
}

// Contains reports whether a wake is pending for the reminder.
func (q *wakeQueue) Contains(owner, reminderUID string) bool {
	_, ok := q.byKey[wakeKey(owner, reminderUID)]
	return ok
}

// Peek returns the earliest wake without removing it, or nil.
func (q *wakeQueue) Peek() *wake {
	if len(q.entries) == 0 {
		return nil
	}
	return q.entries[0]
}

// PopDue removes and returns every wake with fireAt at or before now.
func (q *wakeQueue) PopDue(now time.Time) []*wake {
	var due []*wake
	for len(q.entries) > 0 && !q.entries[0].fireAt.After(now) {
		w := heap.Pop(q).(*wake)
		delete(q.byKey, wakeKey(w.owner, w.reminderUID))
		due = append(due, w)
	}
	return due
}
