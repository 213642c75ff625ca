package core

import (
	"container/heap"
	"time"
)

type pagingEntry struct {
	deadline time.Time
	terminal uint16
}

// pagingQueue is a min-heap of scheduled paging notifications. Entries are
// never removed early; suppression is checked against the registrar table
// when an entry comes due.
type pagingQueue []pagingEntry

func (q pagingQueue) Len() int { return len(q) }

func (q pagingQueue) Less(i, j int) bool {
	if q[i].deadline.Equal(q[j].deadline) {
		return q[i].terminal < q[j].terminal
	}
	return q[i].deadline.Before(q[j].deadline)
}

func (q pagingQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *pagingQueue) Push(x any) {
	*q = append(*q, x.(pagingEntry))
}

func (q *pagingQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	*q = old[:n-1]
	return e
}

func (q *pagingQueue) schedule(e pagingEntry) {
	heap.Push(q, e)
}

// popDue removes and returns the earliest entry if it is due at now.
func (q *pagingQueue) popDue(now time.Time) (pagingEntry, bool) {
	if q.Len() == 0 || (*q)[0].deadline.After(now) {
		return pagingEntry{}, false
	}
	return heap.Pop(q).(pagingEntry), true
}
