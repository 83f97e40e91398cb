package sched

import (
	"github.com/silent-rain/arceos/kernel/task"
)

// taskQueue is a fixed-capacity FIFO of task IDs. Its capacity matches the
// registry limit so a push for a live task can never overflow.
type taskQueue struct {
	items [task.MaxTasks]task.ID
	head  int
	count int
}

func (q *taskQueue) reset() {
	q.head = 0
	q.count = 0
}

func (q *taskQueue) push(id task.ID) {
	if q.count == len(q.items) {
		return
	}

	q.items[(q.head+q.count)%len(q.items)] = id
	q.count++
}

func (q *taskQueue) pop() (task.ID, bool) {
	if q.count == 0 {
		return task.InvalidID, false
	}

	id := q.items[q.head]
	q.head = (q.head + 1) % len(q.items)
	q.count--
	return id, true
}

// contains reports whether id currently occupies a queue slot.
func (q *taskQueue) contains(id task.ID) bool {
	for i := 0; i < q.count; i++ {
		if q.items[(q.head+i)%len(q.items)] == id {
			return true
		}
	}

	return false
}

// remove drops every occurrence of id from the queue preserving the order
// of the remaining entries.
func (q *taskQueue) remove(id task.ID) {
	kept := 0
	for i := 0; i < q.count; i++ {
		entry := q.items[(q.head+i)%len(q.items)]
		if entry == id {
			continue
		}

		q.items[(q.head+kept)%len(q.items)] = entry
		kept++
	}

	q.count = kept
}
