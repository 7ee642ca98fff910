package timing

// runQueue is a doubly linked list of processes stored in arrays indexed by
// ProcessID. A process is linked at most once.
type runQueue struct {
	head   ProcessID
	prev   []ProcessID
	next   []ProcessID
	linked []bool
	size   int
}

func newRunQueue() runQueue {
	return runQueue{head: NoProcess}
}

func (q *runQueue) grow(n int) {
	for len(q.prev) < n {
		q.prev = append(q.prev, NoProcess)
		q.next = append(q.next, NoProcess)
		q.linked = append(q.linked, false)
	}
}

func (q *runQueue) pushFront(pid ProcessID) {
	if q.linked[pid] {
		panic("process is already in the run queue")
	}

	q.prev[pid] = NoProcess
	q.next[pid] = q.head

	if q.head != NoProcess {
		q.prev[q.head] = pid
	}

	q.head = pid
	q.linked[pid] = true
	q.size++
}

func (q *runQueue) remove(pid ProcessID) {
	if !q.linked[pid] {
		panic("process is not in the run queue")
	}

	prev, next := q.prev[pid], q.next[pid]

	if prev != NoProcess {
		q.next[prev] = next
	} else {
		q.head = next
	}

	if next != NoProcess {
		q.prev[next] = prev
	}

	q.prev[pid] = NoProcess
	q.next[pid] = NoProcess
	q.linked[pid] = false
	q.size--
}

func (q *runQueue) contains(pid ProcessID) bool {
	return q.linked[pid]
}

func (q *runQueue) len() int {
	return q.size
}

// appendTo appends the queued processes, head first, to buf.
func (q *runQueue) appendTo(buf []ProcessID) []ProcessID {
	for pid := q.head; pid != NoProcess; pid = q.next[pid] {
		buf = append(buf, pid)
	}

	return buf
}
