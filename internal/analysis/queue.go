package analysis

// queuedMove is a candidate move with the position it leads to.
type queuedMove struct {
	move string
	fen  string
}

// moveQueue is the shared pull queue of one evaluation. It is guarded by the
// pool mutex and deduplicates moves for its whole lifetime, so a move
// submitted twice is evaluated once.
type moveQueue struct {
	queue []queuedMove
	seen  map[string]bool
}

func newMoveQueue(capacity int) *moveQueue {
	return &moveQueue{
		queue: make([]queuedMove, 0, capacity),
		seen:  make(map[string]bool, capacity),
	}
}

// Enqueue adds a move if it was never queued before.
func (q *moveQueue) Enqueue(m queuedMove) bool {
	if q.seen[m.move] {
		return false
	}
	q.queue = append(q.queue, m)
	q.seen[m.move] = true
	return true
}

// Requeue puts a move back at the front after its worker failed.
func (q *moveQueue) Requeue(m queuedMove) {
	q.queue = append([]queuedMove{m}, q.queue...)
	q.seen[m.move] = true
}

// Dequeue returns the next move (FIFO) or false if empty.
func (q *moveQueue) Dequeue() (queuedMove, bool) {
	if len(q.queue) == 0 {
		return queuedMove{}, false
	}
	m := q.queue[0]
	q.queue = q.queue[1:]
	return m, true
}

// Len returns the number of queued moves.
func (q *moveQueue) Len() int { return len(q.queue) }

// Clear drops all queued moves.
func (q *moveQueue) Clear() {
	q.queue = q.queue[:0]
}
