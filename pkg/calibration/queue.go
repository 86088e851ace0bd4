package calibration

import "sync"

// chunkQueue carries raw MU chunks from the acquisition goroutine to the
// control loop. Push never blocks. With a positive limit the oldest chunks
// are dropped on overflow.
type chunkQueue struct {
	mu     sync.Mutex
	chunks [][]byte
	limit  int
}

func newChunkQueue(limit int) *chunkQueue {
	return &chunkQueue{limit: limit}
}

// Push appends a chunk and returns how many old chunks were dropped.
func (q *chunkQueue) Push(b []byte) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.chunks = append(q.chunks, b)
	if q.limit <= 0 || len(q.chunks) <= q.limit {
		return 0
	}
	dropped := len(q.chunks) - q.limit
	q.chunks = append(q.chunks[:0], q.chunks[dropped:]...)
	return dropped
}

// Drain removes every queued chunk and returns them concatenated in
// arrival order.
func (q *chunkQueue) Drain() []byte {
	q.mu.Lock()
	chunks := q.chunks
	q.chunks = nil
	q.mu.Unlock()

	n := 0
	for _, c := range chunks {
		n += len(c)
	}
	if n == 0 {
		return nil
	}
	out := make([]byte, 0, n)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

func (q *chunkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.chunks)
}
