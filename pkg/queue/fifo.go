package queue

import "sync"

// compactThreshold is the number of consumed slots after which the backing
// slice is compacted.
const compactThreshold = 64

// FIFO is the shared queue of job ids awaiting a worker.
type FIFO struct {
	mu    sync.Mutex
	items []uint64
	head  int
	ready chan struct{}
}

// NewFIFO creates an empty FIFO.
func NewFIFO() *FIFO {
	return &FIFO{ready: make(chan struct{}, 1)}
}

// Enqueue appends id to the tail.
func (f *FIFO) Enqueue(id uint64) {
	f.mu.Lock()
	f.items = append(f.items, id)
	f.mu.Unlock()
	f.signal()
}

// Dequeue removes and returns the head id. ok is false when the queue is
// empty; Dequeue never blocks.
func (f *FIFO) Dequeue() (id uint64, ok bool) {
	f.mu.Lock()
	if f.head == len(f.items) {
		f.items = f.items[:0]
		f.head = 0
		f.mu.Unlock()
		return 0, false
	}

	id = f.items[f.head]
	f.head++
	if f.head >= compactThreshold && f.head*2 >= len(f.items) {
		n := copy(f.items, f.items[f.head:])
		f.items = f.items[:n]
		f.head = 0
	}
	more := f.head < len(f.items)
	f.mu.Unlock()

	// Pass the wake-up on so another idle worker picks up the rest.
	if more {
		f.signal()
	}
	return id, true
}

// Len returns the number of queued ids.
func (f *FIFO) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items) - f.head
}

// IDs returns the queued ids in dequeue order.
func (f *FIFO) IDs() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint64, len(f.items)-f.head)
	copy(out, f.items[f.head:])
	return out
}

// Ready returns a channel that receives a value after ids are enqueued.
// Notifications coalesce, so receivers must drain with Dequeue until it
// reports empty.
func (f *FIFO) Ready() <-chan struct{} {
	return f.ready
}

func (f *FIFO) signal() {
	select {
	case f.ready <- struct{}{}:
	default:
	}
}
