package dispatch

import (
	"errors"
	"sync"
	"time"
)

// ErrNilTicket is returned when attempting to push a nil ticket.
var ErrNilTicket = errors.New("cannot push nil ticket")

// Queue is a thread-safe, unbounded FIFO queue of tickets.
type Queue struct {
	mu     sync.Mutex
	items  []Ticket
	head   int
	notify chan struct{} // Signaled when items are pushed
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		notify: make(chan struct{}, 1), // Buffered to avoid blocking Push
	}
}

// Push appends a ticket to the tail of the queue.
func (q *Queue) Push(t Ticket) error {
	if t == nil {
		return ErrNilTicket
	}

	q.mu.Lock()
	q.items = append(q.items, t)
	q.mu.Unlock()

	// Signal waiting consumers (non-blocking)
	select {
	case q.notify <- struct{}{}:
	default:
		// Channel already has a pending notification
	}
	return nil
}

// TryPop removes and returns the head ticket without blocking.
// Returns nil if the queue is empty.
func (q *Queue) TryPop() Ticket {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head >= len(q.items) {
		return nil
	}
	t := q.items[q.head]
	q.items[q.head] = nil
	q.head++

	// Compact once the consumed prefix dominates the backing array.
	if q.head > 64 && q.head*2 >= len(q.items) {
		q.items = append([]Ticket(nil), q.items[q.head:]...)
		q.head = 0
	}
	return t
}

// PopTimeout blocks up to d for a ticket. Returns nil if none arrived.
func (q *Queue) PopTimeout(d time.Duration) Ticket {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		if t := q.TryPop(); t != nil {
			return t
		}
		select {
		case <-q.notify:
			// Item may have been pushed, loop to check
		case <-timer.C:
			return q.TryPop()
		}
	}
}

// Len returns the number of queued tickets.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Drain removes and returns every queued ticket.
func (q *Queue) Drain() []Ticket {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := append([]Ticket(nil), q.items[q.head:]...)
	q.items = nil
	q.head = 0
	return out
}
