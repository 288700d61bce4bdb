package scheduler

import (
	"sync"

	"github.com/kdudkov/tileview/pkg/model"
)

type Request struct {
	Address model.Address
}

// Queue is an unbounded LIFO stack of download requests. The newest request
// is served first so tiles for the latest viewport start before stale ones.
type Queue struct {
	mx     sync.Mutex
	cond   *sync.Cond
	items  []Request
	closed bool
}

func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mx)

	return q
}

// Push adds r on top. It returns false once the queue is closed.
func (q *Queue) Push(r Request) bool {
	q.mx.Lock()
	defer q.mx.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, r)
	q.cond.Signal()

	return true
}

// Pop blocks until a request is available. It returns false once the queue
// is closed.
func (q *Queue) Pop() (Request, bool) {
	q.mx.Lock()
	defer q.mx.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}

	if q.closed {
		return Request{}, false
	}

	return q.pop(), true
}

// TryPop returns the newest request without blocking.
func (q *Queue) TryPop() (Request, bool) {
	q.mx.Lock()
	defer q.mx.Unlock()

	if len(q.items) == 0 || q.closed {
		return Request{}, false
	}

	return q.pop(), true
}

func (q *Queue) pop() Request {
	n := len(q.items) - 1
	r := q.items[n]
	q.items[n] = Request{}
	q.items = q.items[:n]

	return r
}

func (q *Queue) Len() int {
	q.mx.Lock()
	defer q.mx.Unlock()

	return len(q.items)
}

func (q *Queue) Closed() bool {
	q.mx.Lock()
	defer q.mx.Unlock()

	return q.closed
}

// Close wakes all waiting Pop calls; pending requests are dropped.
func (q *Queue) Close() {
	q.mx.Lock()
	defer q.mx.Unlock()

	q.closed = true
	q.items = nil
	q.cond.Broadcast()
}
