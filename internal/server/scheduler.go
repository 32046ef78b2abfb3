package server

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"mqfile/internal/msgq"
	"mqfile/internal/wire"
)

// job is an accepted request waiting for or held by a worker.
type job struct {
	id       string
	req      wire.Request
	dest     msgq.Address
	reject   string // non-empty answers the request with this error instead of the file
	accepted time.Time
	seq      uint64
}

// jobHeap orders higher priority first, then acceptance order.
type jobHeap []*job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].req.Priority != h[j].req.Priority {
		return h[i].req.Priority > h[j].req.Priority
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) { *h = append(*h, x.(*job)) }

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// scheduler hands jobs to workers, keeping at most one active job per destination.
type scheduler struct {
	mu      sync.Mutex
	pending jobHeap
	busy    map[msgq.Address]struct{}
	closed  bool
	seq     uint64
	changed chan struct{}
}

func newScheduler() *scheduler {
	return &scheduler{
		busy:    make(map[msgq.Address]struct{}),
		changed: make(chan struct{}),
	}
}

// push queues j and reports false once the scheduler is closed.
func (s *scheduler) push(j *job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.seq++
	j.seq = s.seq
	heap.Push(&s.pending, j)
	s.notifyLocked()
	return true
}

// next blocks until a job whose destination is idle is available. It returns
// false once the scheduler is closed or ctx is done.
func (s *scheduler) next(ctx context.Context) (*job, bool) {
	for {
		s.mu.Lock()
		if s.closed || ctx.Err() != nil {
			s.mu.Unlock()
			return nil, false
		}
		if j := s.popEligibleLocked(); j != nil {
			s.busy[j.dest] = struct{}{}
			s.mu.Unlock()
			return j, true
		}
		changed := s.changed
		s.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, false
		}
	}
}

func (s *scheduler) popEligibleLocked() *job {
	var skipped []*job
	var found *job
	for s.pending.Len() > 0 {
		j := heap.Pop(&s.pending).(*job)
		if _, busy := s.busy[j.dest]; !busy {
			found = j
			break
		}
		skipped = append(skipped, j)
	}
	for _, j := range skipped {
		heap.Push(&s.pending, j)
	}
	return found
}

// done releases j's destination.
func (s *scheduler) done(j *job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.busy, j.dest)
	s.notifyLocked()
}

// close stops handing out jobs and wakes every waiting worker.
func (s *scheduler) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.notifyLocked()
}

// drain removes and returns every job that never started, in priority order.
func (s *scheduler) drain() []*job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*job, 0, s.pending.Len())
	for s.pending.Len() > 0 {
		out = append(out, heap.Pop(&s.pending).(*job))
	}
	return out
}

// counts returns the number of queued and active jobs.
func (s *scheduler) counts() (pending, active int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Len(), len(s.busy)
}

func (s *scheduler) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}
