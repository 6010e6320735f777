package coordinator

import (
	"context"
	"sync"
)

// sequencer admits turns on one session one at a time, in the order they
// asked. Different sessions never wait on each other.
type sequencer struct {
	mu     sync.Mutex
	queues map[string]*ticketQueue
}

type ticketQueue struct {
	busy    bool
	waiters []chan struct{}
}

func newSequencer() *sequencer {
	return &sequencer{queues: make(map[string]*ticketQueue)}
}

// Acquire blocks until key is free for the caller. The returned release
// hands key to the next waiter; it is safe to call more than once.
func (s *sequencer) Acquire(ctx context.Context, key string) (func(), error) {
	s.mu.Lock()
	q, ok := s.queues[key]
	if !ok {
		q = &ticketQueue{}
		s.queues[key] = q
	}
	if !q.busy {
		q.busy = true
		s.mu.Unlock()
		return s.releaser(key), nil
	}
	ch := make(chan struct{})
	q.waiters = append(q.waiters, ch)
	s.mu.Unlock()

	select {
	case <-ch:
		return s.releaser(key), nil
	case <-ctx.Done():
		s.mu.Lock()
		for i, w := range q.waiters {
			if w == ch {
				q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
				s.mu.Unlock()
				return nil, ctx.Err()
			}
		}
		s.mu.Unlock()
		// Granted while canceling: pass the ticket on
		s.releaser(key)()
		return nil, ctx.Err()
	}
}

func (s *sequencer) releaser(key string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			q := s.queues[key]
			if len(q.waiters) > 0 {
				next := q.waiters[0]
				q.waiters = q.waiters[1:]
				close(next)
				return
			}
			delete(s.queues, key)
		})
	}
}

// pending returns how many keys are currently held
func (s *sequencer) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues)
}

// waiting returns how many callers are queued behind the holder of key
func (s *sequencer) waiting(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.queues[key]; ok {
		return len(q.waiters)
	}
	return 0
}
