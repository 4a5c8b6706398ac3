package session

import (
	"context"
	"sync"
)

// Store holds the session state for one client for as long as it is open.
type Store struct {
	mu        sync.RWMutex
	snapshot  Snapshot
	observers map[int]func(Snapshot)
	nextID    int
	resolved  chan struct{}
	closed    bool
	stop      func()
}

// NewStore starts in Resolving and subscribes to provider for token. A
// provider that never answers leaves the store resolving.
func NewStore(provider Provider, token string) *Store {
	s := &Store{
		snapshot:  Snapshot{State: Resolving},
		observers: make(map[int]func(Snapshot)),
		resolved:  make(chan struct{}),
	}

	stop := provider.Watch(token, s.apply)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		stop()
		return s
	}
	s.stop = stop
	s.mu.Unlock()

	return s
}

func (s *Store) apply(identity *Identity) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	next := Snapshot{State: Unauthenticated}
	if identity != nil {
		id := *identity
		next = Snapshot{State: Authenticated, Identity: &id}
	}

	wasResolving := s.snapshot.State == Resolving
	s.snapshot = next

	observers := make([]func(Snapshot), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	if wasResolving {
		close(s.resolved)
	}

	for _, fn := range observers {
		fn(next)
	}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Observe registers fn for every later change. It is not called with the
// current snapshot.
func (s *Store) Observe(fn func(Snapshot)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// Wait blocks until the first notification or ctx is done. On ctx expiry it
// returns the current (still resolving) snapshot together with ctx.Err().
func (s *Store) Wait(ctx context.Context) (Snapshot, error) {
	select {
	case <-s.resolved:
		return s.Snapshot(), nil
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	}
}

// Close ends the provider subscription. Notifications arriving afterwards
// are dropped.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	stop := s.stop
	s.observers = map[int]func(Snapshot){}
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
}
