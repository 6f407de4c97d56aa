package state

import (
	"context"
	"sync"
)

// Listener receives a state snapshot after every mutation.
type Listener func(AppState)

// Store is the observable container for AppState. Mutations go through
// Update; every registered listener sees every new snapshot, delivered
// synchronously from the mutating goroutine.
type Store struct {
	mu     sync.Mutex
	state  AppState
	subs   map[int]Listener
	nextID int
}

func NewStore() *Store {
	return &Store{subs: make(map[int]Listener)}
}

// State returns the current snapshot.
func (s *Store) State() AppState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Update applies fn to the state and notifies listeners with the resulting
// snapshot. Listeners run outside the lock so they may call back into the
// store.
func (s *Store) Update(fn func(*AppState)) {
	s.mu.Lock()
	fn(&s.state)
	snap := s.state
	listeners := make([]Listener, 0, len(s.subs))
	for _, l := range s.subs {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
}

// Subscribe registers a listener and returns its cancel function. Cancel is
// idempotent.
func (s *Store) Subscribe(l Listener) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Wait blocks until pred holds or ctx is done. The current snapshot is
// checked first, so a wait on an already-satisfied condition returns without
// subscribing. The temporary subscription is released on every return path;
// a leaked subscription here would be a correctness bug, not just a memory
// one.
func (s *Store) Wait(ctx context.Context, pred func(AppState) bool) (AppState, error) {
	if snap := s.State(); pred(snap) {
		return snap, nil
	}

	matched := make(chan AppState, 1)
	cancel := s.Subscribe(func(snap AppState) {
		if pred(snap) {
			select {
			case matched <- snap:
			default:
			}
		}
	})
	defer cancel()

	select {
	case snap := <-matched:
		return snap, nil
	case <-ctx.Done():
		return AppState{}, ctx.Err()
	}
}

// Subscribers reports the number of live subscriptions. Used by tests to
// verify waits clean up after themselves.
func (s *Store) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
