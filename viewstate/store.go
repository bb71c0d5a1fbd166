package viewstate

import "sync"

// Listener is told about every action after it has been applied.
type Listener[T Identifiable] func(a Action[T], s State[T])

// Store guards one State.
type Store[T Identifiable] struct {
	mu        sync.Mutex
	state     State[T]
	listeners map[int]Listener[T]
	nextID    int
}

func NewStore[T Identifiable]() *Store[T] {
	return &Store[T]{
		state:     State[T]{Items: []T{}},
		listeners: make(map[int]Listener[T]),
	}
}

// Dispatch applies a and returns the resulting state. Listeners run after the
// lock is released.
func (s *Store[T]) Dispatch(a Action[T]) State[T] {
	s.mu.Lock()
	s.state = Reduce(s.state, a)
	snapshot := s.state.clone()
	listeners := make([]Listener[T], 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(a, snapshot)
	}
	return snapshot
}

// State returns a copy of the current state.
func (s *Store[T]) State() State[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe registers l and returns a function that removes it.
func (s *Store[T]) Subscribe(l Listener[T]) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}
