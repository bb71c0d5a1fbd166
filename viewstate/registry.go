package viewstate

import "sync"

// Message is the wire form of an action, e.g. {"type":"posts/updateOne","payload":{...}}.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// KeyedListener is told which store an action was applied to.
type KeyedListener[T Identifiable] func(key string, a Action[T])

// Registry holds one Store per key, typically a user id.
type Registry[T Identifiable] struct {
	name string

	mu        sync.Mutex
	stores    map[string]*Store[T]
	listeners map[int]KeyedListener[T]
	nextID    int
}

// NewRegistry returns a registry whose messages are prefixed with name.
func NewRegistry[T Identifiable](name string) *Registry[T] {
	return &Registry[T]{
		name:      name,
		stores:    make(map[string]*Store[T]),
		listeners: make(map[int]KeyedListener[T]),
	}
}

func (r *Registry[T]) Name() string { return r.name }

// Get returns the store for key, creating it on first use.
func (r *Registry[T]) Get(key string) *Store[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stores[key]; ok {
		return s
	}
	s := NewStore[T]()
	s.Subscribe(func(a Action[T], _ State[T]) { r.notify(key, a) })
	r.stores[key] = s
	return s
}

// Dispatch applies a to the store for key.
func (r *Registry[T]) Dispatch(key string, a Action[T]) State[T] {
	return r.Get(key).Dispatch(a)
}

// DispatchAll applies a to every existing store. Stores that do not hold the
// entity are unaffected by updateOne and removeOne.
func (r *Registry[T]) DispatchAll(a Action[T]) {
	r.mu.Lock()
	stores := make([]*Store[T], 0, len(r.stores))
	for _, s := range r.stores {
		stores = append(stores, s)
	}
	r.mu.Unlock()

	for _, s := range stores {
		s.Dispatch(a)
	}
}

// Forget drops the store for key.
func (r *Registry[T]) Forget(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.stores, key)
}

// Subscribe registers l for actions on any store and returns a function that
// removes it.
func (r *Registry[T]) Subscribe(l KeyedListener[T]) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = l
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.listeners, id)
	}
}

func (r *Registry[T]) notify(key string, a Action[T]) {
	r.mu.Lock()
	listeners := make([]KeyedListener[T], 0, len(r.listeners))
	for _, l := range r.listeners {
		listeners = append(listeners, l)
	}
	r.mu.Unlock()

	for _, l := range listeners {
		l(key, a)
	}
}

// Message renders a in wire form.
func (r *Registry[T]) Message(a Action[T]) Message {
	m := Message{Type: r.name + "/" + string(a.Type)}
	switch a.Type {
	case FetchSuccess:
		m.Payload = a.Items
	case FetchFailure:
		m.Payload = a.Error
	case AddOne, UpdateOne:
		m.Payload = a.Item
	case RemoveOne:
		m.Payload = a.ID
	}
	return m
}
