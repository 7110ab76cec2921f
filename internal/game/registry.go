package game

import "sync"

// Registry fans values out to subscribers in registration order.
type Registry[T any] struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscriber[T]
	clone  func(T) T
}

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

// NewRegistry creates an empty registry. When clone is non-nil every
// subscriber receives its own copy of each value.
func NewRegistry[T any](clone func(T) T) *Registry[T] {
	return &Registry[T]{clone: clone}
}

// Subscribe registers fn and returns a function that removes it. The returned
// function may be called any number of times.
func (r *Registry[T]) Subscribe(fn func(T)) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.subs = append(r.subs, subscriber[T]{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(id) })
	}
}

func (r *Registry[T]) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.subs {
		if s.id == id {
			r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
			return
		}
	}
}

// Notify calls every current subscriber once. Subscribers added or removed
// while Notify runs take effect on the next call.
func (r *Registry[T]) Notify(v T) {
	r.mu.Lock()
	subs := append([]subscriber[T](nil), r.subs...)
	r.mu.Unlock()

	for _, s := range subs {
		s.fn(r.copyOf(v))
	}
}

// Deliver calls a single callback with a copy of v, the same way Notify would.
func (r *Registry[T]) Deliver(fn func(T), v T) {
	fn(r.copyOf(v))
}

func (r *Registry[T]) copyOf(v T) T {
	if r.clone == nil {
		return v
	}
	return r.clone(v)
}

func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
