// Package live provides push-based value feeds. A subscriber first sees the
// latest value (if any) and then every later value in publish order.
package live

import "sync"

// Feed broadcasts values of type T to subscribers. Each subscriber is served
// by its own goroutine through an unbounded queue, so a slow callback never
// blocks Publish or other subscribers.
type Feed[T any] struct {
	mu     sync.Mutex
	latest T
	has    bool
	closed bool
	next   uint64
	subs   map[uint64]*subscriber[T]
}

func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{subs: make(map[uint64]*subscriber[T])}
}

// Publish records v as the latest value and queues it for every subscriber.
// Publishing on a closed feed is a no-op.
func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.latest, f.has = v, true
	for _, s := range f.subs {
		s.push(v)
	}
}

// Latest returns the most recently published value.
func (f *Feed[T]) Latest() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, f.has
}

// Subscribe registers fn and returns a cancel function. Cancel is idempotent;
// once it returns no further callback starts.
func (f *Feed[T]) Subscribe(fn func(T)) (cancel func()) {
	s := newSubscriber(fn)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return func() {}
	}
	id := f.next
	f.next++
	if f.has {
		s.push(f.latest)
	}
	f.subs[id] = s
	f.mu.Unlock()

	go s.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			s.stop()
		})
	}
}

// Subscribers reports how many subscriptions are active.
func (f *Feed[T]) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close stops every subscriber and rejects further publishes.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	subs := f.subs
	f.subs = make(map[uint64]*subscriber[T])
	f.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
}

type subscriber[T any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []T
	stopped bool
	fn      func(T)
}

func newSubscriber[T any](fn func(T)) *subscriber[T] {
	s := &subscriber[T]{fn: fn}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *subscriber[T]) push(v T) {
	s.mu.Lock()
	if !s.stopped {
		s.queue = append(s.queue, v)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *subscriber[T]) stop() {
	s.mu.Lock()
	s.stopped = true
	s.queue = nil
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *subscriber[T]) run() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.stopped {
			s.cond.Wait()
		}
		if s.stopped {
			s.mu.Unlock()
			return
		}
		v := s.queue[0]
		var zero T
		s.queue[0] = zero
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.fn(v)
	}
}
