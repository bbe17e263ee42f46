package events

import (
	"context"
	"sync"
)

type listener[T any] struct {
	id uint64
	fn func(T)
}

// Topic delivers values of type T to its listeners.
// Listeners run synchronously on the publishing goroutine, in subscription
// order, and must not block.
type Topic[T any] struct {
	kind      Kind
	listeners []listener[T]
	nextID    uint64
	mu        sync.RWMutex
}

// NewTopic creates a Topic named kind.
func NewTopic[T any](kind Kind) *Topic[T] {
	return &Topic[T]{kind: kind}
}

// Kind returns the topic name.
func (t *Topic[T]) Kind() Kind {
	return t.kind
}

// Subscribe registers fn and returns a function that removes it.
// Calling the returned function more than once is safe.
func (t *Topic[T]) Subscribe(fn func(T)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	id := t.nextID
	t.listeners = append(t.listeners, listener[T]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { t.unsubscribe(id) })
	}
}

func (t *Topic[T]) unsubscribe(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, l := range t.listeners {
		if l.id == id {
			t.listeners = append(t.listeners[:i:i], t.listeners[i+1:]...)
			return
		}
	}
}

// Publish delivers v to every current listener.
func (t *Topic[T]) Publish(v T) {
	t.mu.RLock()
	snapshot := t.listeners
	t.mu.RUnlock()

	for _, l := range snapshot {
		l.fn(v)
	}
}

// Len returns the number of listeners.
func (t *Topic[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.listeners)
}

// Chan subscribes a buffered channel to the topic until ctx is done, after
// which the channel is closed. Values published while the buffer is full are
// dropped.
func (t *Topic[T]) Chan(ctx context.Context, buffer int) <-chan T {
	ch := make(chan T, buffer)

	var mu sync.Mutex
	closed := false

	cancel := t.Subscribe(func(v T) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- v:
		default:
		}
	})

	go func() {
		<-ctx.Done()
		cancel()
		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
	}()

	return ch
}
