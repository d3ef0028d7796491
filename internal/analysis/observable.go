package analysis

import "sync"

// Observable holds a latest value and fans it out to subscribers. Each
// subscriber channel holds one value; a slow reader skips intermediate
// values and always sees the latest.
type Observable[T any] struct {
	mu    sync.Mutex
	value T
	subs  map[chan T]struct{}
}

// NewObservable creates an Observable holding initial.
func NewObservable[T any](initial T) *Observable[T] {
	return &Observable[T]{value: initial, subs: make(map[chan T]struct{})}
}

// Get returns the latest value.
func (o *Observable[T]) Get() T {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value
}

// Publish replaces the value and notifies subscribers without blocking.
func (o *Observable[T]) Publish(v T) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.value = v
	for ch := range o.subs {
		offer(ch, v)
	}
}

// Subscribe returns a channel primed with the current value and a function
// that unsubscribes and closes it.
func (o *Observable[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, 1)
	o.mu.Lock()
	o.subs[ch] = struct{}{}
	ch <- o.value
	o.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, ch)
			close(ch)
			o.mu.Unlock()
		})
	}
}

// offer replaces any unread value in ch with v.
func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
