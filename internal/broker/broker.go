// Package broker provides a typed in-process publish/subscribe queue.
// Each Broker carries a single event type and delivers its events in FIFO
// order from one background goroutine.
package broker

import (
	"sync"

	"github.com/rs/zerolog"
)

// Subscriber receives events from a Broker. Handle runs on the broker's
// delivery goroutine and should return quickly: a blocked handler stalls
// every event of that type.
type Subscriber[T any] interface {
	Handle(ev T)
}

// Func adapts a plain function to Subscriber. Use the pointer returned by
// NewFunc for both Subscribe and Unsubscribe.
type Func[T any] struct {
	fn func(T)
}

// NewFunc wraps fn as a Subscriber.
func NewFunc[T any](fn func(T)) *Func[T] {
	return &Func[T]{fn: fn}
}

func (f *Func[T]) Handle(ev T) { f.fn(ev) }

// Broker queues events of type T and fans each one out to all subscribers.
type Broker[T any] struct {
	name   string
	logger zerolog.Logger

	mu       sync.Mutex
	wake     *sync.Cond
	queue    []T
	subs     []Subscriber[T]
	running  bool
	stopping bool
	done     chan struct{}
}

// New creates a stopped broker. name identifies it in logs.
func New[T any](name string, logger zerolog.Logger) *Broker[T] {
	b := &Broker[T]{
		name:   name,
		logger: logger.With().Str("component", "broker").Str("broker", name).Logger(),
	}
	b.wake = sync.NewCond(&b.mu)
	return b
}

// Name returns the broker name.
func (b *Broker[T]) Name() string { return b.name }

// Publish enqueues ev for delivery. It never blocks on subscribers.
func (b *Broker[T]) Publish(ev T) {
	b.mu.Lock()
	b.queue = append(b.queue, ev)
	b.mu.Unlock()
	b.wake.Signal()
}

// Subscribe registers s. s must be comparable, typically a pointer, so
// that Unsubscribe can find it again.
func (b *Broker[T]) Subscribe(s Subscriber[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := make([]Subscriber[T], len(b.subs), len(b.subs)+1)
	copy(subs, b.subs)
	b.subs = append(subs, s)
}

// Unsubscribe removes the first registration of s. It is safe to call from
// inside a handler, including s's own.
func (b *Broker[T]) Unsubscribe(s Subscriber[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, cur := range b.subs {
		if cur == s {
			subs := make([]Subscriber[T], 0, len(b.subs)-1)
			subs = append(subs, b.subs[:i]...)
			b.subs = append(subs, b.subs[i+1:]...)
			return
		}
	}
}

// Start launches the delivery loop. Calling Start while the loop is running
// is a no-op, and a Start that races a pending Stop keeps the existing loop.
func (b *Broker[T]) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		b.stopping = false
		return
	}
	b.running = true
	b.stopping = false
	b.done = make(chan struct{})
	go b.loop(b.done)
}

// Stop asks the delivery loop to exit after the handler it is currently
// running, if any. Events still queued are kept for the next Start.
func (b *Broker[T]) Stop() {
	b.mu.Lock()
	if b.running {
		b.stopping = true
	}
	b.mu.Unlock()
	b.wake.Broadcast()
}

// Done returns a channel closed when the current delivery loop exits. It
// returns nil if the broker was never started.
func (b *Broker[T]) Done() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}

// Len returns the number of events waiting for delivery.
func (b *Broker[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

func (b *Broker[T]) loop(done chan struct{}) {
	defer close(done)

	for {
		b.mu.Lock()
		for len(b.queue) == 0 && !b.stopping {
			b.wake.Wait()
		}
		if b.stopping {
			b.running = false
			b.stopping = false
			b.mu.Unlock()
			return
		}

		ev := b.queue[0]
		var zero T
		b.queue[0] = zero
		b.queue = b.queue[1:]
		subs := b.subs
		b.mu.Unlock()

		for _, s := range subs {
			b.deliver(s, ev)
		}
	}
}

func (b *Broker[T]) deliver(s Subscriber[T], ev T) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Interface("panic", r).Msg("subscriber panicked")
		}
	}()
	s.Handle(ev)
}
