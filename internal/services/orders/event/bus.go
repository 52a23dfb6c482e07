package event

import (
	"context"
	"sync"
)

// Bus is an in-process publish/subscribe mechanism over the two order
// event kinds. Each subscriber owns a dedicated consumption goroutine fed
// by an unbounded FIFO queue, so Publish never blocks on handler work and
// one slow subscriber cannot stall delivery to the others. A subscriber
// observes events in publish order, which implies per-order ordering.
//
// The bus provides no durability; reliable hand-off into it is the outbox
// dispatcher's concern.
type Bus struct {
	mu            sync.Mutex
	closed        bool
	created       []*subscriber[OrderCreated]
	statusChanged []*subscriber[OrderStatusChanged]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBus creates a bus ready for subscriptions.
func NewBus() *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		ctx:    ctx,
		cancel: cancel,
	}
}

// SubscribeOrderCreated registers a handler invoked once per published
// OrderCreated event. Handlers run on the subscription's own goroutine.
func (b *Bus) SubscribeOrderCreated(handler func(context.Context, OrderCreated)) {
	if b == nil || handler == nil {
		return
	}
	sub := newSubscriber(handler)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.created = append(b.created, sub)
	b.wg.Add(1)
	b.mu.Unlock()
	go func() {
		defer b.wg.Done()
		sub.run(b.ctx)
	}()
}

// SubscribeOrderStatusChanged registers a handler invoked once per
// published OrderStatusChanged event.
func (b *Bus) SubscribeOrderStatusChanged(handler func(context.Context, OrderStatusChanged)) {
	if b == nil || handler == nil {
		return
	}
	sub := newSubscriber(handler)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.statusChanged = append(b.statusChanged, sub)
	b.wg.Add(1)
	b.mu.Unlock()
	go func() {
		defer b.wg.Done()
		sub.run(b.ctx)
	}()
}

// Publish delivers the event to every currently-registered subscriber for
// its kind. Delivery is asynchronous; Publish returns once the event is
// enqueued.
func (b *Bus) Publish(e Event) {
	if b == nil || e == nil {
		return
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	switch ev := e.(type) {
	case OrderCreated:
		subs := b.created
		b.mu.Unlock()
		for _, sub := range subs {
			sub.enqueue(ev)
		}
	case OrderStatusChanged:
		subs := b.statusChanged
		b.mu.Unlock()
		for _, sub := range subs {
			sub.enqueue(ev)
		}
	default:
		b.mu.Unlock()
	}
}

// Close stops accepting events, lets every subscriber drain its pending
// queue, and waits for all consumption goroutines to exit.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	created := b.created
	statusChanged := b.statusChanged
	b.mu.Unlock()

	for _, sub := range created {
		sub.stop()
	}
	for _, sub := range statusChanged {
		sub.stop()
	}
	b.wg.Wait()
	b.cancel()
}

type subscriber[E any] struct {
	handler func(context.Context, E)

	mu    sync.Mutex
	queue []E
	wake  chan struct{}
	done  chan struct{}
}

func newSubscriber[E any](handler func(context.Context, E)) *subscriber[E] {
	return &subscriber[E]{
		handler: handler,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (s *subscriber[E]) enqueue(e E) {
	s.mu.Lock()
	s.queue = append(s.queue, e)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber[E]) stop() {
	close(s.done)
}

func (s *subscriber[E]) run(ctx context.Context) {
	for {
		s.deliverPending(ctx)
		select {
		case <-s.wake:
		case <-s.done:
			s.deliverPending(ctx)
			return
		}
	}
}

func (s *subscriber[E]) deliverPending(ctx context.Context) {
	for {
		s.mu.Lock()
		pending := s.queue
		s.queue = nil
		s.mu.Unlock()
		if len(pending) == 0 {
			return
		}
		for _, e := range pending {
			s.handler(ctx, e)
		}
	}
}
