// Package outbox moves stored events onto the in-process bus. State
// changes and their events are written in one transaction; the dispatcher
// publishes them afterwards in sequence order and marks each row once it
// is on the bus, so a crash between the two replays the event rather than
// losing it.
package outbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/commerceloop/orderflow/internal/services/orders/event"
	"github.com/commerceloop/orderflow/internal/services/orders/storage"
)

// Store is the persistence boundary the dispatcher needs.
type Store interface {
	ListUnpublishedEvents(ctx context.Context, limit int) ([]storage.OutboxEvent, error)
	MarkEventPublished(ctx context.Context, seq int64) error
}

const (
	defaultPollInterval = 250 * time.Millisecond
	defaultBatchSize    = 100
)

// Dispatcher polls the outbox and publishes pending events in order.
type Dispatcher struct {
	store        Store
	bus          *event.Bus
	pollInterval time.Duration
	batchSize    int

	nudge  chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPollInterval overrides how often the outbox is polled between nudges.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.pollInterval = interval
		}
	}
}

// WithBatchSize overrides how many rows one poll drains at most.
func WithBatchSize(size int) Option {
	return func(d *Dispatcher) {
		if size > 0 {
			d.batchSize = size
		}
	}
}

// NewDispatcher creates a dispatcher publishing store events onto bus.
func NewDispatcher(store Store, bus *event.Bus, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:        store,
		bus:          bus,
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		nudge:        make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the polling loop. It returns immediately.
func (d *Dispatcher) Start(ctx context.Context) {
	if d == nil {
		return
	}
	ctx, d.cancel = context.WithCancel(ctx)
	go d.run(ctx)
}

// Stop halts the polling loop and waits for it to exit. Events already
// published stay marked; unpublished rows are picked up on the next start.
func (d *Dispatcher) Stop() {
	if d == nil || d.cancel == nil {
		return
	}
	d.cancel()
	<-d.done
}

// Nudge wakes the dispatcher ahead of the next poll tick. The command
// path calls it right after committing so events reach the bus without
// waiting out the interval.
func (d *Dispatcher) Nudge() {
	if d == nil {
		return
	}
	select {
	case d.nudge <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		d.drain(ctx)
		select {
		case <-ctx.Done():
			return
		case <-d.nudge:
		case <-ticker.C:
		}
	}
}

// drain publishes every pending row, batch by batch, until the outbox is
// empty or an error stops the pass. Errors leave rows unpublished for the
// next pass.
func (d *Dispatcher) drain(ctx context.Context) {
	for {
		rows, err := d.store.ListUnpublishedEvents(ctx, d.batchSize)
		if err != nil {
			if ctx.Err() == nil {
				slog.ErrorContext(ctx, "list outbox events", "error", err)
			}
			return
		}
		if len(rows) == 0 {
			return
		}
		for _, row := range rows {
			evt, err := decodeEvent(row)
			if err != nil {
				// A row that cannot decode would wedge the stream;
				// log it and mark it published to move past it.
				slog.ErrorContext(ctx, "decode outbox event",
					"seq", row.Seq, "kind", row.Kind, "error", err)
			} else {
				d.bus.Publish(evt)
			}
			if err := d.store.MarkEventPublished(ctx, row.Seq); err != nil {
				if ctx.Err() == nil {
					slog.ErrorContext(ctx, "mark outbox event published",
						"seq", row.Seq, "error", err)
				}
				return
			}
		}
		if len(rows) < d.batchSize {
			return
		}
	}
}

func decodeEvent(row storage.OutboxEvent) (event.Event, error) {
	switch event.Kind(row.Kind) {
	case event.KindOrderCreated:
		var evt event.OrderCreated
		if err := json.Unmarshal([]byte(row.PayloadJSON), &evt); err != nil {
			return nil, err
		}
		return evt, nil
	case event.KindOrderStatusChanged:
		var evt event.OrderStatusChanged
		if err := json.Unmarshal([]byte(row.PayloadJSON), &evt); err != nil {
			return nil, err
		}
		return evt, nil
	}
	return nil, errUnknownKind(row.Kind)
}

type errUnknownKind string

func (e errUnknownKind) Error() string {
	return "unknown event kind " + string(e)
}
