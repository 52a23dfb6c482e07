// Package projection maintains the denormalized read model from order
// events and simulates payment settlement. The projector is the only
// writer of read-model rows.
package projection

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/commerceloop/orderflow/internal/services/orders/event"
	"github.com/commerceloop/orderflow/internal/services/orders/storage"
)

// Store is the persistence boundary the projector needs. MarkOrderPaid
// writes the authoritative model; the view methods write the read model.
type Store interface {
	MarkOrderPaid(ctx context.Context, orderID string, evt storage.OutboxAppend, at time.Time) (bool, error)
	PutOrderView(ctx context.Context, view storage.OrderViewRecord) error
	SetOrderViewStatus(ctx context.Context, orderID, status string, at time.Time) error
}

// Projector applies order events to the read model and schedules a
// simulated settlement for each created order.
type Projector struct {
	store     Store
	scheduler *Scheduler
	clock     func() time.Time
	settled   func() // test hook, called after a settlement commits
}

// Option configures a Projector.
type Option func(*Projector)

// WithClock overrides the wall clock.
func WithClock(clock func() time.Time) Option {
	return func(p *Projector) { p.clock = clock }
}

// WithSettleDelay bounds the randomized settlement delay.
func WithSettleDelay(min, max time.Duration) Option {
	return func(p *Projector) { p.scheduler.setDelayBounds(min, max) }
}

// NewProjector creates a projector writing to store.
func NewProjector(store Store, opts ...Option) *Projector {
	p := &Projector{
		store:     store,
		scheduler: newScheduler(),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register subscribes the projector to both event kinds on the bus.
func (p *Projector) Register(bus *event.Bus) {
	bus.SubscribeOrderCreated(p.HandleOrderCreated)
	bus.SubscribeOrderStatusChanged(p.HandleOrderStatusChanged)
}

// Close cancels all pending settlement timers.
func (p *Projector) Close() {
	if p == nil {
		return
	}
	p.scheduler.cancelAll()
}

// HandleOrderCreated projects a fresh read-model row and arms the
// settlement timer for the order.
func (p *Projector) HandleOrderCreated(ctx context.Context, evt event.OrderCreated) {
	view := storage.OrderViewRecord{
		OrderID:    evt.OrderID,
		TenantID:   evt.TenantID,
		BuyerEmail: evt.BuyerEmail,
		Status:     "PENDING",
		Total:      evt.Total,
		CreatedAt:  evt.CreatedAt,
		UpdatedAt:  evt.CreatedAt,
	}
	if evt.Attachment != nil {
		view.AttachmentFilename = evt.Attachment.Filename
		view.AttachmentStorageKey = evt.Attachment.StorageKey
	}
	if err := p.store.PutOrderView(ctx, view); err != nil {
		slog.ErrorContext(ctx, "project created order",
			"order_id", evt.OrderID, "error", err)
		return
	}

	p.scheduler.schedule(evt.OrderID, func(delay time.Duration) {
		p.settle(evt.OrderID, evt.TenantID)
	})
}

// HandleOrderStatusChanged updates the read-model row's status in place.
// A row that does not exist yet is logged and dropped; the outbox replay
// on the next start will reconcile it.
func (p *Projector) HandleOrderStatusChanged(ctx context.Context, evt event.OrderStatusChanged) {
	err := p.store.SetOrderViewStatus(ctx, evt.OrderID, evt.NewStatus, p.clock().UTC())
	if stderrors.Is(err, storage.ErrNotFound) {
		slog.WarnContext(ctx, "status change for unknown read-model row",
			"order_id", evt.OrderID, "status", evt.NewStatus)
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "project status change",
			"order_id", evt.OrderID, "status", evt.NewStatus, "error", err)
	}
}

// settle marks the order paid in the write model and appends the status
// event in the same transaction. The guarded update makes a duplicate or
// late fire a no-op.
func (p *Projector) settle(orderID, tenantID string) {
	ctx := context.Background()
	now := p.clock().UTC()

	payload, err := json.Marshal(event.OrderStatusChanged{
		OrderID:        orderID,
		TenantID:       tenantID,
		PreviousStatus: "PENDING",
		NewStatus:      "PAID",
	})
	if err != nil {
		slog.ErrorContext(ctx, "encode settlement event", "order_id", orderID, "error", err)
		return
	}

	settled, err := p.store.MarkOrderPaid(ctx, orderID, storage.OutboxAppend{
		Kind:        string(event.KindOrderStatusChanged),
		PayloadJSON: string(payload),
	}, now)
	if err != nil {
		slog.ErrorContext(ctx, "settle order", "order_id", orderID, "error", err)
		return
	}
	if !settled {
		slog.DebugContext(ctx, "settlement skipped, order not pending", "order_id", orderID)
		return
	}
	slog.InfoContext(ctx, "order settled", "order_id", orderID, "tenant_id", tenantID)
	if p.settled != nil {
		p.settled()
	}
}
