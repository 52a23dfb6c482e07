package app

import (
	"context"
	"time"

	"github.com/commerceloop/orderflow/internal/services/orders/storage"
)

// nudgingStore wraps a Store so that every committed write carrying an
// outbox row wakes the dispatcher immediately instead of waiting for the
// next poll tick.
type nudgingStore struct {
	storage.Store
	nudge func()
}

func (s *nudgingStore) CreateOrder(ctx context.Context, order storage.OrderRecord, evt storage.OutboxAppend) error {
	if err := s.Store.CreateOrder(ctx, order, evt); err != nil {
		return err
	}
	s.nudge()
	return nil
}

func (s *nudgingStore) MarkOrderPaid(ctx context.Context, orderID string, evt storage.OutboxAppend, at time.Time) (bool, error) {
	settled, err := s.Store.MarkOrderPaid(ctx, orderID, evt, at)
	if err != nil {
		return false, err
	}
	if settled {
		s.nudge()
	}
	return settled, nil
}
