package domain

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/commerceloop/orderflow/internal/platform/cache"
	"github.com/commerceloop/orderflow/internal/platform/errors"
	"github.com/commerceloop/orderflow/internal/platform/id"
	"github.com/commerceloop/orderflow/internal/services/orders/event"
	"github.com/commerceloop/orderflow/internal/services/orders/storage"
)

// Store is the persistence boundary the command path needs.
type Store interface {
	CreateOrder(ctx context.Context, order storage.OrderRecord, evt storage.OutboxAppend) error
	GetOrder(ctx context.Context, orderID string) (storage.OrderRecord, error)
	GetOrderByTenantAndRequest(ctx context.Context, tenantID, requestID string) (storage.OrderRecord, error)
}

// idempotencyCacheTTL bounds how long a resolved (tenant, request) pair is
// kept in the fast-path cache. The database unique index remains the
// authority; the cache only skips a read.
const idempotencyCacheTTL = 24 * time.Hour

// CreateOrderResult is the outcome of a create command. Replayed is true
// when the request id had already been used and the stored order was
// returned instead of creating a new one.
type CreateOrderResult struct {
	Order    Order
	Replayed bool
}

// Service implements order commands against a Store.
type Service struct {
	store Store
	cache cache.Cache
	clock func() time.Time
	newID func() string
}

// NewService creates an order command service.
func NewService(store Store, opts ...Option) *Service {
	svc := &Service{
		store: store,
		clock: time.Now,
		newID: id.MustNewID,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithCache attaches a best-effort idempotency fast-path cache.
func WithCache(c cache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithClock overrides the wall clock.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// WithIDGenerator overrides order id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// CreateOrder creates an order, or replays the stored one when the
// (tenant, request) pair was already used. Exactly one caller wins a
// concurrent race for the same pair; losers observe the winner's order.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (CreateOrderResult, error) {
	if s == nil || s.store == nil {
		return CreateOrderResult{}, errors.New(errors.CodeStorageUnavailable, "order service is not configured")
	}
	input.normalize()
	if err := input.validate(); err != nil {
		return CreateOrderResult{}, err
	}

	if cached, ok := s.cachedOrderID(ctx, input.TenantID, input.RequestID); ok {
		record, err := s.store.GetOrder(ctx, cached)
		if err == nil {
			return CreateOrderResult{Order: orderFromRecord(record), Replayed: true}, nil
		}
		// Stale or unreadable cache entry; fall through to the ledger.
	}

	existing, err := s.store.GetOrderByTenantAndRequest(ctx, input.TenantID, input.RequestID)
	if err == nil {
		s.cacheOrderID(ctx, input.TenantID, input.RequestID, existing.OrderID)
		return CreateOrderResult{Order: orderFromRecord(existing), Replayed: true}, nil
	}
	if !stderrors.Is(err, storage.ErrNotFound) {
		return CreateOrderResult{}, errors.Wrap(errors.CodeStorageUnavailable, "look up request ledger", err)
	}

	now := s.clock().UTC()
	record := storage.OrderRecord{
		OrderID:    "ord_" + s.newID(),
		TenantID:   input.TenantID,
		RequestID:  input.RequestID,
		BuyerEmail: input.BuyerEmail,
		BuyerName:  input.BuyerName,
		Status:     string(StatusPending),
		Total:      input.total(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	record.Items = make([]storage.LineItem, len(input.Items))
	for i, item := range input.Items {
		record.Items[i] = storage.LineItem{SKU: item.SKU, Qty: item.Qty, Price: item.Price}
	}
	if input.Attachment != nil {
		storageKey := input.Attachment.StorageKey
		if storageKey == "" {
			storageKey = fmt.Sprintf("tenants/%s/orders/%s/%s", input.TenantID, record.OrderID, input.Attachment.Filename)
		}
		record.Attachment = &storage.Attachment{
			Filename:    input.Attachment.Filename,
			ContentType: input.Attachment.ContentType,
			Size:        input.Attachment.Size,
			StorageKey:  storageKey,
		}
	}

	evt, err := createdEvent(record)
	if err != nil {
		return CreateOrderResult{}, errors.Wrap(errors.CodeUnknown, "encode creation event", err)
	}

	err = s.store.CreateOrder(ctx, record, evt)
	if stderrors.Is(err, storage.ErrConflict) {
		// A concurrent request with the same pair won the insert race.
		winner, readErr := s.store.GetOrderByTenantAndRequest(ctx, input.TenantID, input.RequestID)
		if readErr != nil {
			return CreateOrderResult{}, errors.Wrap(errors.CodeStorageUnavailable, "read winning order after conflict", readErr)
		}
		s.cacheOrderID(ctx, input.TenantID, input.RequestID, winner.OrderID)
		return CreateOrderResult{Order: orderFromRecord(winner), Replayed: true}, nil
	}
	if err != nil {
		return CreateOrderResult{}, errors.Wrap(errors.CodeStorageUnavailable, "persist order", err)
	}

	s.cacheOrderID(ctx, input.TenantID, input.RequestID, record.OrderID)
	return CreateOrderResult{Order: orderFromRecord(record)}, nil
}

// GetOrder loads one order from the write model.
func (s *Service) GetOrder(ctx context.Context, orderID string) (Order, error) {
	if s == nil || s.store == nil {
		return Order{}, errors.New(errors.CodeStorageUnavailable, "order service is not configured")
	}
	record, err := s.store.GetOrder(ctx, orderID)
	if stderrors.Is(err, storage.ErrNotFound) {
		return Order{}, errors.New(errors.CodeNotFound, "order not found")
	}
	if err != nil {
		return Order{}, errors.Wrap(errors.CodeStorageUnavailable, "load order", err)
	}
	return orderFromRecord(record), nil
}

func createdEvent(record storage.OrderRecord) (storage.OutboxAppend, error) {
	payload := event.OrderCreated{
		OrderID:    record.OrderID,
		TenantID:   record.TenantID,
		BuyerEmail: record.BuyerEmail,
		BuyerName:  record.BuyerName,
		Total:      record.Total,
		CreatedAt:  record.CreatedAt,
	}
	payload.Items = make([]event.LineItem, len(record.Items))
	for i, item := range record.Items {
		payload.Items[i] = event.LineItem{SKU: item.SKU, Qty: item.Qty, Price: item.Price}
	}
	if record.Attachment != nil {
		payload.Attachment = &event.Attachment{
			Filename:    record.Attachment.Filename,
			ContentType: record.Attachment.ContentType,
			Size:        record.Attachment.Size,
			StorageKey:  record.Attachment.StorageKey,
		}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return storage.OutboxAppend{}, err
	}
	return storage.OutboxAppend{Kind: string(event.KindOrderCreated), PayloadJSON: string(raw)}, nil
}

func (s *Service) cachedOrderID(ctx context.Context, tenantID, requestID string) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	key := s.cache.GenerateKey("create", tenantID+":"+requestID)
	value, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.DebugContext(ctx, "idempotency cache read failed", "error", err)
		return "", false
	}
	return value, value != ""
}

func (s *Service) cacheOrderID(ctx context.Context, tenantID, requestID, orderID string) {
	if s.cache == nil {
		return
	}
	key := s.cache.GenerateKey("create", tenantID+":"+requestID)
	if err := s.cache.Set(ctx, key, orderID, idempotencyCacheTTL); err != nil {
		slog.DebugContext(ctx, "idempotency cache write failed", "error", err)
	}
}
