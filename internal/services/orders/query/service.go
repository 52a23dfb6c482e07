// Package query serves paginated, filtered reads over the denormalized
// order read model. It never touches the write model, so results lag a
// just-created order until the projector catches up.
package query

import (
	"context"
	"strings"
	"time"

	"github.com/commerceloop/orderflow/internal/platform/errors"
	"github.com/commerceloop/orderflow/internal/services/orders/domain"
	"github.com/commerceloop/orderflow/internal/services/orders/storage"
)

// Store is the persistence boundary the query path needs.
type Store interface {
	ListOrderViews(ctx context.Context, filter storage.ViewFilter) (storage.ViewPage, error)
}

const (
	// DefaultPage is used when the caller omits a page number.
	DefaultPage = 1
	// DefaultLimit is used when the caller omits a page size.
	DefaultLimit = 10
	// MaxLimit caps the page size.
	MaxLimit = 100
)

// ListOrdersInput selects one page of a tenant's orders. Zero-valued
// optional fields are not applied.
type ListOrdersInput struct {
	TenantID   string
	Status     string
	BuyerEmail string
	From       time.Time
	To         time.Time
	Page       int
	Limit      int
}

// OrderView is one denormalized row returned to callers.
type OrderView struct {
	OrderID              string
	TenantID             string
	BuyerEmail           string
	Status               string
	Total                float64
	AttachmentFilename   string
	AttachmentStorageKey string
	CreatedAt            int64
	UpdatedAt            int64
}

// OrderPage is one result window plus pagination bookkeeping.
type OrderPage struct {
	Orders []OrderView
	Page   int
	Limit  int
	Total  int
}

// Service answers read-model queries.
type Service struct {
	store Store
}

// NewService creates a query service over store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// ListOrders returns one page of the tenant's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, input ListOrdersInput) (OrderPage, error) {
	if s == nil || s.store == nil {
		return OrderPage{}, errors.New(errors.CodeStorageUnavailable, "query service is not configured")
	}

	input.TenantID = strings.TrimSpace(input.TenantID)
	if input.TenantID == "" {
		return OrderPage{}, errors.New(errors.CodeQueryTenantIDEmpty, "tenant id is required")
	}
	if input.Page == 0 {
		input.Page = DefaultPage
	}
	if input.Page < 1 {
		return OrderPage{}, errors.New(errors.CodeQueryPageInvalid, "page must be at least one")
	}
	if input.Limit == 0 {
		input.Limit = DefaultLimit
	}
	if input.Limit < 1 || input.Limit > MaxLimit {
		return OrderPage{}, errors.New(errors.CodeQueryLimitInvalid, "limit is out of range")
	}
	if !input.From.IsZero() && !input.To.IsZero() && input.To.Before(input.From) {
		return OrderPage{}, errors.New(errors.CodeQueryRangeInvalid, "time range end precedes start")
	}

	status := strings.TrimSpace(input.Status)
	if status != "" {
		parsed, err := domain.ParseStatus(status)
		if err != nil {
			return OrderPage{}, err
		}
		status = string(parsed)
	}

	page, err := s.store.ListOrderViews(ctx, storage.ViewFilter{
		TenantID:   input.TenantID,
		Status:     status,
		BuyerEmail: strings.TrimSpace(input.BuyerEmail),
		From:       input.From,
		To:         input.To,
		Offset:     (input.Page - 1) * input.Limit,
		Limit:      input.Limit,
	})
	if err != nil {
		return OrderPage{}, errors.Wrap(errors.CodeStorageUnavailable, "list order views", err)
	}

	result := OrderPage{
		Orders: make([]OrderView, len(page.Views)),
		Page:   input.Page,
		Limit:  input.Limit,
		Total:  page.Total,
	}
	for i, view := range page.Views {
		result.Orders[i] = OrderView{
			OrderID:              view.OrderID,
			TenantID:             view.TenantID,
			BuyerEmail:           view.BuyerEmail,
			Status:               view.Status,
			Total:                view.Total,
			AttachmentFilename:   view.AttachmentFilename,
			AttachmentStorageKey: view.AttachmentStorageKey,
			CreatedAt:            view.CreatedAt.UnixMilli(),
			UpdatedAt:            view.UpdatedAt.UnixMilli(),
		}
	}
	return result, nil
}
