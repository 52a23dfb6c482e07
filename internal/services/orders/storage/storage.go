// Package storage defines the persistence records and boundary for the
// orders service. The write model (orders + events_outbox) and the read
// model (order_reads) are logically separate collections: the command path
// writes only orders rows, the projector is the single writer of
// order_reads, and the query service only reads it.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a write violated a uniqueness constraint.
	ErrConflict = errors.New("record conflicts with existing uniqueness constraints")
)

// LineItem is one purchased item on the write-model order.
type LineItem struct {
	SKU   string  `json:"sku"`
	Qty   int     `json:"qty"`
	Price float64 `json:"price"`
}

// Attachment is the optional file reference on the write-model order.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	StorageKey  string `json:"storageKey"`
}

// OrderRecord is the authoritative write-model row. The (TenantID,
// RequestID) pair is unique and serves as the idempotency ledger.
type OrderRecord struct {
	OrderID    string
	TenantID   string
	RequestID  string
	BuyerEmail string
	BuyerName  string
	Items      []LineItem
	Attachment *Attachment
	Status     string
	Total      float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// OrderViewRecord is the denormalized read-model row, owned by the projector.
type OrderViewRecord struct {
	OrderID              string
	TenantID             string
	BuyerEmail           string
	Status               string
	Total                float64
	AttachmentFilename   string
	AttachmentStorageKey string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// ViewFilter selects read-model rows. Zero-valued fields are not applied;
// From and To bound CreatedAt inclusively.
type ViewFilter struct {
	TenantID   string
	Status     string
	BuyerEmail string
	From       time.Time
	To         time.Time
	Offset     int
	Limit      int
}

// ViewPage is one window of matching read-model rows plus the full match count.
type ViewPage struct {
	Views []OrderViewRecord
	Total int
}

// OutboxAppend is one event row to append atomically with a state change.
type OutboxAppend struct {
	Kind        string
	PayloadJSON string
}

// OutboxEvent is one stored, not-yet-published event row.
type OutboxEvent struct {
	Seq         int64
	Kind        string
	PayloadJSON string
	CreatedAt   time.Time
}

// Store is the full persistence boundary implemented by the SQLite store.
// Consumers depend on the narrow interfaces declared in their own packages.
type Store interface {
	CreateOrder(ctx context.Context, order OrderRecord, evt OutboxAppend) error
	GetOrder(ctx context.Context, orderID string) (OrderRecord, error)
	GetOrderByTenantAndRequest(ctx context.Context, tenantID, requestID string) (OrderRecord, error)
	MarkOrderPaid(ctx context.Context, orderID string, evt OutboxAppend, at time.Time) (bool, error)

	ListUnpublishedEvents(ctx context.Context, limit int) ([]OutboxEvent, error)
	MarkEventPublished(ctx context.Context, seq int64) error

	PutOrderView(ctx context.Context, view OrderViewRecord) error
	SetOrderViewStatus(ctx context.Context, orderID, status string, at time.Time) error
	GetOrderView(ctx context.Context, orderID string) (OrderViewRecord, error)
	ListOrderViews(ctx context.Context, filter ViewFilter) (ViewPage, error)
}
