// Package event defines the order domain events and the in-process bus
// that carries them from the command path to projection and fanout.
package event

import "time"

// Kind identifies the type of an order event.
type Kind string

const (
	// KindOrderCreated records the creation of an order.
	KindOrderCreated Kind = "order.created"
	// KindOrderStatusChanged records an order status transition.
	KindOrderStatusChanged Kind = "order.status_changed"
)

// Event is the closed set of order domain events. The two concrete kinds
// carry fixed, typed field sets; consumers switch on the variant rather
// than inspecting payload shapes at runtime.
type Event interface {
	EventKind() Kind
}

// LineItem is the per-item snapshot carried by OrderCreated.
type LineItem struct {
	SKU   string  `json:"sku"`
	Qty   int     `json:"qty"`
	Price float64 `json:"price"`
}

// Attachment is the attachment snapshot carried by OrderCreated.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	StorageKey  string `json:"storageKey"`
}

// OrderCreated is the immutable fact that an order was created. It is
// produced exactly once per created order, never for an idempotent replay.
type OrderCreated struct {
	OrderID    string      `json:"orderId"`
	TenantID   string      `json:"tenantId"`
	BuyerEmail string      `json:"buyerEmail"`
	BuyerName  string      `json:"buyerName"`
	Items      []LineItem  `json:"items"`
	Total      float64     `json:"total"`
	Attachment *Attachment `json:"attachment,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// EventKind identifies the OrderCreated variant.
func (OrderCreated) EventKind() Kind { return KindOrderCreated }

// OrderStatusChanged is the immutable fact of one status transition.
type OrderStatusChanged struct {
	OrderID        string `json:"orderId"`
	TenantID       string `json:"tenantId"`
	PreviousStatus string `json:"previousStatus"`
	NewStatus      string `json:"newStatus"`
}

// EventKind identifies the OrderStatusChanged variant.
func (OrderStatusChanged) EventKind() Kind { return KindOrderStatusChanged }
