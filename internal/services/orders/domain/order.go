// Package domain implements the authoritative order write model: input
// validation, order construction, and idempotent creation keyed by the
// (tenant, request) pair.
package domain

import (
	"fmt"
	"math"
	"net/mail"
	"strings"

	"github.com/commerceloop/orderflow/internal/platform/errors"
	"github.com/commerceloop/orderflow/internal/services/orders/storage"
)

// Status is the lifecycle state of an order.
type Status string

const (
	// StatusPending is the state of every freshly created order.
	StatusPending Status = "PENDING"
	// StatusPaid is the state after settlement confirms payment.
	StatusPaid Status = "PAID"
	// StatusCancelled is the state after an order is cancelled.
	StatusCancelled Status = "CANCELLED"
)

// ParseStatus parses a status string, accepting any casing.
func ParseStatus(value string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(value))) {
	case StatusPending:
		return StatusPending, nil
	case StatusPaid:
		return StatusPaid, nil
	case StatusCancelled:
		return StatusCancelled, nil
	}
	return "", errors.WithMetadata(errors.CodeOrderStatusInvalid,
		"order status is not recognized", map[string]string{"status": value})
}

// maxAttachmentSize caps attachment declarations at 10 MiB.
const maxAttachmentSize = 10 << 20

// LineItem is one purchased item.
type LineItem struct {
	SKU   string
	Qty   int
	Price float64
}

// Attachment is an optional file reference attached to an order.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int64
	StorageKey  string
}

// Order is the authoritative order aggregate.
type Order struct {
	OrderID    string
	TenantID   string
	RequestID  string
	BuyerEmail string
	BuyerName  string
	Items      []LineItem
	Attachment *Attachment
	Status     Status
	Total      float64
	CreatedAt  int64
	UpdatedAt  int64
}

// CreateOrderInput is the command payload for creating an order.
type CreateOrderInput struct {
	TenantID   string
	RequestID  string
	BuyerEmail string
	BuyerName  string
	Items      []LineItem
	Attachment *Attachment
}

func (in *CreateOrderInput) normalize() {
	in.TenantID = strings.TrimSpace(in.TenantID)
	in.RequestID = strings.TrimSpace(in.RequestID)
	in.BuyerEmail = strings.TrimSpace(in.BuyerEmail)
	in.BuyerName = strings.TrimSpace(in.BuyerName)
	for i := range in.Items {
		in.Items[i].SKU = strings.TrimSpace(in.Items[i].SKU)
	}
	if in.Attachment != nil {
		in.Attachment.Filename = strings.TrimSpace(in.Attachment.Filename)
		in.Attachment.ContentType = strings.TrimSpace(in.Attachment.ContentType)
		in.Attachment.StorageKey = strings.TrimSpace(in.Attachment.StorageKey)
	}
}

func (in CreateOrderInput) validate() error {
	if in.TenantID == "" {
		return errors.New(errors.CodeOrderTenantIDEmpty, "tenant id is required")
	}
	if in.RequestID == "" {
		return errors.New(errors.CodeOrderRequestIDEmpty, "request id is required")
	}
	if in.BuyerEmail == "" {
		return errors.New(errors.CodeOrderBuyerEmailEmpty, "buyer email is required")
	}
	if _, err := mail.ParseAddress(in.BuyerEmail); err != nil {
		return errors.Wrap(errors.CodeOrderBuyerEmailEmpty, "buyer email is not a valid address", err)
	}
	if in.BuyerName == "" {
		return errors.New(errors.CodeOrderBuyerNameEmpty, "buyer name is required")
	}
	if len(in.Items) == 0 {
		return errors.New(errors.CodeOrderItemsEmpty, "order needs at least one item")
	}
	for i, item := range in.Items {
		position := fmt.Sprintf("%d", i)
		if item.SKU == "" {
			return errors.WithMetadata(errors.CodeOrderItemSKUEmpty,
				"item sku is required", map[string]string{"item": position})
		}
		if item.Qty < 1 {
			return errors.WithMetadata(errors.CodeOrderItemQtyInvalid,
				"item quantity must be at least one", map[string]string{"item": position, "sku": item.SKU})
		}
		if item.Price < 0 || math.IsNaN(item.Price) || math.IsInf(item.Price, 0) {
			return errors.WithMetadata(errors.CodeOrderItemPriceInvalid,
				"item price must be a non-negative number", map[string]string{"item": position, "sku": item.SKU})
		}
	}
	if in.Attachment != nil {
		if in.Attachment.Filename == "" || in.Attachment.ContentType == "" {
			return errors.New(errors.CodeOrderAttachmentInvalid,
				"attachment filename and content type are required")
		}
		if in.Attachment.Size < 1 || in.Attachment.Size > maxAttachmentSize {
			return errors.WithMetadata(errors.CodeOrderAttachmentInvalid,
				"attachment size is out of range", map[string]string{
					"size": fmt.Sprintf("%d", in.Attachment.Size),
				})
		}
	}
	return nil
}

// total sums the item subtotals and rounds the result to cents.
func (in CreateOrderInput) total() float64 {
	var sum float64
	for _, item := range in.Items {
		sum += float64(item.Qty) * item.Price
	}
	return math.Round(sum*100) / 100
}

func orderFromRecord(record storage.OrderRecord) Order {
	order := Order{
		OrderID:    record.OrderID,
		TenantID:   record.TenantID,
		RequestID:  record.RequestID,
		BuyerEmail: record.BuyerEmail,
		BuyerName:  record.BuyerName,
		Status:     Status(record.Status),
		Total:      record.Total,
		CreatedAt:  record.CreatedAt.UnixMilli(),
		UpdatedAt:  record.UpdatedAt.UnixMilli(),
	}
	order.Items = make([]LineItem, len(record.Items))
	for i, item := range record.Items {
		order.Items[i] = LineItem{SKU: item.SKU, Qty: item.Qty, Price: item.Price}
	}
	if record.Attachment != nil {
		order.Attachment = &Attachment{
			Filename:    record.Attachment.Filename,
			ContentType: record.Attachment.ContentType,
			Size:        record.Attachment.Size,
			StorageKey:  record.Attachment.StorageKey,
		}
	}
	return order
}
