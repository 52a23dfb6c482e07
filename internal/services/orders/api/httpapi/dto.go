package httpapi

import (
	"github.com/commerceloop/orderflow/internal/services/orders/domain"
	"github.com/commerceloop/orderflow/internal/services/orders/query"
	"github.com/commerceloop/orderflow/internal/services/orders/uploads"
)

type createOrderRequest struct {
	RequestID string `json:"requestId"`
	// TenantID is accepted for contract compatibility; it must match the
	// authenticated tenant when present.
	TenantID   string             `json:"tenantId,omitempty"`
	Buyer      buyerDTO           `json:"buyer"`
	Items      []lineItemDTO      `json:"items"`
	Attachment *attachmentRequest `json:"attachment,omitempty"`
}

type buyerDTO struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type lineItemDTO struct {
	SKU   string  `json:"sku"`
	Qty   int     `json:"qty"`
	Price float64 `json:"price"`
}

type attachmentRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	StorageKey  string `json:"storageKey,omitempty"`
}

type orderResponse struct {
	OrderID    string         `json:"orderId"`
	TenantID   string         `json:"tenantId"`
	RequestID  string         `json:"requestId"`
	BuyerEmail string         `json:"buyerEmail"`
	BuyerName  string         `json:"buyerName"`
	Items      []lineItemDTO  `json:"items"`
	Attachment *attachmentDTO `json:"attachment,omitempty"`
	Status     string         `json:"status"`
	Total      float64        `json:"total"`
	CreatedAt  int64          `json:"createdAt"`
	UpdatedAt  int64          `json:"updatedAt"`
}

type attachmentDTO struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	StorageKey  string `json:"storageKey"`
}

func toOrderResponse(order domain.Order) orderResponse {
	resp := orderResponse{
		OrderID:    order.OrderID,
		TenantID:   order.TenantID,
		RequestID:  order.RequestID,
		BuyerEmail: order.BuyerEmail,
		BuyerName:  order.BuyerName,
		Status:     string(order.Status),
		Total:      order.Total,
		CreatedAt:  order.CreatedAt,
		UpdatedAt:  order.UpdatedAt,
	}
	resp.Items = make([]lineItemDTO, len(order.Items))
	for i, item := range order.Items {
		resp.Items[i] = lineItemDTO{SKU: item.SKU, Qty: item.Qty, Price: item.Price}
	}
	if order.Attachment != nil {
		resp.Attachment = &attachmentDTO{
			Filename:    order.Attachment.Filename,
			ContentType: order.Attachment.ContentType,
			Size:        order.Attachment.Size,
			StorageKey:  order.Attachment.StorageKey,
		}
	}
	return resp
}

type orderViewResponse struct {
	OrderID              string  `json:"orderId"`
	TenantID             string  `json:"tenantId"`
	BuyerEmail           string  `json:"buyerEmail"`
	Status               string  `json:"status"`
	Total                float64 `json:"total"`
	AttachmentFilename   string  `json:"attachmentFilename,omitempty"`
	AttachmentStorageKey string  `json:"attachmentStorageKey,omitempty"`
	CreatedAt            int64   `json:"createdAt"`
	UpdatedAt            int64   `json:"updatedAt"`
}

type listOrdersResponse struct {
	Orders []orderViewResponse `json:"orders"`
	Page   int                 `json:"page"`
	Limit  int                 `json:"limit"`
	Total  int                 `json:"total"`
}

func toListOrdersResponse(page query.OrderPage) listOrdersResponse {
	resp := listOrdersResponse{
		Orders: make([]orderViewResponse, len(page.Orders)),
		Page:   page.Page,
		Limit:  page.Limit,
		Total:  page.Total,
	}
	for i, view := range page.Orders {
		resp.Orders[i] = orderViewResponse{
			OrderID:              view.OrderID,
			TenantID:             view.TenantID,
			BuyerEmail:           view.BuyerEmail,
			Status:               view.Status,
			Total:                view.Total,
			AttachmentFilename:   view.AttachmentFilename,
			AttachmentStorageKey: view.AttachmentStorageKey,
			CreatedAt:            view.CreatedAt,
			UpdatedAt:            view.UpdatedAt,
		}
	}
	return resp
}

type presignRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

type presignResponse struct {
	StorageKey string            `json:"storageKey"`
	URL        string            `json:"url"`
	Method     string            `json:"method"`
	Headers    map[string]string `json:"headers"`
	ExpiresAt  int64             `json:"expiresAt"`
}

func toPresignResponse(slot uploads.PresignedUpload) presignResponse {
	return presignResponse{
		StorageKey: slot.StorageKey,
		URL:        slot.URL,
		Method:     slot.Method,
		Headers:    slot.Headers,
		ExpiresAt:  slot.ExpiresAt,
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
