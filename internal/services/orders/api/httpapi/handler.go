package httpapi

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/commerceloop/orderflow/internal/platform/errors"
	"github.com/commerceloop/orderflow/internal/services/orders/domain"
	"github.com/commerceloop/orderflow/internal/services/orders/query"
	"github.com/commerceloop/orderflow/internal/services/orders/uploads"
)

const maxRequestBodyBytes = 256 * 1024

type handler struct {
	orders  *domain.Service
	queries *query.Service
	uploads *uploads.Service
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	tenantID := tenantIDFromContext(r.Context())
	if req.TenantID != "" && req.TenantID != tenantID {
		writeError(w, http.StatusBadRequest, string(errors.CodeOrderTenantMismatch),
			"tenantId does not match the authenticated tenant")
		return
	}

	input := domain.CreateOrderInput{
		TenantID:   tenantID,
		RequestID:  req.RequestID,
		BuyerEmail: req.Buyer.Email,
		BuyerName:  req.Buyer.Name,
	}
	input.Items = make([]domain.LineItem, len(req.Items))
	for i, item := range req.Items {
		input.Items[i] = domain.LineItem{SKU: item.SKU, Qty: item.Qty, Price: item.Price}
	}
	if req.Attachment != nil {
		input.Attachment = &domain.Attachment{
			Filename:    req.Attachment.Filename,
			ContentType: req.Attachment.ContentType,
			Size:        req.Attachment.Size,
			StorageKey:  req.Attachment.StorageKey,
		}
	}

	result, err := h.orders.CreateOrder(r.Context(), input)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, toOrderResponse(result.Order))
}

func (h *handler) listOrders(w http.ResponseWriter, r *http.Request) {
	input := query.ListOrdersInput{
		TenantID:   tenantIDFromContext(r.Context()),
		Status:     r.URL.Query().Get("status"),
		BuyerEmail: r.URL.Query().Get("buyerEmail"),
	}

	var err error
	if input.Page, err = queryInt(r, "page"); err != nil {
		writeError(w, http.StatusBadRequest, string(errors.CodeQueryPageInvalid), "page must be an integer")
		return
	}
	if input.Limit, err = queryInt(r, "limit"); err != nil {
		writeError(w, http.StatusBadRequest, string(errors.CodeQueryLimitInvalid), "limit must be an integer")
		return
	}
	if input.From, err = queryTime(r, "from"); err != nil {
		writeError(w, http.StatusBadRequest, string(errors.CodeQueryRangeInvalid), "from must be an RFC 3339 timestamp")
		return
	}
	if input.To, err = queryTime(r, "to"); err != nil {
		writeError(w, http.StatusBadRequest, string(errors.CodeQueryRangeInvalid), "to must be an RFC 3339 timestamp")
		return
	}

	page, err := h.queries.ListOrders(r.Context(), input)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toListOrdersResponse(page))
}

func (h *handler) presignUpload(w http.ResponseWriter, r *http.Request) {
	var req presignRequest
	if !decodeBody(w, r, &req) {
		return
	}

	slot, err := h.uploads.Presign(tenantIDFromContext(r.Context()), uploads.PresignInput{
		Filename:    req.Filename,
		ContentType: req.ContentType,
		Size:        req.Size,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPresignResponse(slot))
}

func decodeBody(w http.ResponseWriter, r *http.Request, dest any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "request body is not valid JSON")
		return false
	}
	return true
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func queryTime(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.CodeOf(err)
	status := code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "code", string(code), "error", err)
	}
	writeError(w, status, string(code), publicMessage(err, code))
}

// publicMessage keeps internal causes out of responses; validation
// messages are already written for clients.
func publicMessage(err error, code errors.Code) string {
	if code.HTTPStatus() < http.StatusInternalServerError && code != errors.CodeStorageUnavailable {
		var domainErr *errors.Error
		if stderrors.As(err, &domainErr) {
			return domainErr.Message
		}
	}
	switch code {
	case errors.CodeStorageUnavailable:
		return "storage is temporarily unavailable"
	default:
		return "internal error"
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("encode response body", "error", err)
	}
}
