package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/commerceloop/orderflow/internal/services/orders/domain"
	"github.com/commerceloop/orderflow/internal/services/orders/query"
	"github.com/commerceloop/orderflow/internal/services/orders/storage"
	"github.com/commerceloop/orderflow/internal/services/orders/uploads"
)

type memStore struct {
	mu     sync.Mutex
	orders map[string]storage.OrderRecord
	ledger map[string]string
	views  []storage.OrderViewRecord
}

func newMemStore() *memStore {
	return &memStore{
		orders: make(map[string]storage.OrderRecord),
		ledger: make(map[string]string),
	}
}

func (m *memStore) CreateOrder(ctx context.Context, order storage.OrderRecord, evt storage.OutboxAppend) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := order.TenantID + "\x00" + order.RequestID
	if _, exists := m.ledger[key]; exists {
		return storage.ErrConflict
	}
	m.ledger[key] = order.OrderID
	m.orders[order.OrderID] = order
	return nil
}

func (m *memStore) GetOrder(ctx context.Context, orderID string) (storage.OrderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.orders[orderID]
	if !ok {
		return storage.OrderRecord{}, storage.ErrNotFound
	}
	return record, nil
}

func (m *memStore) GetOrderByTenantAndRequest(ctx context.Context, tenantID, requestID string) (storage.OrderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	orderID, ok := m.ledger[tenantID+"\x00"+requestID]
	if !ok {
		return storage.OrderRecord{}, storage.ErrNotFound
	}
	return m.orders[orderID], nil
}

func (m *memStore) ListOrderViews(ctx context.Context, filter storage.ViewFilter) (storage.ViewPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := make([]storage.OrderViewRecord, 0, len(m.views))
	for _, view := range m.views {
		if view.TenantID != filter.TenantID {
			continue
		}
		if filter.Status != "" && view.Status != filter.Status {
			continue
		}
		matched = append(matched, view)
	}
	page := storage.ViewPage{Total: len(matched)}
	if filter.Offset < len(matched) {
		end := filter.Offset + filter.Limit
		if end > len(matched) {
			end = len(matched)
		}
		page.Views = matched[filter.Offset:end]
	}
	return page, nil
}

type staticVerifier struct{}

func (staticVerifier) Verify(token string) (string, error) {
	if token == "tenant-a-token" {
		return "tenant-a", nil
	}
	return "", errors.New("token is invalid")
}

func newTestServer(t *testing.T, store *memStore) *httptest.Server {
	t.Helper()
	handler := New(Config{
		Orders:   domain.NewService(store),
		Queries:  query.NewService(store),
		Uploads:  uploads.NewService("https://uploads.example.com"),
		Verifier: staticVerifier{},
	})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func doRequest(t *testing.T, server *httptest.Server, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, server.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeResponse[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func validCreateRequest() createOrderRequest {
	return createOrderRequest{
		RequestID: "req-1",
		Buyer:     buyerDTO{Email: "buyer@example.com", Name: "Jordan Buyer"},
		Items: []lineItemDTO{
			{SKU: "sku-1", Qty: 2, Price: 10.25},
			{SKU: "sku-2", Qty: 1, Price: 5.00},
		},
	}
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t, newMemStore())
	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("request error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestCreateOrderEndpoint(t *testing.T) {
	server := newTestServer(t, newMemStore())

	resp := doRequest(t, server, http.MethodPost, "/orders", "tenant-a-token", validCreateRequest())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	created := decodeResponse[orderResponse](t, resp)
	if created.TenantID != "tenant-a" || created.Status != "PENDING" || created.Total != 25.50 {
		t.Errorf("created order = %+v", created)
	}

	// Same request id replays the stored order with 200.
	replay := doRequest(t, server, http.MethodPost, "/orders", "tenant-a-token", validCreateRequest())
	if replay.StatusCode != http.StatusOK {
		t.Fatalf("replay status = %d, want 200", replay.StatusCode)
	}
	replayed := decodeResponse[orderResponse](t, replay)
	if replayed.OrderID != created.OrderID {
		t.Errorf("replay order id = %q, want %q", replayed.OrderID, created.OrderID)
	}
}

// The wire contract nests the buyer and carries the tenant id in the body.
func TestCreateOrderAcceptsDocumentedBodyShape(t *testing.T) {
	server := newTestServer(t, newMemStore())

	body := []byte(`{
		"requestId": "req-1",
		"tenantId": "tenant-a",
		"buyer": {"email": "buyer@example.com", "name": "Jordan Buyer"},
		"items": [
			{"sku": "A", "qty": 2, "price": 10.00},
			{"sku": "B", "qty": 1, "price": 5.50}
		]
	}`)
	req, err := http.NewRequest(http.MethodPost, server.URL+"/orders", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer tenant-a-token")
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	created := decodeResponse[orderResponse](t, resp)
	if created.TenantID != "tenant-a" || created.BuyerEmail != "buyer@example.com" || created.Total != 25.50 {
		t.Errorf("created order = %+v", created)
	}
}

func TestCreateOrderRejectsForeignTenantID(t *testing.T) {
	server := newTestServer(t, newMemStore())

	req := validCreateRequest()
	req.TenantID = "tenant-b"
	resp := doRequest(t, server, http.MethodPost, "/orders", "tenant-a-token", req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	errBody := decodeResponse[errorResponse](t, resp)
	if errBody.Error != "ORDER_TENANT_MISMATCH" {
		t.Errorf("error code = %q, want ORDER_TENANT_MISMATCH", errBody.Error)
	}
}

func TestCreateOrderEndpointValidation(t *testing.T) {
	server := newTestServer(t, newMemStore())

	req := validCreateRequest()
	req.Items = nil
	resp := doRequest(t, server, http.MethodPost, "/orders", "tenant-a-token", req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	errBody := decodeResponse[errorResponse](t, resp)
	if errBody.Error != "ORDER_ITEMS_EMPTY" {
		t.Errorf("error code = %q, want ORDER_ITEMS_EMPTY", errBody.Error)
	}
}

func TestCreateOrderEndpointUnauthorized(t *testing.T) {
	server := newTestServer(t, newMemStore())

	if resp := doRequest(t, server, http.MethodPost, "/orders", "", validCreateRequest()); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("missing token status = %d, want 401", resp.StatusCode)
	}
	if resp := doRequest(t, server, http.MethodPost, "/orders", "bad-token", validCreateRequest()); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", resp.StatusCode)
	}
}

func TestListOrdersEndpoint(t *testing.T) {
	store := newMemStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 15; i++ {
		status := "PENDING"
		if i%2 == 0 {
			status = "PAID"
		}
		store.views = append(store.views, storage.OrderViewRecord{
			OrderID:    "ord_" + string(rune('a'+i)),
			TenantID:   "tenant-a",
			BuyerEmail: "buyer@example.com",
			Status:     status,
			Total:      10,
			CreatedAt:  base,
			UpdatedAt:  base,
		})
	}
	server := newTestServer(t, store)

	t.Run("first page defaults", func(t *testing.T) {
		resp := doRequest(t, server, http.MethodGet, "/orders", "tenant-a-token", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		page := decodeResponse[listOrdersResponse](t, resp)
		if page.Page != 1 || page.Limit != 10 || page.Total != 15 || len(page.Orders) != 10 {
			t.Errorf("page = %d/%d total = %d len = %d, want 1/10 15 10",
				page.Page, page.Limit, page.Total, len(page.Orders))
		}
	})

	t.Run("second page remainder", func(t *testing.T) {
		resp := doRequest(t, server, http.MethodGet, "/orders?page=2", "tenant-a-token", nil)
		page := decodeResponse[listOrdersResponse](t, resp)
		if page.Page != 2 || len(page.Orders) != 5 {
			t.Errorf("page = %d len = %d, want 2/5", page.Page, len(page.Orders))
		}
	})

	t.Run("status filter", func(t *testing.T) {
		resp := doRequest(t, server, http.MethodGet, "/orders?status=PAID", "tenant-a-token", nil)
		page := decodeResponse[listOrdersResponse](t, resp)
		if page.Total != 8 {
			t.Errorf("total = %d, want 8 PAID", page.Total)
		}
		for _, order := range page.Orders {
			if order.Status != "PAID" {
				t.Errorf("order %q status = %q, want PAID", order.OrderID, order.Status)
			}
		}
	})

	t.Run("bad page value", func(t *testing.T) {
		resp := doRequest(t, server, http.MethodGet, "/orders?page=abc", "tenant-a-token", nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("bad from value", func(t *testing.T) {
		resp := doRequest(t, server, http.MethodGet, "/orders?from=yesterday", "tenant-a-token", nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})
}

func TestPresignEndpoint(t *testing.T) {
	server := newTestServer(t, newMemStore())

	resp := doRequest(t, server, http.MethodPost, "/uploads/presign", "tenant-a-token", presignRequest{
		Filename:    "invoice.pdf",
		ContentType: "application/pdf",
		Size:        2048,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	slot := decodeResponse[presignResponse](t, resp)
	if slot.Method != "PUT" || slot.StorageKey == "" || slot.URL == "" {
		t.Errorf("presign response = %+v", slot)
	}

	bad := doRequest(t, server, http.MethodPost, "/uploads/presign", "tenant-a-token", presignRequest{
		ContentType: "application/pdf",
		Size:        2048,
	})
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("missing filename status = %d, want 400", bad.StatusCode)
	}
}

func TestMalformedBody(t *testing.T) {
	server := newTestServer(t, newMemStore())

	req, err := http.NewRequest(http.MethodPost, server.URL+"/orders", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer tenant-a-token")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
