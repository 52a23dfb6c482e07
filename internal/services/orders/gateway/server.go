// Package gateway hosts the realtime order-update surface. Authenticated
// websocket peers are grouped by the tenant resolved from their token;
// status-change events fan out only to that tenant's peers.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/commerceloop/orderflow/internal/services/orders/event"
	"golang.org/x/net/websocket"
)

type wsFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscribedPayload struct {
	TenantID string `json:"tenantId"`
}

type joinPayload struct {
	TenantID string `json:"tenantId"`
}

type orderUpdatePayload struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

// Gateway fans order status updates out to websocket peers by tenant.
type Gateway struct {
	hub      *tenantHub
	verifier *TokenVerifier
}

// NewGateway creates a gateway authenticating peers with verifier.
func NewGateway(verifier *TokenVerifier) *Gateway {
	return &Gateway{
		hub:      newTenantHub(),
		verifier: verifier,
	}
}

// Register subscribes the gateway to status changes on the bus.
func (g *Gateway) Register(bus *event.Bus) {
	bus.SubscribeOrderStatusChanged(g.HandleOrderStatusChanged)
}

// HandleOrderStatusChanged pushes the update to every peer of the event's
// tenant. Write failures drop the frame for that peer only; the read loop
// notices the broken connection and removes it.
func (g *Gateway) HandleOrderStatusChanged(ctx context.Context, evt event.OrderStatusChanged) {
	frame := wsFrame{
		Type: "order.updated",
		Payload: mustJSON(orderUpdatePayload{
			OrderID: evt.OrderID,
			Status:  evt.NewStatus,
		}),
	}
	for _, peer := range g.hub.peers(evt.TenantID) {
		if err := peer.writeFrame(frame); err != nil {
			slog.DebugContext(ctx, "drop order update for unreachable peer",
				"tenant_id", evt.TenantID, "order_id", evt.OrderID, "error", err)
		}
	}
}

// Handler returns the websocket endpoint. Requests without a verifiable
// tenant identity are rejected before the upgrade.
func (g *Gateway) Handler() http.Handler {
	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		g.handleConn(conn)
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if g.verifier == nil {
			http.Error(w, "websocket auth is not configured", http.StatusServiceUnavailable)
			return
		}

		token := accessTokenFromRequest(r)
		if token == "" {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		tenantID, err := g.verifier.Verify(token)
		if err != nil {
			slog.InfoContext(r.Context(), "websocket unauthorized",
				"remote", r.RemoteAddr, "error", err)
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), wsTenantIDContextKey{}, tenantID)
		wsHandler.ServeHTTP(w, r.WithContext(ctx))
	})
}

type wsTenantIDContextKey struct{}

func (g *Gateway) handleConn(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	tenantID := ""
	if request := conn.Request(); request != nil {
		tenantID, _ = request.Context().Value(wsTenantIDContextKey{}).(string)
	}
	if tenantID == "" {
		return
	}

	peer := newWSPeer(json.NewEncoder(conn))
	g.hub.join(tenantID, peer)
	defer func() { g.hub.leave(tenantID, peer) }()

	_ = peer.writeFrame(wsFrame{
		Type:    "orders.subscribed",
		Payload: mustJSON(subscribedPayload{TenantID: tenantID}),
	})

	// The read loop notices disconnects and handles join frames; a peer
	// belongs to exactly one tenant group, last join wins. Anything else
	// the client sends is discarded.
	decoder := json.NewDecoder(conn)
	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Debug("websocket read ended", "tenant_id", tenantID, "error", err)
			}
			return
		}
		if frame.Type != "join" {
			continue
		}
		var join joinPayload
		if err := json.Unmarshal(frame.Payload, &join); err != nil || join.TenantID == "" {
			continue
		}
		if join.TenantID == tenantID {
			continue
		}
		g.hub.leave(tenantID, peer)
		tenantID = join.TenantID
		g.hub.join(tenantID, peer)
		_ = peer.writeFrame(wsFrame{
			Type:    "orders.subscribed",
			Payload: mustJSON(subscribedPayload{TenantID: tenantID}),
		})
	}
}

type wsPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newWSPeer(encoder *json.Encoder) *wsPeer {
	return &wsPeer{encoder: encoder}
}

func (p *wsPeer) writeFrame(frame wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

// tenantHub tracks connected peers grouped by tenant.
type tenantHub struct {
	mu     sync.Mutex
	groups map[string]map[*wsPeer]struct{}
}

func newTenantHub() *tenantHub {
	return &tenantHub{groups: make(map[string]map[*wsPeer]struct{})}
}

func (h *tenantHub) join(tenantID string, peer *wsPeer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group, ok := h.groups[tenantID]
	if !ok {
		group = make(map[*wsPeer]struct{})
		h.groups[tenantID] = group
	}
	group[peer] = struct{}{}
}

func (h *tenantHub) leave(tenantID string, peer *wsPeer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group, ok := h.groups[tenantID]
	if !ok {
		return
	}
	delete(group, peer)
	if len(group) == 0 {
		delete(h.groups, tenantID)
	}
}

// peers snapshots the tenant's group under the lock; delivery happens
// outside it.
func (h *tenantHub) peers(tenantID string) []*wsPeer {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.groups[tenantID]
	peers := make([]*wsPeer, 0, len(group))
	for peer := range group {
		peers = append(peers, peer)
	}
	return peers
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error("marshal websocket frame payload", "error", err)
		return nil
	}
	return b
}
