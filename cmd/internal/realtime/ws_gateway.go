package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	v1 "unifree/shared/contracts/messaging/v1"

	"github.com/coder/websocket"
)

// WSGateway is the WebSocket entrypoint for private messaging.
//
// It authenticates the upgrade request through the Gate, registers the session in Presence,
// pushes the history snapshot, and routes validated envelopes to the Dispatcher and
// ReadReceipts. Transport policy (origin, subprotocol, rate limits, heartbeats) lives here.
type WSGateway struct {
	log     *slog.Logger
	cfg     GatewayConfig
	origins originPolicy

	gate       *Gate
	presence   *Presence
	history    *HistoryLoader
	dispatcher *Dispatcher
	receipts   *ReadReceipts
	metrics    *Metrics
}

// GatewayDeps are the messaging components a gateway routes to.
type GatewayDeps struct {
	Gate       *Gate
	Presence   *Presence
	History    *HistoryLoader
	Dispatcher *Dispatcher
	Receipts   *ReadReceipts
	Metrics    *Metrics
}

// NewWSGateway constructs a gateway. All deps except Metrics are required.
func NewWSGateway(log *slog.Logger, cfg GatewayConfig, deps GatewayDeps) (*WSGateway, error) {
	if log == nil {
		log = slog.Default()
	}
	if deps.Gate == nil || deps.Presence == nil || deps.History == nil || deps.Dispatcher == nil || deps.Receipts == nil {
		return nil, errors.New("realtime: gateway: missing dependency")
	}

	cfg = cfg.normalized()
	return &WSGateway{
		log:        log,
		cfg:        cfg,
		origins:    newOriginPolicy(cfg.OriginRequired, cfg.AllowedOrigins),
		gate:       deps.Gate,
		presence:   deps.Presence,
		history:    deps.History,
		dispatcher: deps.Dispatcher,
		receipts:   deps.Receipts,
		metrics:    deps.Metrics,
	}, nil
}

// ServeHTTP lets the gateway be mounted as an http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS authenticates the request, upgrades it and runs the session until it ends.
// A rejected handshake is answered with 401 before any upgrade or presence change.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.origins.check(r.Header.Get("Origin")); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	who, err := g.admit(r)
	if err != nil {
		g.log.Info("ws.reject.auth", "err", err, "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{v1.Subprotocol},
		OriginPatterns:     g.origins.acceptPatterns(),
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	if sp := conn.Subprotocol(); sp != v1.Subprotocol {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", v1.Subprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	client := NewClient(NewSessionID(), who.UserID, who.DisplayName, g.cfg.SendQueueSize)
	s := newWSSession(r.Context(), g, conn, client)
	s.log.Info("ws.accept", "remote", r.RemoteAddr)

	s.run()
}

// admit runs the gate under the handshake deadline.
func (g *WSGateway) admit(r *http.Request) (Identity, error) {
	ctx, cancel := context.WithTimeout(r.Context(), g.cfg.HandshakeTimeout)
	defer cancel()
	return g.gate.Admit(ctx, HandshakeFromRequest(r))
}
