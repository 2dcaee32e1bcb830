package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/harvesthub/harvesthub-engine/pkg/auth"
	"github.com/harvesthub/harvesthub-engine/pkg/broadcast"
)

// EventStreamOptions tunes the WebSocket event stream.
type EventStreamOptions struct {
	AllowedOrigins []string
	WriteTimeout   time.Duration
	PingInterval   time.Duration
}

// EventHandler streams broadcast events to WebSocket clients.
type EventHandler struct {
	hub            *broadcast.Hub
	originPatterns []string
	writeTimeout   time.Duration
	pingInterval   time.Duration
	logger         *zap.Logger
}

// NewEventHandler creates a new event stream handler.
func NewEventHandler(hub *broadcast.Hub, opts EventStreamOptions, logger *zap.Logger) *EventHandler {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	return &EventHandler{
		hub:            hub,
		originPatterns: originPatterns(opts.AllowedOrigins),
		writeTimeout:   opts.WriteTimeout,
		pingInterval:   opts.PingInterval,
		logger:         logger,
	}
}

// RegisterRoutes registers the event stream. It holds no database scope since
// the connection is long-lived.
func (h *EventHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/events", authMiddleware.RequireAuth(h.Stream))
}

// originPatterns converts configured origins (full URLs) into the host
// patterns websocket.Accept matches against.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			patterns = append(patterns, "*")
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
		} else {
			patterns = append(patterns, o)
		}
	}
	return patterns
}

// parseEventFilter reads ?events=a,b. Unknown names are rejected.
func parseEventFilter(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var names []string
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !broadcast.IsKnownEvent(name) {
			return nil, errors.New("unknown event " + name)
		}
		names = append(names, name)
	}
	return names, nil
}

// Stream handles GET /api/events
func (h *EventHandler) Stream(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}

	filter, err := parseEventFilter(r.URL.Query().Get("events"))
	if err != nil {
		badRequest(w, h.logger, "invalid_events", err.Error())
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		// Accept has already written the HTTP error.
		h.logger.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	sub := h.hub.Subscribe(filter...)
	defer h.hub.Unsubscribe(sub)

	logger := h.logger.With(
		zap.String("user_id", caller.UserID.String()),
		zap.String("role", caller.Role))
	logger.Info("Event stream connected", zap.Strings("events", filter))

	// Clients never send data; CloseRead handles control frames and cancels
	// ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	err = h.pump(ctx, conn, sub)
	logger.Info("Event stream closed",
		zap.Uint64("dropped", sub.Dropped()),
		zap.NamedError("reason", err))

	if err == nil {
		conn.Close(websocket.StatusNormalClosure, "")
	}
}

// pump forwards events until the client leaves or the hub shuts down. It
// returns nil for an orderly end.
func (h *EventHandler) pump(ctx context.Context, conn *websocket.Conn, sub *broadcast.Subscription) error {
	var pings <-chan time.Time
	if h.pingInterval > 0 {
		ticker := time.NewTicker(h.pingInterval)
		defer ticker.Stop()
		pings = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-sub.Events():
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return nil
			}
			if err := h.write(ctx, conn, event); err != nil {
				return err
			}
		case <-pings:
			pingCtx, cancel := context.WithTimeout(ctx, h.writeTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

func (h *EventHandler) write(ctx context.Context, conn *websocket.Conn, event broadcast.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
