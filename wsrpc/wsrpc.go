// Package wsrpc serves JSON-RPC over WebSocket.
//
// The final segment of the upgrade request's path names the service for the
// life of the connection. Each inbound message, however many frames it spans,
// is one envelope and gets exactly one reply before the next message is read,
// so replies on a connection come back in request order. Text messages carry
// JSON; binary messages carry CBOR and are answered in CBOR.
package wsrpc

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mnehpets/onerpc/codec"
	"github.com/mnehpets/onerpc/httprpc"
	"github.com/mnehpets/onerpc/jsonrpc"
)

const closeTimeout = time.Second

// Limiter meters inbound messages. middleware.RateLimitProcessor satisfies it.
type Limiter interface {
	Allow() bool
}

// Handler is the WebSocket transport for a jsonrpc.Dispatcher.
type Handler struct {
	dispatcher *jsonrpc.Dispatcher
	next       http.Handler
	upgrader   websocket.Upgrader
	logger     *slog.Logger
	limiter    Limiter
	readLimit  int64

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// Option configures a Handler.
type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithCheckOrigin sets the upgrade origin policy. The default accepts only
// same-host origins.
func WithCheckOrigin(check func(r *http.Request) bool) Option {
	return func(h *Handler) {
		h.upgrader.CheckOrigin = check
	}
}

// WithReadLimit bounds the size of one inbound message. Larger messages close
// the connection with status 1009. Zero, the default, means no limit.
func WithReadLimit(n int64) Option {
	return func(h *Handler) {
		h.readLimit = n
	}
}

// WithMessageLimiter closes connections with status 1008 when l refuses a
// message.
func WithMessageLimiter(l Limiter) Option {
	return func(h *Handler) {
		h.limiter = l
	}
}

// NewHandler returns a Handler serving WebSocket upgrades with d. Requests
// that are not upgrades go to next; a nil next responds 404.
func NewHandler(d *jsonrpc.Dispatcher, next http.Handler, opts ...Option) *Handler {
	h := &Handler{
		dispatcher: d,
		next:       next,
		logger:     slog.Default(),
		conns:      make(map[*websocket.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.next == nil {
		h.next = http.NotFoundHandler()
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		h.next.ServeHTTP(w, r)
		return
	}

	service := r.PathValue("service")
	if service == "" {
		service = httprpc.ServiceName(r.URL.Path)
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", "service", service, "err", err)
		return
	}
	h.track(conn, true)
	defer h.track(conn, false)
	defer conn.Close()

	h.serveConn(r.Context(), conn, service)
}

func (h *Handler) track(conn *websocket.Conn, add bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if add {
		h.conns[conn] = struct{}{}
	} else {
		delete(h.conns, conn)
	}
}

// Close asks every open connection to close with status 1001 (going away).
// It does not wait for the connections' loops to finish.
func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		closeConn(conn, websocket.CloseGoingAway, "server shutting down")
	}
}

func (h *Handler) serveConn(ctx context.Context, conn *websocket.Conn, service string) {
	logger := h.logger.With("service", service, "remote", conn.RemoteAddr().String())
	logger.DebugContext(ctx, "websocket connected")

	if h.readLimit > 0 {
		conn.SetReadLimit(h.readLimit)
	}
	conn.SetCloseHandler(func(code int, text string) error {
		closeConn(conn, websocket.CloseNormalClosure, "")
		return nil
	})
	ctx = jsonrpc.WithTransport(ctx, "websocket", nil)

	var buf bytes.Buffer
	for {
		msgType, r, err := conn.NextReader()
		if err == nil {
			buf.Reset()
			_, err = buf.ReadFrom(r)
		}
		if err != nil {
			h.logReadError(ctx, logger, err)
			return
		}

		if h.limiter != nil && !h.limiter.Allow() {
			logger.WarnContext(ctx, "websocket rate limit exceeded")
			closeConn(conn, websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}

		c := codec.JSON
		if msgType == websocket.BinaryMessage {
			c = codec.CBOR
		}
		reply, err := h.process(ctx, c, service, buf.Bytes())
		if err != nil {
			logger.WarnContext(ctx, "malformed websocket message", "codec", c.Name(), "err", err)
			closeConn(conn, websocket.CloseInvalidFramePayloadData, "malformed message")
			return
		}
		if err := conn.WriteMessage(msgType, reply); err != nil {
			logger.WarnContext(ctx, "websocket write failed", "err", err)
			return
		}
	}
}

func (h *Handler) logReadError(ctx context.Context, logger *slog.Logger, err error) {
	var closeErr *websocket.CloseError
	switch {
	case errors.As(err, &closeErr):
		logger.DebugContext(ctx, "websocket closed", "code", closeErr.Code)
	case errors.Is(err, websocket.ErrReadLimit):
		// The connection has already sent close status 1009.
		logger.WarnContext(ctx, "websocket message too large", "limit", h.readLimit)
	default:
		logger.WarnContext(ctx, "websocket read failed", "err", err)
	}
}

func (h *Handler) process(ctx context.Context, c codec.Codec, service string, payload []byte) ([]byte, error) {
	doc, err := c.ToJSON(payload)
	if err != nil {
		return nil, err
	}
	resp, err := h.dispatcher.ProcessMessage(ctx, service, doc)
	if err != nil {
		return nil, err
	}
	return c.Encode(resp)
}

// closeConn sends a close frame. The peer's answering close frame, or the
// read error that follows, ends the connection's loop.
func closeConn(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeTimeout))
}
