// Package httprpc serves JSON-RPC over HTTP POST.
//
// The service name is the final segment of the request path, so a handler
// mounted at "/rpc/" serves "/rpc/Calculator" as service "Calculator". Each
// request body is one envelope; the reply is written with the request's
// codec, CBOR for application/cbor and JSON for any other content type.
// Requests with other methods are passed to the next handler untouched.
package httprpc

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/mnehpets/onerpc/codec"
	"github.com/mnehpets/onerpc/endpoint"
	"github.com/mnehpets/onerpc/jsonrpc"
)

// Handler is the HTTP transport for a jsonrpc.Dispatcher.
type Handler struct {
	dispatcher  *jsonrpc.Dispatcher
	next        http.Handler
	logger      *slog.Logger
	processors  []endpoint.Processor
	maxBodySize int64
	rpc         http.Handler
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger for malformed requests and server failures.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithProcessors runs processors before every RPC request, in order.
func WithProcessors(processors ...endpoint.Processor) Option {
	return func(h *Handler) {
		h.processors = append(h.processors, processors...)
	}
}

// WithMaxBodySize bounds a request body; larger bodies get 413. Zero, the
// default, means no limit.
func WithMaxBodySize(n int64) Option {
	return func(h *Handler) {
		h.maxBodySize = n
	}
}

// NewHandler returns a Handler dispatching POST requests to d. Requests
// with any other method go to next; a nil next responds 404.
func NewHandler(d *jsonrpc.Dispatcher, next http.Handler, opts ...Option) *Handler {
	h := &Handler{
		dispatcher: d,
		next:       next,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.next == nil {
		h.next = http.NotFoundHandler()
	}

	rpc := endpoint.Handler(h.serveRPC, h.processors...)
	rpc.Logger = h.logger
	h.rpc = rpc
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.next.ServeHTTP(w, r)
		return
	}
	if h.maxBodySize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	}
	h.rpc.ServeHTTP(w, r)
}

type rpcParams struct {
	// Service is set when the handler is mounted on a pattern with a
	// {service} wildcard.
	Service     string `path:"service"`
	ContentType string `header:"Content-Type"`
	TraceParent string `header:"traceparent"`
	Body        []byte `body:"" maxLength:""`
}

func (h *Handler) serveRPC(w http.ResponseWriter, r *http.Request, p rpcParams) (endpoint.Renderer, error) {
	service := p.Service
	if service == "" {
		service = ServiceName(r.URL.Path)
	}

	c := codec.ForContentType(p.ContentType)
	doc, err := c.ToJSON(p.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "malformed rpc request", "service", service, "codec", c.Name(), "err", err)
		return nil, endpoint.Error(http.StatusBadRequest, "malformed request body", err)
	}

	var metadata map[string]string
	if p.TraceParent != "" {
		metadata = map[string]string{"traceparent": p.TraceParent}
	}
	ctx := jsonrpc.WithTransport(r.Context(), "http", metadata)

	resp, err := h.dispatcher.ProcessMessage(ctx, service, doc)
	if err != nil {
		h.logger.WarnContext(r.Context(), "malformed rpc request", "service", service, "codec", c.Name(), "err", err)
		return nil, endpoint.Error(http.StatusBadRequest, "malformed request body", err)
	}
	return &endpoint.PayloadRenderer{Codec: c, Value: resp}, nil
}

// ServiceName returns the final segment of path, ignoring leading and
// trailing slashes.
func ServiceName(path string) string {
	path = strings.Trim(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}
