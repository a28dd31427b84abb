package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/spf13/cobra"

	"github.com/mnehpets/onerpc/config"
	"github.com/mnehpets/onerpc/endpoint"
	"github.com/mnehpets/onerpc/httprpc"
	"github.com/mnehpets/onerpc/jsonrpc"
	"github.com/mnehpets/onerpc/middleware"
	"github.com/mnehpets/onerpc/otelrpc"
	"github.com/mnehpets/onerpc/wsrpc"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo services over HTTP and WebSocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, cmd)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, cmd *cobra.Command) error {
	logger := newLogger(cfg.Log, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	reg, err := jsonrpc.BuildWithLogger(logger, demoServices()...)
	if err != nil {
		return err
	}

	hooks := []jsonrpc.DispatchHook{jsonrpc.LogHook(logger)}
	if cfg.Telemetry.Enabled {
		tel, err := newTelemetry(cmd.OutOrStdout(), cfg.Telemetry)
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := tel.Shutdown(sctx); err != nil {
				logger.Warn("telemetry shutdown failed", "err", err)
			}
		}()
		hook, err := otelrpc.NewHook(tel.HookConfig())
		if err != nil {
			return err
		}
		hooks = append(hooks, hook)
	}

	d := jsonrpc.NewDispatcher(reg,
		jsonrpc.WithLogger(logger),
		jsonrpc.WithDispatchHook(jsonrpc.Hooks(hooks...)),
		jsonrpc.WithDebugErrors(cfg.DebugErrors),
	)
	handler, ws, err := newHandler(cfg, d, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	srv.RegisterOnShutdown(ws.Close)

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Listen, "services", reg.Services())
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// newHandler assembles the RPC surface under /rpc/{service}. WebSocket
// upgrades are served by the returned wsrpc.Handler; other requests fall
// through to the HTTP transport, and CORS preflights behind that.
func newHandler(cfg *config.Config, d *jsonrpc.Dispatcher, logger *slog.Logger) (http.Handler, *wsrpc.Handler, error) {
	var headerOpts []middleware.SecurityHeadersOption
	if !cfg.Security.HSTS {
		headerOpts = append(headerOpts, middleware.WithoutHSTS())
	}
	if len(cfg.Security.AllowedOrigins) > 0 {
		headerOpts = append(headerOpts, middleware.WithCORS(&middleware.CORSConfig{
			AllowedOrigins:   cfg.Security.AllowedOrigins,
			AllowCredentials: cfg.Security.AllowCredentials,
		}))
	}
	headers := middleware.NewAPISecurityHeadersProcessor(headerOpts...)

	processors := []endpoint.Processor{headers}
	wsOpts := []wsrpc.Option{
		wsrpc.WithLogger(logger),
		wsrpc.WithReadLimit(cfg.MaxMessageSize),
	}
	if cfg.RateLimit.RPS > 0 {
		limiter := middleware.NewRateLimitProcessor(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		processors = append(processors, limiter)
		wsOpts = append(wsOpts, wsrpc.WithMessageLimiter(limiter))
	}
	if origins := cfg.Security.AllowedOrigins; len(origins) > 0 {
		wsOpts = append(wsOpts, wsrpc.WithCheckOrigin(func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(origins, "*") || slices.Contains(origins, origin)
		}))
	}

	var rpc http.Handler = httprpc.NewHandler(d, headers.Preflight(nil),
		httprpc.WithLogger(logger),
		httprpc.WithProcessors(processors...),
		httprpc.WithMaxBodySize(cfg.MaxMessageSize),
	)
	if cfg.Compression {
		gz, err := gzhttp.NewWrapper()
		if err != nil {
			return nil, nil, err
		}
		rpc = gz(rpc)
	}
	ws := wsrpc.NewHandler(d, rpc, wsOpts...)

	mux := http.NewServeMux()
	mux.Handle("/rpc/{service}", ws)
	return mux, ws, nil
}
