// Package app wires the roomchat server runtime: config, logging, stores, HTTP routes and the chat gateway.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"roomchat/cmd/internal/auth"
	"roomchat/cmd/internal/realtime"
	"roomchat/cmd/security/password"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

// App is the roomchat server runtime: it owns the stores, the HTTP server and the realtime components.
type App struct {
	cfg Config
	log Logger

	stores   *stores
	registry *prometheus.Registry

	limiter *realtime.SendLimiter
	conns   *realtime.Connections
	ws      *realtime.WSGateway
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	authCfg, err := auth.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	hasher, err := password.FromEnv()
	if err != nil {
		return nil, err
	}
	rtCfg, err := realtime.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}

	st, err := newStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	a, err := wire(cfg, log, st, authCfg, hasher, rtCfg)
	if err != nil {
		st.Close()
		return nil, err
	}
	return a, nil
}

func wire(cfg Config, log Logger, st *stores, authCfg auth.Config, hasher password.Config, rtCfg realtime.Config) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	authSvc, err := auth.NewService(authCfg, log, st.users, hasher,
		auth.WithEmailSender(auth.LogEmailSender{Log: log}),
		auth.WithMetrics(auth.NewMetrics(reg)),
	)
	if err != nil {
		return nil, err
	}

	metrics := realtime.NewMetrics(reg)
	limiter := realtime.NewSendLimiter(rtCfg.MaxSends, rtCfg.SendTimeout, metrics)

	rooms, err := realtime.NewRooms(log, realtime.RoomsConfig{
		Store:        st.messages,
		Limiter:      limiter,
		Metrics:      metrics,
		HistoryLimit: rtCfg.HistoryLimit,
	})
	if err != nil {
		return nil, err
	}
	conns := realtime.NewConnections(log, rooms, metrics)

	router, err := realtime.NewRouter(log, realtime.RouterConfig{
		Connections:  conns,
		Rooms:        rooms,
		Store:        st.messages,
		Auth:         authSvc,
		Limiter:      limiter,
		Metrics:      metrics,
		HistoryLimit: rtCfg.HistoryLimit,
	})
	if err != nil {
		return nil, err
	}

	ws, err := realtime.NewWSGateway(log, rtCfg, conns, router)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		log:      log,
		stores:   st,
		registry: reg,
		limiter:  limiter,
		conns:    conns,
		ws:       ws,
	}, nil
}

// Handler returns the full HTTP surface with middleware applied.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a)
	return WithRequestLogging(WithSecurityHeaders(mux), a.log)
}

// Run serves HTTP until ctx is cancelled or the server fails, then shuts down
// the server, drains in-flight sends and closes the stores.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.HTTPAddr)
	if err != nil {
		a.stores.Close()
		return err
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	a.log.Info("server.start", "addr", ln.Addr().String(), "store", a.stores.driver)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server.fail", "err", err)
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("server.stop", "reason", "context_done")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()

		// Hijacked /ws connections are not tracked by Shutdown; they end when
		// their request context (BaseContext) is cancelled.
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			return err
		}
		return nil
	})

	err := g.Wait()

	a.drainSends(a.cfg.ShutdownTimeout)
	a.stores.Close()

	a.log.Info("server.stopped")
	return err
}

func (a *App) drainSends(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		a.limiter.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		a.log.Warn("server.drain.timeout", "connections", a.conns.Len())
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
