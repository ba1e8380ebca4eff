package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/yitech/pricechart/adapter"
	"github.com/yitech/pricechart/api"
	"github.com/yitech/pricechart/chart"
	"github.com/yitech/pricechart/chart/png"
	"github.com/yitech/pricechart/config"
	"github.com/yitech/pricechart/metrics"
	"github.com/yitech/pricechart/rpc"
	"github.com/yitech/pricechart/session"
	"github.com/yitech/pricechart/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	path := flag.String("config", "config.toml", "path to the TOML config file")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("chart timezone: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	kv, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer kv.Close()
	prefs := store.NewPrefs(kv, logger)

	ex := newExchange(cfg.Feed)
	streamOpts := []adapter.Option{
		adapter.WithLogger(logger),
		adapter.WithMetrics(m),
		adapter.WithBackoff(adapter.Backoff{
			Initial: cfg.Feed.ReconnectInitial.Duration,
			Max:     cfg.Feed.ReconnectMax.Duration,
		}),
	}
	factory := func() session.Feed { return adapter.NewStream(ex, streamOpts...) }

	rpcSrv := rpc.NewServer(logger)
	surfaces := []chart.Surface{rpcSrv}
	pngOpts := png.Options{Width: cfg.Chart.Width, Height: cfg.Chart.Height, Location: loc}
	if cfg.Chart.Output != "" {
		surfaces = append(surfaces, png.NewSurface(cfg.Chart.Output, pngOpts, logger))
	}

	opts := []session.Option{
		session.WithCapacity(cfg.Buffer.Capacity),
		session.WithSnapshotEvery(cfg.Buffer.SnapshotEvery),
		session.WithLogger(logger),
		session.WithMetrics(m),
	}
	if b, ok := ex.(adapter.Backfiller); ok && cfg.Feed.Backfill {
		opts = append(opts, session.WithBackfill(b))
	}
	sess := session.New(factory, chart.Multi(surfaces...), prefs, opts...)
	rpcSrv.Attach(sess)

	// An empty address disables that listener; Validate requires at least one.
	var (
		gs  *grpc.Server
		lis net.Listener
	)
	if cfg.Server.GRPCAddr != "" {
		lis, err = net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.Server.GRPCAddr, err)
		}
		gs = grpc.NewServer()
		rpcSrv.Register(gs)
		reflection.Register(gs)
	}

	var httpSrv *http.Server
	if cfg.Server.HTTPAddr != "" {
		handler := api.NewAPIHandler(sess, api.Options{
			Gatherer:    reg,
			Render:      func(w io.Writer, spec chart.Spec) error { return png.Render(w, spec, pngOpts) },
			CORSOrigins: cfg.Server.CORSOrigins,
		}, logger)
		httpSrv = &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           handler.SetupRoutes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sess.Run(gctx)
	})

	if gs != nil {
		g.Go(func() error {
			logger.Info("gRPC server listening", slog.String("addr", lis.Addr().String()))
			return gs.Serve(lis)
		})
	}

	if httpSrv != nil {
		g.Go(func() error {
			logger.Info("HTTP server listening", slog.String("addr", cfg.Server.HTTPAddr))
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		sel := prefs.LoadSelection(gctx, cfg.DefaultSelection())
		if err := sess.Activate(gctx, sel); err != nil && !errors.Is(err, session.ErrClosed) && gctx.Err() == nil {
			// A failed chart build still leaves the stream running.
			logger.Error("initial activation", slog.String("selection", sel.String()), slog.Any("error", err))
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if httpSrv != nil {
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http shutdown", slog.Any("error", err))
			}
		}
		rpcSrv.Close()
		if gs != nil {
			stopGRPC(shutdownCtx, gs)
		}
		<-sess.Done()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// stopGRPC drains gs gracefully, forcing it closed once ctx expires.
func stopGRPC(ctx context.Context, gs *grpc.Server) {
	stopped := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		gs.Stop()
		<-stopped
	}
}
