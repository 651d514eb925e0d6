package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/b0ase/path402/pkg/api"
	"github.com/b0ase/path402/pkg/artifacts"
	"github.com/b0ase/path402/pkg/config"
	"github.com/b0ase/path402/pkg/discovery"
	"github.com/b0ase/path402/pkg/engine"
	"github.com/b0ase/path402/pkg/mcp"
	"github.com/b0ase/path402/pkg/observability"
	"github.com/b0ase/path402/pkg/proof"
	"github.com/b0ase/path402/pkg/protocol"
	"github.com/b0ase/path402/pkg/ratelimit"
	"github.com/b0ase/path402/pkg/store"
)

const shutdownTimeout = 10 * time.Second

func runServeCmd(stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	slog.SetDefault(newLogger(cfg.LogLevel, stderr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := startServer(ctx, cfg, stdout); err != nil {
		slog.Error("server failed", "error", err)
		return 1
	}
	return 0
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// buildHandler wires every engine collaborator from cfg. The returned
// cleanup releases them in reverse order.
//
//nolint:gocyclo
func buildHandler(ctx context.Context, cfg *config.Config) (http.Handler, func(), error) {
	logger := slog.Default().With("component", "path402d")
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (http.Handler, func(), error) {
		cleanup()
		return nil, nil, err
	}

	var policies *config.PolicyFile
	if cfg.PolicyFile != "" {
		pf, err := config.LoadPolicy(cfg.PolicyFile)
		if err != nil {
			return fail(err)
		}
		policies = pf
		logger.Info("policy file loaded", "path", cfg.PolicyFile, "agents", len(pf.AgentIDs()))
	}

	if cfg.LiteMode() {
		logger.Info("DATABASE_URL not set, using lite mode", "data_dir", cfg.DataDir)
	}
	db, err := store.Open(ctx, cfg.DatabaseURL, cfg.DataDir)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() { _ = db.Close() })
	wallets := store.NewSQLStore(db)
	if err := wallets.Init(ctx); err != nil {
		return fail(fmt.Errorf("init wallet store: %w", err))
	}

	content, err := artifacts.NewStore(ctx, artifacts.Config{
		Type:    artifacts.StoreType(cfg.ContentStore),
		DataDir: cfg.DataDir,
		Bucket:  cfg.ContentBucket,
	})
	if err != nil {
		return fail(fmt.Errorf("init content store: %w", err))
	}

	if cfg.ProofSeed == "" {
		logger.Warn("PATH402_PROOF_SEED not set; payment proofs will not verify across restarts")
	}
	signer, err := proof.NewSigner([]byte(cfg.ProofSeed))
	if err != nil {
		return fail(err)
	}

	otelCfg := observability.DefaultConfig()
	otelCfg.Enabled = cfg.OTelEnabled
	otelCfg.OTLPEndpoint = cfg.OTelEndpoint
	telemetry, err := observability.New(ctx, otelCfg)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = telemetry.Shutdown(sctx)
	})
	metrics := observability.NewMetrics()

	client, err := discovery.NewClient(discovery.WithObserver(metrics.ObserveDiscovery))
	if err != nil {
		return fail(err)
	}

	e, err := engine.New(ctx, client, client,
		engine.FromConfig(cfg),
		engine.WithWalletStore(wallets),
		engine.WithContentStore(content),
		engine.WithSigner(signer),
		engine.WithPolicies(policies),
		engine.WithMetrics(metrics),
		engine.WithTelemetry(telemetry),
	)
	if err != nil {
		return fail(err)
	}

	var limits ratelimit.Store
	if cfg.RedisAddr != "" {
		rdb, err := ratelimit.DialRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = rdb.Close() })
		limits = ratelimit.NewRedisStore(rdb, "")
		logger.Info("rate limits shared through redis", "addr", cfg.RedisAddr)
	} else {
		mem := ratelimit.NewMemoryStore()
		go mem.RunSweeper(ctx, time.Minute, 3*time.Minute)
		limits = mem
	}

	server, err := mcp.NewServer(e)
	if err != nil {
		return fail(err)
	}
	mux := http.NewServeMux()
	mcp.NewGateway(server).RegisterRoutes(mux)
	api.NewHandler(e).RegisterRoutes(mux)

	limiter := api.NewRateLimiter(limits, ratelimit.Policy{RPM: cfg.RateLimitRPM, Burst: cfg.RateLimitBurst})
	return api.RequestID(limiter.Middleware(mux)), cleanup, nil
}

func runServer(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	_, _ = fmt.Fprintf(stdout, "%spath402d %s starting...%s\n", ColorBold+ColorBlue, protocol.Version, ColorReset)

	handler, cleanup, err := buildHandler(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", srv.Addr, "agent", cfg.Agent)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}

func runHealthCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("health", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	addr := cmd.String("addr", "http://localhost:"+portOrDefault(), "Server base URL")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = fmt.Fprintf(stderr, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, "OK")
	return 0
}

func portOrDefault() string {
	if p := os.Getenv("PORT"); p != "" {
		return p
	}
	return "3402"
}
