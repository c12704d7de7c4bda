package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alpha-ultimate/yusra/internal/dotenv"
	"github.com/alpha-ultimate/yusra/pkg/chat/gemini"
	"github.com/alpha-ultimate/yusra/pkg/gateway/auth"
	"github.com/alpha-ultimate/yusra/pkg/gateway/billing"
	"github.com/alpha-ultimate/yusra/pkg/gateway/config"
	gatewayserver "github.com/alpha-ultimate/yusra/pkg/gateway/server"
	"github.com/alpha-ultimate/yusra/pkg/store/postgres"
)

type gatewayDeps struct {
	loadConfig   func() (config.Config, error)
	buildServer  func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*gatewayserver.Server, func(), error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultGatewayDeps() gatewayDeps {
	return gatewayDeps{
		loadConfig:  config.LoadFromEnv,
		buildServer: buildServer,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

// buildServer wires the concrete collaborators: Gemini transport, optional
// Postgres persistence, optional WorkOS auth and Stripe billing. The cleanup
// func closes the database pool.
func buildServer(ctx context.Context, cfg config.Config, logger *slog.Logger) (*gatewayserver.Server, func(), error) {
	transport, err := gemini.New(ctx, gemini.Config{
		APIKey:            cfg.GeminiAPIKey,
		SystemInstruction: cfg.SystemInstruction,
		Logger:            logger,
		VideoPollInterval: cfg.VideoPollInterval,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("gemini transport: %w", err)
	}

	deps := gatewayserver.Deps{Transport: transport}
	cleanup := func() {}

	if cfg.DatabaseURL != "" {
		if err := postgres.Migrate(ctx, cfg.DatabaseURL); err != nil {
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		store := postgres.New(pool)
		deps.DurableChat = store
		deps.DurableSettings = store
		cleanup = pool.Close
		logger.Info("persistence enabled")
	} else {
		logger.Info("persistence disabled, sessions are in-memory only")
	}

	if cfg.AuthMode != config.AuthModeDisabled {
		deps.Verifier = auth.NewWorkOSVerifier(cfg.WorkOSAPIKey, cfg.WorkOSClientID)
	}

	if cfg.StripeAPIKey != "" {
		deps.Plans = billing.NewStripe(billing.StripeConfig{
			APIKey:           cfg.StripeAPIKey,
			ProLookupKey:     cfg.StripeProLookupKey,
			QuantumLookupKey: cfg.StripeQuantumLookupKey,
			CacheTTL:         cfg.PlanCacheTTL,
			Logger:           logger,
		})
	} else {
		deps.Plans = billing.Free{}
	}

	return gatewayserver.New(cfg, deps, logger), cleanup, nil
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

func runGateway(ctx context.Context, logger *slog.Logger, deps gatewayDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.buildServer == nil {
		return errors.New("missing buildServer dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gw, cleanup, err := deps.buildServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting gateway", "addr", cfg.Addr, "auth_mode", cfg.AuthMode)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	gw.Lifecycle().SetDraining(true)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps gatewayDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := dotenv.Load(); err != nil {
		fmt.Fprintf(stderr, "yusra-gateway: %v\n", err)
		return 1
	}

	if err := runGateway(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "yusra-gateway: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultGatewayDeps()))
}
