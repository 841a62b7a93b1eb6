package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bancorprotocol/bancor-arbitrage/internal/domain"
	"github.com/bancorprotocol/bancor-arbitrage/internal/server"
	"github.com/bancorprotocol/bancor-arbitrage/internal/server/handler"
	"github.com/bancorprotocol/bancor-arbitrage/internal/server/ws"
)

// ServeMode runs the HTTP + WebSocket API until the context is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode",
		slog.Int("port", a.cfg.Server.Port),
	)

	checks := make(map[string]handler.HealthCheckFunc, len(deps.Checks))
	for name, fn := range deps.Checks {
		checks[name] = fn
	}

	handlers := server.Handlers{
		Health:      handler.NewHealthHandler(checks),
		Arb:         handler.NewArbHandler(deps.Exec, a.logger),
		Admin:       handler.NewAdminHandler(deps.Exec, a.logger),
		Settlements: handler.NewSettlementHandler(deps.Exec, a.logger),
	}

	hub := ws.NewHub(deps.SignalBus, a.cfg.Mode, a.logger)
	srv := server.NewServer(server.Config{
		Port:         a.cfg.Server.Port,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
		APIKey:       a.cfg.Server.APIKey,
		ReadTimeout:  a.cfg.Server.ReadTimeout.Duration,
		WriteTimeout: a.cfg.Server.WriteTimeout.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if deps.Archiver != nil {
		g.Go(func() error {
			a.runArchiveLoop(ctx, deps.Archiver)
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runArchiveLoop periodically sweeps aged settlements into blob storage.
func (a *App) runArchiveLoop(ctx context.Context, archiver domain.Archiver) {
	interval := a.cfg.S3.ArchiveInterval.Duration
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.logger.Info("settlement archiver started",
		slog.Duration("interval", interval),
		slog.Duration("retention", a.cfg.S3.ArchiveAfter.Duration),
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-a.cfg.S3.ArchiveAfter.Duration)
			n, err := archiver.Archive(ctx, cutoff)
			if err != nil {
				a.logger.Warn("archive sweep failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				a.logger.Info("settlements archived", slog.Int64("count", n))
			}
		}
	}
}

// execRequest is the JSON document exec mode reads from the route file.
// Exactly one of Flashloan or Fund must be set, selected by Kind.
type execRequest struct {
	Kind      string                    `json:"kind"` // "flashloan" or "fund"
	Flashloan *handler.FlashloanRequest `json:"flashloan,omitempty"`
	Fund      *handler.FundRequest      `json:"fund,omitempty"`
}

// ExecMode executes the request in the configured route file once and prints
// the settlement to stdout.
func (a *App) ExecMode(ctx context.Context, deps *Dependencies) error {
	path := a.cfg.Exec.RouteFile
	a.logger.InfoContext(ctx, "starting exec mode", slog.String("route_file", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("app: read route file: %w", err)
	}
	var req execRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("app: parse route file: %w", err)
	}

	var settlement domain.Settlement
	switch strings.ToLower(req.Kind) {
	case "flashloan":
		if req.Flashloan == nil {
			return fmt.Errorf("app: route file: missing flashloan section")
		}
		caller, plan, route, err := req.Flashloan.Decode()
		if err != nil {
			return fmt.Errorf("app: route file: %w", err)
		}
		settlement, err = deps.Exec.ExecuteFlashloan(ctx, caller, plan, route)
		if err != nil {
			return fmt.Errorf("app: execute: %w", err)
		}
	case "fund":
		if req.Fund == nil {
			return fmt.Errorf("app: route file: missing fund section")
		}
		caller, anchor, amount, value, route, err := req.Fund.Decode()
		if err != nil {
			return fmt.Errorf("app: route file: %w", err)
		}
		settlement, err = deps.Exec.ExecuteFunded(ctx, caller, route, anchor, amount, value)
		if err != nil {
			return fmt.Errorf("app: execute: %w", err)
		}
	default:
		return fmt.Errorf("app: route file: unknown kind %q (valid: flashloan, fund)", req.Kind)
	}

	out, err := json.MarshalIndent(handler.ToSettlementDTO(settlement), "", "  ")
	if err != nil {
		return fmt.Errorf("app: encode settlement: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
