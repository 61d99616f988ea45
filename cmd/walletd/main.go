// Command walletd runs one replica of the replicated wallet service,
// acting as either the primary (HTTP edge + replication client) or the
// backup (replication server only), per ROLE (spec.md §6).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/replicatedwallet/walletd/internal/config"
	"github.com/replicatedwallet/walletd/internal/failover"
	"github.com/replicatedwallet/walletd/internal/httpedge"
	"github.com/replicatedwallet/walletd/internal/orchestrator"
	"github.com/replicatedwallet/walletd/internal/replication"
	"github.com/replicatedwallet/walletd/internal/wallet"
	"github.com/replicatedwallet/walletd/pkg/logger"
	"github.com/replicatedwallet/walletd/pkg/telemetry"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		panic("invalid configuration: " + err.Error())
	}
	cfg, err = cfg.OverlayFlags(os.Args[1:])
	if err != nil {
		panic("invalid configuration: " + err.Error())
	}

	zlogger, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, OutputFile: cfg.ResolvedLogOutputFile()})
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer zlogger.Sync()

	zlogger.Info("starting walletd", zap.String("role", string(cfg.Role)), zap.String("state_dir", cfg.StateDir))

	tel, shutdownTelemetry, err := telemetry.New(telemetry.Config{
		Enabled:          true,
		ServiceName:      "walletd-" + string(cfg.Role),
		TraceSampleRatio: 1.0,
	})
	if err != nil {
		zlogger.Fatal("failed to initialize telemetry", zap.Error(err))
	}
	defer shutdownTelemetry(context.Background())

	metrics, err := telemetry.NewWalletMetrics(tel.Meter)
	if err != nil {
		zlogger.Fatal("failed to create wallet metrics", zap.Error(err))
	}

	rolePrefix := "primary"
	if cfg.Role == config.RoleBackup {
		rolePrefix = "backup"
	}

	engine, err := wallet.Open(cfg.StateDir, rolePrefix, zlogger, metrics)
	if err != nil {
		zlogger.Fatal("failed to open wallet engine", zap.Error(err))
	}
	defer engine.Close()

	if err := engine.Recover(); err != nil {
		// Corruption at startup: refuse to start, never auto-truncate (spec.md §7).
		zlogger.Fatal("wallet engine recovery failed; refusing to start", zap.Error(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", telemetry.MetricsHandler())
	metricsServer := &http.Server{Addr: portAddr(cfg.MetricsPort), Handler: metricsMux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlogger.Error("metrics server failed", zap.Error(err))
		}
	}()

	var (
		httpServer *http.Server
		fo         *failover.Manager
		repClient  *replication.Client
	)

	switch cfg.Role {
	case config.RoleBackup:
		zlogger.Info("backup replica listening for replication RPC", zap.Int("port", cfg.RPCPort()))
		go func() {
			if err := replication.Listen(ctx, portAddr(cfg.RPCPort()), engine, zlogger); err != nil {
				zlogger.Error("replication server stopped with error", zap.Error(err))
			}
		}()

	case config.RolePrimary:
		repClient, err = replication.Dial(cfg.BackupAddr, cfg.ReplicateTimeout, cfg.PingTimeout, zlogger)
		if err != nil {
			zlogger.Fatal("failed to dial backup replication endpoint", zap.Error(err))
		}
		defer repClient.Close()

		fo = failover.New(repClient, zlogger, metrics)
		go fo.Run(ctx, cfg.HealthInterval)

		orch := orchestrator.New(engine, repClient, fo, tel.Tracer, zlogger, metrics)

		var limiter *rate.Limiter
		if cfg.RateLimitRPS > 0 {
			limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), int(cfg.RateLimitRPS))
		}

		ready := func() bool { return true }
		edge := httpedge.New(orch, zlogger, limiter, ready)

		mux := http.NewServeMux()
		edge.Routes(mux)
		httpServer = &http.Server{Addr: portAddr(cfg.HTTPPort), Handler: mux}

		go func() {
			zlogger.Info("primary HTTP edge listening", zap.Int("port", cfg.HTTPPort))
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				zlogger.Error("HTTP server failed", zap.Error(err))
			}
		}()
	}

	waitForShutdown(zlogger)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if httpServer != nil {
		_ = httpServer.Shutdown(shutdownCtx)
	}
	_ = metricsServer.Shutdown(shutdownCtx)
	zlogger.Info("walletd stopped cleanly")
}

func waitForShutdown(zlogger *zap.Logger) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	sig := <-signals
	zlogger.Info("received signal, shutting down", zap.String("signal", sig.String()))
}

func portAddr(port int) string {
	return ":" + strconv.Itoa(port)
}
