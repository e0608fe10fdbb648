package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rsharma-dev/nifty-strangler/internal/broker"
	"github.com/rsharma-dev/nifty-strangler/internal/config"
	"github.com/rsharma-dev/nifty-strangler/internal/dashboard"
	"github.com/rsharma-dev/nifty-strangler/internal/mock"
	"github.com/rsharma-dev/nifty-strangler/internal/resolver"
	"github.com/rsharma-dev/nifty-strangler/internal/retry"
	"github.com/rsharma-dev/nifty-strangler/internal/storage"
	"github.com/rsharma-dev/nifty-strangler/internal/strategy"
	"github.com/rsharma-dev/nifty-strangler/internal/vwap"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	logger.WithField("mode", cfg.Environment.Mode).Info("Starting strangle engine")

	store, err := storage.NewStorage(cfg.Storage.Path, cfg.Storage.CandleDir)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open storage")
	}

	mktBroker := buildBroker(cfg, logger)
	res := buildResolver(cfg, store, mktBroker, logger)
	vwapEngine := vwap.NewEngine(mktBroker, store, logger, cfg.Location())
	engine := strategy.NewEngine(cfg, mktBroker, store, res, vwapEngine, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Dashboard.Enabled {
		dash := dashboard.NewServer(store, cfg.Dashboard.Port, logger)
		g.Go(dash.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return dash.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return runLoop(ctx, cfg, engine, logger)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.WithError(err).Fatal("Engine stopped with error")
	}
	logger.Info("Engine stopped")
}

// runLoop drives evaluation cycles at the configured cadence, gated to
// trading hours. A terminal strategy ends the loop cleanly.
func runLoop(ctx context.Context, cfg *config.Config, engine *strategy.Engine, logger *logrus.Logger) error {
	ticker := time.NewTicker(cfg.GetCheckInterval())
	defer ticker.Stop()

	cycle := func() error {
		now := time.Now().In(cfg.Location())
		if !cfg.IsWithinTradingHours(now) {
			logger.Debug("Outside trading hours, skipping cycle")
			return nil
		}
		if err := engine.RunCycle(); err != nil {
			if err == strategy.ErrStrategyExited {
				return err
			}
			logger.WithError(err).Error("Cycle failed")
		}
		return nil
	}

	if err := cycle(); err != nil {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := cycle(); err != nil {
				return nil
			}
		}
	}
}

// newLogger builds the process logger: stdout always, plus a rotated file
// when one is configured.
func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if level, err := logrus.ParseLevel(cfg.Environment.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if cfg.Environment.LogFile != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.Environment.LogFile,
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		logger.SetOutput(io.MultiWriter(os.Stdout, rotated))
	}
	return logger
}

// buildBroker assembles the market-data client: the synthetic provider in
// paper mode, or the live API wrapped in retry and a circuit breaker.
func buildBroker(cfg *config.Config, logger *logrus.Logger) broker.Broker {
	if cfg.IsPaperTrading() {
		logger.Info("Paper trading mode, using synthetic market data")
		return mock.NewMockDataProvider()
	}

	api := broker.NewAngelAPI(broker.Credentials{
		JWTToken:   cfg.Broker.JWTToken,
		PrivateKey: cfg.Broker.PrivateKey,
		ClientCode: cfg.Broker.ClientCode,
		LocalIP:    cfg.Broker.LocalIP,
		PublicIP:   cfg.Broker.PublicIP,
		MACAddress: cfg.Broker.MACAddress,
		UserType:   cfg.Broker.UserType,
		SourceID:   cfg.Broker.SourceID,
	}).WithBaseURLs(cfg.Broker.APIEndpoint, cfg.Broker.SearchEndpoint)

	return broker.NewCircuitBreakerBroker(retry.NewBroker(api, logger))
}

// buildResolver wires the token-resolution ladder: persisted record, local
// catalog dumps, then the remote search API.
func buildResolver(cfg *config.Config, store storage.Interface, b broker.Broker, logger *logrus.Logger) *resolver.Resolver {
	policy := resolver.Policy{AllowKindMismatch: cfg.AllowKindMismatch()}
	return resolver.New(policy, logger,
		resolver.StorageSource{Store: store},
		resolver.FileSource{SourceName: "candidates-file", Path: cfg.Storage.CandidatesPath},
		resolver.FileSource{SourceName: "scripmaster", Path: cfg.Storage.ScripMasterPath},
		resolver.SearchSource{Broker: b},
	)
}
