// Command integration drives a few full evaluation cycles against the
// synthetic market-data provider and prints the resulting trade document.
// It is an end-to-end smoke check, not part of the production loop.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/rsharma-dev/nifty-strangler/internal/config"
	"github.com/rsharma-dev/nifty-strangler/internal/mock"
	"github.com/rsharma-dev/nifty-strangler/internal/resolver"
	"github.com/rsharma-dev/nifty-strangler/internal/storage"
	"github.com/rsharma-dev/nifty-strangler/internal/strategy"
	"github.com/rsharma-dev/nifty-strangler/internal/vwap"
)

func main() {
	var configPath string
	var cycles int
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.IntVar(&cycles, "cycles", 3, "Number of evaluation cycles to run")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if !cfg.IsPaperTrading() {
		fmt.Fprintln(os.Stderr, "Integration runs require environment.mode: paper")
		os.Exit(1)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	dir, err := os.MkdirTemp("", "strangler-e2e")
	if err != nil {
		logger.WithError(err).Fatal("temp dir")
	}
	defer func() { _ = os.RemoveAll(dir) }()

	store, err := storage.NewStorage(filepath.Join(dir, "trade_state.json"), "")
	if err != nil {
		logger.WithError(err).Fatal("storage")
	}

	provider := mock.NewMockDataProvider()
	res := resolver.New(resolver.Policy{AllowKindMismatch: cfg.AllowKindMismatch()}, logger,
		resolver.StorageSource{Store: store},
		resolver.SearchSource{Broker: provider},
	)
	vwapEngine := vwap.NewEngine(provider, store, logger, cfg.Location())
	engine := strategy.NewEngine(cfg, provider, store, res, vwapEngine, logger)

	for i := 0; i < cycles; i++ {
		logger.WithField("cycle", i+1).Info("Running evaluation cycle")
		if err := engine.RunCycle(); err != nil {
			if err == strategy.ErrStrategyExited {
				logger.Info("Strategy exited, stopping")
				break
			}
			logger.WithError(err).Fatal("cycle failed")
		}
	}

	state := store.Snapshot()
	out, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		logger.WithError(err).Fatal("marshal state")
	}
	fmt.Println(string(out))
}
