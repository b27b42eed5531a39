package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jobdeck/jobdeck/internal/config"
	"github.com/jobdeck/jobdeck/internal/connector"
	"github.com/jobdeck/jobdeck/internal/fetch"
	"github.com/jobdeck/jobdeck/internal/quota"
	"github.com/jobdeck/jobdeck/internal/scrape"
	"github.com/jobdeck/jobdeck/internal/staleness"
	"github.com/jobdeck/jobdeck/internal/storage"
)

// app is the wired dependency graph shared by every command that touches
// the store or the fetch pipeline.
type app struct {
	cfg     config.Config
	store   *storage.Store
	orch    *fetch.Orchestrator
	gateway *scrape.Client
	policy  staleness.Policy
}

func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	initLogging(cfg.Log.Level)

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	governor := quota.NewGovernor(store, cfg.Quota.MonthlyLimit, cfg.Quota.WarnRatio)
	gateway := scrape.NewClient(cfg.Gateway.URL, cfg.Gateway.Token, version)

	var conns []connector.Connector
	for _, src := range cfg.Sources {
		if !src.Enabled {
			continue
		}
		switch src.Name {
		case "zhaopin":
			conns = append(conns, connector.NewZhaopin(gateway, cfg.Fetch.MaxPages, src.City))
		case "linkedin":
			conns = append(conns, connector.NewLinkedIn(gateway, cfg.Fetch.MaxPages))
		default:
			printWarning("no connector for source %q, skipping", src.Name)
		}
	}

	policy := staleness.Policy{
		ShallowTTL:     cfg.Fetch.ShallowTTL(),
		DeepTTL:        cfg.Fetch.DeepTTL(),
		FailureCeiling: cfg.Fetch.FailureCeiling,
	}
	orch := fetch.New(store, governor, connector.NewRegistry(conns...), fetch.Config{
		Enabled:        cfg.EnabledSources(),
		Policy:         policy,
		MaxRetries:     cfg.Fetch.MaxRetries,
		MaxInFlight:    cfg.Fetch.MaxInFlight,
		Grace:          cfg.Fetch.Grace(),
		ResolveTimeout: cfg.Fetch.ResolveTimeout(),
	})

	return &app{cfg: cfg, store: store, orch: orch, gateway: gateway, policy: policy}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
	}
}

func initLogging(level string) {
	logLevel := slog.LevelInfo
	switch {
	case strings.EqualFold(level, "debug"):
		logLevel = slog.LevelDebug
	case strings.EqualFold(level, "warn"):
		logLevel = slog.LevelWarn
	case strings.EqualFold(level, "error"):
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}
