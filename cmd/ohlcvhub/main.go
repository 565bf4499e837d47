package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ohlcvhub/internal/config"
	"ohlcvhub/internal/fetcher"
	"ohlcvhub/internal/logger"
	"ohlcvhub/internal/provider"
	"ohlcvhub/internal/recorder"
	"ohlcvhub/internal/router"
	"ohlcvhub/internal/scheduler"
)

func main() {
	logger.Infof("ohlcvhub starting...")

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		fatalf("config validation: %v", err)
	}
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		logger.Warnf("%v, keeping info", err)
	}

	// Shared HTTP session for all providers
	sess, err := provider.NewSession(provider.SessionConfig{
		Proxy:               cfg.Proxy,
		MaxIdleConnsPerHost: cfg.HTTP.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.HTTP.IdleConnTimeout,
	})
	if err != nil {
		fatalf("init http session: %v", err)
	}
	defer sess.Close()

	providers := []provider.Provider{
		provider.NewBinanceProvider(cfg.Providers.Binance.BaseURL, sess),
		provider.NewYahooProvider(cfg.Providers.Yahoo.BaseURL, sess),
	}
	if cfg.Providers.Mock.Enabled {
		providers = append(providers, &provider.MockProvider{BasePrice: cfg.Providers.Mock.BasePrice})
	}

	rt, err := router.New(cfg.RouteTable(router.DefaultTable()), providers...)
	if err != nil {
		fatalf("build routing table: %v", err)
	}
	for _, class := range rt.Classes() {
		chain, _ := rt.Route(class)
		logger.Infof("route %s -> %v", class, chain.Names())
	}

	// Init recorder
	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			logger.Warnf("init sqlite recorder failed, using noop: %v", err)
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
			defer sr.Close()
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}

	svc := fetcher.NewService(rt, rec, fetcher.Config{
		Default: fetcher.DefaultPolicy(),
		Policies: map[string]fetcher.Policy{
			config.ProviderBinance: policyFor(cfg.Providers.Binance),
			config.ProviderYahoo:   policyFor(cfg.Providers.Yahoo),
		},
	})

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.NewScheduler(ctx, svc, cfg.Batch.Concurrency)
	watches := make([]scheduler.Watch, 0, len(cfg.Watchlist))
	for _, w := range cfg.Watchlist {
		watches = append(watches, scheduler.Watch{Symbol: w.Symbol, Interval: w.Interval, Limit: w.Limit, Cron: w.Cron})
	}
	if err := sched.RegisterAll(watches); err != nil {
		fatalf("register watchlist: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	// Optional: run immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		logger.Infof("RUN_ON_START enabled, fetching watchlist now")
		go sched.RunAllNow()
	}

	logger.Infof("ohlcvhub is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof("shutdown signal received, stopping...")
	cancel()
}

func policyFor(p config.ProviderConfig) fetcher.Policy {
	return fetcher.Policy{
		Timeout:    p.Timeout,
		RetryBound: p.Retries(),
		BackoffMin: p.BackoffMin,
		BackoffMax: p.BackoffMax,
	}
}

func fatalf(format string, v ...any) {
	logger.Errorf(format, v...)
	os.Exit(1)
}
