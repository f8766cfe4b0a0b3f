package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"PortfolioTracker/internal/collector"
	"PortfolioTracker/internal/config"
	"PortfolioTracker/internal/events"
	"PortfolioTracker/internal/logger"
	"PortfolioTracker/internal/notifier"
	"PortfolioTracker/internal/recorder"
	"PortfolioTracker/internal/tracker"
)

// app is the wiring shared by every command.
type app struct {
	cfg      *config.Config
	svc      *tracker.Service
	notifier notifier.Notifier
	closers  []func() error
}

func newApp(ctx context.Context) (*app, error) {
	p := *configPath
	if p == "" {
		p = config.Path()
	}
	cfg, err := config.Load(p)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	a := &app{cfg: cfg, notifier: notifier.NoopNotifier{}}
	a.closers = append(a.closers, logger.Setup(cfg.Log.File, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups).Close)

	var fetcher collector.Fetcher = collector.NewYahooFetcher(cfg.Proxy, cfg.PriceSource.SymbolMap)
	if cfg.Redis.Addr != "" {
		cache := collector.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := cache.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Printf("[WARN] redis %s unreachable, quotes are not cached: %v", cfg.Redis.Addr, err)
			cache.Close()
		} else {
			fetcher = collector.NewCachedFetcher(fetcher, cache, cfg.PriceSource.CacheTTL)
			a.closers = append(a.closers, cache.Close)
		}
	}
	log.Printf("[INFO] price source: %s", fetcher.Name())

	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.Printf("[WARN] init sqlite recorder failed, using noop: %v", err)
		} else {
			rec = sr
			a.closers = append(a.closers, sr.Close)
		}
	}

	var pub events.Publisher = events.NoopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		pub = producer
		a.closers = append(a.closers, producer.Close)
		log.Printf("[INFO] publishing events to %s on %v", cfg.Kafka.Topic, cfg.Kafka.Brokers)
	}

	if cfg.TelegramEnabled() {
		a.notifier = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
	}

	a.svc = tracker.New(cfg.Portfolio.File, fetcher, rec, pub)
	a.svc.OutputDir = cfg.Portfolio.OutputDir
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("[WARN] close: %v", err)
		}
	}
}
