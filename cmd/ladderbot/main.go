package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/ladderbot/config"
	"github.com/alejandrodnm/ladderbot/internal/adapters/exchange"
	"github.com/alejandrodnm/ladderbot/internal/adapters/notify"
	"github.com/alejandrodnm/ladderbot/internal/adapters/storage"
	"github.com/alejandrodnm/ladderbot/internal/application/dca"
	"github.com/alejandrodnm/ladderbot/internal/application/engine"
	"github.com/alejandrodnm/ladderbot/internal/domain"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one reconciliation cycle and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full ladder table (default: compact 1-line)")
	price := flag.String("price", "4000", "paper mode reference price")
	quoteFunds := flag.String("quote", "1000", "paper mode quote deposit")
	baseFunds := flag.String("base", "1", "paper mode base deposit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("ladderbot starting",
		"config", *configPath,
		"symbol", cfg.Symbol,
		"interval", cfg.ReconcileInterval(),
		"once", *once,
	)

	buySpec, err := cfg.SideSpec(domain.SideBuy)
	if err != nil {
		slog.Error("invalid buy side config", "err", err)
		os.Exit(1)
	}
	sellSpec, err := cfg.SideSpec(domain.SideSell)
	if err != nil {
		slog.Error("invalid sell side config", "err", err)
		os.Exit(1)
	}

	store, err := storage.NewSQLiteStore(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	market := domain.MarketStatus{
		Symbol:            cfg.Symbol,
		MinQuantity:       decimal.RequireFromString("0.00001"),
		MinNotional:       decimal.RequireFromString("1"),
		PricePrecision:    2,
		QuantityPrecision: 8,
	}
	paper := exchange.NewPaper(market, decimal.RequireFromString(*price))
	paper.Deposit(market.QuoteAsset(), decimal.RequireFromString(*quoteFunds))
	paper.Deposit(market.BaseAsset(), decimal.RequireFromString(*baseFunds))

	notifier := notify.NewConsole(*table)
	funds := engine.NewFundsTracker()
	defer funds.Close()
	groups := engine.NewGroupRegistry()

	reconciler := engine.NewReconciler(engine.Config{
		Symbol:      cfg.Symbol,
		Buy:         buySpec,
		Sell:        sellSpec,
		PriceWait:   cfg.PriceWait(),
		TradeWindow: cfg.TradeWindow(),
	}, paper, store, funds, groups, notifier)

	entryCfg, err := cfg.EntryConfig()
	if err != nil {
		slog.Error("invalid dca config", "err", err)
		os.Exit(1)
	}
	exits := dca.NewExitBuilder(cfg.ExitConfig(), groups)
	entries := dca.NewEntryBuilder(entryCfg, paper, store, funds, groups, exits)
	router := dca.NewRouter(cfg.RouterConfig(), entries)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *once {
		if _, err := reconciler.OnPriceUpdate(ctx); err != nil {
			slog.Error("reconciliation cycle failed", "err", err)
			os.Exit(1)
		}
		return
	}

	routerCfg := cfg.RouterConfig()
	if routerCfg.Mode == dca.TriggerPeriodic {
		go func() {
			if err := router.RunPeriodic(ctx); err != nil && ctx.Err() == nil {
				slog.Error("periodic entry loop exited", "err", err)
			}
		}()
	}

	run(ctx, reconciler, cfg.ReconcileInterval())
	slog.Info("ladderbot stopped cleanly")
}

// run ejecuta el bucle principal de reconciliación hasta que el contexto se cancele.
func run(ctx context.Context, r *engine.Reconciler, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := r.OnPriceUpdate(ctx); err != nil {
		slog.Warn("reconciliation cycle failed", "err", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.OnPriceUpdate(ctx); err != nil {
				slog.Warn("reconciliation cycle failed", "err", err)
			}
		}
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
