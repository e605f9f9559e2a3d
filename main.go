package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"

	"tradePilot/config"
	"tradePilot/internal/adapters/binanceclient"
	"tradePilot/internal/adapters/claudeclient"
	"tradePilot/internal/adapters/logger"
	"tradePilot/internal/adapters/sqlite"
	"tradePilot/internal/adapters/webhook"
	"tradePilot/internal/app"
	"tradePilot/internal/market"
	"tradePilot/internal/risk"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}
	settings := cfg.Settings

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(context.Background(), "Database repository initialized")

	// 4. Initialize Exchange Client (Binance Adapter)
	exchangeClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	appLogger.Info(context.Background(), "Binance client initialized", map[string]interface{}{"testnet": cfg.IsTestnet})

	// 5. Initialize Advisor Client (Anthropic Adapter)
	advisorClient, err := claudeclient.New(claudeclient.Config{
		APIKey:    cfg.AnthropicAPIKey,
		Model:     settings.Advisor.Model,
		MaxTokens: settings.Advisor.MaxTokens,
		Timeout:   settings.AdvisorTimeout(),
		Logger:    appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize advisor client")
		log.Fatalf("FATAL: Failed to initialize advisor client: %v", err)
	}
	appLogger.Info(context.Background(), "Advisor client initialized")

	// 6. Initialize Market Snapshot Collector
	collector, err := market.NewCollector(market.Config{
		Exchange:       exchangeClient,
		Logger:         appLogger,
		CandleLimit:    settings.Market.CandleLimit,
		OrderBookDepth: settings.Market.OrderBookDepth,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize market collector")
		log.Fatalf("FATAL: Failed to initialize market collector: %v", err)
	}

	// 7. Initialize Order Sizer
	sizer, err := risk.NewSizer(risk.SizerConfig{
		Mode:        risk.SizingMode(settings.Sizing.Mode),
		FixedAmount: decimal.NewFromFloat(settings.Sizing.FixedAmount),
		Percent:     decimal.NewFromFloat(settings.Sizing.Percent),
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize order sizer")
		log.Fatalf("FATAL: Failed to initialize order sizer: %v", err)
	}

	// 8. Initialize Lifecycle Controller and Threshold Monitor
	symbolParams := make(map[string]app.SymbolParams, len(settings.Symbols))
	for symbol, p := range settings.SymbolParamMap() {
		symbolParams[symbol] = app.SymbolParams{
			Leverage:          p.Leverage,
			TakeProfitPercent: p.TakeProfitPercent,
			StopLossPercent:   p.StopLossPercent,
		}
	}

	controller, err := app.NewLifecycleController(app.ControllerConfig{
		Leverage:            settings.Leverage,
		TakeProfitPercent:   settings.TakeProfitPercent,
		StopLossPercent:     settings.StopLossPercent,
		TrendTouchMinChange: settings.TrendTouchGate(),
		SettleDelay:         settings.SettleDelay(),
		ReverseTrading:      settings.ReverseTrading,
		QuoteAsset:          settings.QuoteAsset,
		RetryAttempts:       settings.Retry.Attempts,
		RetryDelay:          settings.RetryDelay(),
		SymbolParams:        symbolParams,
	}, appLogger, exchangeClient, repo, repo, advisorClient, collector, sizer)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize lifecycle controller")
		log.Fatalf("FATAL: Failed to initialize lifecycle controller: %v", err)
	}

	monitor, err := app.NewThresholdMonitor(app.MonitorConfig{
		Interval:          settings.MonitorInterval(),
		TakeProfitPercent: settings.TakeProfitPercent,
		StopLossPercent:   settings.StopLossPercent,
		ErrorBackoff:      settings.MonitorErrorBackoff(),
		SymbolParams:      symbolParams,
	}, appLogger, exchangeClient, controller)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize threshold monitor")
		log.Fatalf("FATAL: Failed to initialize threshold monitor: %v", err)
	}
	controller.SetWatcher(monitor)
	appLogger.Info(context.Background(), "Lifecycle controller and threshold monitor initialized", map[string]interface{}{
		"symbols": settings.Symbols,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 9. Reconcile in-memory state with the exchange before accepting signals
	if err := controller.ReconcileState(ctx, settings.Symbols); err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to reconcile state with the exchange")
		log.Fatalf("FATAL: Failed to reconcile state with the exchange: %v", err)
	}

	// 10. Start background loops
	go func() {
		if err := monitor.Start(ctx); err != nil {
			appLogger.Error(ctx, err, "Threshold monitor exited with error")
		}
	}()

	reporter, err := app.NewStatusReporter(settings.StatusInterval(), appLogger, repo, controller, monitor)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize status reporter")
		log.Fatalf("FATAL: Failed to initialize status reporter: %v", err)
	}
	go func() {
		if err := reporter.Run(ctx); err != nil {
			appLogger.Error(ctx, err, "Status reporter exited with error")
		}
	}()

	// 11. Serve the webhook ingress until shutdown
	server, err := webhook.NewServer(webhook.ServerConfig{
		ListenAddr: settings.ListenAddr,
	}, appLogger, controller, repo)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize webhook server")
		log.Fatalf("FATAL: Failed to initialize webhook server: %v", err)
	}
	if err := server.Start(ctx); err != nil {
		appLogger.Error(ctx, err, "Webhook server exited with error")
		log.Fatalf("FATAL: Webhook server exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
