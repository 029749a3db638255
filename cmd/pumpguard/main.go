// Command pumpguard runs the full PumpGuard pipeline: chain client, log
// stream, token detector, rug detector, whale tracker, the C8 linker wiring
// the two, and the read-only dashboard. Grounded on
// adred-codev-ws_poc/ws/main.go's automaxprocs + signal-handling shape.
package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/pumpguard-dev/pumpguard/internal/alerts"
	"github.com/pumpguard-dev/pumpguard/internal/chain"
	"github.com/pumpguard-dev/pumpguard/internal/config"
	"github.com/pumpguard-dev/pumpguard/internal/dashboard"
	"github.com/pumpguard-dev/pumpguard/internal/detector"
	"github.com/pumpguard-dev/pumpguard/internal/linker"
	"github.com/pumpguard-dev/pumpguard/internal/logging"
	"github.com/pumpguard-dev/pumpguard/internal/metrics"
	"github.com/pumpguard-dev/pumpguard/internal/rug"
	"github.com/pumpguard-dev/pumpguard/internal/store"
	"github.com/pumpguard-dev/pumpguard/internal/stream"
	"github.com/pumpguard-dev/pumpguard/internal/whale"
)

func main() {
	bootLogger := logging.New(logging.Options{Level: "info", Format: "console"})

	cfg, err := config.Load(&bootLogger)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger.Info().Int("gomaxprocs", runtime.GOMAXPROCS(0)).Msg("pumpguard starting")
	cfg.Print(&logger)

	reg := metrics.NewRegistry()

	db, err := store.Open(cfg.DatabasePath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	chainClient := chain.NewClient(cfg.SolanaRPCURL, logger, reg)
	logStream := stream.NewClient(cfg.SolanaWSURL, cfg.PumpProgramID, logger, reg)

	alertBus := alerts.New(
		alerts.WebhookConfig{Base: cfg.TelegramAPIBase, Token: cfg.TelegramBotToken, ChatID: cfg.TelegramChatID},
		alerts.NATSConfig{URL: cfg.NATSURL, Subject: cfg.NATSSubject},
		logger, reg,
	)
	defer alertBus.Close()

	tokenDetector := detector.New(chainClient, db, alertBus, reg, logger,
		cfg.MinLiquiditySOL, cfg.MaxLiquiditySOL, cfg.MaxAlertsPerMinute, cfg.AlertNewTokens())

	rugThresholds := rug.DefaultThresholds()
	rugThresholds.LPRemovalPercent = cfg.LPRemovalThresholdPercent
	rugThresholds.SuspiciousSellPercent = cfg.SuspiciousSellPercent
	rugThresholds.MaxDevSellPercent = cfg.MaxDevSellPercent
	rugThresholds.MinTimeBetweenSells = time.Duration(cfg.MinTimeBetweenSellsMS) * time.Millisecond
	rugThresholds.DevWalletSellAlert = cfg.DevWalletSellAlert()
	rugThresholds.PreserveZeroTokenAmountQuirk = cfg.PreserveZeroTokenAmountQuirk
	rugDetector := rug.New(chainClient, cfg.PumpProgramID, db, alertBus, reg, logger, rugThresholds)

	whaleThresholds := whale.DefaultThresholds()
	whaleThresholds.WhaleThresholdSOL = cfg.WhaleThresholdSOL
	whaleThresholds.AlertOnAccumulation = cfg.AlertOnAccumulation()
	whaleThresholds.AlertOnDump = cfg.AlertOnDump()
	whaleThresholds.MinTransactionsForPattern = cfg.MinTransactionsForPattern
	whaleThresholds.AccumulationWindow = time.Duration(cfg.AccumulationWindowMS) * time.Millisecond
	whaleTracker := whale.New(chainClient, db, alertBus, reg, logger, whaleThresholds)
	for _, addr := range cfg.KnownWhales {
		whaleTracker.WatchWallet(addr, "known_whale")
	}

	// C8's ordering contract: the linker must subscribe before the token
	// detector's Start ever runs, so New happens here, ahead of any Start
	// call below.
	tokenLinker := linker.New(tokenDetector, rugDetector, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go tokenLinker.Run(ctx)
	go tokenDetector.Start(ctx, logStream)
	go rugDetector.Start(ctx, logStream)
	go whaleTracker.Start(ctx, logStream)
	go logStream.Run(ctx)

	dash := dashboard.New(
		dashboard.Config{
			Port:          cfg.DashboardPort,
			JWTSecret:     cfg.DashboardAuthSecret,
			TokenDuration: 0,
		},
		tokenDetector, rugDetector, whaleTracker, alertBus, db, reg,
		[]dashboard.AnalyzerControl{
			{Name: "token_detector", IsRunning: tokenDetector.IsRunning, Stop: tokenDetector.Stop,
				Start: func() { go tokenDetector.Start(ctx, logStream) }},
			{Name: "rug_detector", IsRunning: rugDetector.IsRunning, Stop: rugDetector.Stop,
				Start: func() { go rugDetector.Start(ctx, logStream) }},
			{Name: "whale_tracker", IsRunning: whaleTracker.IsRunning, Stop: whaleTracker.Stop,
				Start: func() { go whaleTracker.Start(ctx, logStream) }},
		},
		logger,
	)

	// The dashboard server is the terminal blocking call of the process;
	// it returns once ctx is cancelled (signal received) and the HTTP
	// server has finished its graceful shutdown.
	if err := dash.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("dashboard server exited with error")
		os.Exit(1)
	}

	logger.Info().Msg("pumpguard shut down cleanly")
}
