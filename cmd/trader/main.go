package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gregtusar/fomo-trader/api"
	"github.com/gregtusar/fomo-trader/internal/config"
	"github.com/gregtusar/fomo-trader/pkg/fomo"
	"github.com/gregtusar/fomo-trader/pkg/risk"
	"github.com/gregtusar/fomo-trader/pkg/strategy"
	"github.com/gregtusar/fomo-trader/pkg/trader"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	symbol  string
	live    bool

	host      string
	port      int
	autostart bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fomo-trader",
		Short: "FOMO auto-trading bot",
		Long:  `A single-symbol momentum trading bot with stop-loss/take-profit risk exits and an HTTP control surface`,
		Run:   runTrader,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&symbol, "symbol", "", "trading symbol, e.g. BTC-USD")
	rootCmd.PersistentFlags().BoolVar(&live, "live", false, "enable live trading (default is dry-run)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the trading loop in the foreground",
		Run:   runTrader,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the control API; the loop is started with POST /start",
		Run:   runServer,
	}
	serveCmd.Flags().StringVar(&host, "host", "", "listen host (overrides server.host)")
	serveCmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.port)")
	serveCmd.Flags().BoolVar(&autostart, "autostart", false, "start the trading loop immediately")

	rootCmd.AddCommand(runCmd, serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runTrader(cmd *cobra.Command, args []string) {
	cfg, logger := setup()

	scheduler, stopStream := buildScheduler(cfg, logger)
	defer stopStream()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	scheduler.RunForever(ctx)
}

func runServer(cmd *cobra.Command, args []string) {
	cfg, logger := setup()
	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	scheduler, stopStream := buildScheduler(cfg, logger)
	defer stopStream()

	server := api.NewServer(scheduler, logger, cfg.Server.Host, cfg.Server.Port, cfg.Server.Token)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	if autostart {
		scheduler.Start()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Fatal("Control server failed")
		}
	case <-sigChan:
		logger.Info("Received shutdown signal")
	}

	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Control server shutdown failed")
	}

	logger.Info("FOMO trader stopped")
}

func setup() (*config.Config, *logrus.Logger) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(cfgFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if symbol != "" {
		cfg.Trading.Symbol = symbol
	}
	if live {
		cfg.Trading.DryRun = false
	}

	configureLogger(logger, cfg.Logging)

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}
	return cfg, logger
}

func configureLogger(logger *logrus.Logger, cfg config.LoggingConfig) {
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.WithError(err).Error("Invalid log level, using INFO")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logger.WithError(err).Error("Failed to open log file, logging to stderr")
			return
		}
		logger.SetOutput(f)
	}
}

// buildScheduler wires the market client, strategy, risk gate and engine. The returned
// func stops the ticker stream when one was started.
func buildScheduler(cfg *config.Config, logger *logrus.Logger) (*trader.Scheduler, func()) {
	auth, err := fomo.NewAuthenticator(
		fomo.AuthType(cfg.Fomo.AuthType),
		cfg.Fomo.APIKey,
		cfg.Fomo.APIKeyName,
		cfg.Fomo.PrivateKeyPEM,
	)
	if err != nil {
		logger.WithError(err).Fatal("Failed to configure FOMO API authentication")
	}

	var client fomo.Client = fomo.NewRESTClient(cfg.Fomo.BaseURL, auth, fomo.ClientOptions{
		Timeout:           cfg.Fomo.Timeout(),
		RequestsPerSecond: cfg.Fomo.RequestsPerSecond,
	})

	stopStream := func() {}
	if ws := cfg.Fomo.WebSocket; ws.Enabled {
		streamCtx, cancel := context.WithCancel(context.Background())
		stream := fomo.NewTickerStream(ws.URL, cfg.Trading.Symbol, ws.ReconnectDelay(), logger)
		go stream.Run(streamCtx)
		client = fomo.NewStreamingClient(client, stream, ws.MaxPriceAge())
		stopStream = cancel
	}

	signals, err := strategy.NewMomentum(cfg.Trading.ShortWindow, cfg.Trading.LongWindow)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create strategy")
	}

	gate := risk.NewGate(risk.Parameters{
		MaxPositionSize: cfg.Trading.MaxPositionSize,
		StopLossPct:     cfg.Trading.StopLossPct,
		TakeProfitPct:   cfg.Trading.TakeProfitPct,
	})

	engine := trader.NewEngine(client, signals, gate, trader.Config{
		Symbol:                cfg.Trading.Symbol,
		QuoteSize:             cfg.Trading.QuoteSize,
		Cooldown:              cfg.Trading.Cooldown(),
		DryRun:                cfg.Trading.DryRun,
		ObserveDuringCooldown: cfg.Trading.ObserveDuringCooldown,
	}, logger)

	return trader.NewScheduler(engine, cfg.Trading.PollInterval(), logger), stopStream
}
