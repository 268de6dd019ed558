// Command receiptbot runs the Telegram bot that verifies Base transactions
// and issues PDF receipts for them.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mbd888/basemcp/internal/chains"
	"github.com/mbd888/basemcp/internal/config"
	"github.com/mbd888/basemcp/internal/health"
	"github.com/mbd888/basemcp/internal/logging"
	"github.com/mbd888/basemcp/internal/receiptbot"
	"github.com/mbd888/basemcp/internal/receipts"
	"github.com/mbd888/basemcp/internal/server"
	"github.com/mbd888/basemcp/internal/traces"
	"github.com/mbd888/basemcp/internal/txstatus"
	"github.com/mbd888/basemcp/internal/watcher"
	"github.com/mbd888/basemcp/migrations"
)

// Version is set by ldflags.
var Version = "dev"

var (
	serveHTTP    bool
	pollTimeout  int
	watchPayment bool
)

var rootCmd = &cobra.Command{
	Use:          "receiptbot",
	Short:        "Telegram bot issuing PDF receipts for Base transactions",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := rootCmd.Flags()
	f.BoolVar(&serveHTTP, "http", false, "also serve /health, /metrics and receipt verification on PORT")
	f.IntVar(&pollTimeout, "poll-timeout", 60, "Telegram long-poll timeout in seconds")
	f.BoolVar(&watchPayment, "watch-payments", true, "notify chats of incoming USDC on their receive address")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadBot()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTraces, err := traces.Init(ctx, "basemcp-receiptbot", Version, cfg.OTLPEndpoint, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() { _ = shutdownTraces(context.Background()) }()

	rpc, err := ethclient.DialContext(ctx, cfg.BaseRPCURL)
	if err != nil {
		return fmt.Errorf("dial %s: %w", cfg.BaseRPCURL, err)
	}
	defer rpc.Close()

	store, closeStore, err := receiptStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	svc := receipts.NewService(store, receipts.NewSigner(cfg.ReceiptHMACSecret), filepath.Join(cfg.ReceiptDataDir, "receipts"))

	settings, err := receiptbot.NewSettingsStore(cfg.ReceiptDataDir)
	if err != nil {
		return err
	}

	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	logger.Info("telegram bot authorized", "username", api.Self.UserName, "version", Version)

	bot := receiptbot.New(receiptbot.Config{
		API:      api,
		Checker:  txstatus.New(rpc, chains.BaseMainnet),
		Receipts: svc,
		Settings: settings,
		Logger:   logger,
	})

	g, gctx := errgroup.WithContext(ctx)

	if watchPayment {
		pw := watcher.NewPaymentWatcher(rpc, watcher.PaymentConfig{
			USDC:         common.HexToAddress(config.DefaultUSDCContract),
			PollInterval: 15 * time.Second,
		}, bot, logger)
		if err := bot.AttachWatcher(pw); err != nil {
			return fmt.Errorf("restore payment subscriptions: %w", err)
		}
		if err := pw.Start(gctx); err != nil {
			return err
		}
		defer pw.Stop()
	}

	if serveHTTP {
		srv := server.New(cfg,
			server.WithLogger(logger),
			server.WithReceipts(svc),
			server.WithHealthCheck("rpc", health.RPCChecker("rpc", rpc)),
		)
		g.Go(func() error { return srv.Run(gctx) })
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := api.GetUpdatesChan(u)
	g.Go(func() error {
		<-gctx.Done()
		api.StopReceivingUpdates()
		return nil
	})
	g.Go(func() error {
		bot.Run(gctx, updates)
		return nil
	})

	logger.Info("receipt bot running", "data_dir", cfg.ReceiptDataDir, "http", serveHTTP)
	err = g.Wait()
	logger.Info("receipt bot stopped")
	return err
}

// receiptStore indexes receipts in Postgres when DATABASE_URL is set and in
// a JSON file beside the PDFs otherwise.
func receiptStore(ctx context.Context, cfg *config.Config) (receipts.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		fs, err := receipts.NewFileStore(filepath.Join(cfg.ReceiptDataDir, "receipts"))
		return fs, func() {}, err
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := migrations.Up(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return receipts.NewPostgresStore(db), func() { _ = db.Close() }, nil
}
