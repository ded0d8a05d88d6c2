package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"notification_reconciler/internal/app"
	"notification_reconciler/internal/domain/notification"
	"notification_reconciler/internal/domain/recipient"
	"notification_reconciler/internal/infra/config"
	idb "notification_reconciler/internal/infra/database"
	"notification_reconciler/internal/infra/kv"
	"notification_reconciler/internal/infra/logger"
	"notification_reconciler/internal/infra/metrics"
	"notification_reconciler/internal/infra/opsserver"
	"notification_reconciler/internal/infra/realtime"
	"notification_reconciler/internal/infra/scheduler"
	"notification_reconciler/internal/infra/telegram"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/telebot.v3"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start a notification session for the configured recipient",
		Long: `Start the polling and realtime sources for RECIPIENT_USER_ID and deliver
notifications to the recipient's Telegram chat until interrupted.

Required: DATABASE_URL, TELEGRAM_TOKEN, RECIPIENT_USER_ID.`,
		RunE: runNotifier,
	}
}

func runNotifier(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("could not load application configuration: %w", err)
	}
	if err := cfg.ValidateForRun(); err != nil {
		return err
	}
	logger.Init(cfg)
	mainLogger := logger.Component("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mainLogger.WithFields(logrus.Fields{
		"environment":   cfg.Environment,
		"recipient_id":  cfg.RecipientUserID,
		"poll_interval": cfg.PollInterval.String(),
		"grace_window":  cfg.GraceWindow.String(),
		"kv_driver":     cfg.KVDriver,
	}).Info("Configuration loaded")

	db, err := idb.NewPostgresConnection(ctx, cfg.DatabaseURL, idb.PoolSettings{MaxOpenConns: cfg.DBMaxOpenConns})
	if err != nil {
		return fmt.Errorf("could not connect to database: %w", err)
	}
	defer db.Close()
	if err := idb.InitSchema(ctx, db); err != nil {
		return fmt.Errorf("could not initialize schema: %w", err)
	}
	mainLogger.Info("Database connection established and schema ready")

	store, err := openKV(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	feedRepo := idb.NewPostgresFeedRepository(db)
	recipientRepo := idb.NewPostgresRecipientRepository(db)
	historyRepo := idb.NewPostgresHistoryRepository(db)

	access := app.NewAccessService(recipientRepo, cfg.RecipientUserID)
	rcpt, err := access.Recipient(ctx)
	if err != nil {
		return err
	}

	bot, err := telebot.NewBot(telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) {
			entry := logger.Component("telebot").WithError(err)
			if c != nil && c.Chat() != nil {
				entry = entry.WithField("chat_id", c.Chat().ID)
			}
			entry.Error("Telegram handler error")
		},
	})
	if err != nil {
		return fmt.Errorf("could not create Telegram bot: %w", err)
	}
	sender := telegram.NewBotSender(bot)

	dedup := app.NewDedupStore(ctx, store, cfg.DedupMaxEntries, logger.Component("dedup"))
	prefsStore := app.NewPreferencesStore(store)
	prefs := app.NewPreferencesService(prefsStore)

	poller := scheduler.NewPoller(feedRepo, cfg.PollInterval, logger.Component("poller"))
	listener := realtime.NewSource(
		realtime.PQListenerFactory(cfg.DatabaseURL, cfg.RealtimeMinReconnect, cfg.RealtimeMaxReconnect),
		logger.Component("realtime"),
	)
	listener.SetReconnectHook(poller.TriggerNow)

	recorder := metrics.NewRecorder()
	sessions := app.NewSessionManager(
		dedup,
		prefsStore,
		func(r *recipient.Recipient) notification.Sink {
			return telegram.NewDeliverySink(sender, historyRepo, *r, float64(cfg.DeliveryRatePerSec), logger.Component("sink"))
		},
		[]app.CandidateSource{poller, listener},
		app.SessionSettings{
			GraceWindow:  cfg.GraceWindow,
			PollInterval: cfg.PollInterval,
		},
		logger.Component("session"),
	)
	sessions.SetRecorder(recorder)

	handlers := telegram.NewHandlers(access, prefs, app.NewScreenNavigator(feedRepo), logger.Component("telegram"))
	handlers.Register(ctx, bot)

	var ops *opsserver.Server
	if cfg.OpsAddr != "" {
		ops = opsserver.NewServer(cfg.OpsAddr, sessions, recorder.Handler(), logger.Component("ops"))
		ops.Start()
	}

	if _, err := sessions.Start(ctx, *rcpt); err != nil {
		return fmt.Errorf("could not start session: %w", err)
	}
	go bot.Start()
	mainLogger.Info("Application setup complete; waiting for events")

	<-ctx.Done()
	mainLogger.Info("Shutting down application...")

	if err := sessions.Stop(); err != nil {
		mainLogger.WithError(err).Warn("No session to stop")
	}
	bot.Stop()
	if ops != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ops.Shutdown(shutdownCtx); err != nil {
			mainLogger.WithError(err).Warn("Ops server shutdown failed")
		}
	}
	mainLogger.Info("Application shut down gracefully")
	return nil
}

func openKV(cfg *config.AppConfig) (notification.KV, error) {
	store, err := kv.Open(kv.Config{
		Driver:   cfg.KVDriver,
		Path:     cfg.KVPath,
		RedisURL: cfg.RedisURL,
	})
	if err != nil {
		return nil, fmt.Errorf("could not open %s key-value store: %w", cfg.KVDriver, err)
	}
	return store, nil
}

// stderrLogger is used by the short-lived subcommands.
func stderrLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.WarnLevel)
	return logrus.NewEntry(l)
}
