package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresedu1996/agenda-backend/internal/booking"
	"github.com/andresedu1996/agenda-backend/internal/config"
	"github.com/andresedu1996/agenda-backend/internal/notify"
	"github.com/andresedu1996/agenda-backend/internal/observability"
	"github.com/andresedu1996/agenda-backend/internal/scheduler"
	"github.com/andresedu1996/agenda-backend/internal/scheduler/memory"
	"github.com/andresedu1996/agenda-backend/internal/server"
	"github.com/andresedu1996/agenda-backend/internal/storage/sqlite"

	"github.com/rs/zerolog/log"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger is not configured yet, fall back to the default output.
		log.Fatal().Err(err).Msg("failed to load config")
	}

	observability.InitLogger("agenda-backend", cfg.Environment)
	log.Info().Str("env", cfg.Environment).Msg("configuration loaded")

	storage, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}
	defer func() {
		if err := storage.Close(); err != nil {
			log.Error().Err(err).Msg("error closing storage")
		}
	}()

	log.Info().Str("path", cfg.Database.Path).Msg("storage initialized")

	// Reminders go out over Telegram when a token is configured.
	var sender scheduler.ReminderSender = notify.NoopSender{}
	if cfg.Telegram.Token != "" {
		telegramSender, err := notify.NewTelegramSender(cfg.Telegram.Token)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create telegram sender")
		}
		sender = telegramSender
		log.Info().Msg("telegram reminders enabled")
	}

	reminderScheduler := memory.NewMemoryScheduler(sender)
	defer reminderScheduler.Stop()

	svc := booking.NewService(storage, reminderScheduler, cfg.ReminderLead())

	// The in-memory scheduler loses its timers on restart.
	if err := svc.RescheduleReminders(context.Background()); err != nil {
		log.Warn().Err(err).Msg("failed to reschedule pending reminders")
	}

	srv := server.New(cfg, storage, svc, version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("shutdown signal received, starting graceful shutdown")
		cancel()
	}()

	if err := srv.Start(ctx); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server error")
	}

	log.Info().Msg("server stopped gracefully")
}
