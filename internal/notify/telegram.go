package notify

import (
	"context"
	"fmt"

	"github.com/andresedu1996/agenda-backend/internal/scheduler"

	tgbot "github.com/go-telegram/bot"
	"github.com/rs/zerolog/log"
)

// TelegramSender delivers booking reminders over Telegram.
type TelegramSender struct {
	bot *tgbot.Bot
}

// NewTelegramSender creates a sender for the given bot token.
func NewTelegramSender(token string) (*TelegramSender, error) {
	b, err := tgbot.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &TelegramSender{bot: b}, nil
}

// Send delivers one reminder. Requesters without a chat id cannot be
// reached and are reported as an error.
func (s *TelegramSender) Send(ctx context.Context, r scheduler.Reminder) error {
	if r.ChatID == 0 {
		return fmt.Errorf("reminder for booking %s has no chat id", r.BookingID)
	}

	text := fmt.Sprintf("Reminder: your booking with %s on %s at %s is coming up.",
		r.ProviderName, r.Date, r.Slot)

	_, err := s.bot.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: r.ChatID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("failed to send telegram reminder: %w", err)
	}

	return nil
}

// NoopSender is used when no Telegram token is configured: reminders are
// logged and dropped.
type NoopSender struct{}

// Send logs the reminder instead of delivering it.
func (NoopSender) Send(ctx context.Context, r scheduler.Reminder) error {
	log.Info().
		Str("booking_id", r.BookingID).
		Str("date", r.Date).
		Str("slot", r.Slot).
		Msg("reminder due (no notification channel configured)")
	return nil
}
