// Package notify delivers newly discovered episodes to a Telegram chat.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"podfinder/internal/report"
	"podfinder/internal/search"
)

// MaxMessageLength is the Telegram limit for a single text message.
const MaxMessageLength = 4096

const sendPause = 50 * time.Millisecond

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram sends run summaries to one chat.
type Telegram struct {
	api    telegramAPI
	chatID int64
	log    *slog.Logger
	pause  time.Duration
}

// NewTelegram creates a notifier for the given bot token and chat.
func NewTelegram(token string, chatID int64, log *slog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return newTelegram(api, chatID, log), nil
}

func newTelegram(api telegramAPI, chatID int64, log *slog.Logger) *Telegram {
	return &Telegram{api: api, chatID: chatID, log: log, pause: sendPause}
}

// SendMessage sends a text message to the given chat.
func (t *Telegram) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("send message to %d: %w", chatID, err)
	}
	return nil
}

// Notify announces the new episodes of a run. Nothing is sent for the first
// run of a query or when the run found nothing new.
func (t *Telegram) Notify(ctx context.Context, s search.Summary) error {
	if s.PreviousCount == 0 || len(s.NewEpisodes) == 0 {
		return nil
	}

	var errs []error
	for i, text := range FormatNotification(s) {
		if i > 0 {
			// Telegram allows about 20 messages per second per bot.
			if err := wait(ctx, t.pause); err != nil {
				return err
			}
		}
		if err := t.SendMessage(t.chatID, text); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	t.log.Info("sent notification", "query_id", s.QueryID, "term", s.Term, "count", len(s.NewEpisodes))
	return nil
}

// FormatNotification renders the new episodes of a run as one or more
// messages, each within MaxMessageLength.
func FormatNotification(s search.Summary) []string {
	var (
		out []string
		b   strings.Builder
	)
	fmt.Fprintf(&b, "%d new episodes for '%s':\n", len(s.NewEpisodes), s.Term)

	for _, ep := range s.NewEpisodes {
		line := clip("- "+report.FormatEpisode(ep), MaxMessageLength-1) + "\n"
		if utf8.RuneCountInString(b.String())+utf8.RuneCountInString(line) > MaxMessageLength {
			out = append(out, strings.TrimRight(b.String(), "\n"))
			b.Reset()
		}
		b.WriteString(line)
	}
	if b.Len() > 0 {
		out = append(out, strings.TrimRight(b.String(), "\n"))
	}
	return out
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
