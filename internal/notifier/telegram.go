package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Bot is the part of tgbotapi.BotAPI the notifier uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Level is the severity attached to an operator notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// TelegramNotifier sends operator messages to a single chat.
type TelegramNotifier struct {
	bot    Bot
	chatID int64
	log    *slog.Logger

	MaxRetries     int
	InitialBackoff time.Duration
}

// NewTelegramNotifier connects to the Bot API with optional proxy support.
func NewTelegramNotifier(botToken string, chatID int64, proxyURL string, log *slog.Logger) (*TelegramNotifier, error) {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	client := &http.Client{Timeout: 90 * time.Second, Transport: transport}

	bot, err := tgbotapi.NewBotAPIWithClient(botToken, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	log.Info("telegram bot connected", "username", bot.Self.UserName)
	return NewWithBot(bot, chatID, log), nil
}

// NewWithBot wraps an existing bot, mostly for tests.
func NewWithBot(bot Bot, chatID int64, log *slog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		bot:            bot,
		chatID:         chatID,
		log:            log,
		MaxRetries:     3,
		InitialBackoff: time.Second,
	}
}

// Send sends an HTML message to the configured chat.
func (t *TelegramNotifier) Send(text string) error {
	return t.sendTo(t.chatID, text)
}

func (t *TelegramNotifier) sendTo(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SendWithRetry sends a message with exponential backoff retry.
func (t *TelegramNotifier) SendWithRetry(ctx context.Context, text string) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = t.InitialBackoff
	eb.Multiplier = 2
	eb.RandomizationFactor = 0

	attempt := 0
	op := func() error {
		attempt++
		err := t.Send(text)
		if err != nil {
			t.log.Warn("telegram send failed", "attempt", attempt, "max", t.MaxRetries+1, "err", err)
		}
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(t.MaxRetries)), ctx)
	if err := backoff.Retry(op, b); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("all %d attempts exhausted: %w", attempt, err)
	}
	return nil
}

// Notify sends text tagged with level. Info messages are sent once, errors are retried.
func (t *TelegramNotifier) Notify(ctx context.Context, level Level, text string) error {
	switch level {
	case LevelError:
		return t.SendWithRetry(ctx, "❌ "+text)
	default:
		return t.Send("ℹ️ " + text)
	}
}
