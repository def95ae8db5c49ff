package notifier

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// CommandHandler answers a bot command. command has no leading slash; an empty reply sends nothing.
type CommandHandler func(ctx context.Context, command, args string) string

// StartPolling long-polls for bot commands until ctx is cancelled.
func (t *TelegramNotifier) StartPolling(ctx context.Context, handler CommandHandler) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)
	defer t.bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			t.log.Info("telegram polling stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			t.handleUpdate(ctx, update, handler)
		}
	}
}

func (t *TelegramNotifier) handleUpdate(ctx context.Context, update tgbotapi.Update, handler CommandHandler) {
	msg := update.Message
	if msg == nil || msg.Text == "" {
		return
	}

	var reply string
	if msg.IsCommand() {
		t.log.Info("received command", "command", msg.Command(), "chat_id", msg.Chat.ID)
		reply = handler(ctx, msg.Command(), strings.TrimSpace(msg.CommandArguments()))
	} else {
		reply = "ℹ️ Use /help to list commands"
	}
	if reply == "" {
		return
	}
	if err := t.sendTo(msg.Chat.ID, reply); err != nil {
		t.log.Error("send reply failed", "err", err)
	}
}
