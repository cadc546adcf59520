package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/camuig/coin-trader/internal/remote"
)

// Listen feeds chat commands from the configured chat into the remote
// command queue until ctx is done. It returns immediately when the bot is
// disabled or commands are turned off.
func (n *Notifier) Listen(ctx context.Context, queue *remote.Queue) {
	if !n.enabled || !n.commands {
		return
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := n.bot.GetUpdatesChan(u)
	defer n.bot.StopReceivingUpdates()

	n.logger.Info("telegram command listener started")

	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			if upd.Message != nil {
				n.handle(upd.Message, queue)
			}
		}
	}
}

func (n *Notifier) handle(msg *tgbotapi.Message, queue *remote.Queue) {
	if msg.Chat == nil || msg.Chat.ID != n.chatID {
		return
	}
	if !strings.HasPrefix(msg.Text, "/") {
		return
	}

	cmd, err := remote.ParseText(msg.Text)
	if err != nil {
		n.logger.Warn("invalid telegram command", "text", cmd.String(), "error", err)
		n.send("❌ " + err.Error())
		return
	}

	reply := func(ok bool, message string) {
		if ok {
			n.send("✅ " + message)
			return
		}
		n.send("❌ " + message)
	}
	if !queue.Push(remote.Request{Command: cmd, Source: "telegram", Reply: reply}) {
		n.send("❌ command queue is full")
	}
}
