package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/camuig/coin-trader/internal/config"
	"github.com/camuig/coin-trader/internal/logger"
	"github.com/camuig/coin-trader/internal/remote"
	"github.com/camuig/coin-trader/internal/trading"
)

func TestDisabledNotifierIsNoop(t *testing.T) {
	n := NewNotifier(&config.Config{}, logger.Discard())

	c := &trading.Cryptocurrency{Index: "ADA", Symbol: "ADAUSDT", QuoteAsset: "USDT"}
	n.NotifyBuy(trading.NewBuyTransaction(c, 30, 0.5, time.Now()), 0.5)
	n.NotifySell(trading.NewSellTransaction(c, 30, 0.47, -6, trading.SaleLoss, time.Now()), 0.47)
	n.NotifyError("test", errors.New("boom"))
	n.NotifyStatus("ok")

	done := make(chan struct{})
	go func() {
		n.Listen(context.Background(), remote.NewQueue())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Listen must return when the bot is disabled")
	}
}

func TestHandle(t *testing.T) {
	n := &Notifier{chatID: 42, logger: logger.Discard()}

	tests := []struct {
		name   string
		chatID int64
		text   string
		queued bool
	}{
		{"valid command", 42, "/interval 30s", true},
		{"other chat", 7, "/interval 30s", false},
		{"plain text", 42, "hello", false},
		{"invalid value", 42, "/interval 1s", false},
		{"unknown command", 42, "/status", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := remote.NewQueue()
			n.handle(&tgbotapi.Message{Chat: &tgbotapi.Chat{ID: tt.chatID}, Text: tt.text}, q)

			reqs := q.Poll()
			if (len(reqs) == 1) != tt.queued {
				t.Fatalf("queued %d requests, want queued=%v", len(reqs), tt.queued)
			}
			if tt.queued && (reqs[0].Source != "telegram" || reqs[0].Command.Kind != remote.SetInterval) {
				t.Errorf("unexpected request %+v", reqs[0])
			}
		})
	}
}
