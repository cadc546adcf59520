package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/camuig/coin-trader/internal/config"
	"github.com/camuig/coin-trader/internal/logger"
	"github.com/camuig/coin-trader/internal/trading"
)

type Notifier struct {
	bot      *tgbotapi.BotAPI
	chatID   int64
	enabled  bool
	commands bool
	logger   *logger.Logger
}

func NewNotifier(cfg *config.Config, log *logger.Logger) *Notifier {
	if !cfg.Telegram.Enabled {
		return &Notifier{enabled: false, logger: log}
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		log.Error("failed to create telegram bot", "error", err)
		return &Notifier{enabled: false, logger: log}
	}

	log.Info("telegram bot connected", "username", bot.Self.UserName)

	return &Notifier{
		bot:      bot,
		chatID:   cfg.Telegram.ChatID,
		enabled:  true,
		commands: cfg.Telegram.Commands,
		logger:   log,
	}
}

func (n *Notifier) NotifyBuy(tx trading.Transaction, price float64) {
	msg := fmt.Sprintf("🟢 *BUY* %s\nЦена: %s %s\nКоличество: %s\nСумма: %.2f %s",
		tx.Symbol, formatFloat(price), tx.QuoteAsset, formatFloat(tx.Quantity), tx.Notional, tx.QuoteAsset)
	n.send(msg)
}

func (n *Notifier) NotifySell(tx trading.Transaction, price float64) {
	emoji := "🔴"
	sale := "-"
	if tx.Sale != nil {
		sale = string(*tx.Sale)
		if *tx.Sale == trading.SaleGain {
			emoji = "💰"
		}
	}
	var income float64
	if tx.Income != nil {
		income = *tx.Income
	}
	msg := fmt.Sprintf("%s *SELL* %s (%s)\nЦена: %s %s\nКоличество: %s\nДоход: %+.2f%%",
		emoji, tx.Symbol, sale, formatFloat(price), tx.QuoteAsset, formatFloat(tx.Quantity), income)
	n.send(msg)
}

func (n *Notifier) NotifyError(context string, err error) {
	msg := fmt.Sprintf("⚠️ *Ошибка* [%s]\n%v", context, err)
	n.send(msg)
}

func (n *Notifier) NotifyStatus(message string) {
	n.send(message)
}

func (n *Notifier) send(text string) {
	if !n.enabled {
		return
	}

	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Error("send telegram message", "error", err)
	}
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%.8g", v)
}
