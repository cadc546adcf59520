package remote

import (
	"time"

	"github.com/camuig/coin-trader/internal/trading"
)

// Event types pushed to sync clients.
const (
	EventChecking     = "checking"
	EventWalletUpdate = "wallet_update"
	EventPrices       = "prices"
	EventSale         = "sale"
	EventReply        = "reply"
)

// Event is the envelope of every outgoing message.
type Event struct {
	Type string      `json:"type"`
	Time time.Time   `json:"time"`
	Data interface{} `json:"data"`
}

type walletUpdate struct {
	Entry       *trading.Cryptocurrency `json:"entry"`
	Transaction trading.Transaction     `json:"transaction"`
}

type saleNotice struct {
	Entry       *trading.Cryptocurrency `json:"entry"`
	Transaction trading.Transaction     `json:"transaction"`
	Account     trading.AccountSnapshot `json:"account"`
}

type reply struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func (h *Hub) PublishChecking(list []*trading.Cryptocurrency) {
	h.Broadcast(&Event{Type: EventChecking, Time: time.Now(), Data: list})
}

func (h *Hub) PublishWalletUpdate(entry *trading.Cryptocurrency, tx trading.Transaction) {
	h.Broadcast(&Event{Type: EventWalletUpdate, Time: time.Now(), Data: walletUpdate{entry, tx}})
}

// PublishPriceDeltas sends the percent change of every held symbol since the
// previous update cycle.
func (h *Hub) PublishPriceDeltas(deltas map[string]float64) {
	if len(deltas) == 0 {
		return
	}
	h.Broadcast(&Event{Type: EventPrices, Time: time.Now(), Data: deltas})
}

func (h *Hub) PublishSale(entry *trading.Cryptocurrency, tx trading.Transaction, account trading.AccountSnapshot) {
	h.Broadcast(&Event{Type: EventSale, Time: time.Now(), Data: saleNotice{entry, tx, account}})
}
