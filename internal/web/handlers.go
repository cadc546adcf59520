package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/camuig/coin-trader/internal/remote"
	"github.com/camuig/coin-trader/internal/storage"
	"github.com/camuig/coin-trader/internal/trading"
	"github.com/camuig/coin-trader/internal/wallet"
)

type Status struct {
	Enabled         bool                    `json:"enabled"`
	Mode            string                  `json:"mode"`
	Exchange        string                  `json:"exchange"`
	Model           string                  `json:"model"`
	BaseCurrency    string                  `json:"base_currency"`
	QuoteCurrencies []string                `json:"quote_currencies"`
	ScreeningGap    string                  `json:"screening_gap"`
	BuyingGap       string                  `json:"buying_gap"`
	UpdatingGap     string                  `json:"updating_gap"`
	Positions       int                     `json:"positions"`
	Checking        int                     `json:"checking"`
	Account         trading.AccountSnapshot `json:"account"`
}

// PositionView is a held position with its current income.
type PositionView struct {
	*trading.Cryptocurrency
	Income float64 `json:"income"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	mode := "LIVE"
	switch {
	case s.config.IsPaper():
		mode = "PAPER"
	case s.config.IsSandbox():
		mode = "SANDBOX"
	}

	writeJSON(w, http.StatusOK, Status{
		Enabled:         s.settings.Enabled(),
		Mode:            mode,
		Exchange:        s.config.Exchange.Name,
		Model:           s.wallet.Model().ID(),
		BaseCurrency:    s.settings.BaseCurrency(),
		QuoteCurrencies: s.settings.QuoteCurrencies(),
		ScreeningGap:    s.settings.ScreeningGap().String(),
		BuyingGap:       s.settings.BuyingGap().String(),
		UpdatingGap:     s.settings.UpdatingGap().String(),
		Positions:       len(s.wallet.Positions()),
		Checking:        len(s.wallet.Checking()),
		Account:         s.wallet.Account(),
	})
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	positions := s.wallet.Positions()
	views := make([]PositionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, PositionView{Cryptocurrency: p, Income: p.Income()})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleChecking(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.wallet.Checking())
}

func (s *Server) handleCoins(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.wallet.Coins())
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.wallet.Account())
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	txs, err := s.repo.RecentTransactions(limit)
	if err != nil {
		s.logger.Error("load transactions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load transactions")
		return
	}
	if txs == nil {
		txs = []storage.TransactionRecord{}
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 4096))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	cmd, err := remote.ParseJSON(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.apply(w, cmd)
}

func (s *Server) handleTrader(w http.ResponseWriter, r *http.Request) {
	s.apply(w, remote.Command{Kind: remote.Kind(mux.Vars(r)["action"])})
}

func (s *Server) apply(w http.ResponseWriter, cmd remote.Command) {
	msg, err := s.applier.Apply(cmd)
	if err != nil {
		s.logger.Warn("web command rejected", "command", cmd.String(), "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Info("web command applied", "command", cmd.String())
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (s *Server) handleForceSell(w http.ResponseWriter, r *http.Request) {
	index := mux.Vars(r)["index"]
	if err := s.wallet.ForceSell(index); err != nil {
		if errors.Is(err, wallet.ErrNotHeld) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "sell scheduled for " + index})
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
