package httpapi

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"RhizaCore/internal/notifier"
	"RhizaCore/internal/ton"
)

func (s *Server) handleTONBalance(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if err := ton.ValidateAddress(address); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.opts.TON == nil {
		writeError(w, http.StatusServiceUnavailable, "ton api is not configured")
		return
	}
	acc, err := s.opts.TON.Balance(r.Context(), address)
	if err != nil {
		s.writeTONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (s *Server) handleJettons(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if err := ton.ValidateAddress(address); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.opts.TON == nil {
		writeError(w, http.StatusServiceUnavailable, "ton api is not configured")
		return
	}
	jettons, err := s.opts.TON.Jettons(r.Context(), address)
	if err != nil {
		s.writeTONError(w, err)
		return
	}
	if jettons == nil {
		jettons = []ton.JettonBalance{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"balances": jettons})
}

func (s *Server) writeTONError(w http.ResponseWriter, err error) {
	var apiErr *ton.APIError
	switch {
	case errors.Is(err, ton.ErrInvalidAddress):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound:
		writeError(w, http.StatusNotFound, "account not found")
	default:
		s.log.Error("ton api call failed", "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

type transferRequest struct {
	To      string `json:"to"`
	Amount  string `json:"amount"` // TON, decimal string
	Payload string `json:"payload"`
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.To == "" {
		req.To = s.opts.Receiver
	}
	amount, err := ton.ParseTON(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var payload []byte
	if req.Payload != "" {
		if payload, err = base64.StdEncoding.DecodeString(req.Payload); err != nil {
			writeError(w, http.StatusBadRequest, "payload must be base64")
			return
		}
	}
	tx, err := ton.NewTransfer(s.opts.Clock.Now(), s.opts.TransferTTL, req.To, amount, payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

type walletErrorRequest struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	UserID  int64  `json:"user_id"`
}

type walletErrorResponse struct {
	Kind    string `json:"kind"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// handleWalletError classifies a wallet bridge failure reported by the client and
// forwards non-cancellation errors to the operator chat.
func (s *Server) handleWalletError(w http.ResponseWriter, r *http.Request) {
	var req walletErrorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	we := ton.FromBridge(req.Code, req.Message)
	level := ton.NotifyLevel(we.Kind)

	s.log.Info("wallet error reported", "user_id", req.UserID, "kind", we.Kind.String(), "code", req.Code)
	if s.opts.Notifier != nil && level == string(notifier.LevelError) {
		if err := s.opts.Notifier.Notify(r.Context(), notifier.LevelError, we.Error()); err != nil {
			s.log.Warn("forward wallet error", "err", err)
		}
	}
	writeJSON(w, http.StatusOK, walletErrorResponse{Kind: we.Kind.String(), Level: level, Message: we.Error()})
}
