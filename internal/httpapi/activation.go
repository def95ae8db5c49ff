package httpapi

import (
	"net/http"
	"strings"

	"RhizaCore/internal/model"
	"RhizaCore/internal/ton"
)

type activationRequest struct {
	UserID          int64   `json:"user_id"`
	TONAmount       float64 `json:"ton_amount"`
	TONPrice        float64 `json:"ton_price"`
	TransactionHash string  `json:"transaction_hash"`
	SenderAddress   string  `json:"sender_address"`
	ReceiverAddress string  `json:"receiver_address"`
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req activationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ReceiverAddress == "" {
		req.ReceiverAddress = s.opts.Receiver
	}
	switch {
	case req.UserID <= 0:
		writeError(w, http.StatusBadRequest, "user_id must be positive")
		return
	case req.TONAmount <= 0:
		writeError(w, http.StatusBadRequest, "ton_amount must be positive")
		return
	case req.TONPrice <= 0:
		writeError(w, http.StatusBadRequest, "ton_price must be positive")
		return
	case strings.TrimSpace(req.TransactionHash) == "":
		writeError(w, http.StatusBadRequest, "transaction_hash is required")
		return
	}
	if err := ton.ValidateAddress(req.SenderAddress); err != nil {
		writeError(w, http.StatusBadRequest, "sender_address: "+err.Error())
		return
	}
	if err := ton.ValidateAddress(req.ReceiverAddress); err != nil {
		writeError(w, http.StatusBadRequest, "receiver_address: "+err.Error())
		return
	}
	if !s.backendReady(w) {
		return
	}

	res := s.opts.Procedures.ProcessWalletActivation(r.Context(), model.ActivationRequest{
		UserID:          req.UserID,
		TONAmount:       req.TONAmount,
		TONPrice:        req.TONPrice,
		TransactionHash: req.TransactionHash,
		SenderAddress:   req.SenderAddress,
		ReceiverAddress: req.ReceiverAddress,
	})
	if res.Success {
		s.log.Info("wallet activated", "user_id", req.UserID, "activation_id", res.ActivationID, "rzc_awarded", res.RZCAwarded)
	}
	s.writeResult(w, res.Success, res.Error, res)
}

type autoActivateRequest struct {
	UserID    int64   `json:"user_id"`
	Reason    string  `json:"reason"`
	RZCAmount float64 `json:"rzc_amount"`
}

func (s *Server) handleAutoActivate(w http.ResponseWriter, r *http.Request) {
	var req autoActivateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id must be positive")
		return
	}
	if req.RZCAmount < 0 {
		writeError(w, http.StatusBadRequest, "rzc_amount must not be negative")
		return
	}
	if req.Reason == "" {
		req.Reason = "Admin activation"
	}
	if !s.backendReady(w) {
		return
	}
	res := s.opts.Procedures.AutoActivateUser(r.Context(), req.UserID, req.Reason, req.RZCAmount)
	s.writeResult(w, res.Success, res.Error, res)
}

func (s *Server) handleActivationStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt64(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.backendReady(w) {
		return
	}
	status, err := s.opts.Procedures.GetWalletActivationStatus(r.Context(), userID)
	if err != nil {
		s.log.Error("activation status", "user_id", userID, "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}
