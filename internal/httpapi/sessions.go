package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"RhizaCore/internal/model"
	"RhizaCore/internal/session"
	"RhizaCore/internal/ton"
)

type loginRequest struct {
	UserID        int64  `json:"user_id"`
	WalletAddress string `json:"wallet_address"`
}

type visibilityRequest struct {
	State model.Visibility `json:"state"`
}

type earningsResponse struct {
	SessionID string  `json:"session_id"`
	Earnings  float64 `json:"earnings"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID < 0 {
		writeError(w, http.StatusBadRequest, "user_id must be positive")
		return
	}
	if req.WalletAddress != "" {
		if err := ton.ValidateAddress(req.WalletAddress); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	sess, err := s.opts.Sessions.Login(r.Context(), session.LoginRequest{
		UserID:        req.UserID,
		WalletAddress: req.WalletAddress,
	})
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Info(s.opts.Clock.Now()))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.opts.Sessions.List()})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.opts.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Info(s.opts.Clock.Now()))
}

func (s *Server) handleEarnings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	earnings, err := s.opts.Sessions.Earnings(id)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, earningsResponse{SessionID: id, Earnings: earnings})
}

func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.State != model.Visible && req.State != model.Hidden {
		writeError(w, http.StatusBadRequest, session.ErrInvalidVisibility.Error())
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.opts.Sessions.SetVisibility(r.Context(), id, req.State); err != nil {
		s.writeSessionError(w, err)
		return
	}
	sess, err := s.opts.Sessions.Get(id)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Info(s.opts.Clock.Now()))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Sessions.Logout(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.Result{Success: true})
}

func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidLogin), errors.Is(err, session.ErrInvalidVisibility),
		errors.Is(err, session.ErrWalletMismatch):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.log.Error("session operation failed", "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
	}
}
