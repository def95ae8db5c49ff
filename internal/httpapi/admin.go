package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"RhizaCore/internal/model"
)

type caller struct {
	UserID     int64
	TelegramID int64
}

type callerKey struct{}

func callerFrom(ctx context.Context) caller {
	c, _ := ctx.Value(callerKey{}).(caller)
	return c
}

func parseCaller(r *http.Request) (caller, bool) {
	var c caller
	var err error
	if v := r.Header.Get(HeaderUserID); v != "" {
		if c.UserID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return c, false
		}
	}
	if v := r.Header.Get(HeaderTelegramID); v != "" {
		if c.TelegramID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return c, false
		}
	}
	return c, true
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return s.requireLevel(next, func(ctx context.Context, c caller) bool {
		return s.opts.Authorizer.Check(ctx, c.UserID, c.TelegramID).IsAdmin
	})
}

func (s *Server) requireSuper(next http.Handler) http.Handler {
	return s.requireLevel(next, func(ctx context.Context, c caller) bool {
		return s.opts.Authorizer.IsSuper(ctx, c.UserID, c.TelegramID)
	})
}

func (s *Server) requireLevel(next http.Handler, allowed func(context.Context, caller) bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := parseCaller(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid caller headers")
			return
		}
		if c.UserID == 0 && c.TelegramID == 0 {
			writeError(w, http.StatusUnauthorized, "caller identity required")
			return
		}
		if !allowed(r.Context(), c) {
			writeError(w, http.StatusForbidden, "insufficient admin permissions")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, c)))
	})
}

func (s *Server) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := queryInt64(r, "user_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	telegramID, err := queryInt64(r, "telegram_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Authorizer.Check(r.Context(), userID, telegramID))
}

type initializeAdminRequest struct {
	UserID     int64            `json:"user_id"`
	AdminLevel model.AdminLevel `json:"admin_level"`
}

func (s *Server) handleInitializeAdmin(w http.ResponseWriter, r *http.Request) {
	var req initializeAdminRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id must be positive")
		return
	}
	if req.AdminLevel == "" {
		req.AdminLevel = model.AdminSuper
	}
	if !validLevel(req.AdminLevel) {
		writeError(w, http.StatusBadRequest, "unknown admin_level")
		return
	}
	if !s.backendReady(w) {
		return
	}
	res := s.opts.Procedures.InitializeAdminSystem(r.Context(), req.UserID, req.AdminLevel)
	s.writeResult(w, res.Success, res.Error, res)
}

type addAdminRequest struct {
	UserID      int64            `json:"user_id"`
	AdminLevel  model.AdminLevel `json:"admin_level"`
	Permissions []string         `json:"permissions"`
}

func (s *Server) handleAddAdmin(w http.ResponseWriter, r *http.Request) {
	var req addAdminRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id must be positive")
		return
	}
	if !validLevel(req.AdminLevel) {
		writeError(w, http.StatusBadRequest, "unknown admin_level")
		return
	}
	if req.Permissions == nil {
		req.Permissions = []string{}
	}
	if !s.backendReady(w) {
		return
	}
	c := callerFrom(r.Context())
	res := s.opts.Procedures.AddAdminUser(r.Context(), req.UserID, req.AdminLevel, req.Permissions, c.UserID)
	s.writeResult(w, res.Success, res.Error, res)
}

func (s *Server) handleRemoveAdmin(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt64(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if userID == callerFrom(r.Context()).UserID {
		writeError(w, http.StatusBadRequest, "cannot remove yourself")
		return
	}
	if !s.backendReady(w) {
		return
	}
	res := s.opts.Procedures.RemoveAdminUser(r.Context(), userID)
	s.writeResult(w, res.Success, res.Error, res)
}

func (s *Server) handleListAdmins(w http.ResponseWriter, r *http.Request) {
	if !s.backendReady(w) {
		return
	}
	admins, err := s.opts.Procedures.GetAdminUsers(r.Context())
	if err != nil {
		s.log.Error("list admin users", "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if admins == nil {
		admins = []model.AdminUser{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"admins": admins})
}

func validLevel(l model.AdminLevel) bool {
	switch l {
	case model.AdminSuper, model.AdminRegular, model.AdminModerator:
		return true
	}
	return false
}

func (s *Server) backendReady(w http.ResponseWriter) bool {
	if s.opts.Procedures == nil {
		writeError(w, http.StatusServiceUnavailable, errBackendDisabled.Error())
		return false
	}
	return true
}

// writeResult sends a procedure result, mapping an unsuccessful one to 502.
func (s *Server) writeResult(w http.ResponseWriter, success bool, errMsg string, v any) {
	if !success {
		if errMsg == "" {
			errMsg = "backend call failed"
		}
		writeError(w, http.StatusBadGateway, errMsg)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
