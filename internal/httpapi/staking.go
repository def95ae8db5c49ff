package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"RhizaCore/internal/model"
)

type lockView struct {
	model.StakingLock
	model.LockRemaining
}

type stakeRequest struct {
	LockYears int     `json:"lock_years"`
	APYRate   float64 `json:"apy_rate"`
}

type unstakeRequest struct {
	LockID string `json:"lock_id"`
}

// requireSelf admits only the caller whose X-User-ID matches the userID path parameter.
func (s *Server) requireSelf(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := pathInt64(r, "userID")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		c, ok := parseCaller(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid caller headers")
			return
		}
		if c.UserID == 0 {
			writeError(w, http.StatusUnauthorized, "caller identity required")
			return
		}
		if c.UserID != userID {
			writeError(w, http.StatusForbidden, "cannot act on another user's stake")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStakingSummary(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt64(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.backendReady(w) {
		return
	}
	summary, err := s.opts.Procedures.GetUserStakingLocksSummary(r.Context(), userID)
	if err != nil {
		s.log.Error("staking summary", "user_id", userID, "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt64(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req stakeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.LockYears <= 0 {
		writeError(w, http.StatusBadRequest, "lock_years must be positive")
		return
	}
	if req.APYRate <= 0 {
		writeError(w, http.StatusBadRequest, "apy_rate must be positive")
		return
	}
	if !s.backendReady(w) {
		return
	}
	res := s.opts.Procedures.StakeTokensWithLock(r.Context(), userID, req.LockYears, req.APYRate)
	if res.Success {
		s.log.Info("tokens staked", "user_id", userID, "lock_id", res.LockID, "amount", res.StakedAmount, "years", res.LockPeriodYears)
	}
	s.writeResult(w, res.Success, res.Error, res)
}

// handleUnstake answers 409 with the unlock date when the lock has not expired.
func (s *Server) handleUnstake(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt64(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req unstakeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.LockID) == "" {
		writeError(w, http.StatusBadRequest, "lock_id is required")
		return
	}
	if !s.backendReady(w) {
		return
	}
	res := s.opts.Procedures.UnstakeTokens(r.Context(), userID, req.LockID)
	if !res.Success && res.UnlockDate != "" {
		writeJSON(w, http.StatusConflict, res)
		return
	}
	if res.Success {
		s.log.Info("tokens unstaked", "user_id", userID, "lock_id", res.LockID, "amount", res.UnstakedAmount)
	}
	s.writeResult(w, res.Success, res.Error, res)
}

func (s *Server) handleStakingLocks(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt64(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.backendReady(w) {
		return
	}
	locks, err := s.opts.Procedures.GetUserStakingLocks(r.Context(), userID)
	if err != nil {
		s.log.Error("staking locks", "user_id", userID, "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	now := s.opts.Clock.Now()
	views := make([]lockView, 0, len(locks))
	for _, l := range locks {
		v := lockView{StakingLock: l}
		if unlock, err := model.ParseTimestamp(l.UnlockDate); err == nil {
			v.LockRemaining = model.RemainingUntil(unlock, now)
		} else {
			s.log.Warn("unparsable unlock date", "lock_id", l.ID, "unlock_date", l.UnlockDate)
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"locks": views})
}

func (s *Server) handleCanUnstake(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt64(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := strconv.ParseFloat(r.URL.Query().Get("amount"), 64)
	if err != nil || amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be a positive number")
		return
	}
	if !s.backendReady(w) {
		return
	}
	ok, err := s.opts.Procedures.CanUnstake(r.Context(), userID, amount)
	if err != nil {
		s.log.Error("can unstake", "user_id", userID, "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"can_unstake": ok, "amount": amount})
}
