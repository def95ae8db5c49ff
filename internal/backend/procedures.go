package backend

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"RhizaCore/internal/model"
)

// Procedures is the typed surface of the backend RPCs.
type Procedures interface {
	CheckAdminStatus(ctx context.Context, userID int64) (*model.AdminStatus, error)
	InitializeAdminSystem(ctx context.Context, userID int64, level model.AdminLevel) model.AdminInitResult
	ProcessWalletActivation(ctx context.Context, req model.ActivationRequest) model.ActivationResult
	AutoActivateUser(ctx context.Context, userID int64, reason string, rzcAmount float64) model.AutoActivationResult
	GetWalletActivationStatus(ctx context.Context, userID int64) (*model.ActivationStatus, error)
	GetUserStakingLocksSummary(ctx context.Context, userID int64) (*model.StakingLocksSummary, error)
	StakeTokensWithLock(ctx context.Context, userID int64, lockYears int, apyRate float64) model.StakeResult
	UnstakeTokens(ctx context.Context, userID int64, lockID string) model.UnstakeResult
	CanUnstake(ctx context.Context, userID int64, amount float64) (bool, error)
	GetUserStakingLocks(ctx context.Context, userID int64) ([]model.StakingLock, error)
	AddAdminUser(ctx context.Context, userID int64, level model.AdminLevel, permissions []string, addedBy int64) model.Result
	RemoveAdminUser(ctx context.Context, userID int64) model.Result
	GetAdminUsers(ctx context.Context) ([]model.AdminUser, error)
}

var _ Procedures = (*Client)(nil)

const maxStoredHashLen = 200

type userParam struct {
	UserID int64 `json:"p_user_id"`
}

func (c *Client) CheckAdminStatus(ctx context.Context, userID int64) (*model.AdminStatus, error) {
	var status model.AdminStatus
	if err := c.Call(ctx, "check_admin_status", userParam{userID}, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) InitializeAdminSystem(ctx context.Context, userID int64, level model.AdminLevel) model.AdminInitResult {
	params := struct {
		UserID int64            `json:"p_first_admin_user_id"`
		Level  model.AdminLevel `json:"p_admin_level"`
	}{userID, level}

	var res model.AdminInitResult
	if err := c.Call(ctx, "initialize_admin_system", params, &res); err != nil {
		return model.AdminInitResult{Result: failure(err)}
	}
	return res
}

// ProcessWalletActivation retries once with a shortened hash when the backend
// rejects the hash length.
func (c *Client) ProcessWalletActivation(ctx context.Context, req model.ActivationRequest) model.ActivationResult {
	res, err := c.processWalletActivation(ctx, req)
	if isLengthError(err, res) && len(req.TransactionHash) > maxStoredHashLen {
		c.log.Warn("transaction hash too long, retrying with shortened hash", "user_id", req.UserID, "len", len(req.TransactionHash))
		req.TransactionHash = ShortenHash(req.TransactionHash)
		res, err = c.processWalletActivation(ctx, req)
	}
	if err != nil {
		return model.ActivationResult{Result: failure(err)}
	}
	return res
}

func (c *Client) processWalletActivation(ctx context.Context, req model.ActivationRequest) (model.ActivationResult, error) {
	var res model.ActivationResult
	err := c.Call(ctx, "process_wallet_activation", req, &res)
	return res, err
}

func (c *Client) AutoActivateUser(ctx context.Context, userID int64, reason string, rzcAmount float64) model.AutoActivationResult {
	params := struct {
		UserID    int64   `json:"p_user_id"`
		Reason    string  `json:"p_reason"`
		RZCAmount float64 `json:"p_rzc_amount"`
	}{userID, reason, rzcAmount}

	var res model.AutoActivationResult
	if err := c.Call(ctx, "auto_activate_user", params, &res); err != nil {
		return model.AutoActivationResult{Result: failure(err)}
	}
	return res
}

func (c *Client) GetWalletActivationStatus(ctx context.Context, userID int64) (*model.ActivationStatus, error) {
	var status model.ActivationStatus
	if err := c.Call(ctx, "get_wallet_activation_status", userParam{userID}, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) GetUserStakingLocksSummary(ctx context.Context, userID int64) (*model.StakingLocksSummary, error) {
	var summary model.StakingLocksSummary
	if err := c.Call(ctx, "get_user_staking_locks_summary", userParam{userID}, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// StakeTokensWithLock locks part of the user's balance for lockYears. The
// backend computes the staked amount itself, so p_amount is always zero.
func (c *Client) StakeTokensWithLock(ctx context.Context, userID int64, lockYears int, apyRate float64) model.StakeResult {
	params := struct {
		UserID    int64   `json:"p_user_id"`
		Amount    float64 `json:"p_amount"`
		LockYears int     `json:"p_lock_years"`
		APYRate   float64 `json:"p_apy_rate"`
	}{userID, 0, lockYears, apyRate}

	var res model.StakeResult
	if err := c.Call(ctx, "stake_tokens_with_lock", params, &res); err != nil {
		return model.StakeResult{Result: failure(err)}
	}
	return res
}

func (c *Client) UnstakeTokens(ctx context.Context, userID int64, lockID string) model.UnstakeResult {
	params := struct {
		UserID int64  `json:"p_user_id"`
		LockID string `json:"p_lock_id"`
	}{userID, lockID}

	var res model.UnstakeResult
	if err := c.Call(ctx, "unstake_tokens", params, &res); err != nil {
		return model.UnstakeResult{Result: failure(err)}
	}
	return res
}

func (c *Client) CanUnstake(ctx context.Context, userID int64, amount float64) (bool, error) {
	params := struct {
		UserID int64   `json:"p_user_id"`
		Amount float64 `json:"p_amount"`
	}{userID, amount}

	var ok bool
	if err := c.Call(ctx, "can_unstake", params, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

// GetUserStakingLocks lists the user's active locks, newest first.
func (c *Client) GetUserStakingLocks(ctx context.Context, userID int64) ([]model.StakingLock, error) {
	query := url.Values{}
	query.Set("select", "*")
	query.Set("user_id", "eq."+strconv.FormatInt(userID, 10))
	query.Set("status", "eq."+model.LockActive)
	query.Set("order", "created_at.desc")

	var locks []model.StakingLock
	if err := c.Select(ctx, "staking_locks", query, &locks); err != nil {
		return nil, err
	}
	return locks, nil
}

func (c *Client) AddAdminUser(ctx context.Context, userID int64, level model.AdminLevel, permissions []string, addedBy int64) model.Result {
	if permissions == nil {
		permissions = []string{}
	}
	params := struct {
		UserID      int64            `json:"p_user_id"`
		Level       model.AdminLevel `json:"p_admin_level"`
		Permissions []string         `json:"p_permissions"`
		AddedBy     int64            `json:"p_added_by,omitempty"`
	}{userID, level, permissions, addedBy}

	var res model.Result
	if err := c.Call(ctx, "add_admin_user", params, &res); err != nil {
		return failure(err)
	}
	return res
}

func (c *Client) RemoveAdminUser(ctx context.Context, userID int64) model.Result {
	var res model.Result
	if err := c.Call(ctx, "remove_admin_user", userParam{userID}, &res); err != nil {
		return failure(err)
	}
	return res
}

func (c *Client) GetAdminUsers(ctx context.Context) ([]model.AdminUser, error) {
	var admins []model.AdminUser
	if err := c.Call(ctx, "get_admin_users", struct{}{}, &admins); err != nil {
		return nil, err
	}
	return admins, nil
}

// ShortenHash keeps the first and last 100 characters of a long hash.
func ShortenHash(hash string) string {
	if len(hash) <= maxStoredHashLen {
		return hash
	}
	return hash[:100] + "..." + hash[len(hash)-100:]
}

func isLengthError(err error, res model.ActivationResult) bool {
	msg := res.Error
	if err != nil {
		msg = err.Error()
	}
	return strings.Contains(msg, "too long") || strings.Contains(msg, "varying")
}

func failure(err error) model.Result {
	return model.Result{Success: false, Error: err.Error()}
}
