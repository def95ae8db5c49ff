package model

// Result is the common {success, error} envelope returned by backend procedures.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ActivationRequest holds the named parameters of process_wallet_activation.
type ActivationRequest struct {
	UserID          int64   `json:"p_user_id"`
	TONAmount       float64 `json:"p_ton_amount"`
	TONPrice        float64 `json:"p_ton_price"`
	TransactionHash string  `json:"p_transaction_hash"`
	SenderAddress   string  `json:"p_sender_address"`
	ReceiverAddress string  `json:"p_receiver_address"`
}

// ActivationResult is returned by process_wallet_activation.
type ActivationResult struct {
	Result
	ActivationID int64   `json:"activation_id,omitempty"`
	RZCAwarded   float64 `json:"rzc_awarded,omitempty"`
}

// ActivationDetails describes the payment that activated a wallet.
type ActivationDetails struct {
	ID              int64   `json:"id"`
	TONAmount       float64 `json:"ton_amount"`
	USDAmount       float64 `json:"usd_amount"`
	RZCAwarded      float64 `json:"rzc_awarded"`
	TransactionHash string  `json:"transaction_hash"`
	Status          string  `json:"status"`
	CreatedAt       string  `json:"created_at"`
}

// ActivationStatus is returned by get_wallet_activation_status.
type ActivationStatus struct {
	WalletActivated   bool               `json:"wallet_activated"`
	WalletActivatedAt string             `json:"wallet_activated_at,omitempty"`
	Details           *ActivationDetails `json:"activation_details,omitempty"`
}

// AutoActivationResult is returned by auto_activate_user.
type AutoActivationResult struct {
	Result
	UserID       int64   `json:"user_id,omitempty"`
	Username     string  `json:"username,omitempty"`
	ActivationID int64   `json:"activation_id,omitempty"`
	RZCAwarded   float64 `json:"rzc_awarded,omitempty"`
}

// AdminInitResult is returned by initialize_admin_system.
type AdminInitResult struct {
	Result
	AdminID int64 `json:"admin_id,omitempty"`
}

// StakingLocksSummary is returned by get_user_staking_locks_summary.
type StakingLocksSummary struct {
	TotalStaked    float64 `json:"total_staked"`
	TotalLocked    float64 `json:"total_locked"`
	TotalUnlocked  float64 `json:"total_unlocked"`
	ActiveLocks    int     `json:"active_locks"`
	NextUnlockDate *string `json:"next_unlock_date"`
}

// Lock statuses of a staking lock row.
const (
	LockActive    = "active"
	LockUnlocked  = "unlocked"
	LockWithdrawn = "withdrawn"
)

// StakingLock is one row of the staking_locks table.
type StakingLock struct {
	ID              string  `json:"id"`
	UserID          int64   `json:"user_id"`
	StakedAmount    float64 `json:"staked_amount"`
	LockPeriodYears int     `json:"lock_period_years"`
	APYRate         float64 `json:"apy_rate"`
	StakedAt        string  `json:"staked_at"`
	UnlockDate      string  `json:"unlock_date"`
	Status          string  `json:"status"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

// StakeResult is returned by stake_tokens_with_lock.
type StakeResult struct {
	Result
	LockID          string  `json:"lock_id,omitempty"`
	StakedAmount    float64 `json:"staked_amount,omitempty"`
	UnlockDate      string  `json:"unlock_date,omitempty"`
	LockPeriodYears int     `json:"lock_period_years,omitempty"`
	APYRate         float64 `json:"apy_rate,omitempty"`
}

// UnstakeResult is returned by unstake_tokens. UnlockDate and TimeRemaining
// are set when the lock has not expired yet.
type UnstakeResult struct {
	Result
	UnstakedAmount float64 `json:"unstaked_amount,omitempty"`
	LockID         string  `json:"lock_id,omitempty"`
	UnlockDate     string  `json:"unlock_date,omitempty"`
	TimeRemaining  string  `json:"time_remaining,omitempty"`
}
