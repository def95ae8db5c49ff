package model

import "time"

// User is the subset of the users table the service needs.
type User struct {
	ID            int64     `json:"id"`
	TelegramID    int64     `json:"telegram_id,omitempty"`
	WalletAddress string    `json:"wallet_address"`
	Username      string    `json:"username,omitempty"`
	Balance       float64   `json:"balance"`
	TotalEarned   float64   `json:"total_earned"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}

// AdminLevel is the admin tier returned by check_admin_status.
type AdminLevel string

const (
	AdminSuper     AdminLevel = "super"
	AdminRegular   AdminLevel = "admin"
	AdminModerator AdminLevel = "moderator"
)

// AdminStatus is the outcome of an admin permission check.
type AdminStatus struct {
	IsAdmin     bool       `json:"is_admin"`
	AdminLevel  AdminLevel `json:"admin_level,omitempty"`
	Permissions []string   `json:"permissions,omitempty"`
}

// AdminUser is one row of get_admin_users.
type AdminUser struct {
	UserID     int64      `json:"user_id"`
	Username   string     `json:"username,omitempty"`
	TelegramID int64      `json:"telegram_id,omitempty"`
	AdminLevel AdminLevel `json:"admin_level"`
	CreatedAt  string     `json:"created_at,omitempty"`
}
