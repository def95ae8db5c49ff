package admin

import (
	"context"
	"log/slog"
	"slices"
	"strconv"

	"RhizaCore/internal/model"
)

// StatusChecker is the check_admin_status procedure.
type StatusChecker interface {
	CheckAdminStatus(ctx context.Context, userID int64) (*model.AdminStatus, error)
}

// UserReader looks up the telegram id of a user.
type UserReader interface {
	ReadUser(ctx context.Context, userID int64) (*model.User, error)
}

var superAdmin = model.AdminStatus{IsAdmin: true, AdminLevel: model.AdminSuper, Permissions: []string{"all"}}

// Authorizer decides admin status from the configured allow-lists, falling back to the backend.
type Authorizer struct {
	superIDs         []string
	superTelegramIDs []string
	checker          StatusChecker
	users            UserReader
	log              *slog.Logger
}

func NewAuthorizer(superIDs, superTelegramIDs []string, checker StatusChecker, users UserReader, log *slog.Logger) *Authorizer {
	return &Authorizer{
		superIDs:         superIDs,
		superTelegramIDs: superTelegramIDs,
		checker:          checker,
		users:            users,
		log:              log,
	}
}

// Check returns the admin status of userID. telegramID may be zero, in which case it is looked up
// when a telegram allow-list is configured. Any lookup failure yields a non-admin status.
func (a *Authorizer) Check(ctx context.Context, userID, telegramID int64) model.AdminStatus {
	if userID != 0 && slices.Contains(a.superIDs, strconv.FormatInt(userID, 10)) {
		return superAdmin
	}
	if len(a.superTelegramIDs) > 0 {
		if telegramID == 0 && userID != 0 && a.users != nil {
			if u, err := a.users.ReadUser(ctx, userID); err == nil {
				telegramID = u.TelegramID
			}
		}
		if telegramID != 0 && slices.Contains(a.superTelegramIDs, strconv.FormatInt(telegramID, 10)) {
			return superAdmin
		}
	}
	if userID == 0 || a.checker == nil {
		return model.AdminStatus{}
	}

	status, err := a.checker.CheckAdminStatus(ctx, userID)
	if err != nil {
		a.log.Error("error checking admin status", "user_id", userID, "error", err)
		return model.AdminStatus{}
	}
	if !status.IsAdmin {
		return model.AdminStatus{}
	}
	if status.Permissions == nil {
		status.Permissions = []string{}
	}
	return *status
}

// IsSuper reports whether userID holds the super level.
func (a *Authorizer) IsSuper(ctx context.Context, userID, telegramID int64) bool {
	return a.Check(ctx, userID, telegramID).AdminLevel == model.AdminSuper
}
