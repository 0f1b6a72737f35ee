package security

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	apperrors "tradedash/internal/errors"
)

// Audit action names; these are the values persisted and queried on
const (
	ActionLogin          = "LOGIN"
	ActionLogout         = "LOGOUT"
	ActionAPIAccess      = "API_ACCESS"
	ActionSessionAccess  = "SESSION_ACCESS"
	ActionDataPush       = "DATA_PUSH"
	ActionGenerateAPIKey = "GENERATE_API_KEY"
	ActionRevokeAPIKey   = "REVOKE_API_KEY"
	ActionListAPIKeys    = "LIST_API_KEYS"
	ActionChangePassword = "CHANGE_PASSWORD"
	ActionAddAdmin       = "ADD_ADMIN"
	ActionRemoveAdmin    = "REMOVE_ADMIN"
	ActionAddTrader      = "ADD_TRADER"
	ActionRemoveTrader   = "REMOVE_TRADER"
	ActionAddClient      = "ADD_CLIENT"
	ActionRemoveClient   = "REMOVE_CLIENT"
	ActionMoveClient     = "MOVE_CLIENT"
	ActionRateLimited    = "RATE_LIMITED"
	ActionLockout        = "LOCKOUT"
)

// AuditLog records security-relevant events to an append-only trail.
// A trail that cannot be written is treated as an operational failure,
// not silently skipped.
type AuditLog struct {
	store  AuditStore
	logger *logrus.Logger
	now    func() time.Time
}

// NewAuditLog creates an audit log over the given store
func NewAuditLog(store AuditStore, logger *logrus.Logger) *AuditLog {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AuditLog{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Record appends one event. The returned error is a storage failure
// when the trail could not be written.
func (a *AuditLog) Record(ctx context.Context, action string, actorType ActorType, actorID, ip string, success bool, detail string) error {
	entry := &AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: a.now().UTC(),
		Action:    action,
		ActorType: actorType,
		ActorID:   actorID,
		IP:        ip,
		Success:   success,
		Detail:    detail,
	}
	if err := a.store.Insert(ctx, entry); err != nil {
		a.logger.WithError(err).WithFields(logrus.Fields{
			"action": action,
			"actor":  actorID,
		}).Error("audit write failed")
		return apperrors.NewStorageFailure("insert audit entry", err)
	}
	return nil
}

// Query returns entries matching the filter, newest first
func (a *AuditLog) Query(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error) {
	entries, err := a.store.Query(ctx, filter)
	if err != nil {
		return nil, apperrors.NewStorageFailure("query audit log", err)
	}
	return entries, nil
}

// Prune drops entries older than the retention horizon. Intended for a
// scheduled job.
func (a *AuditLog) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := a.now().UTC().Add(-retention)
	n, err := a.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, apperrors.NewStorageFailure("prune audit log", err)
	}
	return n, nil
}
