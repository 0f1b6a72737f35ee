package security

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "tradedash/internal/errors"
)

// MetricsRecorder receives security counters. The monitoring package
// implements it; NopMetrics is used where metrics are not wired.
type MetricsRecorder interface {
	RecordAuthAttempt(method, outcome string)
	RecordLockout()
	RecordRateLimited(class string)
	RecordKeyIssued()
	RecordKeyRevoked()
}

// NopMetrics discards every metric
type NopMetrics struct{}

func (NopMetrics) RecordAuthAttempt(method, outcome string) {}
func (NopMetrics) RecordLockout()                           {}
func (NopMetrics) RecordRateLimited(class string)           {}
func (NopMetrics) RecordKeyIssued()                         {}
func (NopMetrics) RecordKeyRevoked()                        {}

// AccessController is the front door for every authentication decision.
// It runs rate limiting first, lockout second, credential verification
// third, and writes an audit entry for every branch taken.
type AccessController struct {
	hasher   *Hasher
	creds    CredentialStore
	vault    *KeyVault
	sessions *SessionManager
	lockout  *LockoutGuard
	limiter  *RateLimiter
	audit    *AuditLog
	metrics  MetricsRecorder
	logger   *logrus.Logger

	// dummy credential so unknown-user logins cost the same as real ones
	dummyDigest string
	dummySalt   string
}

// NewAccessController wires the security components together
func NewAccessController(
	hasher *Hasher,
	creds CredentialStore,
	vault *KeyVault,
	sessions *SessionManager,
	lockout *LockoutGuard,
	limiter *RateLimiter,
	audit *AuditLog,
	metrics MetricsRecorder,
	logger *logrus.Logger,
) (*AccessController, error) {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	digest, salt, err := hasher.Hash("decoy-credential")
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeInternal, "prepare decoy credential")
	}

	return &AccessController{
		hasher:      hasher,
		creds:       creds,
		vault:       vault,
		sessions:    sessions,
		lockout:     lockout,
		limiter:     limiter,
		audit:       audit,
		metrics:     metrics,
		logger:      logger,
		dummyDigest: digest,
		dummySalt:   salt,
	}, nil
}

// Sessions exposes the session manager for middleware that only needs
// validation.
func (c *AccessController) Sessions() *SessionManager { return c.sessions }

// Vault exposes the key vault for management handlers
func (c *AccessController) Vault() *KeyVault { return c.vault }

// Audit exposes the audit log for query handlers and scheduled pruning
func (c *AccessController) Audit() *AuditLog { return c.audit }

// Limiter exposes the rate limiter for middleware
func (c *AccessController) Limiter() *RateLimiter { return c.limiter }

// LoginResult is returned from a successful password login
type LoginResult struct {
	Token     string    `json:"-"`
	ActorType ActorType `json:"actor_type"`
	Identity  string    `json:"identity"`
}

// PasswordLogin authenticates an identifier/password pair and opens a
// session. Wrong password, unknown user and active lockout all come
// back as the same generic credential error.
func (c *AccessController) PasswordLogin(ctx context.Context, class EndpointClass, identifier, password, ip string) (*LoginResult, error) {
	if !c.limiter.Allow(ctx, class, ip) {
		c.metrics.RecordRateLimited(string(class))
		if err := c.audit.Record(ctx, ActionRateLimited, ActorSystem, identifier, ip, false, string(class)); err != nil {
			return nil, err
		}
		return nil, apperrors.ErrRateLimited
	}

	cred, err := c.creds.Lookup(ctx, identifier)
	if err != nil {
		return nil, apperrors.NewStorageFailure("lookup credential", err)
	}

	// lockout state keys off the canonical identity so a username and
	// its email alias share one failure count and one lock
	lockSubject := identifier
	if cred != nil {
		lockSubject = cred.Identity
	}

	if c.lockout.Locked(lockSubject) {
		c.metrics.RecordAuthAttempt("password", "locked")
		if err := c.audit.Record(ctx, ActionLogin, ActorSystem, lockSubject, ip, false, "locked out"); err != nil {
			return nil, err
		}
		return nil, apperrors.ErrLocked
	}

	if cred == nil {
		// burn the same hashing cost as a real verification so the
		// response time does not reveal which accounts exist
		_ = c.hasher.VerifyWith(password, c.dummyDigest, c.dummySalt, c.hasher.Iterations())
		return nil, c.failLogin(ctx, identifier, ip, "unknown identifier")
	}

	if !c.hasher.VerifyWith(password, cred.Digest, cred.Salt, cred.Iterations) {
		return nil, c.failLogin(ctx, cred.Identity, ip, "bad password")
	}

	c.lockout.RecordSuccess(cred.Identity)

	token, err := c.sessions.Create(ctx, cred.ActorType, cred.Identity, ip)
	if err != nil {
		return nil, err
	}

	c.metrics.RecordAuthAttempt("password", "success")
	if err := c.audit.Record(ctx, ActionLogin, cred.ActorType, cred.Identity, ip, true, ""); err != nil {
		// an unrecorded login must not look like a login
		_ = c.sessions.Destroy(ctx, token)
		return nil, err
	}

	return &LoginResult{Token: token, ActorType: cred.ActorType, Identity: cred.Identity}, nil
}

func (c *AccessController) failLogin(ctx context.Context, subject, ip, detail string) error {
	tripped := c.lockout.RecordFailure(subject)
	c.metrics.RecordAuthAttempt("password", "failure")
	if err := c.audit.Record(ctx, ActionLogin, ActorSystem, subject, ip, false, detail); err != nil {
		return err
	}
	if tripped {
		c.metrics.RecordLockout()
		if err := c.audit.Record(ctx, ActionLockout, ActorSystem, subject, ip, false, ""); err != nil {
			return err
		}
	}
	return apperrors.ErrInvalidCredential
}

// VerifyAPIKey authenticates a presented API key for a machine caller.
// Rate limiting keys off the key's own prefix when the key is well
// formed, otherwise off the caller IP; lockout always keys off the IP.
func (c *AccessController) VerifyAPIKey(ctx context.Context, class EndpointClass, presented, ip string) (*APIKeyRecord, error) {
	limitKey := ip
	if WellFormedKey(presented) {
		limitKey = presented[:keyDisplayLen]
	}

	if !c.limiter.Allow(ctx, class, limitKey) {
		c.metrics.RecordRateLimited(string(class))
		if err := c.audit.Record(ctx, ActionRateLimited, ActorSystem, limitKey, ip, false, string(class)); err != nil {
			return nil, err
		}
		return nil, apperrors.ErrRateLimited
	}

	if c.lockout.Locked(ip) {
		c.metrics.RecordAuthAttempt("api_key", "locked")
		if err := c.audit.Record(ctx, ActionAPIAccess, ActorSystem, limitKey, ip, false, "locked out"); err != nil {
			return nil, err
		}
		return nil, apperrors.ErrLocked
	}

	rec, err := c.vault.Verify(ctx, presented)
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeInvalidCredential) {
			tripped := c.lockout.RecordFailure(ip)
			c.metrics.RecordAuthAttempt("api_key", "failure")
			if aerr := c.audit.Record(ctx, ActionAPIAccess, ActorSystem, limitKey, ip, false, "invalid key"); aerr != nil {
				return nil, aerr
			}
			if tripped {
				c.metrics.RecordLockout()
				if aerr := c.audit.Record(ctx, ActionLockout, ActorSystem, ip, ip, false, ""); aerr != nil {
					return nil, aerr
				}
			}
		}
		return nil, err
	}

	c.lockout.RecordSuccess(ip)
	c.metrics.RecordAuthAttempt("api_key", "success")
	if err := c.audit.Record(ctx, ActionAPIAccess, ActorTrader, rec.Trader, ip, true, rec.Prefix); err != nil {
		return nil, err
	}
	return rec, nil
}

// ValidateSession resolves a session token for a browser request and
// records the access. Expired and unknown tokens are indistinguishable.
func (c *AccessController) ValidateSession(ctx context.Context, token, ip string) (*SessionRecord, error) {
	rec, err := c.sessions.Validate(ctx, token)
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeSessionInvalid) {
			if aerr := c.audit.Record(ctx, ActionSessionAccess, ActorSystem, "", ip, false, ""); aerr != nil {
				return nil, aerr
			}
		}
		return nil, err
	}
	if err := c.audit.Record(ctx, ActionSessionAccess, rec.ActorType, rec.Identity, ip, true, ""); err != nil {
		return nil, err
	}
	return rec, nil
}

// Logout ends a session and records it
func (c *AccessController) Logout(ctx context.Context, token, ip string) error {
	rec, err := c.sessions.Validate(ctx, token)
	if err != nil && !apperrors.IsCode(err, apperrors.ErrCodeSessionInvalid) {
		return err
	}
	if err := c.sessions.Destroy(ctx, token); err != nil {
		return err
	}
	actorType, identity := ActorSystem, ""
	if rec != nil {
		actorType, identity = rec.ActorType, rec.Identity
	}
	return c.audit.Record(ctx, ActionLogout, actorType, identity, ip, true, "")
}

// SetPassword creates or replaces a credential without checking the
// old password. Used for provisioning and administrative resets.
func (c *AccessController) SetPassword(ctx context.Context, identity, email string, actorType ActorType, password string) error {
	if identity == "" || password == "" {
		return apperrors.ErrInvalidInput
	}

	digest, salt, err := c.hasher.Hash(password)
	if err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeInternal, "hash password")
	}

	existing, err := c.creds.Lookup(ctx, identity)
	if err != nil {
		return apperrors.NewStorageFailure("lookup credential", err)
	}

	now := time.Now().UTC()
	cred := &Credential{
		Identity:   identity,
		Email:      email,
		ActorType:  actorType,
		Digest:     digest,
		Salt:       salt,
		Iterations: c.hasher.Iterations(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if existing != nil {
		cred.CreatedAt = existing.CreatedAt
		if email == "" {
			cred.Email = existing.Email
		}
	}
	if err := c.creds.Save(ctx, cred); err != nil {
		return apperrors.NewStorageFailure("save credential", err)
	}
	return nil
}

// RemoveCredential deletes an identity's credential and ends every
// session it holds. Removing an identity from the hierarchy must cut
// off its access immediately; a removed admin with a live session or a
// working password would be removed in name only.
func (c *AccessController) RemoveCredential(ctx context.Context, identity string) error {
	if identity == "" {
		return apperrors.ErrInvalidInput
	}
	if err := c.creds.Delete(ctx, identity); err != nil {
		return apperrors.NewStorageFailure("delete credential", err)
	}
	if _, err := c.sessions.DestroyForIdentity(ctx, identity); err != nil {
		return err
	}
	return nil
}

// ChangePassword verifies the current password before storing a new
// one, and audits the attempt either way.
func (c *AccessController) ChangePassword(ctx context.Context, class EndpointClass, identity, oldPassword, newPassword, ip string) error {
	if !c.limiter.Allow(ctx, class, identity) {
		c.metrics.RecordRateLimited(string(class))
		if err := c.audit.Record(ctx, ActionRateLimited, ActorSystem, identity, ip, false, string(class)); err != nil {
			return err
		}
		return apperrors.ErrRateLimited
	}

	cred, err := c.creds.Lookup(ctx, identity)
	if err != nil {
		return apperrors.NewStorageFailure("lookup credential", err)
	}
	if cred == nil {
		if aerr := c.audit.Record(ctx, ActionChangePassword, ActorSystem, identity, ip, false, "unknown identifier"); aerr != nil {
			return aerr
		}
		return apperrors.ErrInvalidCredential
	}

	// the old password is a credential verification like any other, so
	// the lockout applies here too
	if c.lockout.Locked(cred.Identity) {
		if aerr := c.audit.Record(ctx, ActionChangePassword, cred.ActorType, cred.Identity, ip, false, "locked out"); aerr != nil {
			return aerr
		}
		return apperrors.ErrLocked
	}

	if !c.hasher.VerifyWith(oldPassword, cred.Digest, cred.Salt, cred.Iterations) {
		tripped := c.lockout.RecordFailure(cred.Identity)
		if aerr := c.audit.Record(ctx, ActionChangePassword, cred.ActorType, cred.Identity, ip, false, "bad password"); aerr != nil {
			return aerr
		}
		if tripped {
			c.metrics.RecordLockout()
			if aerr := c.audit.Record(ctx, ActionLockout, ActorSystem, cred.Identity, ip, false, ""); aerr != nil {
				return aerr
			}
		}
		return apperrors.ErrInvalidCredential
	}

	c.lockout.RecordSuccess(cred.Identity)

	if err := c.SetPassword(ctx, cred.Identity, cred.Email, cred.ActorType, newPassword); err != nil {
		return err
	}
	return c.audit.Record(ctx, ActionChangePassword, cred.ActorType, cred.Identity, ip, true, "")
}

// IssueAPIKey mints a key through the vault and audits the issuance
func (c *AccessController) IssueAPIKey(ctx context.Context, class EndpointClass, admin, trader, client, ip string) (*IssuedKey, error) {
	if !c.limiter.Allow(ctx, class, admin) {
		c.metrics.RecordRateLimited(string(class))
		if err := c.audit.Record(ctx, ActionRateLimited, ActorAdmin, admin, ip, false, string(class)); err != nil {
			return nil, err
		}
		return nil, apperrors.ErrRateLimited
	}

	issued, err := c.vault.Generate(ctx, admin, trader, client)
	if err != nil {
		return nil, err
	}
	c.metrics.RecordKeyIssued()
	if err := c.audit.Record(ctx, ActionGenerateAPIKey, ActorAdmin, admin, ip, true, issued.Prefix); err != nil {
		return nil, err
	}
	return issued, nil
}

// RevokeAPIKey deactivates a key through the vault and audits it
func (c *AccessController) RevokeAPIKey(ctx context.Context, admin, prefix, ip string) error {
	if err := c.vault.Revoke(ctx, prefix); err != nil {
		if aerr := c.audit.Record(ctx, ActionRevokeAPIKey, ActorAdmin, admin, ip, false, prefix); aerr != nil {
			return aerr
		}
		return err
	}
	c.metrics.RecordKeyRevoked()
	return c.audit.Record(ctx, ActionRevokeAPIKey, ActorAdmin, admin, ip, true, prefix)
}
