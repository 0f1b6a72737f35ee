package security

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "tradedash/internal/errors"
)

type accessFixture struct {
	controller *AccessController
	auditStore *MemoryAuditStore
	counter    *MemoryCounterStore
}

func newAccessFixture(t *testing.T) *accessFixture {
	t.Helper()

	auditStore := NewMemoryAuditStore()
	counter := NewMemoryCounterStore()
	hasher := NewHasher(500) // keep the test fast

	controller, err := NewAccessController(
		hasher,
		NewMemoryCredentialStore(),
		NewKeyVault(NewMemoryAPIKeyStore(), nil),
		NewSessionManager(NewMemorySessionStore(), 24*time.Hour),
		NewLockoutGuard(5, 15*time.Minute),
		NewRateLimiter(counter, nil, nil),
		NewAuditLog(auditStore, nil),
		nil,
		nil,
	)
	if err != nil {
		t.Fatalf("NewAccessController failed: %v", err)
	}
	return &accessFixture{controller: controller, auditStore: auditStore, counter: counter}
}

func (f *accessFixture) auditCount(t *testing.T, action string, success bool) int {
	t.Helper()
	entries, err := f.auditStore.Query(context.Background(), AuditFilter{Action: action, Success: &success})
	if err != nil {
		t.Fatalf("audit query failed: %v", err)
	}
	return len(entries)
}

func TestPasswordLoginSuccess(t *testing.T) {
	ctx := context.Background()
	f := newAccessFixture(t)

	if err := f.controller.SetPassword(ctx, "philip", "philip@example.com", ActorAdmin, "s3cret"); err != nil {
		t.Fatalf("SetPassword failed: %v", err)
	}

	res, err := f.controller.PasswordLogin(ctx, ClassAdminLogin, "philip", "s3cret", "10.0.0.1")
	if err != nil {
		t.Fatalf("PasswordLogin failed: %v", err)
	}
	if res.Identity != "philip" || res.ActorType != ActorAdmin {
		t.Errorf("unexpected login result: %+v", res)
	}

	sess, err := f.controller.ValidateSession(ctx, res.Token, "10.0.0.1")
	if err != nil {
		t.Fatalf("ValidateSession failed: %v", err)
	}
	if sess.Identity != "philip" {
		t.Errorf("session bound to %q", sess.Identity)
	}

	if got := f.auditCount(t, ActionLogin, true); got != 1 {
		t.Errorf("expected 1 successful login audit entry, got %d", got)
	}
}

func TestPasswordLoginByEmail(t *testing.T) {
	ctx := context.Background()
	f := newAccessFixture(t)

	if err := f.controller.SetPassword(ctx, "philip", "philip@example.com", ActorAdmin, "s3cret"); err != nil {
		t.Fatalf("SetPassword failed: %v", err)
	}

	res, err := f.controller.PasswordLogin(ctx, ClassAdminLogin, "Philip@Example.com", "s3cret", "10.0.0.1")
	if err != nil {
		t.Fatalf("login by email failed: %v", err)
	}
	if res.Identity != "philip" {
		t.Errorf("expected identity philip, got %q", res.Identity)
	}
}

func TestFailuresLockOutButNotNeighbors(t *testing.T) {
	ctx := context.Background()
	f := newAccessFixture(t)

	for _, who := range []string{"philip", "chris"} {
		if err := f.controller.SetPassword(ctx, who, "", ActorAdmin, "s3cret-"+who); err != nil {
			t.Fatalf("SetPassword failed: %v", err)
		}
	}

	for i := 0; i < 5; i++ {
		_, err := f.controller.PasswordLogin(ctx, ClassLogin, "philip", "wrong", "10.0.0.1")
		if !apperrors.IsCode(err, apperrors.ErrCodeInvalidCredential) {
			t.Fatalf("attempt %d: expected invalid credential, got %v", i+1, err)
		}
	}

	// philip is locked now even with the right password, and the
	// error is indistinguishable on the wire from a bad password
	_, err := f.controller.PasswordLogin(ctx, ClassLogin, "philip", "s3cret-philip", "10.0.0.1")
	if !apperrors.IsCode(err, apperrors.ErrCodeLocked) {
		t.Fatalf("expected locked, got %v", err)
	}
	appErr := apperrors.GetAppError(err)
	if appErr.HTTPStatus() != apperrors.GetAppError(apperrors.ErrInvalidCredential).HTTPStatus() {
		t.Error("locked and invalid-credential map to different HTTP statuses")
	}
	if appErr.Message != apperrors.ErrInvalidCredential.Message {
		t.Error("locked and invalid-credential carry different client messages")
	}

	// chris is untouched
	if _, err := f.controller.PasswordLogin(ctx, ClassLogin, "chris", "s3cret-chris", "10.0.0.2"); err != nil {
		t.Fatalf("unrelated account affected by philip's lockout: %v", err)
	}

	if got := f.auditCount(t, ActionLockout, false); got != 1 {
		t.Errorf("expected 1 lockout audit entry, got %d", got)
	}
}

func TestLockoutCoversUsernameAndEmailAlike(t *testing.T) {
	ctx := context.Background()
	f := newAccessFixture(t)

	if err := f.controller.SetPassword(ctx, "philip", "philip@example.com", ActorAdmin, "s3cret"); err != nil {
		t.Fatalf("SetPassword failed: %v", err)
	}

	// failures split across the username and the email alias still
	// count against the one credential behind them
	for i := 0; i < 3; i++ {
		f.controller.PasswordLogin(ctx, ClassLogin, "philip", "wrong", "10.0.0.1")
	}
	for i := 0; i < 2; i++ {
		f.controller.PasswordLogin(ctx, ClassLogin, "philip@example.com", "wrong", "10.0.0.1")
	}

	// the lock holds no matter which alias presents the password
	_, err := f.controller.PasswordLogin(ctx, ClassLogin, "philip@example.com", "s3cret", "10.0.0.1")
	if !apperrors.IsCode(err, apperrors.ErrCodeLocked) {
		t.Fatalf("email alias slipped past the lock: %v", err)
	}
	_, err = f.controller.PasswordLogin(ctx, ClassLogin, "philip", "s3cret", "10.0.0.1")
	if !apperrors.IsCode(err, apperrors.ErrCodeLocked) {
		t.Fatalf("username slipped past the lock: %v", err)
	}

	if got := f.auditCount(t, ActionLockout, false); got != 1 {
		t.Errorf("expected 1 lockout audit entry, got %d", got)
	}
}

func TestSuccessfulLoginResetsFailures(t *testing.T) {
	ctx := context.Background()
	f := newAccessFixture(t)

	if err := f.controller.SetPassword(ctx, "philip", "", ActorAdmin, "s3cret"); err != nil {
		t.Fatalf("SetPassword failed: %v", err)
	}

	for i := 0; i < 4; i++ {
		f.controller.PasswordLogin(ctx, ClassLogin, "philip", "wrong", "10.0.0.1")
	}
	if _, err := f.controller.PasswordLogin(ctx, ClassLogin, "philip", "s3cret", "10.0.0.1"); err != nil {
		t.Fatalf("login under the threshold failed: %v", err)
	}

	// the counter restarted: four more failures do not lock
	for i := 0; i < 4; i++ {
		f.controller.PasswordLogin(ctx, ClassLogin, "philip", "wrong", "10.0.0.1")
	}
	if _, err := f.controller.PasswordLogin(ctx, ClassLogin, "philip", "s3cret", "10.0.0.1"); err != nil {
		t.Fatalf("locked despite the reset: %v", err)
	}
}

func TestLoginRateLimit(t *testing.T) {
	ctx := context.Background()
	f := newAccessFixture(t)

	if err := f.controller.SetPassword(ctx, "philip", "", ActorAdmin, "s3cret"); err != nil {
		t.Fatalf("SetPassword failed: %v", err)
	}

	// login class allows ten per minute from one address
	for i := 0; i < 10; i++ {
		f.controller.PasswordLogin(ctx, ClassLogin, "philip", "wrong", "10.0.0.9")
	}
	_, err := f.controller.PasswordLogin(ctx, ClassLogin, "philip", "s3cret", "10.0.0.9")
	if !apperrors.IsCode(err, apperrors.ErrCodeRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if apperrors.GetAppError(err).HTTPStatus() != 429 {
		t.Error("rate limited must map to 429")
	}

	if got := f.auditCount(t, ActionRateLimited, false); got != 1 {
		t.Errorf("expected 1 rate-limited audit entry, got %d", got)
	}
}

func TestUnknownUserGetsGenericError(t *testing.T) {
	ctx := context.Background()
	f := newAccessFixture(t)

	_, err := f.controller.PasswordLogin(ctx, ClassLogin, "nobody", "whatever", "10.0.0.1")
	if !apperrors.IsCode(err, apperrors.ErrCodeInvalidCredential) {
		t.Fatalf("expected invalid credential, got %v", err)
	}
	if got := f.auditCount(t, ActionLogin, false); got != 1 {
		t.Errorf("expected 1 failed login audit entry, got %d", got)
	}
}

func TestAPIKeyAccessFlow(t *testing.T) {
	ctx := context.Background()
	f := newAccessFixture(t)

	issued, err := f.controller.IssueAPIKey(ctx, ClassKeyGen, "alice", "bob", "client-1", "10.0.0.1")
	if err != nil {
		t.Fatalf("IssueAPIKey failed: %v", err)
	}

	rec, err := f.controller.VerifyAPIKey(ctx, ClassDataPush, issued.Key, "10.1.1.1")
	if err != nil {
		t.Fatalf("VerifyAPIKey failed: %v", err)
	}
	if rec.Trader != "bob" {
		t.Errorf("key bound to trader %q", rec.Trader)
	}

	if err := f.controller.RevokeAPIKey(ctx, "alice", issued.Prefix, "10.0.0.1"); err != nil {
		t.Fatalf("RevokeAPIKey failed: %v", err)
	}
	if _, err := f.controller.VerifyAPIKey(ctx, ClassDataPush, issued.Key, "10.1.1.1"); !apperrors.IsCode(err, apperrors.ErrCodeInvalidCredential) {
		t.Fatalf("revoked key still accepted: %v", err)
	}

	for _, action := range []string{ActionGenerateAPIKey, ActionRevokeAPIKey} {
		if got := f.auditCount(t, action, true); got != 1 {
			t.Errorf("expected 1 %s audit entry, got %d", action, got)
		}
	}
}

func TestBadAPIKeysLockTheSourceAddress(t *testing.T) {
	ctx := context.Background()
	f := newAccessFixture(t)

	for i := 0; i < 5; i++ {
		_, err := f.controller.VerifyAPIKey(ctx, ClassDefault, "tk_bogus-key-material", "10.2.2.2")
		if !apperrors.IsCode(err, apperrors.ErrCodeInvalidCredential) {
			t.Fatalf("attempt %d: expected invalid credential, got %v", i+1, err)
		}
	}
	_, err := f.controller.VerifyAPIKey(ctx, ClassDefault, "tk_bogus-key-material", "10.2.2.2")
	if !apperrors.IsCode(err, apperrors.ErrCodeLocked) {
		t.Fatalf("expected locked, got %v", err)
	}
}

func TestChangePasswordVerifiesOld(t *testing.T) {
	ctx := context.Background()
	f := newAccessFixture(t)

	if err := f.controller.SetPassword(ctx, "philip", "", ActorAdmin, "old-pass"); err != nil {
		t.Fatalf("SetPassword failed: %v", err)
	}

	err := f.controller.ChangePassword(ctx, ClassPasswordChg, "philip", "wrong", "new-pass", "10.0.0.1")
	if !apperrors.IsCode(err, apperrors.ErrCodeInvalidCredential) {
		t.Fatalf("expected invalid credential, got %v", err)
	}

	if err := f.controller.ChangePassword(ctx, ClassPasswordChg, "philip", "old-pass", "new-pass", "10.0.0.1"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	if _, err := f.controller.PasswordLogin(ctx, ClassAdminLogin, "philip", "old-pass", "10.0.0.1"); err == nil {
		t.Error("old password still works after the change")
	}
	if _, err := f.controller.PasswordLogin(ctx, ClassAdminLogin, "philip", "new-pass", "10.0.0.1"); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
}

func TestChangePasswordFailuresTripTheLockout(t *testing.T) {
	ctx := context.Background()
	f := newAccessFixture(t)

	if err := f.controller.SetPassword(ctx, "philip", "", ActorAdmin, "old-pass"); err != nil {
		t.Fatalf("SetPassword failed: %v", err)
	}

	// wrong old passwords are credential failures like any other
	for i := 0; i < 5; i++ {
		err := f.controller.ChangePassword(ctx, ClassDefault, "philip", "wrong", "new-pass", "10.0.0.1")
		if !apperrors.IsCode(err, apperrors.ErrCodeInvalidCredential) {
			t.Fatalf("attempt %d: expected invalid credential, got %v", i+1, err)
		}
	}

	err := f.controller.ChangePassword(ctx, ClassDefault, "philip", "old-pass", "new-pass", "10.0.0.1")
	if !apperrors.IsCode(err, apperrors.ErrCodeLocked) {
		t.Fatalf("change password ignored the lock: %v", err)
	}
	if _, err := f.controller.PasswordLogin(ctx, ClassLogin, "philip", "old-pass", "10.0.0.1"); !apperrors.IsCode(err, apperrors.ErrCodeLocked) {
		t.Fatalf("login ignored the lock tripped by change-password failures: %v", err)
	}

	if got := f.auditCount(t, ActionLockout, false); got != 1 {
		t.Errorf("expected 1 lockout audit entry, got %d", got)
	}
}

func TestLogoutEndsSession(t *testing.T) {
	ctx := context.Background()
	f := newAccessFixture(t)

	if err := f.controller.SetPassword(ctx, "philip", "", ActorAdmin, "s3cret"); err != nil {
		t.Fatalf("SetPassword failed: %v", err)
	}
	res, err := f.controller.PasswordLogin(ctx, ClassAdminLogin, "philip", "s3cret", "10.0.0.1")
	if err != nil {
		t.Fatalf("PasswordLogin failed: %v", err)
	}

	if err := f.controller.Logout(ctx, res.Token, "10.0.0.1"); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, err := f.controller.ValidateSession(ctx, res.Token, "10.0.0.1"); !apperrors.IsCode(err, apperrors.ErrCodeSessionInvalid) {
		t.Errorf("session survived logout: %v", err)
	}
	if got := f.auditCount(t, ActionLogout, true); got != 1 {
		t.Errorf("expected 1 logout audit entry, got %d", got)
	}
}

type brokenAuditStore struct{}

func (brokenAuditStore) Insert(ctx context.Context, entry *AuditEntry) error {
	return errors.New("disk full")
}
func (brokenAuditStore) Query(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error) {
	return nil, errors.New("disk full")
}
func (brokenAuditStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, errors.New("disk full")
}

func TestAuditWriteFailureSurfacesAsStorageFailure(t *testing.T) {
	ctx := context.Background()

	sessions := NewMemorySessionStore()
	controller, err := NewAccessController(
		NewHasher(500),
		NewMemoryCredentialStore(),
		NewKeyVault(NewMemoryAPIKeyStore(), nil),
		NewSessionManager(sessions, 24*time.Hour),
		NewLockoutGuard(5, 15*time.Minute),
		NewRateLimiter(NewMemoryCounterStore(), nil, nil),
		NewAuditLog(brokenAuditStore{}, nil),
		nil,
		nil,
	)
	if err != nil {
		t.Fatalf("NewAccessController failed: %v", err)
	}

	if err := controller.SetPassword(ctx, "philip", "", ActorAdmin, "s3cret"); err != nil {
		t.Fatalf("SetPassword failed: %v", err)
	}

	_, err = controller.PasswordLogin(ctx, ClassAdminLogin, "philip", "s3cret", "10.0.0.1")
	if !apperrors.IsCode(err, apperrors.ErrCodeStorageFailure) {
		t.Fatalf("expected storage failure, got %v", err)
	}
	if apperrors.GetAppError(err).HTTPStatus() != 500 {
		t.Error("storage failure must map to 500")
	}

	// the unrecorded login left no usable session behind
	n, err := sessions.DeleteExpired(ctx, time.Now().Add(48*time.Hour))
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected no sessions after a failed audit write, found %d", n)
	}
}
