package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tradedash/internal/config"
	"tradedash/internal/dashdata"
	"tradedash/internal/hierarchy"
	"tradedash/internal/security"
)

type testServer struct {
	server *Server
	access *security.AccessController
	tree   *hierarchy.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	access, err := security.NewAccessController(
		security.NewHasher(500),
		security.NewMemoryCredentialStore(),
		security.NewKeyVault(security.NewMemoryAPIKeyStore(), nil),
		security.NewSessionManager(security.NewMemorySessionStore(), 24*time.Hour),
		security.NewLockoutGuard(5, 15*time.Minute),
		security.NewRateLimiter(security.NewMemoryCounterStore(), nil, nil),
		security.NewAuditLog(security.NewMemoryAuditStore(), nil),
		nil,
		nil,
	)
	require.NoError(t, err)

	tree := hierarchy.NewService(hierarchy.NewMemoryStore(), access, nil)
	data := dashdata.NewService(dashdata.NewMemoryStore(), tree, access.Audit())

	// bootstrap hierarchy: root admin -> trader bob -> client carol
	_, err = tree.AddAdmin(ctx, "system", "root", "root@example.com", "root-pass", "")
	require.NoError(t, err)
	_, err = tree.AddTrader(ctx, "root", "root", "bob", "")
	require.NoError(t, err)
	_, err = tree.AddClient(ctx, "root", "bob", "Carol", "carol@example.com", "carol-pass", "")
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Auth.SessionTTL = 24 * time.Hour

	server := NewServer(cfg, Deps{Access: access, Tree: tree, Data: data})
	return &testServer{server: server, access: access, tree: tree}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(w, req)
	return w
}

func (ts *testServer) loginToken(t *testing.T, path, identifier, password string) string {
	t.Helper()

	w := ts.do(t, http.MethodPost, path, LoginRequest{Identifier: identifier, Password: password}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login as %s failed: %d %s", identifier, w.Code, w.Body.String())
	}
	var resp struct {
		Data LoginResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Data.Token
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/health", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health returned %d", w.Code)
	}
}

func TestLoginSetsSessionCookie(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/auth/admin/login",
		LoginRequest{Identifier: "root", Password: "root-pass"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", w.Code, w.Body.String())
	}

	var found bool
	for _, c := range w.Result().Cookies() {
		if c.Name == SessionCookie && c.Value != "" {
			found = true
			if !c.HttpOnly {
				t.Error("session cookie not httponly")
			}
		}
	}
	if !found {
		t.Error("no session cookie set on login")
	}
}

func TestLoginFailureIsGeneric(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/auth/login",
		LoginRequest{Identifier: "root", Password: "wrong"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	// unknown users read exactly the same
	w2 := ts.do(t, http.MethodPost, "/api/v1/auth/login",
		LoginRequest{Identifier: "nobody", Password: "wrong"}, nil)
	if w2.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w2.Code)
	}
	if w.Body.String() != w2.Body.String() {
		t.Errorf("failure bodies differ:\n%s\n%s", w.Body.String(), w2.Body.String())
	}
}

func TestAdminLoginRejectsNonAdmins(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/auth/admin/login",
		LoginRequest{Identifier: "carol@example.com", Password: "carol-pass"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("client logged in on the admin endpoint: %d", w.Code)
	}
}

func TestAdminRoutesNeedAdminSession(t *testing.T) {
	ts := newTestServer(t)

	// no session at all
	w := ts.do(t, http.MethodGet, "/api/v1/admin/hierarchy", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", w.Code)
	}

	// a client session is not enough
	clientToken := ts.loginToken(t, "/api/v1/auth/login", "carol@example.com", "carol-pass")
	w = ts.do(t, http.MethodGet, "/api/v1/admin/hierarchy", nil, bearer(clientToken))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for client session, got %d", w.Code)
	}

	// an admin session is
	adminToken := ts.loginToken(t, "/api/v1/auth/admin/login", "root", "root-pass")
	w = ts.do(t, http.MethodGet, "/api/v1/admin/hierarchy", nil, bearer(adminToken))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin session, got %d: %s", w.Code, w.Body.String())
	}
}

func TestKeyLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.loginToken(t, "/api/v1/auth/admin/login", "root", "root-pass")

	// generate
	w := ts.do(t, http.MethodPost, "/api/v1/admin/keys",
		GenerateKeyRequest{Trader: "bob", Client: "carol@example.com"}, bearer(adminToken))
	if w.Code != http.StatusOK {
		t.Fatalf("generate returned %d: %s", w.Code, w.Body.String())
	}
	var genResp struct {
		Data security.IssuedKey `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &genResp); err != nil {
		t.Fatalf("decode generate response: %v", err)
	}
	key := genResp.Data.Key

	// push with the key
	push := PushRequest{Client: "carol@example.com", Payload: json.RawMessage(`{"balance": 42}`)}
	w = ts.do(t, http.MethodPost, "/api/v1/push/account", push, map[string]string{APIKeyHeader: key})
	if w.Code != http.StatusOK {
		t.Fatalf("push returned %d: %s", w.Code, w.Body.String())
	}

	// the client sees the data
	clientToken := ts.loginToken(t, "/api/v1/auth/login", "carol@example.com", "carol-pass")
	w = ts.do(t, http.MethodGet, "/api/v1/dashboard", nil, bearer(clientToken))
	if w.Code != http.StatusOK {
		t.Fatalf("dashboard returned %d: %s", w.Code, w.Body.String())
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"balance": 42`)) && !bytes.Contains(w.Body.Bytes(), []byte(`"balance":42`)) {
		t.Errorf("pushed data missing from dashboard: %s", w.Body.String())
	}

	// revoke, then the key stops working
	w = ts.do(t, http.MethodDelete, "/api/v1/admin/keys/"+genResp.Data.Prefix, nil, bearer(adminToken))
	if w.Code != http.StatusOK {
		t.Fatalf("revoke returned %d: %s", w.Code, w.Body.String())
	}
	w = ts.do(t, http.MethodPost, "/api/v1/push/account", push, map[string]string{APIKeyHeader: key})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("revoked key still pushes: %d", w.Code)
	}
}

func TestPushWithoutKey(t *testing.T) {
	ts := newTestServer(t)

	push := PushRequest{Client: "carol@example.com", Payload: json.RawMessage(`{}`)}
	w := ts.do(t, http.MethodPost, "/api/v1/push/account", push, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", w.Code)
	}
}

func TestAdminLoginRateLimitReturns429(t *testing.T) {
	ts := newTestServer(t)

	for i := 0; i < 5; i++ {
		w := ts.do(t, http.MethodPost, "/api/v1/auth/admin/login",
			LoginRequest{Identifier: fmt.Sprintf("ghost-%d", i), Password: "x"}, nil)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, w.Code)
		}
	}
	w := ts.do(t, http.MethodPost, "/api/v1/auth/admin/login",
		LoginRequest{Identifier: "root", Password: "root-pass"}, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on the sixth attempt, got %d", w.Code)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.loginToken(t, "/api/v1/auth/admin/login", "root", "root-pass")

	w := ts.do(t, http.MethodPost, "/api/v1/auth/logout", nil, bearer(adminToken))
	if w.Code != http.StatusOK {
		t.Fatalf("logout returned %d", w.Code)
	}
	w = ts.do(t, http.MethodGet, "/api/v1/admin/hierarchy", nil, bearer(adminToken))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("session survived logout: %d", w.Code)
	}
}

func TestChangePasswordOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.loginToken(t, "/api/v1/auth/admin/login", "root", "root-pass")

	w := ts.do(t, http.MethodPost, "/api/v1/auth/password",
		ChangePasswordRequest{OldPassword: "root-pass", NewPassword: "brand-new-pass"}, bearer(adminToken))
	if w.Code != http.StatusOK {
		t.Fatalf("change password returned %d: %s", w.Code, w.Body.String())
	}

	// old password is dead, new one works
	w = ts.do(t, http.MethodPost, "/api/v1/auth/admin/login",
		LoginRequest{Identifier: "root", Password: "root-pass"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("old password still accepted: %d", w.Code)
	}
	ts.loginToken(t, "/api/v1/auth/admin/login", "root", "brand-new-pass")
}
