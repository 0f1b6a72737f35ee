package api

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	apperrors "tradedash/internal/errors"
	"tradedash/internal/security"
)

const (
	// SessionCookie is the browser session cookie name
	SessionCookie = "tradedash_session"
	// APIKeyHeader carries the trader key on push requests
	APIKeyHeader = "X-API-Key"

	ctxSession = "session"
	ctxAPIKey  = "api_key"
)

// sessionToken pulls the token from the cookie or a bearer header
func sessionToken(c *gin.Context) string {
	if cookie, err := c.Cookie(SessionCookie); err == nil && cookie != "" {
		return cookie
	}
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// sessionAuth validates the caller's session and stores it on the
// request context. Missing, expired and forged tokens all get the same
// generic refusal.
func (s *Server) sessionAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := s.access.ValidateSession(c.Request.Context(), sessionToken(c), c.ClientIP())
		if err != nil {
			respondError(c, err)
			c.Abort()
			return
		}
		c.Set(ctxSession, rec)
		c.Next()
	}
}

// adminOnly requires an admin session; runs after sessionAuth
func (s *Server) adminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		rec := currentSession(c)
		if rec == nil || rec.ActorType != security.ActorAdmin {
			respondError(c, apperrors.ErrSessionInvalid)
			c.Abort()
			return
		}
		c.Next()
	}
}

// apiKeyAuth authenticates a trader push request by its API key
func (s *Server) apiKeyAuth(class security.EndpointClass) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := s.access.VerifyAPIKey(c.Request.Context(), class, c.GetHeader(APIKeyHeader), c.ClientIP())
		if err != nil {
			respondError(c, err)
			c.Abort()
			return
		}
		c.Set(ctxAPIKey, rec)
		c.Next()
	}
}

// classLimit applies an endpoint class's fixed windows to requests
// that carry no credential of their own, keyed by source address.
func (s *Server) classLimit(class security.EndpointClass) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.access.Limiter().Allow(c.Request.Context(), class, c.ClientIP()) {
			respondError(c, apperrors.ErrRateLimited)
			c.Abort()
			return
		}
		c.Next()
	}
}

// currentSession returns the validated session set by sessionAuth
func currentSession(c *gin.Context) *security.SessionRecord {
	if v, ok := c.Get(ctxSession); ok {
		if rec, ok := v.(*security.SessionRecord); ok {
			return rec
		}
	}
	return nil
}

// currentAPIKey returns the verified key record set by apiKeyAuth
func currentAPIKey(c *gin.Context) *security.APIKeyRecord {
	if v, ok := c.Get(ctxAPIKey); ok {
		if rec, ok := v.(*security.APIKeyRecord); ok {
			return rec
		}
	}
	return nil
}

// ipThrottle smooths request bursts per source address before any of
// the fixed windows are counted. It protects the process, not the
// accounts; the per-class limits stay authoritative.
type ipThrottle struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newIPThrottle(rps float64, burst int) *ipThrottle {
	return &ipThrottle{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (t *ipThrottle) limiter(ip string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	lim, ok := t.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(t.rps, t.burst)
		t.limiters[ip] = lim
	}
	return lim
}

func (t *ipThrottle) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !t.limiter(c.ClientIP()).Allow() {
			c.JSON(http.StatusTooManyRequests, Response{Success: false, Error: "Too many requests"})
			c.Abort()
			return
		}
		c.Next()
	}
}
