package api

import (
	"github.com/gin-gonic/gin"

	apperrors "tradedash/internal/errors"
	"tradedash/internal/security"
)

// LoginRequest is a password login request
type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// LoginResponse is returned on a successful login; the token also
// travels in the session cookie.
type LoginResponse struct {
	Token     string `json:"token"`
	ActorType string `json:"actor_type"`
	Identity  string `json:"identity"`
}

// ChangePasswordRequest carries a password change
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

// @Summary Log in
// @Description Authenticate with username or email and password
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} Response{data=LoginResponse}
// @Failure 401 {object} Response
// @Failure 429 {object} Response
// @Router /auth/login [post]
func (s *Server) login(c *gin.Context) {
	s.handleLogin(c, security.ClassLogin, "")
}

// @Summary Administrator login
// @Description Authenticate an administrator account
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} Response{data=LoginResponse}
// @Failure 401 {object} Response
// @Failure 429 {object} Response
// @Router /auth/admin/login [post]
func (s *Server) adminLogin(c *gin.Context) {
	s.handleLogin(c, security.ClassAdminLogin, security.ActorAdmin)
}

func (s *Server) handleLogin(c *gin.Context, class security.EndpointClass, want security.ActorType) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	res, err := s.access.PasswordLogin(c.Request.Context(), class, req.Identifier, req.Password, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}
	if want != "" && res.ActorType != want {
		// right password, wrong tier for this endpoint: close the
		// session again and refuse like any other bad credential
		_ = s.access.Logout(c.Request.Context(), res.Token, c.ClientIP())
		respondError(c, apperrors.ErrInvalidCredential)
		return
	}

	ttl := int(s.config.Auth.SessionTTL.Seconds())
	secure := s.config.App.Env == "production"
	c.SetCookie(SessionCookie, res.Token, ttl, "/", "", secure, true)

	respondOK(c, LoginResponse{
		Token:     res.Token,
		ActorType: string(res.ActorType),
		Identity:  res.Identity,
	})
}

// @Summary Log out
// @Description End the current session
// @Tags Auth
// @Produce json
// @Success 200 {object} Response
// @Router /auth/logout [post]
func (s *Server) logout(c *gin.Context) {
	if err := s.access.Logout(c.Request.Context(), sessionToken(c), c.ClientIP()); err != nil {
		respondError(c, err)
		return
	}
	c.SetCookie(SessionCookie, "", -1, "/", "", s.config.App.Env == "production", true)
	respondOK(c, nil)
}

// @Summary Change password
// @Description Change the password of the logged-in account
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body ChangePasswordRequest true "Passwords"
// @Success 200 {object} Response
// @Failure 401 {object} Response
// @Failure 429 {object} Response
// @Router /auth/password [post]
func (s *Server) changePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	sess := currentSession(c)
	err := s.access.ChangePassword(c.Request.Context(), security.ClassPasswordChg,
		sess.Identity, req.OldPassword, req.NewPassword, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

// @Summary Client dashboard
// @Description Return the stored dashboard data for the logged-in client
// @Tags Dashboard
// @Produce json
// @Success 200 {object} Response
// @Failure 401 {object} Response
// @Router /dashboard [get]
func (s *Server) clientDashboard(c *gin.Context) {
	sess := currentSession(c)
	if sess.ActorType != security.ActorClient {
		respondError(c, apperrors.ErrSessionInvalid)
		return
	}

	client, err := s.tree.GetClientByEmail(c.Request.Context(), sess.Identity)
	if err != nil {
		respondError(c, err)
		return
	}
	dash, err := s.data.DashboardFor(c.Request.Context(), client.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, dash)
}
