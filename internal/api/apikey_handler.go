package api

import (
	"github.com/gin-gonic/gin"

	"tradedash/internal/security"
)

// GenerateKeyRequest binds a new API key to a trader and optionally a
// client
type GenerateKeyRequest struct {
	Trader string `json:"trader" binding:"required"`
	Client string `json:"client"`
}

// @Summary Generate API key
// @Description Mint a new push key for a trader. The full key appears
// @Description in this response only and is never shown again.
// @Tags Keys
// @Accept json
// @Produce json
// @Param request body GenerateKeyRequest true "Key binding"
// @Success 200 {object} Response{data=security.IssuedKey}
// @Failure 401 {object} Response
// @Failure 429 {object} Response
// @Router /admin/keys [post]
func (s *Server) generateAPIKey(c *gin.Context) {
	var req GenerateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	sess := currentSession(c)
	issued, err := s.access.IssueAPIKey(c.Request.Context(), security.ClassKeyGen,
		sess.Identity, req.Trader, req.Client, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, issued)
}

// @Summary List API keys
// @Description List key records by display prefix; key material is not
// @Description recoverable.
// @Tags Keys
// @Produce json
// @Success 200 {object} Response
// @Failure 401 {object} Response
// @Router /admin/keys [get]
func (s *Server) listAPIKeys(c *gin.Context) {
	recs, err := s.access.Vault().List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	sess := currentSession(c)
	if err := s.access.Audit().Record(c.Request.Context(), security.ActionListAPIKeys,
		security.ActorAdmin, sess.Identity, c.ClientIP(), true, ""); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, recs)
}

// @Summary Revoke API key
// @Description Deactivate the key with the given display prefix
// @Tags Keys
// @Produce json
// @Param prefix path string true "Key display prefix"
// @Success 200 {object} Response
// @Failure 401 {object} Response
// @Failure 404 {object} Response
// @Router /admin/keys/{prefix} [delete]
func (s *Server) revokeAPIKey(c *gin.Context) {
	sess := currentSession(c)
	if err := s.access.RevokeAPIKey(c.Request.Context(), sess.Identity, c.Param("prefix"), c.ClientIP()); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}
