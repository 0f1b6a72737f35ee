package api

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
)

// PushRequest carries one section payload for one client
type PushRequest struct {
	Client  string          `json:"client" binding:"required,email"`
	Payload json.RawMessage `json:"payload" binding:"required"`
}

// UpdateFieldRequest sets one whitelisted field for one client
type UpdateFieldRequest struct {
	Client string `json:"client" binding:"required,email"`
	Field  string `json:"field" binding:"required"`
	Value  string `json:"value"`
}

// pushSection handles the per-section push endpoints. The key that
// authenticated the request decides which trader is pushing; the body
// cannot impersonate anyone else.
func (s *Server) pushSection(section string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PushRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, err)
			return
		}

		key := currentAPIKey(c)
		if err := s.data.Push(c.Request.Context(), key.Trader, req.Client, section, req.Payload, c.ClientIP()); err != nil {
			respondError(c, err)
			return
		}
		if s.metrics != nil {
			s.metrics.RecordDataPush(section)
		}
		respondOK(c, nil)
	}
}

// @Summary Update dashboard field
// @Description Set a single whitelisted field on a client's dashboard
// @Tags Push
// @Accept json
// @Produce json
// @Param request body UpdateFieldRequest true "Field update"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 401 {object} Response
// @Router /push/update [post]
func (s *Server) updateField(c *gin.Context) {
	var req UpdateFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	key := currentAPIKey(c)
	if err := s.data.UpdateField(c.Request.Context(), key.Trader, req.Client, req.Field, req.Value, c.ClientIP()); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}
