package api

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tradedash/internal/security"
)

var (
	errInvalidLimit  = errors.New("limit must be between 1 and 1000")
	errInvalidOffset = errors.New("offset must be non-negative")
)

// @Summary Query audit log
// @Description Filter audit entries by action, actor, outcome and time
// @Tags Audit
// @Produce json
// @Param action query string false "Action name"
// @Param actor query string false "Actor ID"
// @Param actor_type query string false "Actor type"
// @Param success query bool false "Outcome"
// @Param since query string false "RFC3339 lower bound"
// @Param until query string false "RFC3339 upper bound"
// @Param limit query int false "Max entries, default 100"
// @Param offset query int false "Skip entries"
// @Success 200 {object} Response
// @Failure 401 {object} Response
// @Router /admin/audit [get]
func (s *Server) queryAudit(c *gin.Context) {
	filter := security.AuditFilter{
		Action:    c.Query("action"),
		ActorID:   c.Query("actor"),
		ActorType: security.ActorType(c.Query("actor_type")),
		Limit:     100,
	}

	if v := c.Query("success"); v != "" {
		success, err := strconv.ParseBool(v)
		if err != nil {
			respondBadRequest(c, err)
			return
		}
		filter.Success = &success
	}
	if v := c.Query("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondBadRequest(c, err)
			return
		}
		filter.Since = t
	}
	if v := c.Query("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondBadRequest(c, err)
			return
		}
		filter.Until = t
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			respondBadRequest(c, errInvalidLimit)
			return
		}
		filter.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondBadRequest(c, errInvalidOffset)
			return
		}
		filter.Offset = n
	}

	entries, err := s.access.Audit().Query(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, entries)
}
