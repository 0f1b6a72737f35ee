package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "tradedash/internal/errors"
)

// Response is the standard API response envelope
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// respondOK writes a success envelope
func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// respondError maps an error to its HTTP status. Application errors
// carry their own status and client-safe message; anything else
// becomes a generic 500.
func respondError(c *gin.Context, err error) {
	if appErr := apperrors.GetAppError(err); appErr != nil {
		c.JSON(appErr.HTTPStatus(), Response{Success: false, Error: appErr.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "Internal server error"})
}

// respondBadRequest writes a 400 with the binding error
func respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
}
