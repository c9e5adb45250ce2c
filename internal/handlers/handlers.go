package handlers

import (
	"net/http"
	"strconv"

	"secure-video-access/internal/apperrors"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the uniform failure body: a stable code plus a
// human-readable message, never internal detail.
type ErrorResponse struct {
	Code    apperrors.Code `json:"code"`
	Message string         `json:"message"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func statusFor(code apperrors.Code) int {
	switch code {
	case apperrors.CodeInvalidInput:
		return http.StatusBadRequest
	case apperrors.CodePermissionDenied, apperrors.CodeFeatureDisabled:
		return http.StatusForbidden
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps an engine error onto the wire contract.
func writeError(c *gin.Context, err error) {
	code := apperrors.CodeOf(err)
	c.JSON(statusFor(code), ErrorResponse{Code: code, Message: apperrors.MessageOf(err)})
}

func denied(c *gin.Context, msg string) {
	c.JSON(http.StatusForbidden, ErrorResponse{Code: apperrors.CodePermissionDenied, Message: msg})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Code: apperrors.CodeInvalidInput, Message: msg})
}

// pathID parses a numeric path parameter, 0 when malformed.
func pathID(c *gin.Context, name string) uint64 {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
