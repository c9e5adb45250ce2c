package handlers

import (
	"net/http"
	"time"

	"secure-video-access/internal/apperrors"
	"secure-video-access/internal/middleware"
	"secure-video-access/internal/permissions"

	"github.com/gin-gonic/gin"
)

type PermissionHandler struct {
	perms *permissions.Store
}

func NewPermissionHandler(perms *permissions.Store) *PermissionHandler {
	return &PermissionHandler{perms: perms}
}

type GrantRequest struct {
	UserID    uint64     `json:"user_id" binding:"required"`
	ViewLimit *int       `json:"view_limit"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type GrantResponse struct {
	PermissionID uint64 `json:"permission_id"`
}

// Grant handles POST /api/videos/:id/permissions. Granting is a
// management operation, administrators only.
func (h *PermissionHandler) Grant(c *gin.Context) {
	if !middleware.CallerIsAdmin(c) {
		denied(c, "only administrators can grant permissions")
		return
	}

	postID := pathID(c, "id")
	if postID == 0 {
		badRequest(c, "invalid video id")
		return
	}

	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	permissionID, err := h.perms.Grant(c.Request.Context(), postID, req.UserID, req.ViewLimit, middleware.CallerID(c), req.ExpiresAt)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, GrantResponse{PermissionID: permissionID})
}

// Revoke handles DELETE /api/videos/:id/permissions/:user_id.
func (h *PermissionHandler) Revoke(c *gin.Context) {
	if !middleware.CallerIsAdmin(c) {
		denied(c, "only administrators can revoke permissions")
		return
	}

	postID := pathID(c, "id")
	userID := pathID(c, "user_id")
	if postID == 0 || userID == 0 {
		badRequest(c, "invalid parameters")
		return
	}

	revoked, err := h.perms.Revoke(c.Request.Context(), postID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !revoked {
		c.JSON(http.StatusNotFound, ErrorResponse{Code: apperrors.CodeNotFound, Message: "no permission to revoke"})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Permission revoked successfully."})
}

// List handles GET /api/videos/:id/permissions, most recent grant first.
func (h *PermissionHandler) List(c *gin.Context) {
	if !middleware.CallerIsAdmin(c) {
		denied(c, "only administrators can list permissions")
		return
	}

	postID := pathID(c, "id")
	if postID == 0 {
		badRequest(c, "invalid video id")
		return
	}

	perms, err := h.perms.ListForVideo(c.Request.Context(), postID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"permissions": perms})
}

// AccessibleVideos handles GET /api/users/:id/videos: the ids the user
// can currently view. Self or admin only.
func (h *PermissionHandler) AccessibleVideos(c *gin.Context) {
	userID := pathID(c, "id")
	if userID == 0 {
		badRequest(c, "invalid user id")
		return
	}
	if userID != middleware.CallerID(c) && !middleware.CallerIsAdmin(c) {
		denied(c, "not allowed to list this user's videos")
		return
	}

	postIDs, err := h.perms.ListAccessibleVideos(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"video_ids": postIDs})
}
