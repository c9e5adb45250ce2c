package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"secure-video-access/internal/auth"
	"secure-video-access/internal/lifecycle"
	"secure-video-access/internal/middleware"

	"github.com/gin-gonic/gin"
)

type LifecycleHandler struct {
	manager *lifecycle.Manager
}

func NewLifecycleHandler(manager *lifecycle.Manager) *LifecycleHandler {
	return &LifecycleHandler{manager: manager}
}

// Export handles GET /api/users/:id/export?format=json|csv and streams
// the document as a download.
func (h *LifecycleHandler) Export(c *gin.Context) {
	subjectID := pathID(c, "id")
	if subjectID == 0 {
		badRequest(c, "invalid user id")
		return
	}

	format := c.DefaultQuery("format", "json")
	if format != "json" && format != "csv" {
		badRequest(c, "format must be json or csv")
		return
	}

	doc, err := h.manager.Export(c.Request.Context(), subjectID, middleware.CallerID(c))
	if err != nil {
		writeError(c, err)
		return
	}

	filename := lifecycle.Filename(subjectID, format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if format == "csv" {
		c.Data(http.StatusOK, "text/csv", []byte(doc.RenderCSV()))
		return
	}

	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

type DeleteRequest struct {
	AnonymizeOnly bool `json:"anonymize_only"`
}

// Delete handles POST /api/users/:id/delete.
func (h *LifecycleHandler) Delete(c *gin.Context) {
	subjectID := pathID(c, "id")
	if subjectID == 0 {
		badRequest(c, "invalid user id")
		return
	}

	var req DeleteRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}

	outcome, err := h.manager.Delete(
		c.Request.Context(),
		subjectID,
		middleware.CallerID(c),
		req.AnonymizeOnly,
		auth.NormalizeIP(c.ClientIP()),
	)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: outcome})
}

// DeletionHistory handles GET /api/users/:id/deletions: the audit trail,
// self or admin only.
func (h *LifecycleHandler) DeletionHistory(c *gin.Context) {
	subjectID := pathID(c, "id")
	if subjectID == 0 {
		badRequest(c, "invalid user id")
		return
	}
	if subjectID != middleware.CallerID(c) && !middleware.CallerIsAdmin(c) {
		denied(c, "not allowed to read this user's deletion history")
		return
	}

	entries, err := h.manager.DeletionHistory(c.Request.Context(), subjectID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deletions": entries})
}
