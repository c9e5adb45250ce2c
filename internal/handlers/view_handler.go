package handlers

import (
	"net/http"
	"strconv"

	"secure-video-access/internal/auth"
	"secure-video-access/internal/cache"
	"secure-video-access/internal/middleware"
	"secure-video-access/internal/permissions"
	"secure-video-access/internal/views"

	"github.com/gin-gonic/gin"
)

type ViewHandler struct {
	recorder *views.Recorder
	counts   *cache.CountCache
	perms    *permissions.Store
}

func NewViewHandler(recorder *views.Recorder, counts *cache.CountCache, perms *permissions.Store) *ViewHandler {
	return &ViewHandler{recorder: recorder, counts: counts, perms: perms}
}

type TrackViewRequest struct {
	ViewDuration *int `json:"view_duration"`
}

type TrackViewResponse struct {
	TotalViews     int64  `json:"total_views"`
	UniqueViews    int64  `json:"unique_views"`
	RemainingViews *int   `json:"remaining_views"`
	Message        string `json:"message"`
}

// Track handles POST /api/videos/:id/views. Anonymous callers are
// accepted; whether the view lands is the engine's decision.
func (h *ViewHandler) Track(c *gin.Context) {
	postID := pathID(c, "id")
	if postID == 0 {
		badRequest(c, "invalid video id")
		return
	}

	var req TrackViewRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}

	userID := middleware.CallerID(c)
	meta := views.RequestMeta{
		ClientIP:  auth.NormalizeIP(c.ClientIP()),
		UserAgent: c.Request.UserAgent(),
		Duration:  req.ViewDuration,
	}

	recorded, err := h.recorder.RecordView(c.Request.Context(), postID, userID, meta)
	if err != nil {
		writeError(c, err)
		return
	}
	if !recorded {
		denied(c, "You do not have permission to view this video.")
		return
	}

	counts, err := h.counts.GetCounts(c.Request.Context(), postID)
	if err != nil {
		writeError(c, err)
		return
	}
	remaining, err := h.perms.RemainingViews(c.Request.Context(), postID, userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, TrackViewResponse{
		TotalViews:     counts.Total,
		UniqueViews:    counts.Unique,
		RemainingViews: remaining,
		Message:        "View tracked successfully",
	})
}

// Counts handles GET /api/videos/:id/views.
func (h *ViewHandler) Counts(c *gin.Context) {
	postID := pathID(c, "id")
	if postID == 0 {
		badRequest(c, "invalid video id")
		return
	}

	counts, err := h.counts.GetCounts(c.Request.Context(), postID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

// History handles GET /api/videos/:id/views/history. Administrators only;
// it exposes per-subject rows.
func (h *ViewHandler) History(c *gin.Context) {
	if !middleware.CallerIsAdmin(c) {
		denied(c, "only administrators can read view history")
		return
	}

	postID := pathID(c, "id")
	if postID == 0 {
		badRequest(c, "invalid video id")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	entries, err := h.recorder.ListRecent(c.Request.Context(), postID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"views": entries})
}

// Reset handles DELETE /api/videos/:id/views: the administrative,
// irreversible count reset.
func (h *ViewHandler) Reset(c *gin.Context) {
	if !middleware.CallerIsAdmin(c) {
		denied(c, "only administrators can reset view counts")
		return
	}

	postID := pathID(c, "id")
	if postID == 0 {
		badRequest(c, "invalid video id")
		return
	}

	if err := h.counts.Reset(c.Request.Context(), postID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "View counts reset."})
}
