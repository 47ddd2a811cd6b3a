// Package handler exposes the workflow verbs over HTTP. The transport layer
// is deliberately thin: parse, call the service, map error codes to status
// codes.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pesio-ai/be-dms-workflow/internal/platform/errors"
	"github.com/pesio-ai/be-dms-workflow/internal/platform/logger"
	"github.com/pesio-ai/be-dms-workflow/internal/service"
	"github.com/pesio-ai/be-dms-workflow/internal/workflow"
)

// actorHeader carries the authenticated user ID, set by the gateway in front
// of this service.
const actorHeader = "X-User-ID"

// HTTPHandler handles workflow HTTP requests.
type HTTPHandler struct {
	service *service.WorkflowService
	log     *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(svc *service.WorkflowService, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{service: svc, log: log}
}

// Register wires all workflow routes onto the router.
func (h *HTTPHandler) Register(r *gin.Engine) {
	v1 := r.Group("/api/v1")

	v1.GET("/approvals/pending", h.PendingApprovals)

	entity := v1.Group("/:kind/:id")
	entity.GET("", h.GetEntity)
	entity.GET("/history", h.GetHistory)
	entity.GET("/reassignments", h.GetReassignments)
	entity.POST("/submit", h.Submit)
	entity.POST("/approve", h.Approve)
	entity.POST("/reject", h.Reject)
	entity.POST("/reassign", h.Reassign)
	entity.POST("/resubmit", h.Resubmit)
	entity.POST("/archive", h.Archive)
}

// ── Workflow verbs ────────────────────────────────────────────────────────────

// Submit handles POST /api/v1/:kind/:id/submit.
func (h *HTTPHandler) Submit(c *gin.Context) {
	kind, entityID, actorID, ok := h.requestScope(c)
	if !ok {
		return
	}

	result, err := h.service.Submit(c.Request.Context(), kind, entityID, actorID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type approveRequest struct {
	Comment *string `json:"comment"`
}

// Approve handles POST /api/v1/:kind/:id/approve.
func (h *HTTPHandler) Approve(c *gin.Context) {
	kind, entityID, actorID, ok := h.requestScope(c)
	if !ok {
		return
	}

	var req approveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	result, err := h.service.Approve(c.Request.Context(), kind, entityID, actorID, req.Comment)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// Reject handles POST /api/v1/:kind/:id/reject.
func (h *HTTPHandler) Reject(c *gin.Context) {
	kind, entityID, actorID, ok := h.requestScope(c)
	if !ok {
		return
	}

	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.service.Reject(c.Request.Context(), kind, entityID, actorID, req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type reassignRequest struct {
	FromUserID string  `json:"from_user_id"`
	ToUserID   string  `json:"to_user_id"`
	Message    *string `json:"message"`
}

// Reassign handles POST /api/v1/:kind/:id/reassign.
func (h *HTTPHandler) Reassign(c *gin.Context) {
	kind, entityID, actorID, ok := h.requestScope(c)
	if !ok {
		return
	}

	var req reassignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.service.Reassign(c.Request.Context(), kind, entityID, actorID, req.FromUserID, req.ToUserID, req.Message)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Resubmit handles POST /api/v1/:kind/:id/resubmit.
func (h *HTTPHandler) Resubmit(c *gin.Context) {
	kind, entityID, actorID, ok := h.requestScope(c)
	if !ok {
		return
	}

	result, err := h.service.Resubmit(c.Request.Context(), kind, entityID, actorID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Archive handles POST /api/v1/:kind/:id/archive.
func (h *HTTPHandler) Archive(c *gin.Context) {
	kind, entityID, actorID, ok := h.requestScope(c)
	if !ok {
		return
	}

	result, err := h.service.Archive(c.Request.Context(), kind, entityID, actorID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ── Queries ───────────────────────────────────────────────────────────────────

// GetEntity handles GET /api/v1/:kind/:id.
func (h *HTTPHandler) GetEntity(c *gin.Context) {
	kind, ok := h.kindParam(c)
	if !ok {
		return
	}

	result, chain, err := h.service.Get(c.Request.Context(), kind, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entity": result, "chain": chain})
}

// GetHistory handles GET /api/v1/:kind/:id/history.
func (h *HTTPHandler) GetHistory(c *gin.Context) {
	kind, ok := h.kindParam(c)
	if !ok {
		return
	}

	entries, err := h.service.History(c.Request.Context(), kind, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

// GetReassignments handles GET /api/v1/:kind/:id/reassignments.
func (h *HTTPHandler) GetReassignments(c *gin.Context) {
	kind, ok := h.kindParam(c)
	if !ok {
		return
	}

	records, err := h.service.Reassignments(c.Request.Context(), kind, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reassignments": records})
}

// PendingApprovals handles GET /api/v1/approvals/pending.
func (h *HTTPHandler) PendingApprovals(c *gin.Context) {
	actorID := c.GetHeader(actorHeader)
	if actorID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
		return
	}

	items, err := h.service.PendingForUser(c.Request.Context(), actorID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": items})
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func (h *HTTPHandler) requestScope(c *gin.Context) (workflow.EntityKind, string, string, bool) {
	kind, ok := h.kindParam(c)
	if !ok {
		return "", "", "", false
	}

	actorID := c.GetHeader(actorHeader)
	if actorID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
		return "", "", "", false
	}

	return kind, c.Param("id"), actorID, true
}

func (h *HTTPHandler) kindParam(c *gin.Context) (workflow.EntityKind, bool) {
	kind := workflow.EntityKind(c.Param("kind"))
	if !kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown entity kind"})
		return "", false
	}
	return kind, true
}

// writeError maps service error codes onto HTTP status codes.
func (h *HTTPHandler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch errors.CodeOf(err) {
	case errors.ErrCodeUnauthorized:
		status = http.StatusForbidden
	case errors.ErrCodeNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	case errors.ErrCodeInvalidState, errors.ErrCodeConflict:
		status = http.StatusConflict
	case errors.ErrCodeUnavailable:
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}

	c.JSON(status, gin.H{
		"code":  string(errors.CodeOf(err)),
		"error": errors.MessageOf(err),
	})
}
