package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	mailqueuedomain "github.com/smallbiznis/kigyomail/internal/mailqueue/domain"
)

type markSentRequest struct {
	IDs []string `json:"ids"`
}

type cancelQueueItemRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) ListQueue(c *gin.Context) {
	userID, err := parseOptionalSnowflakeID(c.Query("user_id"))
	if err != nil {
		AbortWithError(c, newValidationError("user_id", "invalid_user_id", "invalid user_id"))
		return
	}
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	req := mailqueuedomain.ListRequest{Limit: limit}
	if userID != nil {
		req.UserID = *userID
	}
	for _, status := range splitQueryList(c.Query("status")) {
		req.Statuses = append(req.Statuses, mailqueuedomain.Status(strings.ToLower(status)))
	}

	items, err := s.queueSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if items == nil {
		items = []mailqueuedomain.MailJob{}
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

// MarkQueueSent is the fulfilment callback from the print vendor.
func (s *Server) MarkQueueSent(c *gin.Context) {
	var req markSentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ids := make([]snowflake.ID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := snowflake.ParseString(strings.TrimSpace(raw))
		if err != nil || id <= 0 {
			AbortWithError(c, newValidationError("ids", "invalid_id", "ids must be numeric strings"))
			return
		}
		ids = append(ids, id)
	}

	updated, err := s.queueSvc.MarkSent(c.Request.Context(), ids)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"updated": updated,
	})
}

func (s *Server) CancelQueueItem(c *gin.Context) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || id <= 0 {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	var req cancelQueueItemRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	if err := s.queueSvc.Cancel(c.Request.Context(), mailqueuedomain.CancelRequest{
		UserID: customerID(c),
		ID:     id,
		Reason: req.Reason,
	}); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
