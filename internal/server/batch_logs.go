package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	batchlogdomain "github.com/smallbiznis/kigyomail/internal/batchlog/domain"
)

func (s *Server) ListBatchLogs(c *gin.Context) {
	loc := s.cfg.Location()
	startAt, err := parseOptionalTime(c.Query("start_at"), false, loc)
	if err != nil {
		AbortWithError(c, newValidationError("start_at", "invalid_start_at", "invalid start_at"))
		return
	}
	endAt, err := parseOptionalTime(c.Query("end_at"), true, loc)
	if err != nil {
		AbortWithError(c, newValidationError("end_at", "invalid_end_at", "invalid end_at"))
		return
	}
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	logs, err := s.batchLogSvc.List(c.Request.Context(), batchlogdomain.ListRequest{
		BatchType: batchlogdomain.BatchType(strings.TrimSpace(c.Query("batch_type"))),
		Status:    batchlogdomain.Status(strings.TrimSpace(c.Query("status"))),
		StartAt:   startAt,
		EndAt:     endAt,
		Limit:     limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if logs == nil {
		logs = []batchlogdomain.BatchLog{}
	}

	c.JSON(http.StatusOK, gin.H{"data": logs})
}
