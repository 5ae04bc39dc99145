package server

import (
	"crypto/subtle"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/kigyomail/internal/observability/context"
	"github.com/smallbiznis/kigyomail/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	HeaderUserID     = "X-User-Id"
	contextUserIDKey = "user_id"

	actorCron     = "cron"
	actorAdmin    = "admin"
	actorCustomer = "customer"
)

// CronAuthRequired guards the job triggers with the CRON_SECRET bearer token.
func (s *Server) CronAuthRequired() gin.HandlerFunc {
	return s.bearerRequired(func() string { return s.cfg.CronSecret }, actorCron)
}

// AdminAuthRequired guards operator and customer-proxy routes with ADMIN_API_KEY.
func (s *Server) AdminAuthRequired() gin.HandlerFunc {
	return s.bearerRequired(func() string { return s.cfg.AdminAPIKey }, actorAdmin)
}

func (s *Server) bearerRequired(secret func() string, actor string) gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := strings.TrimSpace(secret())
		if expected == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			logger.FromContext(c.Request.Context()).Warn("bearer authentication failed",
				zap.String("actor", actor),
				zap.String("route", c.FullPath()),
			)
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := obscontext.WithActor(c.Request.Context(), actor, "")
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CustomerRequired resolves the customer a dashboard request acts for. The
// dashboard authenticates the session and forwards the id in X-User-Id.
func (s *Server) CustomerRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderUserID))
		id, err := snowflake.ParseString(raw)
		if raw == "" || err != nil || id <= 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		userID := strconv.FormatInt(id.Int64(), 10)
		ctx := obscontext.WithUserID(c.Request.Context(), userID)
		ctx = obscontext.WithActor(ctx, actorCustomer, userID)
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextUserIDKey, id)
		c.Next()
	}
}

func customerID(c *gin.Context) snowflake.ID {
	value, ok := c.Get(contextUserIDKey)
	if !ok {
		return 0
	}
	id, _ := value.(snowflake.ID)
	return id
}

func bearerToken(header string) (string, bool) {
	parts := strings.Fields(strings.TrimSpace(header))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
