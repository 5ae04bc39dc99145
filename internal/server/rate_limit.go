package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/kigyomail/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	rateLimitReasonTriggerRate = "trigger-rate"
	rateLimitReasonBackend     = "backend-unavailable"
)

// TriggerRateLimit throttles repeated job triggers per endpoint and caller.
// When Redis is not configured every request passes.
func (s *Server) TriggerRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.triggerLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		endpoint := normalizeRateLimitEndpoint(c)
		result, err := s.triggerLimiter.Allow(ctx, endpoint, c.ClientIP())
		if err != nil {
			logger.FromContext(ctx).Warn("trigger rate limit check failed", zap.Error(err))
			s.obsMetrics.RecordTriggerDenied(ctx, endpoint, rateLimitReasonBackend)
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			logger.FromContext(ctx).Warn("trigger rate limit exceeded",
				zap.String("endpoint", endpoint),
				zap.String("reason", rateLimitReasonTriggerRate),
			)
			s.obsMetrics.RecordTriggerDenied(ctx, endpoint, rateLimitReasonTriggerRate)

			retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.Header("X-Rate-Limited-Reason", rateLimitReasonTriggerRate)
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
