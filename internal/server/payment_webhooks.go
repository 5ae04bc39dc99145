package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/kigyomail/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/kigyomail/internal/payment/domain"
	"go.uber.org/zap"
)

const webhookBodyLimit = 1 << 20

// HandlePaymentWebhook acknowledges every verified delivery the provider must
// not retry. Only signature and payload failures, and genuine processing
// errors, produce a non-2xx status.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, webhookBodyLimit)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err = s.webhookSvc.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header)
	switch {
	case err == nil:
	case errors.Is(err, paymentdomain.ErrEventAlreadyProcessed),
		errors.Is(err, paymentdomain.ErrEventIgnored):
	case errors.Is(err, paymentdomain.ErrCustomerNotFound):
		logger.FromContext(c.Request.Context()).Warn("payment webhook for unknown customer acknowledged",
			zap.String("provider", provider),
		)
	default:
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
