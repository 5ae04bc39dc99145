package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/kigyomail/internal/scheduler"
)

type fetchCorporationsResponse struct {
	Success              bool     `json:"success"`
	CSVDate              string   `json:"csvDate"`
	TotalRecords         int      `json:"totalRecords"`
	NewCompanies         int      `json:"newCompanies"`
	Inserted             int      `json:"inserted"`
	MatchedSubscriptions int      `json:"matchedSubscriptions"`
	QueuedCount          int      `json:"queuedCount"`
	Duration             int64    `json:"duration"`
	Errors               []string `json:"errors,omitempty"`
}

type lockQueueResponse struct {
	Success     bool   `json:"success"`
	LockedCount int64  `json:"lockedCount"`
	Date        string `json:"date"`
}

type monthlyBillingResponse struct {
	Success       bool     `json:"success"`
	TotalUsers    int      `json:"totalUsers"`
	DeductedItems int      `json:"deductedItems"`
	PausedUsers   int      `json:"pausedUsers"`
	Errors        []string `json:"errors"`
	Message       string   `json:"message,omitempty"`
}

// FetchCorporations runs the daily ingestion. ?date=YYYYMMDD picks a past
// registry file; the default is today in the service timezone.
func (s *Server) FetchCorporations(c *gin.Context) {
	c.Set("job", scheduler.JobFetchCorporations)

	date, err := parseRegistryDate(c.Query("date"), s.cfg.Location())
	if err != nil {
		AbortWithError(c, newValidationError("date", "invalid_date", "date must be YYYYMMDD"))
		return
	}

	summary, err := s.jobs.FetchCorporations(c.Request.Context(), scheduler.TriggerHTTP, date)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	errs := summary.Errors
	if errs == nil {
		errs = []string{}
	}
	c.JSON(http.StatusOK, fetchCorporationsResponse{
		Success:              true,
		CSVDate:              summary.CSVDate,
		TotalRecords:         summary.TotalRecords,
		NewCompanies:         summary.NewCompanies,
		Inserted:             summary.Inserted,
		MatchedSubscriptions: summary.MatchedSubscriptions,
		QueuedCount:          summary.QueuedCount,
		Duration:             summary.Duration.Milliseconds(),
		Errors:               errs,
	})
}

func (s *Server) LockQueue(c *gin.Context) {
	c.Set("job", scheduler.JobLockQueue)

	result, err := s.jobs.LockQueue(c.Request.Context(), scheduler.TriggerHTTP)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, lockQueueResponse{
		Success:     true,
		LockedCount: result.Locked,
		Date:        result.Date,
	})
}

func (s *Server) MonthlyBilling(c *gin.Context) {
	c.Set("job", scheduler.JobSettleBilling)

	summary, err := s.jobs.SettleBilling(c.Request.Context(), scheduler.TriggerHTTP)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	errs := summary.Errors
	if errs == nil {
		errs = []string{}
	}
	c.JSON(http.StatusOK, monthlyBillingResponse{
		Success:       true,
		TotalUsers:    summary.UsersProcessed,
		DeductedItems: summary.ItemsDeducted,
		PausedUsers:   summary.UsersPaused,
		Errors:        errs,
		Message:       summary.Message,
	})
}
