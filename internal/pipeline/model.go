package pipeline

import (
	"errors"
	"time"
)

// Summary is the outcome of one registry ingestion run.
type Summary struct {
	CSVDate              string        `json:"csvDate"`
	TotalRecords         int           `json:"totalRecords"`
	NewCompanies         int           `json:"newCompanies"`
	Inserted             int           `json:"inserted"`
	Created              int           `json:"created"`
	MatchedSubscriptions int           `json:"matchedSubscriptions"`
	QueuedCount          int           `json:"queuedCount"`
	Errors               []string      `json:"errors,omitempty"`
	Duration             time.Duration `json:"-"`
}

var ErrNoFetcher = errors.New("registry_fetcher_not_configured")
