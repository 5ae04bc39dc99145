package domain

import (
	"context"
	"time"
)

// Entity type codes used by the registry feed.
const (
	EntityTypeStockCompany = "301" // 株式会社
	EntityTypeLLC          = "305" // 合同会社

	ProcessTypeNew = "01"
)

// DateLayout is the YYYYMMDD label the registry uses for daily files.
const DateLayout = "20060102"

// Archive is one downloaded differential file.
type Archive struct {
	Date     time.Time
	FileName string
	Data     []byte
}

// RawRecord is a single registry row after decoding, before filtering.
type RawRecord struct {
	Sequence        string
	CorporateNumber string
	ProcessType     string
	CorrectionType  string
	UpdateDate      string
	ChangeDate      string
	Name            string
	NameKana        string
	EntityType      string
	Prefecture      string
	City            string
	StreetAddress   string
	ImageID         string
	PrefectureCode  string
	CityCode        string
	PostalCode      string
}

// Fetcher downloads the differential archive published for a date.
type Fetcher interface {
	FetchDailyArchive(ctx context.Context, date time.Time) (Archive, error)
}

// SnapshotStore keeps a copy of downloaded archives.
type SnapshotStore interface {
	Store(ctx context.Context, archive Archive) (string, error)
}

// DateLabel formats date the way the registry portal labels files.
func DateLabel(date time.Time) string {
	return date.Format(DateLayout)
}
