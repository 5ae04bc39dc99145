package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	registrydomain "github.com/smallbiznis/kigyomail/internal/registry/domain"
	"gorm.io/gorm"
)

// Corporation is a registry entity keyed by its 13-digit corporate number.
type Corporation struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	CorporateNumber string       `json:"corporate_number" gorm:"uniqueIndex"`
	ProcessType     string       `json:"process_type"`
	CorrectionType  string       `json:"correction_type"`
	CompanyName     string       `json:"company_name"`
	CompanyNameKana string       `json:"company_name_kana"`
	EntityType      string       `json:"entity_type"`
	Prefecture      string       `json:"prefecture"`
	City            string       `json:"city"`
	StreetAddress   string       `json:"street_address"`
	PrefectureCode  string       `json:"prefecture_code"`
	CityCode        string       `json:"city_code"`
	PostalCode      string       `json:"postal_code"`
	ChangeDate      string       `json:"change_date"`
	UpdateDate      string       `json:"update_date"`
	CSVDate         string       `json:"csv_date" gorm:"column:csv_date"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

func (Corporation) TableName() string { return "corporations" }

// FromRecord maps a registry row onto the persisted shape.
func FromRecord(r registrydomain.RawRecord, csvDate string) Corporation {
	return Corporation{
		CorporateNumber: r.CorporateNumber,
		ProcessType:     r.ProcessType,
		CorrectionType:  r.CorrectionType,
		CompanyName:     r.Name,
		CompanyNameKana: r.NameKana,
		EntityType:      r.EntityType,
		Prefecture:      r.Prefecture,
		City:            r.City,
		StreetAddress:   r.StreetAddress,
		PrefectureCode:  r.PrefectureCode,
		CityCode:        r.CityCode,
		PostalCode:      r.PostalCode,
		ChangeDate:      r.ChangeDate,
		UpdateDate:      r.UpdateDate,
		CSVDate:         csvDate,
	}
}

type UpsertResult struct {
	Inserted int
	Updated  int
	Failed   int
}

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, c *Corporation) error
	ExistingNumbers(ctx context.Context, db *gorm.DB, numbers []string) (map[string]snowflake.ID, error)
	FindByNumber(ctx context.Context, db *gorm.DB, number string) (*Corporation, error)
}

type Service interface {
	Upsert(ctx context.Context, record registrydomain.RawRecord, csvDate string) error
	UpsertBatch(ctx context.Context, records []registrydomain.RawRecord, csvDate string) UpsertResult
	ResolveIDs(ctx context.Context, numbers []string) (map[string]snowflake.ID, error)
}
