package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kigyomail/internal/corporation/domain"
	"gorm.io/gorm"
)

// lookupChunk keeps IN lists well under driver parameter limits.
const lookupChunk = 500

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, c *domain.Corporation) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO corporations (
			id, corporate_number, process_type, correction_type, company_name,
			company_name_kana, entity_type, prefecture, city, street_address,
			prefecture_code, city_code, postal_code, change_date, update_date,
			csv_date, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (corporate_number) DO UPDATE SET
			process_type = excluded.process_type,
			correction_type = excluded.correction_type,
			company_name = excluded.company_name,
			company_name_kana = excluded.company_name_kana,
			entity_type = excluded.entity_type,
			prefecture = excluded.prefecture,
			city = excluded.city,
			street_address = excluded.street_address,
			prefecture_code = excluded.prefecture_code,
			city_code = excluded.city_code,
			postal_code = excluded.postal_code,
			change_date = excluded.change_date,
			update_date = excluded.update_date,
			csv_date = excluded.csv_date,
			updated_at = excluded.updated_at`,
		c.ID,
		c.CorporateNumber,
		c.ProcessType,
		c.CorrectionType,
		c.CompanyName,
		c.CompanyNameKana,
		c.EntityType,
		c.Prefecture,
		c.City,
		c.StreetAddress,
		c.PrefectureCode,
		c.CityCode,
		c.PostalCode,
		c.ChangeDate,
		c.UpdateDate,
		c.CSVDate,
		c.CreatedAt,
		c.UpdatedAt,
	).Error
}

func (r *repo) ExistingNumbers(ctx context.Context, db *gorm.DB, numbers []string) (map[string]snowflake.ID, error) {
	out := make(map[string]snowflake.ID, len(numbers))
	for start := 0; start < len(numbers); start += lookupChunk {
		end := min(start+lookupChunk, len(numbers))

		var rows []struct {
			ID              snowflake.ID
			CorporateNumber string
		}
		err := db.WithContext(ctx).Raw(
			`SELECT id, corporate_number
			 FROM corporations
			 WHERE corporate_number IN ?`,
			numbers[start:end],
		).Scan(&rows).Error
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			out[row.CorporateNumber] = row.ID
		}
	}
	return out, nil
}

func (r *repo) FindByNumber(ctx context.Context, db *gorm.DB, number string) (*domain.Corporation, error) {
	var item domain.Corporation
	err := db.WithContext(ctx).Raw(
		`SELECT id, corporate_number, process_type, correction_type, company_name,
			company_name_kana, entity_type, prefecture, city, street_address,
			prefecture_code, city_code, postal_code, change_date, update_date,
			csv_date, created_at, updated_at
		 FROM corporations
		 WHERE corporate_number = ?
		 LIMIT 1`,
		number,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}
