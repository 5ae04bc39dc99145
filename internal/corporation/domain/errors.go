package domain

import "errors"

var (
	ErrInvalidCorporateNumber = errors.New("invalid_corporate_number")
	ErrInvalidCSVDate         = errors.New("invalid_csv_date")
)
