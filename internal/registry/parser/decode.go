package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/smallbiznis/kigyomail/internal/registry/domain"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

const (
	minColumns   = 16
	headerMarker = "連番"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeRows decodes a CP932 registry CSV into raw records. Rows shorter
// than the column map and blank lines are dropped.
func DecodeRows(data []byte) ([]domain.RawRecord, error) {
	text, err := decodeCP932(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFormat, err)
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	var records []domain.RawRecord
	first := true
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", domain.ErrFormat, err)
		}

		if first {
			first = false
			if isHeader(row) {
				continue
			}
		}
		if len(row) < minColumns {
			continue
		}

		records = append(records, toRecord(row))
	}
	return records, nil
}

func decodeCP932(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	decoded, _, err := transform.Bytes(japanese.ShiftJIS.NewDecoder(), data)
	if err != nil {
		return "", err
	}
	return string(bytes.TrimPrefix(decoded, utf8BOM)), nil
}

func isHeader(row []string) bool {
	for _, cell := range row {
		if strings.Contains(cell, headerMarker) {
			return true
		}
	}
	return false
}

func toRecord(row []string) domain.RawRecord {
	col := func(i int) string {
		return strings.TrimSpace(row[i])
	}
	return domain.RawRecord{
		Sequence:        col(0),
		CorporateNumber: col(1),
		ProcessType:     col(2),
		CorrectionType:  col(3),
		UpdateDate:      col(4),
		ChangeDate:      col(5),
		Name:            col(6),
		NameKana:        col(7),
		EntityType:      col(8),
		Prefecture:      col(9),
		City:            col(10),
		StreetAddress:   col(11),
		ImageID:         col(12),
		PrefectureCode:  col(13),
		CityCode:        col(14),
		PostalCode:      col(15),
	}
}
