package parser

import (
	"github.com/smallbiznis/kigyomail/internal/config"
	"github.com/smallbiznis/kigyomail/internal/registry/domain"
)

// Filter selects newly established entities of tracked legal forms.
type Filter struct {
	processTypes map[string]struct{}
	entityTypes  map[string]struct{}
}

func NewFilter(processTypes, entityTypes []string) Filter {
	f := Filter{
		processTypes: make(map[string]struct{}, len(processTypes)),
		entityTypes:  make(map[string]struct{}, len(entityTypes)),
	}
	for _, code := range processTypes {
		f.processTypes[code] = struct{}{}
	}
	for _, code := range entityTypes {
		f.entityTypes[code] = struct{}{}
	}
	return f
}

// DefaultFilter keeps new (01) 株式会社 and 合同会社 rows.
func DefaultFilter() Filter {
	return NewFilter(
		[]string{domain.ProcessTypeNew},
		[]string{domain.EntityTypeStockCompany, domain.EntityTypeLLC},
	)
}

func FilterFromConfig(cfg config.PipelineConfig) Filter {
	return NewFilter(cfg.NewProcessTypes, cfg.TrackedEntityTypes)
}

func (f Filter) Match(r domain.RawRecord) bool {
	if _, ok := f.processTypes[r.ProcessType]; !ok {
		return false
	}
	_, ok := f.entityTypes[r.EntityType]
	return ok
}

// SelectNewEntities returns the matching records in input order.
func (f Filter) SelectNewEntities(records []domain.RawRecord) []domain.RawRecord {
	selected := make([]domain.RawRecord, 0, len(records))
	for _, r := range records {
		if f.Match(r) {
			selected = append(selected, r)
		}
	}
	return selected
}

// SelectNewEntities applies the default filter.
func SelectNewEntities(records []domain.RawRecord) []domain.RawRecord {
	return DefaultFilter().SelectNewEntities(records)
}
