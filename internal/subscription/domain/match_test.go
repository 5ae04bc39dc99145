package domain_test

import (
	"testing"

	"github.com/smallbiznis/kigyomail/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func numbers(items []domain.Candidate) []string {
	out := make([]string, 0, len(items))
	for _, c := range items {
		out = append(out, c.CorporateNumber)
	}
	return out
}

func TestMatchCandidates(t *testing.T) {
	entities := []domain.Candidate{
		{CorporateNumber: "1", Prefecture: "東京都", City: "渋谷区"},
		{CorporateNumber: "2", Prefecture: "大阪府", City: "渋谷区"},
		{CorporateNumber: "3", Prefecture: "東京都", City: "府中市"},
		{CorporateNumber: "4", Prefecture: "広島県", City: "安芸郡府中町"},
		{CorporateNumber: "5", Prefecture: "東京都", City: "新宿区"},
	}

	tests := []struct {
		name string
		sub  domain.Subscription
		mode domain.CityMatchMode
		want []string
	}{
		{
			name: "city within prefecture",
			sub:  domain.Subscription{Prefecture: "東京都", City: strPtr("渋谷"), Status: domain.SubscriptionStatusActive},
			mode: domain.CityMatchContains,
			want: []string{"1"},
		},
		{
			name: "whole prefecture",
			sub:  domain.Subscription{Prefecture: "東京都", Status: domain.SubscriptionStatusActive},
			mode: domain.CityMatchContains,
			want: []string{"1", "3", "5"},
		},
		{
			name: "contains matches inside longer city names",
			sub:  domain.Subscription{Prefecture: "広島県", City: strPtr("府中"), Status: domain.SubscriptionStatusActive},
			mode: domain.CityMatchContains,
			want: []string{"4"},
		},
		{
			name: "exact accepts municipal suffix",
			sub:  domain.Subscription{Prefecture: "東京都", City: strPtr("府中"), Status: domain.SubscriptionStatusActive},
			mode: domain.CityMatchExact,
			want: []string{"3"},
		},
		{
			name: "exact rejects partial names",
			sub:  domain.Subscription{Prefecture: "広島県", City: strPtr("府中"), Status: domain.SubscriptionStatusActive},
			mode: domain.CityMatchExact,
			want: []string{},
		},
		{
			name: "blank city is prefecture wide",
			sub:  domain.Subscription{Prefecture: "大阪府", City: strPtr("  "), Status: domain.SubscriptionStatusActive},
			mode: domain.CityMatchExact,
			want: []string{"2"},
		},
		{
			name: "paused never matches",
			sub:  domain.Subscription{Prefecture: "東京都", City: strPtr("渋谷"), Status: domain.SubscriptionStatusPaused},
			mode: domain.CityMatchContains,
			want: []string{},
		},
		{
			name: "cancelled never matches",
			sub:  domain.Subscription{Prefecture: "東京都", Status: domain.SubscriptionStatusCancelled},
			mode: domain.CityMatchContains,
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := domain.MatchCandidates(entities, tt.sub, tt.mode)
			assert.Equal(t, tt.want, numbers(got))
		})
	}
}

func TestParseCityMatchMode(t *testing.T) {
	assert.Equal(t, domain.CityMatchExact, domain.ParseCityMatchMode(" Exact "))
	assert.Equal(t, domain.CityMatchContains, domain.ParseCityMatchMode("contains"))
	assert.Equal(t, domain.CityMatchContains, domain.ParseCityMatchMode("bogus"))
}
