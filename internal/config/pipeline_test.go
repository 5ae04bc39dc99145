package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePipelineConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*PipelineConfig)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*PipelineConfig) {}},
		{name: "no entity types", mutate: func(c *PipelineConfig) { c.TrackedEntityTypes = nil }, wantErr: true},
		{name: "bad entity code", mutate: func(c *PipelineConfig) { c.TrackedEntityTypes = []string{"30"} }, wantErr: true},
		{name: "bad process code", mutate: func(c *PipelineConfig) { c.NewProcessTypes = []string{"x1"} }, wantErr: true},
		{name: "unknown city mode", mutate: func(c *PipelineConfig) { c.Matching.CityMode = "fuzzy" }, wantErr: true},
		{name: "bad override", mutate: func(c *PipelineConfig) {
			c.Matching.Overrides = map[string]string{"東京都": "prefix"}
		}, wantErr: true},
		{name: "exact override", mutate: func(c *PipelineConfig) {
			c.Matching.Overrides = map[string]string{"東京都": "exact"}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultPipelineConfig()
			tt.mutate(&cfg)
			err := ValidatePipelineConfig(cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCityModeFor(t *testing.T) {
	m := MatchingConfig{
		CityMode:  "contains",
		Overrides: map[string]string{"東京都": "exact"},
	}
	assert.Equal(t, "exact", m.CityModeFor("東京都"))
	assert.Equal(t, "contains", m.CityModeFor("大阪府"))
	assert.Equal(t, "contains", MatchingConfig{}.CityModeFor("大阪府"))
}

func TestStaticHolder(t *testing.T) {
	cfg := DefaultPipelineConfig()
	cfg.TrackedEntityTypes = []string{"301"}
	holder := NewStaticPipelineConfigHolder(cfg)
	require.Equal(t, []string{"301"}, holder.Get().TrackedEntityTypes)

	var nilHolder *PipelineConfigHolder
	require.Equal(t, DefaultPipelineConfig().TrackedEntityTypes, nilHolder.Get().TrackedEntityTypes)
}

func TestPlans(t *testing.T) {
	plan, ok := PlanByAmount(15200)
	require.True(t, ok)
	assert.Equal(t, "pro", plan.Key)
	assert.Equal(t, 40, plan.Letters)

	_, ok = PlanByAmount(1)
	assert.False(t, ok)

	assert.Equal(t, int64(22800), MaxBalance(7600))
	assert.Equal(t, int64(22800), MaxBalance(0))
}
