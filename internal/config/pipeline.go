package config

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// PipelineConfig carries the registry selection and matching rules that
// operators tune without a redeploy.
type PipelineConfig struct {
	NewProcessTypes    []string       `mapstructure:"newProcessTypes" validate:"required,min=1,dive,len=2,numeric"`
	TrackedEntityTypes []string       `mapstructure:"trackedEntityTypes" validate:"required,min=1,dive,len=3,numeric"`
	Matching           MatchingConfig `mapstructure:"matching"`
}

type MatchingConfig struct {
	CityMode string `mapstructure:"cityMode" validate:"oneof=contains exact"`
	// Overrides maps a prefecture name to a city mode.
	Overrides map[string]string `mapstructure:"overrides" validate:"dive,keys,required,endkeys,oneof=contains exact"`
}

// CityModeFor returns the city matching mode for a prefecture.
func (m MatchingConfig) CityModeFor(prefecture string) string {
	if mode, ok := m.Overrides[strings.TrimSpace(prefecture)]; ok && mode != "" {
		return mode
	}
	if m.CityMode == "" {
		return "contains"
	}
	return m.CityMode
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		NewProcessTypes:    []string{"01"},
		TrackedEntityTypes: []string{"301", "305"},
		Matching: MatchingConfig{
			CityMode:  "contains",
			Overrides: map[string]string{},
		},
	}
}

type PipelineConfigHolder struct {
	current atomic.Value // holds PipelineConfig
}

// NewStaticPipelineConfigHolder wraps a fixed config, mainly for tests and CLI runs.
func NewStaticPipelineConfigHolder(cfg PipelineConfig) *PipelineConfigHolder {
	holder := &PipelineConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewPipelineConfigHolder() (*PipelineConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("pipeline")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/kigyomail/config")
	v.AddConfigPath("/etc/kigyomail")
	v.AddConfigPath(".")

	v.SetEnvPrefix("KIGYOMAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPipelineConfig()
	v.SetDefault("pipeline.newProcessTypes", defaults.NewProcessTypes)
	v.SetDefault("pipeline.trackedEntityTypes", defaults.TrackedEntityTypes)
	v.SetDefault("pipeline.matching.cityMode", defaults.Matching.CityMode)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg PipelineConfig
	if err := v.UnmarshalKey("pipeline", &cfg); err != nil {
		return nil, err
	}
	if err := ValidatePipelineConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticPipelineConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PipelineConfig
		if err := v.UnmarshalKey("pipeline", &updated); err != nil {
			log.Printf("[pipeline-config] reload failed: %v", err)
			return
		}
		if err := ValidatePipelineConfig(updated); err != nil {
			log.Printf("[pipeline-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[pipeline-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *PipelineConfigHolder) Get() PipelineConfig {
	if h == nil {
		return DefaultPipelineConfig()
	}
	cfg, ok := h.current.Load().(PipelineConfig)
	if !ok {
		return DefaultPipelineConfig()
	}
	return cfg
}

var pipelineValidator = validator.New()

func ValidatePipelineConfig(cfg PipelineConfig) error {
	if err := pipelineValidator.Struct(cfg); err != nil {
		return fmt.Errorf("invalid pipeline config: %w", err)
	}
	return nil
}
