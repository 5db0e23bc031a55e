package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Unlimited marks a plan without a monthly invoice cap.
const Unlimited = -1

// Plan describes the limits of one subscription tier.
type Plan struct {
	Name            string `mapstructure:"name"`
	MonthlyInvoices int    `mapstructure:"monthlyInvoices"`
	BatchUpload     bool   `mapstructure:"batchUpload"`
	Watermark       bool   `mapstructure:"watermark"`
}

type PlansConfig struct {
	DefaultTier string          `mapstructure:"defaultTier"`
	Tiers       map[string]Plan `mapstructure:"tiers"`
}

func DefaultPlansConfig() PlansConfig {
	return PlansConfig{
		DefaultTier: "free",
		Tiers: map[string]Plan{
			"free":         {Name: "Free", MonthlyInvoices: 5, Watermark: true},
			"starter":      {Name: "Starter", MonthlyInvoices: 50},
			"professional": {Name: "Professional", MonthlyInvoices: 200, BatchUpload: true},
			"business":     {Name: "Business", MonthlyInvoices: Unlimited, BatchUpload: true},
		},
	}
}

// Plan returns the plan for a tier, falling back to the default tier.
func (c PlansConfig) Plan(tier string) Plan {
	if plan, ok := c.Tiers[strings.ToLower(strings.TrimSpace(tier))]; ok {
		return plan
	}
	return c.Tiers[c.DefaultTier]
}

type PlansHolder struct {
	current atomic.Value // holds PlansConfig
}

// NewStaticPlansHolder wraps a fixed plan set.
func NewStaticPlansHolder(cfg PlansConfig) *PlansHolder {
	holder := &PlansHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewPlansHolder(log *zap.Logger) (*PlansHolder, error) {
	log = log.Named("config.plans")
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/invoicekits")
	v.AddConfigPath(".")

	v.SetEnvPrefix("INVOICEKITS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPlansConfig()
	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
		v.SetDefault("plans.defaultTier", defaults.DefaultTier)
		v.SetDefault("plans.tiers", defaults.Tiers)
	}

	cfg, err := decodePlans(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticPlansHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodePlans(v)
		if err != nil {
			log.Warn("plans reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("plans reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PlansHolder) Get() PlansConfig {
	return h.current.Load().(PlansConfig)
}

func decodePlans(v *viper.Viper) (PlansConfig, error) {
	var cfg PlansConfig
	if err := v.UnmarshalKey("plans", &cfg); err != nil {
		return PlansConfig{}, err
	}
	normalized := make(map[string]Plan, len(cfg.Tiers))
	for key, plan := range cfg.Tiers {
		normalized[strings.ToLower(key)] = plan
	}
	cfg.Tiers = normalized
	cfg.DefaultTier = strings.ToLower(strings.TrimSpace(cfg.DefaultTier))
	return cfg, validatePlans(cfg)
}

func validatePlans(cfg PlansConfig) error {
	if len(cfg.Tiers) == 0 {
		return errors.New("plans.tiers cannot be empty")
	}
	if _, ok := cfg.Tiers[cfg.DefaultTier]; !ok {
		return fmt.Errorf("plans.defaultTier %q is not a configured tier", cfg.DefaultTier)
	}
	for key, plan := range cfg.Tiers {
		if plan.MonthlyInvoices < Unlimited {
			return fmt.Errorf("plans.tiers.%s.monthlyInvoices must be >= -1", key)
		}
	}
	return nil
}
