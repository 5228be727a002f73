package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Load reads YAML settings from path, fills unset fields from defaults and
// clamps everything into range. A missing file is not an error profile we
// support here: callers that want defaults-only pass an empty path.
func Load(path string) (TradingSettings, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	return Clamp(cfg), nil
}

// LoadWithEnvOverrides loads settings then overrides selected fields from
// TS_* env vars if present.
func LoadWithEnvOverrides(path string) (TradingSettings, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("TS_RISK_PERCENT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RiskPercent = f
		}
	}
	if v := os.Getenv("TS_FEE_PERCENT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.FeePercent = f
		}
	}
	if v := os.Getenv("TS_MAX_DAILY_LOSS_R"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Guardrails.MaxDailyLossR = f
		}
	}
	return Clamp(cfg), nil
}
