package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	// Reconciliation knobs; milliseconds on the wire side of config.
	DriftToleranceMs     int     `mapstructure:"drift_tolerance_ms"`
	ResumeGraceMs        int     `mapstructure:"resume_grace_ms"`
	SeekSettleMs         int     `mapstructure:"seek_settle_ms"`
	LatencyAlpha         float64 `mapstructure:"latency_alpha"`
	RoomPasswordRequired bool    `mapstructure:"room_password_required"`
}

func (c *Config) DriftTolerance() time.Duration {
	return time.Duration(c.DriftToleranceMs) * time.Millisecond
}

func (c *Config) ResumeGrace() time.Duration {
	return time.Duration(c.ResumeGraceMs) * time.Millisecond
}

func (c *Config) SeekSettle() time.Duration {
	return time.Duration(c.SeekSettleMs) * time.Millisecond
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("drift_tolerance_ms", 500)
	v.SetDefault("resume_grace_ms", 3000)
	v.SetDefault("seek_settle_ms", 5000)
	v.SetDefault("latency_alpha", 0.125)
	v.SetDefault("room_password_required", false)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Drift tolerance: %dms\n", cfg.Mode, cfg.Port, cfg.DriftToleranceMs)
	return &cfg, nil
}
