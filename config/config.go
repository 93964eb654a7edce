package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/evshare/infra/mqtt"
)

type Config struct {
	MQTT      mqtt.Config     `json:"mqtt"`
	Fleet     FleetConfig     `json:"fleet"`
	Telemetry TelemetryConfig `json:"telemetry"`
	Rides     RidesConfig     `json:"rides"`
	Storage   StorageConfig   `json:"storage"`
	Metrics   MetricsConfig   `json:"metrics"`
	API       APIConfig       `json:"api"`
}

// FleetConfig declares the vehicles known to the system.
type FleetConfig struct {
	Vehicles []VehicleConfig `json:"vehicles"`
}

// VehicleConfig describes one vehicle of the fleet.
type VehicleConfig struct {
	ID               string `json:"id"`
	Electric         bool   `json:"electric"`
	UnderMaintenance bool   `json:"under_maintenance"`
}

func (c FleetConfig) Validate() error {
	seen := make(map[string]bool, len(c.Vehicles))
	for _, v := range c.Vehicles {
		if v.ID == "" {
			return fmt.Errorf("fleet: vehicle with empty id")
		}
		if seen[v.ID] {
			return fmt.Errorf("fleet: duplicate vehicle id %q", v.ID)
		}
		seen[v.ID] = true
	}
	return nil
}

// TelemetryConfig drives the battery emulation loop.
type TelemetryConfig struct {
	TickSeconds int `json:"tick_seconds"`
}

func (c *TelemetryConfig) SetDefaults() {
	if c.TickSeconds <= 0 {
		c.TickSeconds = 30
	}
}

// Interval returns the emulation cadence.
func (c TelemetryConfig) Interval() time.Duration {
	return time.Duration(c.TickSeconds) * time.Second
}

// RidesConfig tunes the admission sequence.
type RidesConfig struct {
	QueryTimeoutSeconds int `json:"query_timeout_seconds"`
}

func (c *RidesConfig) SetDefaults() {
	if c.QueryTimeoutSeconds <= 0 {
		c.QueryTimeoutSeconds = 10
	}
}

// QueryTimeout returns how long a battery query may wait for a device.
func (c RidesConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSeconds) * time.Second
}

// StorageConfig selects the ride repository backend.
type StorageConfig struct {
	Backend string `json:"backend"`
	Path    string `json:"path"`
}

func (c *StorageConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
}

func (c StorageConfig) Validate() error {
	switch c.Backend {
	case "memory":
		return nil
	case "sqlite":
		if c.Path == "" {
			return fmt.Errorf("storage: sqlite backend requires a path")
		}
		return nil
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Backend)
	}
}

// MetricsConfig configures the Prometheus endpoint and the optional
// InfluxDB battery sample sink.
type MetricsConfig struct {
	PromAddr     string `json:"prom_addr"`
	InfluxURL    string `json:"influx_url"`
	InfluxToken  string `json:"influx_token"`
	InfluxOrg    string `json:"influx_org"`
	InfluxBucket string `json:"influx_bucket"`
}

// APIConfig configures the administrative HTTP surface.
type APIConfig struct {
	Addr       string `json:"addr"`
	AdminToken string `json:"admin_token"`
}

func (c *APIConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("EVS_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "evs_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Telemetry.SetDefaults()
	cfg.Rides.SetDefaults()
	cfg.Storage.SetDefaults()
	cfg.API.SetDefaults()
	if err := cfg.Storage.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Fleet.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
