package main

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/openwater/govalve/pkg/comms"
)

type Config struct {
	Device      DeviceConfig      `toml:"device"`
	Calibration CalibrationConfig `toml:"calibration"`
	Metrics     MetricsConfig     `toml:"metrics"`
}

type DeviceConfig struct {
	NamePrefix  string `toml:"name_prefix"`
	ScanSeconds int    `toml:"scan_seconds"`
	Mock        bool   `toml:"mock"`
}

type CalibrationConfig struct {
	VolumeML uint32 `toml:"volume_ml"`
}

type MetricsConfig struct {
	Addr string `toml:"addr"`
}

func DefaultConfig() Config {
	return Config{
		Device: DeviceConfig{
			NamePrefix:  "OASIS",
			ScanSeconds: 10,
		},
		Calibration: CalibrationConfig{
			VolumeML: comms.RecommendedCalibrationVolumeML,
		},
	}
}

// LoadConfig reads a TOML config from path, falling back to defaults when no
// path is given. Fields absent from the file keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("could not load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Device.NamePrefix == "" && !c.Device.Mock {
		return fmt.Errorf("device.name_prefix must not be empty")
	}
	if c.Device.ScanSeconds <= 0 {
		return fmt.Errorf("device.scan_seconds must be positive")
	}
	if c.Calibration.VolumeML < comms.MinCalibrationVolumeML {
		return fmt.Errorf("calibration.volume_ml must be at least %d", comms.MinCalibrationVolumeML)
	}
	return nil
}
