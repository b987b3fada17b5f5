package service

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	config := DefaultConfig()
	if err := config.Validate(); err != nil {
		t.Fatalf("DefaultConfig should validate, got: %v", err)
	}
	if config.Timesteps != 24 {
		t.Errorf("Timesteps = %d, expected 24", config.Timesteps)
	}
	if config.SolveInterval != time.Hour {
		t.Errorf("SolveInterval = %v, expected 1h", config.SolveInterval)
	}
}

func TestLoadConfigFromReader(t *testing.T) {
	input := `{
		"entities_file": "plant.json",
		"timesteps": 48,
		"solve_interval": "30m",
		"api_timeout": "10s",
		"listen_port": 9090,
		"dry_run": true
	}`

	config, err := LoadConfigFromReader(strings.NewReader(input))
	if err != nil {
		t.Fatalf("LoadConfigFromReader returned error: %v", err)
	}

	if config.EntitiesFile != "plant.json" {
		t.Errorf("EntitiesFile = %q, expected %q", config.EntitiesFile, "plant.json")
	}
	if config.Timesteps != 48 {
		t.Errorf("Timesteps = %d, expected 48", config.Timesteps)
	}
	if config.SolveInterval != 30*time.Minute {
		t.Errorf("SolveInterval = %v, expected 30m", config.SolveInterval)
	}
	if config.APITimeout != 10*time.Second {
		t.Errorf("APITimeout = %v, expected 10s", config.APITimeout)
	}
	if !config.DryRun {
		t.Error("DryRun should be true")
	}
	// Unset fields keep their defaults.
	if config.Latitude != 56.9496 {
		t.Errorf("Latitude = %v, expected default", config.Latitude)
	}
}

func TestLoadConfigFromReader_InvalidDuration(t *testing.T) {
	_, err := LoadConfigFromReader(strings.NewReader(`{"solve_interval": "sometimes"}`))
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "solve_interval") {
		t.Errorf("error should name the field, got: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "empty entities file",
			mutate:  func(c *Config) { c.EntitiesFile = "" },
			wantErr: "entities_file",
		},
		{
			name:    "zero timesteps",
			mutate:  func(c *Config) { c.Timesteps = 0 },
			wantErr: "timesteps",
		},
		{
			name:    "negative solve interval",
			mutate:  func(c *Config) { c.SolveInterval = -time.Minute },
			wantErr: "solve_interval",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.ListenPort = 70000 },
			wantErr: "listen_port",
		},
		{
			name: "market grid without token",
			mutate: func(c *Config) {
				c.MarketGridName = "city"
				c.SecurityToken = ""
			},
			wantErr: "security_token",
		},
		{
			name: "plant address without storage name",
			mutate: func(c *Config) {
				c.PlantModbusAddress = "192.168.1.10:502"
				c.PlantStorageName = ""
			},
			wantErr: "plant_storage_name",
		},
		{
			name:    "latitude out of range",
			mutate:  func(c *Config) { c.Latitude = 91 },
			wantErr: "latitude",
		},
		{
			name:    "cloud coverage out of range",
			mutate:  func(c *Config) { c.CloudCoverage = 150 },
			wantErr: "cloud_coverage",
		},
		{
			name:    "negative peak solar power",
			mutate:  func(c *Config) { c.PeakSolarPower = -1 },
			wantErr: "peak_solar_power",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error should mention %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfig_JSONRoundTrip(t *testing.T) {
	original := DefaultConfig()
	original.SolveInterval = 45 * time.Minute
	original.EntitiesFile = "site.json"

	data := original.String()

	restored, err := LoadConfigFromReader(strings.NewReader(data))
	if err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if restored.SolveInterval != 45*time.Minute {
		t.Errorf("SolveInterval = %v, expected 45m", restored.SolveInterval)
	}
	if restored.EntitiesFile != "site.json" {
		t.Errorf("EntitiesFile = %q, expected %q", restored.EntitiesFile, "site.json")
	}
}
