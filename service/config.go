// Package service runs the long-lived dispatch mode: a periodic solve loop
// that enriches a base entity document with live market prices, measured
// plant state and a synthesized solar profile, persists the resulting
// schedule and serves it over HTTP and websocket.
package service

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Config represents the configuration for the dispatch service.
type Config struct {
	// Solve loop settings
	EntitiesFile  string        `json:"entities_file"`  // Base entity document path
	Timesteps     int           `json:"timesteps"`      // Horizon length (hours)
	SolveInterval time.Duration `json:"solve_interval"` // How often to re-solve
	DryRun        bool          `json:"dry_run"`        // Skip persistence, log only

	// Web server
	ListenPort int `json:"listen_port"` // Port for the web server (0 = disabled)

	// Persistence
	PostgresConnString string `json:"postgres_conn_string"` // PostgreSQL connection string (empty = disabled)

	// Market price API
	SecurityToken     string        `json:"security_token"`      // Price API token
	URLFormat         string        `json:"url_format"`          // Price API URL format string
	Location          string        `json:"location"`            // Market timezone (e.g. "CET")
	APITimeout        time.Duration `json:"api_timeout"`         // Timeout for API calls
	MarketGridName    string        `json:"market_grid_name"`    // Grid entity receiving market prices (empty = disabled)
	ImportOperatorFee float64       `json:"import_operator_fee"` // EUR/MWh added to import price
	ImportDeliveryFee float64       `json:"import_delivery_fee"` // EUR/MWh added to import price
	ExportOperatorFee float64       `json:"export_operator_fee"` // EUR/MWh subtracted from export price

	// Plant Modbus server
	PlantModbusAddress string `json:"plant_modbus_address"` // IP:PORT (empty = disabled)
	PlantStorageName   string `json:"plant_storage_name"`   // Storage entity receiving the measured SoC

	// Solar profile synthesis
	SolarProducerName string  `json:"solar_producer_name"` // Producer entity receiving the solar profile (empty = disabled)
	Latitude          float64 `json:"latitude"`            // Site latitude
	Longitude         float64 `json:"longitude"`           // Site longitude
	PeakSolarPower    float64 `json:"peak_solar_power"`    // kW - peak solar power capacity
	CloudCoverage     float64 `json:"cloud_coverage"`      // % assumed cloud coverage (0-100)
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		EntitiesFile:      "entities.json",
		Timesteps:         24,
		SolveInterval:     1 * time.Hour,
		DryRun:            false,
		ListenPort:        0,
		APITimeout:        30 * time.Second,
		Location:          "CET",
		URLFormat:         "https://web-api.tp.entsoe.eu/api?documentType=A44&out_Domain=10YLV-1001A00074&in_Domain=10YLV-1001A00074&periodStart=%s&periodEnd=%s&securityToken=%s",
		ImportOperatorFee: 8.5,
		ImportDeliveryFee: 40.0,
		ExportOperatorFee: 17.0,
		Latitude:          56.9496, // Riga, Latvia
		Longitude:         24.1052, // Riga, Latvia
		PeakSolarPower:    30.0,
		CloudCoverage:     0.0,
	}
}

// LoadConfig loads configuration from a JSON file.
func LoadConfig(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	config := DefaultConfig()

	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config JSON: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	if c.EntitiesFile == "" {
		return fmt.Errorf("entities_file cannot be empty")
	}

	if c.Timesteps < 1 {
		return fmt.Errorf("timesteps must be at least 1, got: %d", c.Timesteps)
	}

	if c.SolveInterval <= 0 {
		return fmt.Errorf("solve_interval must be greater than 0, got: %s", c.SolveInterval)
	}

	if c.APITimeout <= 0 {
		return fmt.Errorf("api_timeout must be greater than 0, got: %s", c.APITimeout)
	}

	if c.ListenPort < 0 || c.ListenPort > 65535 {
		return fmt.Errorf("listen_port must be between 0 and 65535, got: %d", c.ListenPort)
	}

	if c.MarketGridName != "" {
		if c.SecurityToken == "" {
			return fmt.Errorf("security_token cannot be empty when market_grid_name is set")
		}
		if c.URLFormat == "" {
			return fmt.Errorf("url_format cannot be empty when market_grid_name is set")
		}
	}

	if c.PlantModbusAddress != "" && c.PlantStorageName == "" {
		return fmt.Errorf("plant_storage_name cannot be empty when plant_modbus_address is set")
	}

	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude must be between -90 and 90, got: %f", c.Latitude)
	}

	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude must be between -180 and 180, got: %f", c.Longitude)
	}

	if c.PeakSolarPower < 0 {
		return fmt.Errorf("peak_solar_power must be non-negative, got: %f", c.PeakSolarPower)
	}

	if c.CloudCoverage < 0 || c.CloudCoverage > 100 {
		return fmt.Errorf("cloud_coverage must be between 0 and 100, got: %f", c.CloudCoverage)
	}

	if c.ImportOperatorFee < 0 {
		return fmt.Errorf("import_operator_fee must be non-negative, got: %f", c.ImportOperatorFee)
	}

	if c.ImportDeliveryFee < 0 {
		return fmt.Errorf("import_delivery_fee must be non-negative, got: %f", c.ImportDeliveryFee)
	}

	if c.ExportOperatorFee < 0 {
		return fmt.Errorf("export_operator_fee must be non-negative, got: %f", c.ExportOperatorFee)
	}

	return nil
}

// MarshalJSON implements custom JSON marshaling to handle durations.
func (c *Config) MarshalJSON() ([]byte, error) {
	type Alias Config
	return json.Marshal(&struct {
		*Alias
		SolveInterval string `json:"solve_interval"`
		APITimeout    string `json:"api_timeout"`
	}{
		Alias:         (*Alias)(c),
		SolveInterval: c.SolveInterval.String(),
		APITimeout:    c.APITimeout.String(),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling to handle durations.
func (c *Config) UnmarshalJSON(data []byte) error {
	type Alias Config
	aux := &struct {
		*Alias
		SolveInterval string `json:"solve_interval"`
		APITimeout    string `json:"api_timeout"`
	}{
		Alias: (*Alias)(c),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if aux.SolveInterval != "" {
		if c.SolveInterval, err = time.ParseDuration(aux.SolveInterval); err != nil {
			return fmt.Errorf("invalid solve_interval: %w", err)
		}
	}

	if aux.APITimeout != "" {
		if c.APITimeout, err = time.ParseDuration(aux.APITimeout); err != nil {
			return fmt.Errorf("invalid api_timeout: %w", err)
		}
	}

	return nil
}

// String returns a string representation of the config.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
