package config

import (
	"time"

	"github.com/radio-control/fhc/internal/adapter/modbus"
)

// Transport kinds.
const (
	TransportFake   = "fake"
	TransportModbus = "modbus"
	TransportUSB    = "usb"
)

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	Timing    TimingConfig    `yaml:"timing"`
	Audit     AuditConfig     `yaml:"audit"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	Auth         AuthConfig    `yaml:"auth"`
}

// AuthConfig configures bearer token verification. With Enabled false
// every request is accepted.
type AuthConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Algorithm    string `yaml:"algorithm"`
	PublicKeyPEM string `yaml:"public_key_pem"`
	JWKSURL      string `yaml:"jwks_url"`
	SecretKey    string `yaml:"secret_key"`
}

// TransportConfig selects and configures the device link.
type TransportConfig struct {
	Kind   string       `yaml:"kind"`
	Modbus ModbusConfig `yaml:"modbus"`
	USB    USBConfig    `yaml:"usb"`
}

// ModbusConfig configures the Modbus TCP bridge link.
type ModbusConfig struct {
	Endpoint  string             `yaml:"endpoint"`
	UnitID    uint8              `yaml:"unit_id"`
	Timeout   time.Duration      `yaml:"timeout"`
	Registers modbus.RegisterMap `yaml:"registers"`
}

// USBConfig configures the USB bulk link.
type USBConfig struct {
	VendorID    uint16 `yaml:"vendor_id"`
	ProductID   uint16 `yaml:"product_id"`
	ConfigNum   int    `yaml:"config"`
	Interface   int    `yaml:"interface"`
	EndpointIn  int    `yaml:"endpoint_in"`
	EndpointOut int    `yaml:"endpoint_out"`
}

// AuditConfig configures the rotating audit log.
type AuditConfig struct {
	Dir        string `yaml:"dir"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// LogConfig configures the service logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the baseline configuration: the simulated device, no
// authentication and the baseline timing.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8000",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
			Auth:         AuthConfig{Algorithm: "RS256"},
		},
		Transport: TransportConfig{
			Kind: TransportFake,
			Modbus: ModbusConfig{
				Timeout:   time.Second,
				Registers: modbus.DefaultRegisterMap(),
			},
			USB: USBConfig{
				ConfigNum:   1,
				EndpointIn:  1,
				EndpointOut: 1,
			},
		},
		Timing: *LoadTimingBaseline(),
		Audit: AuditConfig{
			Dir:        "logs",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}
