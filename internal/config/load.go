package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the variable consulted when no file path is given.
const EnvConfigPath = "FHC_CONFIG"

// Load builds the configuration from Default, the YAML file at path (or
// $FHC_CONFIG when path is empty) and FHC_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile overlays the YAML document at path onto cfg. Keys absent from
// the file keep their current values.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides applies FHC_* environment variables to cfg.
func applyEnvOverrides(cfg *Config) error {
	var err error
	str := func(key string, dst *string) {
		if val := os.Getenv(key); val != "" {
			*dst = val
		}
	}
	dur := func(key string, dst *time.Duration) {
		if val := os.Getenv(key); val != "" && err == nil {
			d, perr := time.ParseDuration(val)
			if perr != nil {
				err = fmt.Errorf("%s: %w", key, perr)
				return
			}
			*dst = d
		}
	}
	num := func(key string, bits int, set func(uint64)) {
		if val := os.Getenv(key); val != "" && err == nil {
			n, perr := strconv.ParseUint(val, 0, bits)
			if perr != nil {
				err = fmt.Errorf("%s: %w", key, perr)
				return
			}
			set(n)
		}
	}
	flag := func(key string, dst *bool) {
		if val := os.Getenv(key); val != "" && err == nil {
			b, perr := strconv.ParseBool(val)
			if perr != nil {
				err = fmt.Errorf("%s: %w", key, perr)
				return
			}
			*dst = b
		}
	}

	str("FHC_ADDR", &cfg.Server.Addr)
	flag("FHC_AUTH_ENABLED", &cfg.Server.Auth.Enabled)
	str("FHC_AUTH_ALGORITHM", &cfg.Server.Auth.Algorithm)
	str("FHC_AUTH_JWKS_URL", &cfg.Server.Auth.JWKSURL)
	str("FHC_AUTH_SECRET", &cfg.Server.Auth.SecretKey)

	str("FHC_TRANSPORT", &cfg.Transport.Kind)
	str("FHC_MODBUS_ENDPOINT", &cfg.Transport.Modbus.Endpoint)
	num("FHC_MODBUS_UNIT_ID", 8, func(n uint64) { cfg.Transport.Modbus.UnitID = uint8(n) })
	dur("FHC_MODBUS_TIMEOUT", &cfg.Transport.Modbus.Timeout)
	num("FHC_USB_VID", 16, func(n uint64) { cfg.Transport.USB.VendorID = uint16(n) })
	num("FHC_USB_PID", 16, func(n uint64) { cfg.Transport.USB.ProductID = uint16(n) })

	dur("FHC_TIMING_HEARTBEAT_INTERVAL", &cfg.Timing.HeartbeatInterval)
	dur("FHC_TIMING_HEARTBEAT_JITTER", &cfg.Timing.HeartbeatJitter)
	dur("FHC_TIMING_HEARTBEAT_TIMEOUT", &cfg.Timing.HeartbeatTimeout)
	dur("FHC_TIMING_COMMAND_CONFIGURE", &cfg.Timing.CommandTimeoutConfigure)
	dur("FHC_TIMING_COMMAND_TABLE", &cfg.Timing.CommandTimeoutTable)
	dur("FHC_TIMING_COMMAND_SELECT", &cfg.Timing.CommandTimeoutSelect)
	dur("FHC_TIMING_COMMAND_INSPECT", &cfg.Timing.CommandTimeoutInspect)
	dur("FHC_TIMING_COMMAND_HOP", &cfg.Timing.CommandTimeoutHop)
	dur("FHC_TIMING_TRIGGER_TIMEOUT", &cfg.Timing.TriggerTimeout)
	dur("FHC_TIMING_MAILBOX_POLL", &cfg.Timing.MailboxPollInterval)
	dur("FHC_TIMING_MAILBOX_TIMEOUT", &cfg.Timing.MailboxTimeout)
	num("FHC_TIMING_EVENT_BUFFER_SIZE", 31, func(n uint64) { cfg.Timing.EventBufferSize = int(n) })
	dur("FHC_TIMING_EVENT_BUFFER_RETENTION", &cfg.Timing.EventBufferRetention)

	str("FHC_AUDIT_DIR", &cfg.Audit.Dir)
	str("FHC_LOG_LEVEL", &cfg.Log.Level)
	str("FHC_LOG_FORMAT", &cfg.Log.Format)

	return err
}
