package config

import (
	"fmt"
	"time"
)

// Validate checks the whole configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := validateServer(&cfg.Server); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := validateTransport(&cfg.Transport); err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	if err := ValidateTiming(&cfg.Timing); err != nil {
		return fmt.Errorf("timing: %w", err)
	}
	if err := validateAudit(&cfg.Audit); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	switch cfg.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log: unknown format %q", cfg.Log.Format)
	}
	return nil
}

func validateServer(s *ServerConfig) error {
	if s.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if !s.Auth.Enabled {
		return nil
	}
	switch s.Auth.Algorithm {
	case "RS256":
		if s.Auth.PublicKeyPEM == "" && s.Auth.JWKSURL == "" {
			return fmt.Errorf("RS256 auth needs public_key_pem or jwks_url")
		}
	case "HS256":
		if s.Auth.SecretKey == "" {
			return fmt.Errorf("HS256 auth needs secret_key")
		}
	default:
		return fmt.Errorf("unsupported auth algorithm %q", s.Auth.Algorithm)
	}
	return nil
}

func validateTransport(t *TransportConfig) error {
	switch t.Kind {
	case TransportFake:
		return nil
	case TransportModbus:
		if t.Modbus.Endpoint == "" {
			return fmt.Errorf("modbus endpoint is required")
		}
		if t.Modbus.Timeout <= 0 {
			return fmt.Errorf("modbus timeout must be positive, got %v", t.Modbus.Timeout)
		}
		return t.Modbus.Registers.Validate()
	case TransportUSB:
		if t.USB.VendorID == 0 || t.USB.ProductID == 0 {
			return fmt.Errorf("usb vendor_id and product_id are required")
		}
		if t.USB.EndpointIn <= 0 || t.USB.EndpointOut <= 0 {
			return fmt.Errorf("usb endpoints must be positive")
		}
		return nil
	default:
		return fmt.Errorf("unknown transport kind %q", t.Kind)
	}
}

func validateAudit(a *AuditConfig) error {
	if a.Dir == "" {
		return fmt.Errorf("dir is required")
	}
	if a.MaxSizeMB <= 0 {
		return fmt.Errorf("max_size_mb must be positive, got %d", a.MaxSizeMB)
	}
	if a.MaxBackups < 0 || a.MaxAgeDays < 0 {
		return fmt.Errorf("max_backups and max_age_days must be non-negative")
	}
	return nil
}

// ValidateTiming checks timing values and their relations.
func ValidateTiming(config *TimingConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := validateHeartbeat(config); err != nil {
		return fmt.Errorf("heartbeat validation failed: %w", err)
	}
	if err := validateCommandTimeouts(config); err != nil {
		return fmt.Errorf("command timeout validation failed: %w", err)
	}
	if err := validateEventBuffer(config); err != nil {
		return fmt.Errorf("event buffer validation failed: %w", err)
	}
	return nil
}

func validateHeartbeat(config *TimingConfig) error {
	if config.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive, got %v", config.HeartbeatInterval)
	}
	if config.HeartbeatJitter < 0 {
		return fmt.Errorf("heartbeat jitter must be non-negative, got %v", config.HeartbeatJitter)
	}
	if config.HeartbeatJitter > config.HeartbeatInterval/2 {
		return fmt.Errorf("heartbeat jitter %v exceeds 50%% of interval %v", config.HeartbeatJitter, config.HeartbeatInterval)
	}
	if config.HeartbeatTimeout < config.HeartbeatInterval {
		return fmt.Errorf("heartbeat timeout %v must be >= interval %v", config.HeartbeatTimeout, config.HeartbeatInterval)
	}
	return nil
}

func validateCommandTimeouts(config *TimingConfig) error {
	const (
		minTimeout = 10 * time.Millisecond
		maxTimeout = 5 * time.Minute
	)
	timeouts := []struct {
		name string
		d    time.Duration
	}{
		{"configure", config.CommandTimeoutConfigure},
		{"table", config.CommandTimeoutTable},
		{"select", config.CommandTimeoutSelect},
		{"inspect", config.CommandTimeoutInspect},
		{"hop", config.CommandTimeoutHop},
		{"trigger", config.TriggerTimeout},
		{"mailbox", config.MailboxTimeout},
	}
	for _, t := range timeouts {
		if t.d < minTimeout || t.d > maxTimeout {
			return fmt.Errorf("command timeout %s %v is outside [%v, %v]", t.name, t.d, minTimeout, maxTimeout)
		}
	}
	if config.MailboxPollInterval <= 0 || config.MailboxPollInterval >= config.TriggerTimeout {
		return fmt.Errorf("mailbox poll interval %v must be positive and below trigger timeout %v",
			config.MailboxPollInterval, config.TriggerTimeout)
	}
	if config.MailboxTimeout < config.TriggerTimeout {
		return fmt.Errorf("mailbox timeout %v must not be below trigger timeout %v",
			config.MailboxTimeout, config.TriggerTimeout)
	}
	return nil
}

func validateEventBuffer(config *TimingConfig) error {
	if config.EventBufferSize <= 0 {
		return fmt.Errorf("event buffer size must be positive, got %d", config.EventBufferSize)
	}
	if config.EventBufferRetention <= 0 {
		return fmt.Errorf("event buffer retention must be positive, got %v", config.EventBufferRetention)
	}
	return nil
}
