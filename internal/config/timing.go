package config

import "time"

// TimingConfig bounds device commands and paces telemetry.
type TimingConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	HeartbeatJitter   time.Duration `yaml:"heartbeat_jitter"`
	HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout"`

	// Command timeout classes.
	CommandTimeoutConfigure time.Duration `yaml:"command_timeout_configure"`
	CommandTimeoutTable     time.Duration `yaml:"command_timeout_table"`
	CommandTimeoutSelect    time.Duration `yaml:"command_timeout_select"`
	CommandTimeoutInspect   time.Duration `yaml:"command_timeout_inspect"`
	CommandTimeoutHop       time.Duration `yaml:"command_timeout_hop"`

	// TriggerTimeout bounds the mailbox trigger that commits a staged table.
	TriggerTimeout      time.Duration `yaml:"trigger_timeout"`
	MailboxPollInterval time.Duration `yaml:"mailbox_poll_interval"`
	// MailboxTimeout is the transport's own bound on one device exchange.
	MailboxTimeout time.Duration `yaml:"mailbox_timeout"`

	EventBufferSize      int           `yaml:"event_buffer_size"`
	EventBufferRetention time.Duration `yaml:"event_buffer_retention"`
}

// LoadTimingBaseline returns the baseline timing values.
func LoadTimingBaseline() *TimingConfig {
	return &TimingConfig{
		HeartbeatInterval: 15 * time.Second,
		HeartbeatJitter:   2 * time.Second,
		HeartbeatTimeout:  45 * time.Second,

		CommandTimeoutConfigure: 5 * time.Second,
		CommandTimeoutTable:     5 * time.Second,
		CommandTimeoutSelect:    time.Second,
		CommandTimeoutInspect:   2 * time.Second,
		CommandTimeoutHop:       500 * time.Millisecond,

		TriggerTimeout:      2 * time.Second,
		MailboxPollInterval: 5 * time.Millisecond,
		MailboxTimeout:      5 * time.Second,

		EventBufferSize:      50,
		EventBufferRetention: time.Hour,
	}
}
