// Package config holds the service configuration.
//
// Values start from Default, are overlaid by an optional YAML file and then
// by FHC_* environment variables, and are validated last. Timing values
// bound every device command issued by the orchestrator.
package config
