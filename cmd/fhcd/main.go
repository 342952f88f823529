// Command fhcd serves the frequency hopping control API for one device.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/radio-control/fhc/internal/adapter"
	"github.com/radio-control/fhc/internal/adapter/fake"
	"github.com/radio-control/fhc/internal/adapter/modbus"
	"github.com/radio-control/fhc/internal/adapter/usb"
	"github.com/radio-control/fhc/internal/api"
	"github.com/radio-control/fhc/internal/audit"
	"github.com/radio-control/fhc/internal/auth"
	"github.com/radio-control/fhc/internal/channel"
	"github.com/radio-control/fhc/internal/command"
	"github.com/radio-control/fhc/internal/config"
	"github.com/radio-control/fhc/internal/fh"
	"github.com/radio-control/fhc/internal/gpio"
	"github.com/radio-control/fhc/internal/telemetry"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to the YAML configuration (default $"+config.EnvConfigPath+")")
	debug := pflag.Bool("debug", false, "force debug logging")
	pflag.Parse()

	// Step 1: Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *debug {
		cfg.Log.Level = "debug"
	}

	log, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	if err := run(cfg, log); err != nil {
		log.Error("fhcd exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	log.Info("Starting frequency hopping controller", zap.String("version", api.Version))

	// Step 2: Open the device link
	transport, err := openTransport(cfg.Transport, &cfg.Timing, log)
	if err != nil {
		return fmt.Errorf("failed to open %s transport: %w", cfg.Transport.Kind, err)
	}
	info := adapter.Info{Kind: cfg.Transport.Kind}
	if d, ok := transport.(adapter.Describer); ok {
		info = d.Describe()
	}
	log.Info("Transport opened", zap.String("kind", info.Kind), zap.String("endpoint", info.Endpoint))
	defer func() {
		if c, ok := transport.(adapter.Closer); ok {
			if err := c.Close(); err != nil {
				log.Warn("Error closing transport", zap.Error(err))
			}
		}
	}()

	// Step 3: Build the controllers
	channels := channel.NewManager()
	fhc := fh.New(transport, channels,
		fh.WithLogger(log.Named("fh")),
		fh.WithTriggerTimeout(cfg.Timing.TriggerTimeout),
	)
	gpioc := gpio.New(transport, log.Named("gpio"))
	log.Info("Controllers initialized")

	// Step 4: Initialize telemetry hub
	hub := telemetry.NewHub(&cfg.Timing, log.Named("telemetry"))
	log.Info("Telemetry hub initialized",
		zap.Int("buffer", cfg.Timing.EventBufferSize),
		zap.Duration("retention", cfg.Timing.EventBufferRetention))

	// Step 5: Initialize audit logger
	auditLogger, err := audit.NewLogger(audit.Options{
		Dir:        cfg.Audit.Dir,
		MaxSizeMB:  cfg.Audit.MaxSizeMB,
		MaxBackups: cfg.Audit.MaxBackups,
		MaxAgeDays: cfg.Audit.MaxAgeDays,
		Compress:   cfg.Audit.Compress,
	})
	if err != nil {
		hub.Stop()
		return fmt.Errorf("failed to initialize audit logger: %w", err)
	}
	log.Info("Audit logger initialized", zap.String("path", auditLogger.GetFilePath()))

	// Step 6: Create command orchestrator
	orchestrator := command.NewOrchestrator(fhc, gpioc, channels, &cfg.Timing)
	orchestrator.SetTelemetry(hub)
	orchestrator.SetAuditLogger(auditLogger)
	orchestrator.SetLogger(log.Named("command"))
	hub.SetSnapshot(orchestrator.Snapshot)

	// Step 7: Create API server
	srv, err := newServer(cfg.Server, hub, orchestrator)
	if err != nil {
		hub.Stop()
		auditLogger.Close()
		return err
	}
	srv.SetTransportInfo(info)
	srv.SetLogger(log.Named("api"))
	log.Info("API server created", zap.Bool("auth", cfg.Server.Auth.Enabled))

	// Step 8: Start HTTP server
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start(cfg.Server.Addr)
	}()
	log.Info("HTTP server listening",
		zap.String("addr", cfg.Server.Addr),
		zap.String("health", "/api/v1/health"))

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-shutdown:
		log.Info("Received signal, initiating graceful shutdown", zap.Stringer("signal", sig))
	case err := <-serverErr:
		runErr = err
		if err != nil {
			log.Error("Server error", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	hub.Stop()
	log.Info("Telemetry hub stopped")

	if err := srv.Stop(ctx); err != nil {
		log.Warn("Error stopping HTTP server", zap.Error(err))
	} else {
		log.Info("HTTP server stopped gracefully")
	}

	if err := auditLogger.Close(); err != nil {
		log.Warn("Error closing audit logger", zap.Error(err))
	}
	log.Info("Audit logger closed")

	log.Info("Shutdown complete")
	return runErr
}

func openTransport(cfg config.TransportConfig, timing *config.TimingConfig, log *zap.Logger) (adapter.Transport, error) {
	switch cfg.Kind {
	case config.TransportFake:
		return fake.New(), nil
	case config.TransportModbus:
		return modbus.Dial(modbus.Config{
			Endpoint:       cfg.Modbus.Endpoint,
			UnitID:         cfg.Modbus.UnitID,
			Timeout:        cfg.Modbus.Timeout,
			PollInterval:   timing.MailboxPollInterval,
			MailboxTimeout: timing.MailboxTimeout,
			Registers:      cfg.Modbus.Registers,
		}, log.Named("modbus"))
	case config.TransportUSB:
		return usb.Open(usb.Config{
			VendorID:    cfg.USB.VendorID,
			ProductID:   cfg.USB.ProductID,
			ConfigNum:   cfg.USB.ConfigNum,
			Interface:   cfg.USB.Interface,
			EndpointIn:  cfg.USB.EndpointIn,
			EndpointOut: cfg.USB.EndpointOut,
			Timeout:     timing.MailboxTimeout,
		}, log.Named("usb"))
	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Kind)
	}
}

func newServer(cfg config.ServerConfig, hub *telemetry.Hub, orch *command.Orchestrator) (*api.Server, error) {
	if !cfg.Auth.Enabled {
		return api.NewServer(hub, orch, cfg.ReadTimeout, cfg.WriteTimeout, cfg.IdleTimeout), nil
	}
	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		Algorithm:    cfg.Auth.Algorithm,
		PublicKeyPEM: cfg.Auth.PublicKeyPEM,
		JWKSURL:      cfg.Auth.JWKSURL,
		SecretKey:    cfg.Auth.SecretKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token verifier: %w", err)
	}
	mw := auth.NewMiddleware(verifier)
	return api.NewServerWithAuth(hub, orch, mw, cfg.ReadTimeout, cfg.WriteTimeout, cfg.IdleTimeout), nil
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
