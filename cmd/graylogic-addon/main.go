// Gray Logic Add-on: plugin-side runtime speaking the gateway add-on
// protocol. It registers with the gateway, exposes its adapters' devices,
// and bridges gateway commands to the physical (or simulated) side.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-addon/internal/adapters/mqttbridge"
	"github.com/nerrad567/gray-logic-addon/internal/adapters/virtual"
	"github.com/nerrad567/gray-logic-addon/internal/addon"
	"github.com/nerrad567/gray-logic-addon/internal/engine"
	"github.com/nerrad567/gray-logic-addon/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-addon/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-addon/internal/ipc"
	"github.com/nerrad567/gray-logic-addon/internal/settings"
	"github.com/nerrad567/gray-logic-addon/internal/telemetry"
)

// Build information, set via ldflags.
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/addon.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("graylogic-addon %s (commit %s, built %s)\n", version, commit, buildDate)
		return
	}

	if err := run(*configPath); err != nil {
		logging.Default().Error("add-on terminated", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.Logging, version)
	logger.Info("starting add-on",
		"plugin_id", cfg.Plugin.ID,
		"version", version,
		"commit", commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Settings live in the gateway's shared database; user edits made in
	// the gateway UI are picked up here on restart.
	store, err := settings.Open(settings.Options{
		Path:          cfg.Settings.Path,
		WALMode:       cfg.Settings.WALMode,
		BusyTimeoutMS: cfg.Settings.BusyTimeout,
	}, cfg.Plugin.PackageName)
	if err != nil {
		return fmt.Errorf("open settings store: %w", err)
	}
	defer store.Close()

	stored, err := store.LoadConfig(ctx)
	if err != nil {
		return fmt.Errorf("load stored settings: %w", err)
	}
	logger.Info("settings loaded", "keys", len(stored))

	dialer := ipc.NewDialer(ipc.Options{
		URL:            cfg.Gateway.URL,
		ConnectTimeout: cfg.Gateway.GetConnectTimeout(),
		WriteTimeout:   cfg.Gateway.GetWriteTimeout(),
		MaxMessageSize: cfg.Gateway.MaxMessageSize,
	})

	eng := engine.New(engine.Config{
		PluginID:              cfg.Plugin.ID,
		RequestTimeout:        cfg.Engine.GetRequestTimeout(),
		HandshakeTimeout:      cfg.Gateway.GetHandshakeTimeout(),
		ReconnectInitialDelay: cfg.Engine.Reconnect.GetInitialDelay(),
		ReconnectMaxDelay:     cfg.Engine.Reconnect.GetMaxDelay(),
		ReconnectMaxAttempts:  cfg.Engine.Reconnect.MaxAttempts,
		OutboundQueueSize:     cfg.Engine.OutboundQueueSize,
		DrainGrace:            cfg.Engine.GetDrainGrace(),
	}, dialer, engine.WithLogger(logger.With("component", "engine")))

	managerOpts := []addon.ManagerOption{
		addon.WithLogger(logger.With("component", "model")),
	}
	if cfg.Telemetry.Enabled {
		recorder := telemetry.New(telemetry.Options{
			URL:           cfg.Telemetry.URL,
			Token:         cfg.Telemetry.Token,
			Org:           cfg.Telemetry.Org,
			Bucket:        cfg.Telemetry.Bucket,
			BatchSize:     cfg.Telemetry.BatchSize,
			FlushInterval: time.Duration(cfg.Telemetry.FlushInterval) * time.Second,
		}, logger.With("component", "telemetry"))
		defer recorder.Close()
		managerOpts = append(managerOpts, addon.WithRecorder(recorder))
	}

	manager := addon.NewManager(cfg.Plugin.ID, eng, managerOpts...)
	eng.AttachModel(manager)

	if cfg.Adapters.Virtual.Enabled {
		v := virtual.New(cfg.Adapters.Virtual, logger.With("component", "virtual"))
		if err := v.Attach(manager); err != nil {
			return fmt.Errorf("attach virtual adapter: %w", err)
		}
	}
	if cfg.Adapters.MQTT.Enabled {
		b := mqttbridge.New(cfg.Adapters.MQTT, logger.With("component", "mqttbridge"))
		if err := b.Attach(manager); err != nil {
			return fmt.Errorf("attach mqtt bridge: %w", err)
		}
	}

	err = eng.Run(ctx)
	manager.UnloadAll()

	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	logger.Info("add-on stopped")
	return nil
}
