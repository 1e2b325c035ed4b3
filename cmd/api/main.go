package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/dimencity996-star/lighearth-pro-dev/internal/adapter/actor"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/adapter/notify"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/adapter/owners"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/config"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/actor"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/service"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/hub"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/server"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/util/actorutil"
	"github.com/dimencity996-star/lighearth-pro-dev/pkg/hastates"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	store := service.NewDeviceStore()
	history := service.NewHistoryStore()

	notifier := notify.NewLogNotifier(logger)
	ownerRegistry := owners.NewRegistry(cfg.OwnersConfig)

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterActor(*cfg, store, history,
			hubActorProvider(cfg, logger), pushActorProvider(cfg, logger),
			notifier, ownerRegistry, logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		return
	}

	server := server.NewServer(*cfg, ctx, pid, store, history)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => LIGHEARTH_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("LIGHEARTH_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("lighearth")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	if !cfg.MQTT.Configured() && !cfg.Hub.Configured() {
		return nil, errors.New("at least one telemetry source (mqtt or hub) must be configured")
	}

	if cfg.MQTT.Configured() {
		// check and fix base topic
		baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
		if err != nil {
			return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
		}
		cfg.MQTT.BaseTopic = baseTopic

		if len(cfg.MQTT.Devices) == 0 {
			return nil, errors.New("config param mqtt.devices must list at least one device")
		}
		if cfg.MQTT.ConnectAttempts == 0 {
			return nil, errors.New("config param mqtt.connect_attempts should be >= 1")
		}
	}

	// check bounds
	if cfg.MonitorConfig.HealthCheckIntervalMillis < 1000 {
		return nil, errors.New("config param monitor.health_check_interval_millis should be >= 1000")
	}
	if cfg.MonitorConfig.PushSilenceTimeoutMillis < 1000 {
		return nil, errors.New("config param monitor.push_silence_timeout_millis should be >= 1000")
	}
	if cfg.MonitorConfig.SampleIntervalMinutes == 0 {
		return nil, errors.New("config param monitor.sample_interval_minutes should be >= 1")
	}
	if cfg.MonitorConfig.HistoryRetentionDays == 0 {
		return nil, errors.New("config param monitor.history_retention_days should be >= 1")
	}
	if cfg.Hub.Configured() && cfg.Hub.SnapshotTTLMillis < 1000 {
		return nil, errors.New("config param hub.snapshot_ttl_millis should be >= 1000")
	}
	if cfg.AlertsConfig.TickIntervalMillis < 1000 {
		return nil, errors.New("config param alerts.tick_interval_millis should be >= 1000")
	}
	if cfg.AlertsConfig.BatteryRearmSoC <= cfg.AlertsConfig.BatteryTier1SoC {
		return nil, errors.New("config param alerts.battery_rearm_soc must be > alerts.battery_tier1_soc")
	}

	return &cfg, nil
}

func hubActorProvider(cfg *config.Config, logger *zap.Logger) actor.HubActorProvider {
	if !cfg.Hub.Configured() {
		return nil
	}
	client := hastates.CreateHTTPClient(cfg.Hub.BaseURL, cfg.Hub.Token,
		time.Duration(cfg.Hub.RequestTimeoutMillis)*time.Millisecond)
	cache := hub.NewStateCache(client, cfg.Hub, logger)
	return func() *adactor.HubActor {
		return adactor.NewHubActor(cache, logger)
	}
}

func pushActorProvider(cfg *config.Config, logger *zap.Logger) actor.PushActorProvider {
	return func() *adactor.PushActor {
		return adactor.NewPushActor(cfg, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("mqtt.base_topic", "lighearth")
	viper.SetDefault("mqtt.connect_attempts", 3)
	viper.SetDefault("hub.entity_prefix", "")
	viper.SetDefault("hub.snapshot_ttl_millis", 10000)
	viper.SetDefault("hub.device_scan_ttl_millis", 300000)
	viper.SetDefault("hub.probe_interval_millis", 30000)
	viper.SetDefault("hub.request_timeout_millis", 5000)
	viper.SetDefault("monitor.health_check_interval_millis", 30000)
	viper.SetDefault("monitor.push_silence_timeout_millis", 30000)
	viper.SetDefault("monitor.sample_interval_minutes", 5)
	viper.SetDefault("monitor.history_retention_days", 7)
	viper.SetDefault("alerts.tick_interval_millis", 15000)
	viper.SetDefault("alerts.outage_voltage_threshold", 100)
	viper.SetDefault("alerts.outage_cooldown_seconds", 300)
	viper.SetDefault("alerts.outage_min_duration_seconds", 60)
	viper.SetDefault("alerts.battery_tier1_soc", 20)
	viper.SetDefault("alerts.battery_tier2_soc", 5)
	viper.SetDefault("alerts.battery_tier3_soc", 1)
	viper.SetDefault("alerts.battery_rearm_soc", 30)
	viper.SetDefault("alerts.default_recipient", "default")
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	cfg.Hub.Token = "*redacted*"
	slog.Info("Using", "config", cfg)
}
