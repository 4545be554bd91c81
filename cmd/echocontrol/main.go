// Echo Control Core - stage device control runtime
//
// This is the main entry point for the Echo Control Core application.
// It loads device slots, runs one actor per device and exposes them over:
//   - The HTTP API and WebSocket event stream
//   - MQTT command and state topics
//   - The binary packet gateway
//
// Telemetry goes to SQLite status history and, when enabled, InfluxDB.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/echo-control-core/internal/api"
	"github.com/nerrad567/echo-control-core/internal/auth"
	"github.com/nerrad567/echo-control-core/internal/device"
	"github.com/nerrad567/echo-control-core/internal/dispatch"
	"github.com/nerrad567/echo-control-core/internal/drivers"
	"github.com/nerrad567/echo-control-core/internal/fanout"
	"github.com/nerrad567/echo-control-core/internal/gateway"
	"github.com/nerrad567/echo-control-core/internal/infrastructure/config"
	"github.com/nerrad567/echo-control-core/internal/infrastructure/database"
	"github.com/nerrad567/echo-control-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/echo-control-core/internal/infrastructure/logging"
	"github.com/nerrad567/echo-control-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/echo-control-core/internal/protocol"
	"github.com/nerrad567/echo-control-core/internal/store"
	"github.com/nerrad567/echo-control-core/internal/supervisor"
	"github.com/nerrad567/echo-control-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// historyPruneInterval is how often expired status history is deleted.
const historyPruneInterval = time.Hour

func main() {
	hashPassword := flag.Bool("hash-password", false, "read a password from stdin and print its Argon2id hash")
	issueToken := flag.String("issue-token", "", "print an API token for the named subject and exit")
	tokenRole := flag.String("role", string(auth.RoleOperator), "role carried by -issue-token")
	flag.Parse()

	var err error
	switch {
	case *hashPassword:
		err = runHashPassword(os.Stdin, os.Stdout)
	case *issueToken != "":
		err = runIssueToken(os.Stdout, *issueToken, auth.Role(*tokenRole))
	default:
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		err = run(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Echo Control Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	sections, err := cfg.DeviceSections()
	if err != nil {
		return fmt.Errorf("loading device slots: %w", err)
	}

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	history := store.NewSQLiteHistory(db.DB)
	commands := store.NewSQLiteCommands(db.DB)

	sup := newSupervisor(cfg, store.NewSQLiteOverrides(db.DB), log)
	sup.RegisterCallback(func(ev supervisor.Event) {
		if ev.Type == supervisor.EventStatusChange {
			log.Info("device state changed",
				"handle", ev.Handle,
				"device_id", ev.Device.Hex(),
				"state", device.State(ev.Status.State).String(),
				"error_code", ev.Status.ErrorCode,
			)
		}
	})

	historySink := fanout.NewHistorySink(history, log.Component("history"))
	historyCtx, stopHistory := context.WithCancel(ctx)
	historyDone := make(chan struct{})
	go func() {
		defer close(historyDone)
		historySink.Run(historyCtx)
	}()
	defer func() {
		stopHistory()
		<-historyDone
	}()
	sup.AddSink(historySink)
	if cfg.Database.HistoryRetention > 0 {
		keep := time.Duration(cfg.Database.HistoryRetention) * 24 * time.Hour
		go historySink.RunPruner(ctx, keep, historyPruneInterval)
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		qos := byte(cfg.MQTT.QoS)
		sup.AddSink(fanout.NewMQTTSink(mqttClient, qos, log.Component("mqtt")))
		ingress := fanout.NewCommandIngress(sup, mqttClient, commands, qos, log.Component("mqtt"))
		if startErr := ingress.Start(mqttClient); startErr != nil {
			return fmt.Errorf("starting MQTT command ingress: %w", startErr)
		}
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		sup.AddSink(fanout.NewInfluxSink(influxClient))
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Start binary packet gateway (optional)
	var gw *gateway.Server
	if cfg.Gateway.Enabled {
		gw = gateway.New(gateway.Config{
			Addr:       fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port),
			MaxFrame:   cfg.Gateway.MaxFrame,
			MaxClients: cfg.Gateway.MaxClients,
		}, protocol.NewCatalogueRegistry(), sup)
		gw.SetLogger(log.Component("gateway"))
		if startErr := gw.Start(ctx); startErr != nil {
			return fmt.Errorf("starting gateway: %w", startErr)
		}
		defer func() {
			log.Info("stopping gateway")
			if closeErr := gw.Close(); closeErr != nil {
				log.Error("error closing gateway", "error", closeErr)
			}
		}()
		sup.AddSink(gw)
	} else {
		log.Info("gateway disabled")
	}

	// Start HTTP API (optional)
	if cfg.API.Enabled {
		apiServer, apiErr := newAPIServer(cfg, log, sup, db, history, commands, mqttClient, gw)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		sup.AddSink(apiServer.Hub())
	} else {
		log.Info("HTTP API disabled")
	}

	// Registered last so actors stop before the sinks above close.
	defer func() {
		log.Info("stopping devices")
		sup.Stop()
	}()

	// Sinks are in place before the first actor can push.
	slots, rejected := supervisor.SlotsFromSections(sections)
	for _, name := range rejected {
		log.Warn("ignoring section that is not a slot", "section", name)
	}
	sup.Load(ctx, slots)

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. Device actors
	// 2. API server, gateway, InfluxDB and MQTT (if enabled)
	// 3. Database

	log.Info("Echo Control Core stopped")
	return nil
}

// newSupervisor builds the device registry, dispatcher and supervisor.
//
// Parameters:
//   - cfg: Application configuration
//   - overrides: Persisted property overrides (may be nil)
//   - log: Logger instance
//
// Returns:
//   - *supervisor.Supervisor: Ready to Load slots
func newSupervisor(cfg *config.Config, overrides supervisor.OverrideStore, log *logging.Logger) *supervisor.Supervisor {
	registry := device.NewRegistry()
	drivers.Register(registry)

	dispatcher := dispatch.NewDefault()
	dispatcher.SetLogger(log.Component("dispatch"))

	rules := make(map[int]supervisor.Rule, len(cfg.Slots.Rules))
	for n, r := range cfg.Slots.Rules {
		rules[n] = supervisor.Rule{Mandatory: r.Mandatory, AllowedModels: r.AllowedModels}
	}

	sup := supervisor.New(registry, dispatcher, supervisor.Config{
		PushBuffer:           cfg.Runtime.PushBuffer,
		ReadTimeout:          cfg.DeviceReadTimeout(),
		ReconnectInterval:    cfg.ReconnectInterval(),
		MaxReconnectInterval: cfg.MaxReconnectInterval(),
		AutoConnect:          cfg.Runtime.AutoConnect,
		Rules:                rules,
		Overrides:            overrides,
	})
	sup.SetLogger(log.Component("supervisor"))
	return sup
}

// newAPIServer assembles the HTTP API from the running components.
// mqttClient and gw may be nil when those surfaces are disabled.
func newAPIServer(
	cfg *config.Config,
	log *logging.Logger,
	sup *supervisor.Supervisor,
	db *database.DB,
	history store.HistoryRepository,
	commands store.CommandRepository,
	mqttClient *mqtt.Client,
	gw *gateway.Server,
) (*api.Server, error) {
	accounts := make([]auth.Account, 0, len(cfg.Security.Accounts))
	for _, a := range cfg.Security.Accounts {
		accounts = append(accounts, auth.Account{
			Username:     a.Username,
			PasswordHash: a.PasswordHash,
			Role:         auth.Role(a.Role),
		})
	}
	authenticator, err := auth.NewAuthenticator(accounts)
	if err != nil {
		return nil, fmt.Errorf("loading accounts: %w", err)
	}
	if authenticator.Len() == 0 {
		log.Warn("no API accounts configured, login is disabled")
	}

	deps := api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log.Component("api"),
		Devices:  sup,
		Accounts: authenticator,
		History:  history,
		Commands: commands,
		DB:       db.DB,
		Version:  version,
	}
	// Typed nil pointers must not reach the optional interface fields.
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	if gw != nil {
		deps.Gateway = gw
	}
	return api.New(deps)
}

// getConfigPath returns the configuration file path.
// Uses ECHOCTL_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ECHOCTL_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
