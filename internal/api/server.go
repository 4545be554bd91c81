package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/echo-control-core/internal/auth"
	"github.com/nerrad567/echo-control-core/internal/infrastructure/config"
	"github.com/nerrad567/echo-control-core/internal/infrastructure/logging"
	"github.com/nerrad567/echo-control-core/internal/store"
	"github.com/nerrad567/echo-control-core/internal/supervisor"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// DeviceService is the device surface the API drives. *supervisor.Supervisor
// implements it.
type DeviceService interface {
	Devices() []supervisor.Info
	Device(h supervisor.Handle) (supervisor.Info, error)
	Execute(h supervisor.Handle, cmd supervisor.Command) (uint32, error)
	Reconnect(h supervisor.Handle) error
	Config(h supervisor.Handle) (map[string]string, error)
	GetConfig(h supervisor.Handle, key string) (string, error)
	SetConfig(ctx context.Context, h supervisor.Handle, key, value string) error
	Dropped() uint64
}

// ConnectionReporter reports broker connectivity for metrics.
type ConnectionReporter interface {
	IsConnected() bool
}

// ClientCounter reports connected gateway clients for metrics.
type ClientCounter interface {
	ClientCount() int
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Devices  DeviceService
	Accounts *auth.Authenticator     // optional: login disabled when nil
	History  store.HistoryRepository // optional
	Commands store.CommandRepository // optional
	MQTT     ConnectionReporter      // optional
	Gateway  ClientCounter           // optional
	DB       *sql.DB                 // optional: pool stats in metrics
	Hub      *Hub                    // If set, the server uses this hub instead of creating its own
	Version  string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	devices   DeviceService
	accounts  *auth.Authenticator
	history   store.HistoryRepository
	commands  store.CommandRepository
	mqtt      ConnectionReporter
	gateway   ClientCounter
	db        *sql.DB
	version   string
	startTime time.Time
	server    *http.Server
	hub       *Hub
	tickets   *ticketStore
	commandCh chan *store.CommandRecord
	drained   chan struct{}
	cancel    context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, devices)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device service is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		devices:   deps.Devices,
		accounts:  deps.Accounts,
		history:   deps.History,
		commands:  deps.Commands,
		mqtt:      deps.MQTT,
		gateway:   deps.Gateway,
		db:        deps.DB,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       deps.Hub,
		tickets:   newTicketStore(),
	}
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	if s.commands != nil {
		s.commandCh = make(chan *store.CommandRecord, commandChanSize)
	}
	return s, nil
}

// Hub returns the WebSocket hub. Register it as a supervisor sink to relay
// device pushes.
func (s *Server) Hub() *Hub { return s.hub }

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, the command log writer and ticket cleanup,
// then launches the HTTP listener in a background goroutine. The server can
// be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	s.startBackground(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// startBackground launches the hub, command log writer and ticket cleanup.
func (s *Server) startBackground(ctx context.Context) {
	go s.hub.Run(ctx)
	go s.tickets.cleanLoop(ctx)
	if s.commandCh != nil {
		s.drained = make(chan struct{})
		go func() {
			defer close(s.drained)
			s.drainCommandLog(ctx)
		}()
	}
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then flushes queued command log entries.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	err := s.server.Shutdown(ctx)

	if s.cancel != nil {
		s.cancel()
	}
	if s.drained != nil {
		<-s.drained
	}
	if err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
