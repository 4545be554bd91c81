package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/echo-control-core/internal/auth"
	"github.com/nerrad567/echo-control-core/internal/device"
	"github.com/nerrad567/echo-control-core/internal/infrastructure/config"
	"github.com/nerrad567/echo-control-core/internal/infrastructure/database"
	"github.com/nerrad567/echo-control-core/internal/infrastructure/logging"
	"github.com/nerrad567/echo-control-core/internal/protocol"
	"github.com/nerrad567/echo-control-core/internal/store"
	"github.com/nerrad567/echo-control-core/internal/supervisor"
	"github.com/nerrad567/echo-control-core/migrations"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// mockDevices is a hand-written DeviceService.
type mockDevices struct {
	mu        sync.Mutex
	devices   []supervisor.Info
	config    map[supervisor.Handle]map[string]string
	executed  []supervisor.Command
	execErr   error
	setErr    error
	reconnect []supervisor.Handle
	panicOn   string
}

func newMockDevices() *mockDevices {
	return &mockDevices{
		devices: []supervisor.Info{
			{Handle: 1, ID: "0x01000201", Family: "Light", Model: "LT-200", Name: "Stage wash", Section: "Slot_1", State: "ONLINE", Online: true},
			{Handle: 2, ID: "0x03000101", Family: "PTZ", Model: "PT-100", Name: "Cam rig", Section: "Slot_2", State: "OFFLINE"},
		},
		config: map[supervisor.Handle]map[string]string{
			1: {"Name": "Stage wash", "IP": "10.0.0.21", "Port": "9000"},
			2: {"Name": "Cam rig", "IP": "10.0.0.22", "Port": "9000"},
		},
	}
}

func (m *mockDevices) Devices() []supervisor.Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicOn == "devices" {
		panic("device table corrupted")
	}
	return append([]supervisor.Info(nil), m.devices...)
}

func (m *mockDevices) Device(h supervisor.Handle) (supervisor.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if d.Handle == h {
			return d, nil
		}
	}
	return supervisor.Info{}, supervisor.ErrDeviceNotFound
}

func (m *mockDevices) Execute(h supervisor.Handle, cmd supervisor.Command) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.execErr != nil {
		return 0, m.execErr
	}
	m.executed = append(m.executed, cmd)
	return uint32(len(m.executed)), nil
}

func (m *mockDevices) Reconnect(h supervisor.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.config[h]; !ok {
		return supervisor.ErrDeviceNotFound
	}
	m.reconnect = append(m.reconnect, h)
	return nil
}

func (m *mockDevices) Config(h supervisor.Handle) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	props, ok := m.config[h]
	if !ok {
		return nil, supervisor.ErrDeviceNotFound
	}
	out := make(map[string]string, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out, nil
}

func (m *mockDevices) GetConfig(h supervisor.Handle, key string) (string, error) {
	props, err := m.Config(h)
	if err != nil {
		return "", err
	}
	v, ok := props[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", device.ErrUnknownProperty, key)
	}
	return v, nil
}

func (m *mockDevices) SetConfig(_ context.Context, h supervisor.Handle, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	props, ok := m.config[h]
	if !ok {
		return supervisor.ErrDeviceNotFound
	}
	if _, ok := props[key]; !ok {
		return fmt.Errorf("%w: %s", device.ErrUnknownProperty, key)
	}
	props[key] = value
	return nil
}

func (m *mockDevices) Dropped() uint64 { return 3 }

func (m *mockDevices) commands() []supervisor.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]supervisor.Command(nil), m.executed...)
}

// testEnv bundles a server with its collaborators.
type testEnv struct {
	srv      *Server
	devices  *mockDevices
	history  *store.SQLiteHistory
	commands *store.SQLiteCommands
	handler  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.Open(database.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	hash, err := auth.HashPassword("fader-up")
	if err != nil {
		t.Fatal(err)
	}
	accounts, err := auth.NewAuthenticator([]auth.Account{{Username: "desk", PasswordHash: hash, Role: auth.RoleOperator}})
	if err != nil {
		t.Fatal(err)
	}

	log := logging.NewWithWriter(io.Discard, config.LoggingConfig{Level: "error", Format: "json"}, "test")
	env := &testEnv{
		devices:  newMockDevices(),
		history:  store.NewSQLiteHistory(db.DB),
		commands: store.NewSQLiteCommands(db.DB),
	}

	srv, err := New(Deps{
		Config: config.APIConfig{Host: "127.0.0.1", CORS: config.CORSConfig{AllowedOrigins: []string{"http://console.local"}}},
		WS: config.WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{JWT: config.JWTConfig{Secret: testSecret, AccessTokenTTL: 15}},
		Logger:   log,
		Devices:  env.devices,
		Accounts: accounts,
		History:  env.history,
		Commands: env.commands,
		DB:       db.DB,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv.startBackground(ctx)
	t.Cleanup(func() {
		cancel()
		<-srv.drained
	})

	env.srv = srv
	env.handler = srv.buildRouter()
	return env
}

func tokenFor(t *testing.T, role auth.Role) string {
	t.Helper()
	token, err := auth.IssueToken("tester", role, testSecret, 5)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	return token
}

// do performs a request against the router. An empty token sends no
// Authorization header.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNew_RequiresDeps(t *testing.T) {
	log := logging.NewWithWriter(io.Discard, config.LoggingConfig{Level: "error"}, "test")
	if _, err := New(Deps{Devices: newMockDevices()}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: log}); err == nil {
		t.Error("New() without devices should fail")
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	decode(t, rec, &body)
	if body["status"] != "ok" || body["devices"] != float64(2) || body["online"] != float64(1) {
		t.Errorf("body = %v", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}

func TestRequestIDPassthrough(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q", got)
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)
	foreign := func() string {
		token, err := auth.IssueToken("tester", auth.RoleAdmin, "some-other-secret-that-is-long-enough", 5)
		if err != nil {
			t.Fatal(err)
		}
		return token
	}()

	for _, token := range []string{"", "garbage", foreign} {
		rec := env.do(t, http.MethodGet, "/api/v1/devices", token, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("token %q: status = %d, want 401", token, rec.Code)
		}
	}
}

func TestPermissions(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name   string
		role   auth.Role
		method string
		path   string
		body   any
		want   int
	}{
		{"viewer lists devices", auth.RoleViewer, http.MethodGet, "/api/v1/devices", nil, http.StatusOK},
		{"viewer reads history", auth.RoleViewer, http.MethodGet, "/api/v1/history", nil, http.StatusOK},
		{"viewer cannot command", auth.RoleViewer, http.MethodPost, "/api/v1/devices/1/commands", `{"op":"light.switch","on":true}`, http.StatusForbidden},
		{"viewer cannot reconnect", auth.RoleViewer, http.MethodPost, "/api/v1/devices/1/reconnect", nil, http.StatusForbidden},
		{"operator commands", auth.RoleOperator, http.MethodPost, "/api/v1/devices/1/commands", `{"op":"light.switch","on":true}`, http.StatusAccepted},
		{"operator cannot configure", auth.RoleOperator, http.MethodPut, "/api/v1/devices/1/config/Name", `{"value":"x"}`, http.StatusForbidden},
		{"operator cannot read command log", auth.RoleOperator, http.MethodGet, "/api/v1/commands", nil, http.StatusForbidden},
		{"admin configures", auth.RoleAdmin, http.MethodPut, "/api/v1/devices/1/config/Name", `{"value":"x"}`, http.StatusOK},
		{"admin reads command log", auth.RoleAdmin, http.MethodGet, "/api/v1/commands", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tokenFor(t, tt.role), tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestListDevices(t *testing.T) {
	env := newTestEnv(t)
	token := tokenFor(t, auth.RoleViewer)

	tests := []struct {
		query string
		want  []supervisor.Handle
	}{
		{"", []supervisor.Handle{1, 2}},
		{"?family=PTZ", []supervisor.Handle{2}},
		{"?online=true", []supervisor.Handle{1}},
		{"?family=Light&online=false", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/v1/devices"+tt.query, token, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			var body struct {
				Devices []supervisor.Info `json:"devices"`
				Count   int               `json:"count"`
			}
			decode(t, rec, &body)
			if body.Count != len(tt.want) {
				t.Fatalf("count = %d, want %d", body.Count, len(tt.want))
			}
			for i, d := range body.Devices {
				if d.Handle != tt.want[i] {
					t.Errorf("device %d handle = %d, want %d", i, d.Handle, tt.want[i])
				}
			}
		})
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/devices?online=maybe", token, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad online filter status = %d", rec.Code)
	}
}

func TestGetDevice(t *testing.T) {
	env := newTestEnv(t)
	token := tokenFor(t, auth.RoleViewer)

	rec := env.do(t, http.MethodGet, "/api/v1/devices/2", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var info supervisor.Info
	decode(t, rec, &info)
	if info.ID != "0x03000101" || info.State != "OFFLINE" {
		t.Errorf("info = %+v", info)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/devices/9", token, nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing device status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/devices/abc", token, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad handle status = %d", rec.Code)
	}
}

func TestSendCommand(t *testing.T) {
	env := newTestEnv(t)
	token := tokenFor(t, auth.RoleOperator)

	rec := env.do(t, http.MethodPost, "/api/v1/devices/1/commands", token, supervisor.Command{Op: supervisor.OpLightLevel, Level: 60})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var res commandResult
	decode(t, rec, &res)
	if res.Seq != 1 || res.Code != 0 || res.CodeName != protocol.CodeOK.String() {
		t.Errorf("result = %+v", res)
	}
	if got := env.devices.commands(); len(got) != 1 || got[0].Level != 60 {
		t.Errorf("executed = %+v", got)
	}

	waitFor(t, "command log entry", func() bool {
		recs, err := env.commands.List(context.Background(), 1, 0, 0)
		return err == nil && len(recs) == 1
	})
	recs, _ := env.commands.List(context.Background(), 1, 0, 0)
	if recs[0].Source != "api:tester" || recs[0].Op != supervisor.OpLightLevel || recs[0].Seq != 1 {
		t.Errorf("command log = %+v", recs[0])
	}
}

func TestSendCommandFailures(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     string
		execErr  error
		want     int
		wantCode protocol.Code
	}{
		{"offline", "/api/v1/devices/2/commands", `{"op":"ptz.stop"}`, fmt.Errorf("%w: ptz", supervisor.ErrOffline), http.StatusConflict, protocol.CodeDeviceDisconnected},
		{"not found", "/api/v1/devices/7/commands", `{"op":"ptz.stop"}`, supervisor.ErrDeviceNotFound, http.StatusNotFound, protocol.CodeDeviceNotFound},
		{"wrong family", "/api/v1/devices/1/commands", `{"op":"ptz.stop"}`, supervisor.ErrWrongFamily, http.StatusUnprocessableEntity, protocol.CodeDeviceNotSupported},
		{"unsupported", "/api/v1/devices/2/commands", `{"op":"ptz.zoom"}`, device.ErrUnsupported, http.StatusUnprocessableEntity, protocol.CodeUnsupported},
		{"bad argument", "/api/v1/devices/1/commands", `{"op":"light.level","level":400}`, device.ErrInvalidArgument, http.StatusBadRequest, protocol.CodeInvalidArgument},
		{"stopped", "/api/v1/devices/1/commands", `{"op":"light.switch"}`, supervisor.ErrStopped, http.StatusServiceUnavailable, protocol.CodeNotInitialized},
		{"other", "/api/v1/devices/1/commands", `{"op":"light.switch"}`, errors.New("boom"), http.StatusInternalServerError, protocol.CodeFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.devices.execErr = tt.execErr
			rec := env.do(t, http.MethodPost, tt.path, tokenFor(t, auth.RoleOperator), tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			var res commandResult
			decode(t, rec, &res)
			if res.Code != uint32(tt.wantCode) || res.Error == "" {
				t.Errorf("result = %+v, want code %s", res, tt.wantCode)
			}

			waitFor(t, "command log entry", func() bool {
				recs, err := env.commands.List(context.Background(), 0, 0, 0)
				return err == nil && len(recs) == 1 && recs[0].Code == uint32(tt.wantCode)
			})
		})
	}
}

func TestSendCommandBadRequests(t *testing.T) {
	env := newTestEnv(t)
	token := tokenFor(t, auth.RoleOperator)
	for _, body := range []string{`not json`, `{}`, `{"on":true}`} {
		if rec := env.do(t, http.MethodPost, "/api/v1/devices/1/commands", token, body); rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
	if len(env.devices.commands()) != 0 {
		t.Error("bad requests reached the device service")
	}
}

func TestReconnect(t *testing.T) {
	env := newTestEnv(t)
	token := tokenFor(t, auth.RoleOperator)
	if rec := env.do(t, http.MethodPost, "/api/v1/devices/2/reconnect", token, nil); rec.Code != http.StatusAccepted {
		t.Errorf("status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/v1/devices/5/reconnect", token, nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing device status = %d", rec.Code)
	}
}

func TestConfigRoutes(t *testing.T) {
	env := newTestEnv(t)
	admin := tokenFor(t, auth.RoleAdmin)

	rec := env.do(t, http.MethodGet, "/api/v1/devices/1/config", admin, nil)
	var all struct {
		Config map[string]string `json:"config"`
	}
	decode(t, rec, &all)
	if all.Config["IP"] != "10.0.0.21" {
		t.Errorf("config = %v", all.Config)
	}

	rec = env.do(t, http.MethodPut, "/api/v1/devices/1/config/Name", admin, configValue{Value: "House left"})
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/api/v1/devices/1/config/Name", admin, nil)
	var one configValue
	decode(t, rec, &one)
	if one.Key != "Name" || one.Value != "House left" {
		t.Errorf("value = %+v", one)
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		setErr error
		want   int
	}{
		{"unknown key", http.MethodGet, "/api/v1/devices/1/config/Colour", "", nil, http.StatusNotFound},
		{"unknown device", http.MethodGet, "/api/v1/devices/8/config", "", nil, http.StatusNotFound},
		{"bad body", http.MethodPut, "/api/v1/devices/1/config/Name", "{", nil, http.StatusBadRequest},
		{"invalid value", http.MethodPut, "/api/v1/devices/1/config/Port", `{"value":"x"}`, device.ErrInvalidProperty, http.StatusBadRequest},
		{"stopped", http.MethodPut, "/api/v1/devices/1/config/Port", `{"value":"1"}`, supervisor.ErrStopped, http.StatusServiceUnavailable},
		{"store failure", http.MethodPut, "/api/v1/devices/1/config/Port", `{"value":"1"}`, errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.devices.mu.Lock()
			env.devices.setErr = tt.setErr
			env.devices.mu.Unlock()
			var body any
			if tt.body != "" {
				body = tt.body
			}
			if rec := env.do(t, tt.method, tt.path, admin, body); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 3, 8, 0, 0, 0, time.UTC)
	for i, r := range []store.StatusRecord{
		{DeviceID: "0x01000201", Slot: 1, State: "OFFLINE", RecordedAt: base},
		{DeviceID: "0x03000101", Slot: 2, State: "ONLINE", RecordedAt: base.Add(time.Minute)},
		{DeviceID: "0x01000201", Slot: 1, State: "ONLINE", RecordedAt: base.Add(2 * time.Minute)},
	} {
		if err := env.history.Record(ctx, &r); err != nil {
			t.Fatalf("Record(%d) error = %v", i, err)
		}
	}
	token := tokenFor(t, auth.RoleViewer)

	tests := []struct {
		query string
		want  int
	}{
		{"", 3},
		{"?device_id=0x01000201", 2},
		{"?device_id=01000201", 2},
		{"?since=" + base.Add(90*time.Second).Format(time.RFC3339), 1},
		{"?limit=1", 1},
		{"?limit=2&offset=2", 1},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/v1/history"+tt.query, token, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			var body struct {
				History []store.StatusRecord `json:"history"`
				Count   int                  `json:"count"`
			}
			decode(t, rec, &body)
			if body.Count != tt.want {
				t.Errorf("count = %d, want %d", body.Count, tt.want)
			}
		})
	}

	for _, q := range []string{"?device_id=lamp", "?since=yesterday", "?limit=-1", "?offset=x"} {
		if rec := env.do(t, http.MethodGet, "/api/v1/history"+q, token, nil); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, rec.Code)
		}
	}
}

func TestListCommands(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i, rec := range []*store.CommandRecord{
		{Handle: 1, Op: "light.switch", Source: "mqtt"},
		{Handle: 2, Op: "ptz.stop", Source: "api:tester"},
		{Handle: 1, Op: "light.level", Source: "api:tester"},
	} {
		rec.CreatedAt = time.Date(2026, 10, 3, 9, 0, i, 0, time.UTC)
		if err := env.commands.Create(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	admin := tokenFor(t, auth.RoleAdmin)

	rec := env.do(t, http.MethodGet, "/api/v1/commands?handle=1", admin, nil)
	var body struct {
		Commands []store.CommandRecord `json:"commands"`
		Count    int                   `json:"count"`
	}
	decode(t, rec, &body)
	if body.Count != 2 || body.Commands[0].Op != "light.level" {
		t.Errorf("commands = %+v", body.Commands)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/commands?handle=x", admin, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad handle status = %d", rec.Code)
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Username: "desk", Password: "fader-up"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp loginResponse
	decode(t, rec, &resp)
	if resp.TokenType != "Bearer" || resp.ExpiresIn != 900 || resp.Role != auth.RoleOperator {
		t.Errorf("response = %+v", resp)
	}

	// The issued token works on protected routes.
	if rec := env.do(t, http.MethodGet, "/api/v1/devices", resp.AccessToken, nil); rec.Code != http.StatusOK {
		t.Errorf("devices with login token status = %d", rec.Code)
	}

	for _, body := range []any{
		loginRequest{Username: "desk", Password: "wrong"},
		loginRequest{Username: "ghost", Password: "fader-up"},
	} {
		if rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", body); rec.Code != http.StatusUnauthorized {
			t.Errorf("login %+v status = %d, want 401", body, rec.Code)
		}
	}
	if rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", "{"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad JSON status = %d", rec.Code)
	}

	env.srv.accounts = nil
	if rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Username: "desk", Password: "fader-up"}); rec.Code != http.StatusUnauthorized {
		t.Errorf("login without accounts status = %d", rec.Code)
	}
}

func TestOps(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/ops", tokenFor(t, auth.RoleViewer), nil)
	var body struct {
		Ops []string `json:"ops"`
	}
	decode(t, rec, &body)
	if len(body.Ops) != len(supervisor.Ops()) {
		t.Errorf("ops = %v", body.Ops)
	}
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var m SystemMetrics
	decode(t, rec, &m)
	if m.Devices.Total != 2 || m.Devices.Online != 1 || m.Devices.DroppedPushes != 3 {
		t.Errorf("devices = %+v", m.Devices)
	}
	if m.Devices.ByFamily["PTZ"] != 1 || m.Devices.ByState["ONLINE"] != 1 {
		t.Errorf("breakdown = %+v", m.Devices)
	}
	if m.MQTT != nil || m.Gateway != nil {
		t.Error("optional sections should be omitted when not configured")
	}
	if m.Database.OpenConnections < 1 {
		t.Errorf("database = %+v", m.Database)
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/devices", nil)
	req.Header.Set("Origin", "http://console.local")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://console.local" {
		t.Error("allowed origin not echoed")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("disallowed origin was echoed")
	}
}

func TestRecovery(t *testing.T) {
	env := newTestEnv(t)
	env.devices.panicOn = "devices"
	rec := env.do(t, http.MethodGet, "/api/v1/devices", tokenFor(t, auth.RoleViewer), nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestStartClose(t *testing.T) {
	env := newTestEnv(t)
	if err := env.srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}
	if err := env.srv.Close(); err != nil {
		t.Errorf("Close() before Start error = %v", err)
	}
}
