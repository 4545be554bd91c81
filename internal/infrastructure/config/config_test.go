package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validJWTSecret = "test-secret-key-at-least-32-chars!"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "test-site"
runtime:
  push_buffer: 32
  read_timeout: 150
slots:
  rules:
    1:
      mandatory: true
      allowed_models: ["HL-525"]
  devices:
    Slot_1:
      Enable: true
      Model: HL-525
      ID: 0x01000201
      IP: 192.168.1.50
      Port: 8000
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8080
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`
	cfg, err := Load(writeFile(t, "config.yaml", content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Runtime.PushBuffer != 32 {
		t.Errorf("Runtime.PushBuffer = %d, want 32", cfg.Runtime.PushBuffer)
	}
	if cfg.DeviceReadTimeout() != 150*time.Millisecond {
		t.Errorf("DeviceReadTimeout() = %v", cfg.DeviceReadTimeout())
	}
	// Unset keys keep their defaults.
	if cfg.ReconnectInterval() != time.Second {
		t.Errorf("ReconnectInterval() = %v, want 1s", cfg.ReconnectInterval())
	}
	if rule := cfg.Slots.Rules[1]; !rule.Mandatory || len(rule.AllowedModels) != 1 {
		t.Errorf("Slots.Rules[1] = %+v", rule)
	}

	slot := cfg.Slots.Devices["Slot_1"]
	if slot["ID"] != "0x01000201" {
		t.Errorf("Slot_1 ID = %q, want hex text kept as written", slot["ID"])
	}
	if slot["Enable"] != "true" || slot["Port"] != "8000" {
		t.Errorf("Slot_1 = %v", slot)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeFile(t, "config.yaml", "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
site:
  id: ""
database:
  path: "/tmp/test.db"
api:
  port: 8080
`
	_, err := Load(writeFile(t, "config.yaml", content))
	if err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Security.JWT.Secret = validJWTSecret
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid config", func(*Config) {}, ""},
		{"missing site ID", func(c *Config) { c.Site.ID = "" }, "site.id"},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"invalid QoS", func(c *Config) { c.MQTT.QoS = 3 }, "mqtt.qos"},
		{"invalid port low", func(c *Config) { c.API.Port = 0 }, "api.port"},
		{"invalid port high", func(c *Config) { c.API.Port = 70000 }, "api.port"},
		{"missing JWT secret", func(c *Config) { c.Security.JWT.Secret = "" }, "security.jwt.secret is required"},
		{"JWT secret too short", func(c *Config) { c.Security.JWT.Secret = "short" }, "at least 32"},
		{"API disabled needs no secret", func(c *Config) {
			c.API.Enabled = false
			c.Security.JWT.Secret = ""
		}, ""},
		{"zero push buffer", func(c *Config) { c.Runtime.PushBuffer = 0 }, "runtime.push_buffer"},
		{"zero read timeout", func(c *Config) { c.Runtime.ReadTimeout = 0 }, "runtime.read_timeout"},
		{"slot rule out of range", func(c *Config) {
			c.Slots.Rules = map[int]SlotRuleConfig{256: {Mandatory: true}}
		}, "slot 256"},
		{"gateway port", func(c *Config) {
			c.Gateway.Enabled = true
			c.Gateway.Port = 0
		}, "gateway.port"},
		{"gateway port ignored when disabled", func(c *Config) { c.Gateway.Port = 0 }, ""},
		{"influx without url", func(c *Config) { c.InfluxDB.Enabled = true }, "influxdb.url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.Site.ID = ""
	cfg.Database.Path = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil")
	}
	for _, want := range []string{"site.id", "database.path", "security.jwt.secret"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
		Runtime: RuntimeConfig{
			ReadTimeout:          250,
			ReconnectInterval:    500,
			MaxReconnectInterval: 20,
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
	if got := cfg.DeviceReadTimeout(); got != 250*time.Millisecond {
		t.Errorf("DeviceReadTimeout() = %v", got)
	}
	if got := cfg.ReconnectInterval(); got != 500*time.Millisecond {
		t.Errorf("ReconnectInterval() = %v", got)
	}
	if got := cfg.MaxReconnectInterval(); got != 20*time.Second {
		t.Errorf("MaxReconnectInterval() = %v", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("ECHOCTL_SLOTS_FILE", "/etc/echocontrol/slots.yaml")
	t.Setenv("ECHOCTL_DATABASE_PATH", "/custom/path.db")
	t.Setenv("ECHOCTL_GATEWAY_PORT", "9200")
	t.Setenv("ECHOCTL_MQTT_HOST", "mqtt.example.com")
	t.Setenv("ECHOCTL_MQTT_USERNAME", "testuser")
	t.Setenv("ECHOCTL_MQTT_PASSWORD", "testpass")
	t.Setenv("ECHOCTL_API_HOST", "192.168.1.1")
	t.Setenv("ECHOCTL_API_PORT", "not-a-number")
	t.Setenv("ECHOCTL_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("ECHOCTL_JWT_SECRET", "jwt-secret")

	applyEnvOverrides(cfg)

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"Slots.File", cfg.Slots.File, "/etc/echocontrol/slots.yaml"},
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"Gateway.Port", cfg.Gateway.Port, 9200},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"API.Port (unparseable ignored)", cfg.API.Port, 8080},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Security.JWT.Secret", cfg.Security.JWT.Secret, "jwt-secret"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Site.ID == "" {
		t.Error("defaultConfig should have non-empty Site.ID")
	}
	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}
	if cfg.Runtime.PushBuffer != 256 {
		t.Errorf("defaultConfig Runtime.PushBuffer = %d, want 256", cfg.Runtime.PushBuffer)
	}
}

func TestLoadDeviceSlots(t *testing.T) {
	path := writeFile(t, "slots.yaml", `
Slot_1:
  Enable: true
  Model: HL-525
  ID: 0x01000201
Slot_2:
  Enable: false
  Model: YZ-BY010W
`)

	sections, err := LoadDeviceSlots(path)
	if err != nil {
		t.Fatalf("LoadDeviceSlots() error = %v", err)
	}
	if len(sections) != 2 {
		t.Fatalf("got %d sections, want 2", len(sections))
	}
	if sections["Slot_1"]["ID"] != "0x01000201" || sections["Slot_2"]["Enable"] != "false" {
		t.Errorf("sections = %v", sections)
	}

	if _, err := LoadDeviceSlots(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadDeviceSlots() expected error for missing file")
	}
	if _, err := LoadDeviceSlots(writeFile(t, "bad.yaml", "Slot_1: [1, 2")); err == nil {
		t.Error("LoadDeviceSlots() expected error for invalid YAML")
	}
}

func TestDeviceSections_InlineWins(t *testing.T) {
	cfg := defaultConfig()
	cfg.Slots.File = writeFile(t, "slots.yaml", `
Slot_1:
  Model: HL-525
Slot_3:
  Model: TAS-IO
`)
	cfg.Slots.Devices = map[string]map[string]string{
		"Slot_1": {"Model": "YZ-BY010W"},
	}

	sections, err := cfg.DeviceSections()
	if err != nil {
		t.Fatalf("DeviceSections() error = %v", err)
	}
	if sections["Slot_1"]["Model"] != "YZ-BY010W" {
		t.Errorf("Slot_1 Model = %q, want inline value", sections["Slot_1"]["Model"])
	}
	if sections["Slot_3"]["Model"] != "TAS-IO" {
		t.Errorf("Slot_3 missing from file sections: %v", sections)
	}

	cfg.Slots.File = ""
	cfg.Slots.Devices = nil
	if sections, err := cfg.DeviceSections(); err != nil || len(sections) != 0 {
		t.Errorf("DeviceSections() = %v, %v; want empty", sections, err)
	}
}
