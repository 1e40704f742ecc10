package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9999 || cfg.Webdav.Port != 9998 {
		t.Errorf("ports = %d, %d", cfg.Server.Port, cfg.Webdav.Port)
	}
	if cfg.Camera.Device != "/dev/video0" {
		t.Errorf("device = %q", cfg.Camera.Device)
	}
	if cfg.NTPInterval() != time.Hour {
		t.Errorf("NTPInterval() = %s", cfg.NTPInterval())
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeFile(t, "shutter.yaml", `
server:
  port: 8080
camera:
  device: /dev/video2
storage:
  dir: /srv/photos
  export_fps: 0
button:
  enabled: true
  pin: 22
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Camera.Device != "/dev/video2" || cfg.Storage.Dir != "/srv/photos" {
		t.Errorf("cfg = %+v", cfg)
	}
	// untouched keys keep their defaults
	if cfg.Camera.PreviewWidth != 1280 {
		t.Errorf("preview width = %d, want 1280", cfg.Camera.PreviewWidth)
	}
	if cfg.Storage.ExportFPS != 5 {
		t.Errorf("export fps = %d, want 5", cfg.Storage.ExportFPS)
	}
	if cfg.Debounce() != 50*time.Millisecond {
		t.Errorf("Debounce() = %s", cfg.Debounce())
	}
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]string{
		"bad port":       "server:\n  port: 70000\n",
		"same ports":     "server:\n  port: 9998\n",
		"no device":      "camera:\n  device: \"\"\n",
		"mirror no keys": "mirror:\n  enabled: true\n",
		"bad pin":        "button:\n  enabled: true\n  pin: 40\n",
		"bad yaml":       "server: [\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeFile(t, "c.yaml", content)); err == nil {
				t.Error("Load() error = nil")
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load(missing) error = nil")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SHUTTER_PORT", "7000")
	t.Setenv("SHUTTER_AUTO_GRANT", "true")
	t.Setenv("MINIO_ENABLED", "1")
	t.Setenv("MINIO_ACCESS_KEY", "ak")
	t.Setenv("MINIO_SECRET_KEY", "sk")
	t.Setenv("MQTT_HOST", "broker.local")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7000 || !cfg.Permission.AutoGrant || !cfg.Mirror.Enabled {
		t.Errorf("cfg = %+v", cfg)
	}
	if got := cfg.MQTTBroker(); got != "tcp://broker.local:1883" {
		t.Errorf("MQTTBroker() = %q", got)
	}
}

func TestEnvBadValue(t *testing.T) {
	t.Setenv("SHUTTER_PORT", "nine")
	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "SHUTTER_PORT") {
		t.Errorf("Load() error = %v, want SHUTTER_PORT error", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "SHUTTER_DIR=/tmp/from-dotenv\n")
	t.Setenv("SHUTTER_DIR", "")
	os.Unsetenv("SHUTTER_DIR")

	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Dir != "/tmp/from-dotenv" {
		t.Errorf("storage dir = %q", cfg.Storage.Dir)
	}
}
