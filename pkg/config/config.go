// Package config loads the appliance configuration: a YAML file, overridden
// by environment variables (optionally read from a .env file).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Port    int    `yaml:"port"`
	Statics string `yaml:"statics"` // directory served at /, empty to disable
}

type CameraConfig struct {
	Device        string `yaml:"device"`         // V4L2 node, e.g. /dev/video0
	PreviewWidth  int    `yaml:"preview_width"`  // camerax preview and camera2 preview cap
	PreviewHeight int    `yaml:"preview_height"`
	WarmupFrames  int    `yaml:"warmup_frames"` // frames skipped before a still
}

type StorageConfig struct {
	Dir        string `yaml:"dir"`
	ThumbWidth int    `yaml:"thumb_width"`
	ExportFPS  int    `yaml:"export_fps"`
}

type PermissionConfig struct {
	AutoGrant bool `yaml:"auto_grant"` // grant camera and storage without asking
}

type WebdavConfig struct {
	Port      int  `yaml:"port"`
	AutoStart bool `yaml:"auto_start"`
}

type NTPConfig struct {
	Server      string `yaml:"server"` // empty uses the system clock
	IntervalSec int    `yaml:"interval_sec"`
}

type MirrorConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
}

type ButtonConfig struct {
	Enabled    bool `yaml:"enabled"`
	Pin        int  `yaml:"pin"` // BCM numbering, wired to ground when pressed
	DebounceMs int  `yaml:"debounce_ms"`
	Rotation   int  `yaml:"rotation"` // display rotation used for button captures
	Mock       bool `yaml:"mock"`     // no GPIO access, for development
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Camera     CameraConfig     `yaml:"camera"`
	Storage    StorageConfig    `yaml:"storage"`
	Permission PermissionConfig `yaml:"permission"`
	Webdav     WebdavConfig     `yaml:"webdav"`
	NTP        NTPConfig        `yaml:"ntp"`
	Mirror     MirrorConfig     `yaml:"mirror"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Button     ButtonConfig     `yaml:"button"`
	Log        LogConfig        `yaml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Port: 9999, Statics: "./statics"},
		Camera:  CameraConfig{Device: "/dev/video0", PreviewWidth: 1280, PreviewHeight: 720, WarmupFrames: 2},
		Storage: StorageConfig{Dir: "./twin-shutter", ThumbWidth: 320, ExportFPS: 5},
		Webdav:  WebdavConfig{Port: 9998},
		NTP:     NTPConfig{IntervalSec: 3600},
		Mirror:  MirrorConfig{Endpoint: "localhost:9000", Bucket: "twin-shutter"},
		MQTT:    MQTTConfig{Host: "localhost", Port: 1883, ClientID: "twin-shutter", Topic: "twin-shutter/photos"},
		Button:  ButtonConfig{Pin: 17, DebounceMs: 50},
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads path on top of the defaults. An empty path yields the defaults.
// Environment overrides are applied afterwards and the result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal yaml: %w", err)
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from files into the environment without
// overriding variables that are already set. Missing files are not an error.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg with the SHUTTER_*, MINIO_* and MQTT_* variables.
func ApplyEnv(cfg *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
	flag := func(key string, dst *bool) {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}

	num("SHUTTER_PORT", &cfg.Server.Port)
	str("SHUTTER_STATICS", &cfg.Server.Statics)
	str("SHUTTER_DEVICE", &cfg.Camera.Device)
	str("SHUTTER_DIR", &cfg.Storage.Dir)
	flag("SHUTTER_AUTO_GRANT", &cfg.Permission.AutoGrant)
	num("SHUTTER_WEBDAV_PORT", &cfg.Webdav.Port)
	str("SHUTTER_NTP_SERVER", &cfg.NTP.Server)
	str("SHUTTER_LOG_LEVEL", &cfg.Log.Level)

	flag("MINIO_ENABLED", &cfg.Mirror.Enabled)
	str("MINIO_ENDPOINT", &cfg.Mirror.Endpoint)
	str("MINIO_ACCESS_KEY", &cfg.Mirror.AccessKey)
	str("MINIO_SECRET_KEY", &cfg.Mirror.SecretKey)
	str("MINIO_BUCKET", &cfg.Mirror.Bucket)
	flag("MINIO_USE_SSL", &cfg.Mirror.UseSSL)

	flag("MQTT_ENABLED", &cfg.MQTT.Enabled)
	str("MQTT_HOST", &cfg.MQTT.Host)
	num("MQTT_PORT", &cfg.MQTT.Port)
	str("MQTT_USERNAME", &cfg.MQTT.Username)
	str("MQTT_PASSWORD", &cfg.MQTT.Password)
	str("MQTT_CLIENT_ID", &cfg.MQTT.ClientID)
	str("MQTT_TOPIC", &cfg.MQTT.Topic)

	return errors.Join(errs...)
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Camera.Device == "" {
		return errors.New("camera.device is required")
	}
	if c.Storage.Dir == "" {
		return errors.New("storage.dir is required")
	}
	if c.Camera.PreviewWidth < 0 || c.Camera.PreviewHeight < 0 {
		return fmt.Errorf("camera preview size must not be negative, got %dx%d", c.Camera.PreviewWidth, c.Camera.PreviewHeight)
	}
	if c.Camera.WarmupFrames < 0 {
		c.Camera.WarmupFrames = 0
	}
	if c.Storage.ThumbWidth <= 0 {
		c.Storage.ThumbWidth = 320
	}
	if c.Storage.ExportFPS <= 0 {
		c.Storage.ExportFPS = 5
	}
	if c.Webdav.Port <= 0 || c.Webdav.Port > 65535 {
		return fmt.Errorf("webdav.port must be in 1..65535, got %d", c.Webdav.Port)
	}
	if c.Webdav.Port == c.Server.Port {
		return fmt.Errorf("webdav.port and server.port are both %d", c.Server.Port)
	}
	if c.NTP.IntervalSec <= 0 {
		c.NTP.IntervalSec = 3600
	}
	if c.Mirror.Enabled {
		if c.Mirror.AccessKey == "" || c.Mirror.SecretKey == "" {
			return errors.New("mirror.access_key and mirror.secret_key are required when the mirror is enabled")
		}
		if c.Mirror.Bucket == "" {
			return errors.New("mirror.bucket is required when the mirror is enabled")
		}
	}
	if c.MQTT.Enabled && c.MQTT.Topic == "" {
		return errors.New("mqtt.topic is required when mqtt is enabled")
	}
	if c.Button.Enabled {
		if c.Button.Pin < 0 || c.Button.Pin > 27 {
			return fmt.Errorf("button.pin must be a BCM pin in 0..27, got %d", c.Button.Pin)
		}
		if c.Button.DebounceMs <= 0 {
			c.Button.DebounceMs = 50
		}
	}

	return nil
}

func (c *Config) NTPInterval() time.Duration {
	return time.Duration(c.NTP.IntervalSec) * time.Second
}

func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Button.DebounceMs) * time.Millisecond
}

// Broker returns the broker URL paho connects to.
func (m MQTTConfig) Broker() string {
	return fmt.Sprintf("tcp://%s:%d", m.Host, m.Port)
}

func (c *Config) MQTTBroker() string {
	return c.MQTT.Broker()
}
