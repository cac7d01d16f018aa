// Package config loads daemon settings from defaults, an optional YAML file,
// IRRIGATION_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/irrigation-controller/internal/gpio"
	"github.com/sweeney/irrigation-controller/internal/logger"
	"github.com/sweeney/irrigation-controller/internal/logic"
)

const envPrefix = "IRRIGATION"

type Config struct {
	DeviceID  string          `mapstructure:"device_id" yaml:"device_id"`
	LogLevel  string          `mapstructure:"log_level" yaml:"log_level"`
	Threshold int             `mapstructure:"threshold" yaml:"threshold"`
	Schedule  []string        `mapstructure:"schedule" yaml:"schedule"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Mode      ModeConfig      `mapstructure:"mode" yaml:"mode"`
	HTTP      HTTPConfig      `mapstructure:"http" yaml:"http"`
	Relay     RelayConfig     `mapstructure:"relay" yaml:"relay"`
	Sensor    SensorConfig    `mapstructure:"sensor" yaml:"sensor"`
	Clock     ClockConfig     `mapstructure:"clock" yaml:"clock"`
	Loop      LoopConfig      `mapstructure:"loop" yaml:"loop"`
	Network   NetworkConfig   `mapstructure:"network" yaml:"network"`
	MQTT      MQTTConfig      `mapstructure:"mqtt" yaml:"mqtt"`
	Web       WebConfig       `mapstructure:"web" yaml:"web"`
}

type TelemetryConfig struct {
	ClimateURL string        `mapstructure:"climate_url" yaml:"climate_url"`
	SoilURL    string        `mapstructure:"soil_url" yaml:"soil_url"`
	Interval   time.Duration `mapstructure:"interval" yaml:"interval"`
}

type ModeConfig struct {
	URL       string        `mapstructure:"url" yaml:"url"`
	Interval  time.Duration `mapstructure:"interval" yaml:"interval"`
	ModePath  string        `mapstructure:"mode_path" yaml:"mode_path"`
	SlotPaths []string      `mapstructure:"slot_paths" yaml:"slot_paths"`
}

// HTTPConfig applies to every outbound request.
type HTTPConfig struct {
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Insecure bool          `mapstructure:"insecure" yaml:"insecure"`
}

type RelayConfig struct {
	Chip      string        `mapstructure:"chip" yaml:"chip"`
	Pin       int           `mapstructure:"pin" yaml:"pin"`
	ActiveLow bool          `mapstructure:"active_low" yaml:"active_low"`
	MaxOn     time.Duration `mapstructure:"max_on" yaml:"max_on"`
}

// SensorConfig points at the Linux IIO sysfs attributes.
type SensorConfig struct {
	ClimateDir string `mapstructure:"climate_dir" yaml:"climate_dir"`
	SoilPath   string `mapstructure:"soil_path" yaml:"soil_path"`
	SoilMax    int    `mapstructure:"soil_max" yaml:"soil_max"`
}

type ClockConfig struct {
	NTPServer    string        `mapstructure:"ntp_server" yaml:"ntp_server"`
	UTCOffset    time.Duration `mapstructure:"utc_offset" yaml:"utc_offset"`
	SyncInterval time.Duration `mapstructure:"sync_interval" yaml:"sync_interval"`
}

type LoopConfig struct {
	Poll      time.Duration `mapstructure:"poll" yaml:"poll"`
	Heartbeat time.Duration `mapstructure:"heartbeat" yaml:"heartbeat"`
}

type NetworkConfig struct {
	ProbeInterval time.Duration `mapstructure:"probe_interval" yaml:"probe_interval"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
}

// MQTTConfig; an empty Broker disables publishing.
type MQTTConfig struct {
	Broker     string `mapstructure:"broker" yaml:"broker"`
	ClientID   string `mapstructure:"client_id" yaml:"client_id"`
	BufferSize int    `mapstructure:"buffer_size" yaml:"buffer_size"`
}

// WebConfig; an empty Addr disables the status server.
type WebConfig struct {
	Addr      string        `mapstructure:"addr" yaml:"addr"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	RateLimit float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst int           `mapstructure:"rate_burst" yaml:"rate_burst"`
}

const apiBase = "https://smartio-api.infonering.com"

func setDefaults(v *viper.Viper) {
	v.SetDefault("device_id", "XE23214")
	v.SetDefault("log_level", logger.InfoLevel)
	v.SetDefault("threshold", 45)
	v.SetDefault("schedule", []string{"07:00", "16:30"})

	v.SetDefault("telemetry.climate_url", apiBase+"/dht/data")
	v.SetDefault("telemetry.soil_url", apiBase+"/soil/data")
	v.SetDefault("telemetry.interval", 10*time.Second)

	v.SetDefault("mode.url", apiBase+"/device/mode/XE23214")
	v.SetDefault("mode.interval", 5*time.Second)
	v.SetDefault("mode.mode_path", "$.data.pumpMode")
	v.SetDefault("mode.slot_paths", []string{"$.data.firstTime", "$.data.secondTime"})

	v.SetDefault("http.timeout", 5*time.Second)
	v.SetDefault("http.insecure", false)

	v.SetDefault("relay.chip", gpio.DefaultChip)
	v.SetDefault("relay.pin", gpio.DefaultPinRelay)
	v.SetDefault("relay.active_low", true)
	v.SetDefault("relay.max_on", 60*time.Second)

	v.SetDefault("sensor.climate_dir", "/sys/bus/iio/devices/iio:device0")
	v.SetDefault("sensor.soil_path", "/sys/bus/iio/devices/iio:device1/in_voltage0_raw")
	v.SetDefault("sensor.soil_max", logic.SoilRawMax)

	v.SetDefault("clock.ntp_server", "pool.ntp.org")
	v.SetDefault("clock.utc_offset", 7*time.Hour)
	v.SetDefault("clock.sync_interval", 60*time.Second)

	v.SetDefault("loop.poll", 100*time.Millisecond)
	v.SetDefault("loop.heartbeat", 15*time.Minute)

	v.SetDefault("network.probe_interval", time.Second)
	v.SetDefault("network.probe_timeout", 2*time.Second)

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.buffer_size", 100)

	v.SetDefault("web.addr", ":8080")
	v.SetDefault("web.cache_ttl", time.Second)
	v.SetDefault("web.rate_limit", 10.0)
	v.SetDefault("web.rate_burst", 5)
}

// flagKeys maps command-line flags onto config keys.
var flagKeys = map[string]string{
	"device":     "device_id",
	"log-level":  "log_level",
	"threshold":  "threshold",
	"broker":     "mqtt.broker",
	"http-addr":  "web.addr",
	"relay-chip": "relay.chip",
	"relay-pin":  "relay.pin",
	"ntp-server": "clock.ntp_server",
	"insecure":   "http.insecure",
}

// NewFlagSet defines the daemon's flags.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "path to a YAML config file")
	fs.Bool("print-config", false, "print the effective config as YAML and exit")
	fs.Bool("print-state", false, "read the sensors once, print them and exit")

	fs.String("device", "XE23214", "device ID reported to the server")
	fs.String("log-level", logger.InfoLevel, "debug, info, warn or error")
	fs.Int("threshold", 45, "soil moisture percent below which the pump runs")
	fs.String("broker", "", "MQTT broker URL, e.g. tcp://192.168.1.200:1883 (empty disables MQTT)")
	fs.String("http-addr", ":8080", "status page listen address (empty disables)")
	fs.String("relay-chip", gpio.DefaultChip, "GPIO chip driving the relay")
	fs.Int("relay-pin", gpio.DefaultPinRelay, "BCM line offset of the relay")
	fs.String("ntp-server", "pool.ntp.org", "NTP server (empty trusts the host clock)")
	fs.Bool("insecure", false, "skip TLS certificate verification")
	return fs
}

// Load parses args against fs and resolves the effective config.
func Load(fs *pflag.FlagSet, args []string) (*Config, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the daemon cannot run with.
func (c *Config) Validate() error {
	if c.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}
	if !logger.ValidLevel(c.LogLevel) {
		return fmt.Errorf("log_level %q: want debug, info, warn or error", c.LogLevel)
	}
	for name, u := range map[string]string{
		"telemetry.climate_url": c.Telemetry.ClimateURL,
		"telemetry.soil_url":    c.Telemetry.SoilURL,
		"mode.url":              c.Mode.URL,
	} {
		if err := checkURL(u); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	for name, d := range map[string]time.Duration{
		"telemetry.interval":     c.Telemetry.Interval,
		"mode.interval":          c.Mode.Interval,
		"http.timeout":           c.HTTP.Timeout,
		"relay.max_on":           c.Relay.MaxOn,
		"loop.poll":              c.Loop.Poll,
		"network.probe_interval": c.Network.ProbeInterval,
		"network.probe_timeout":  c.Network.ProbeTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
	}
	if c.Loop.Heartbeat < 0 {
		return fmt.Errorf("loop.heartbeat must not be negative")
	}
	if c.Threshold < 0 || c.Threshold > 100 {
		return fmt.Errorf("threshold %d: want 0..100", c.Threshold)
	}
	if _, err := logic.ParseSchedule(c.Schedule); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	if len(c.Mode.SlotPaths) == 0 {
		return fmt.Errorf("mode.slot_paths must name at least one slot")
	}
	if c.Relay.Pin < 0 {
		return fmt.Errorf("relay.pin %d: must not be negative", c.Relay.Pin)
	}
	if c.Sensor.SoilMax <= 0 {
		return fmt.Errorf("sensor.soil_max must be positive")
	}
	if c.Clock.UTCOffset < -14*time.Hour || c.Clock.UTCOffset > 14*time.Hour {
		return fmt.Errorf("clock.utc_offset %v: out of range", c.Clock.UTCOffset)
	}
	if c.Web.RateLimit <= 0 || c.Web.RateBurst <= 0 {
		return fmt.Errorf("web.rate_limit and web.rate_burst must be positive")
	}
	return nil
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q: want http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q: missing host", raw)
	}
	return nil
}

// Zone returns the fixed zone used for schedule times.
func (c *Config) Zone() *time.Location {
	secs := int(c.Clock.UTCOffset / time.Second)
	return time.FixedZone(fmt.Sprintf("UTC%+03d:%02d", secs/3600, abs(secs%3600)/60), secs)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// DefaultSchedule returns the slots used until the first mode poll succeeds.
func (c *Config) DefaultSchedule() logic.Schedule {
	s, _ := logic.ParseSchedule(c.Schedule)
	return s
}

// Dump writes the config as YAML.
func (c *Config) Dump(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
