package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. BLANCDJ_PORT.
const EnvPrefix = "BLANCDJ"

// Defaults.
const (
	DefaultPort          = 8080
	DefaultStreamName    = "blancdj"
	DefaultRecordDir     = "recordings"
	DefaultRecordFormat  = "wav"
	DefaultQueueDir      = "queue"
	DefaultDevicePoll    = 2 * time.Second
	DefaultMeterRate     = 60.0
	DefaultGateThreshold = -50.0
	DefaultMasterVolume  = 1.0
	DefaultCrossfade     = 0.5
	DefaultLocalMonitor  = "default"
)

// Config holds all runtime configuration. Values come from defaults, then
// an optional YAML file, then BLANCDJ_* environment variables.
type Config struct {
	// Server
	Port       int
	StreamName string   // advertised to HTTP stream listeners
	ICEServers []string // STUN/TURN urls for WebRTC listeners

	// Recording and uploads
	RecordDir    string
	RecordFormat string // wav or opus
	QueueDir     string // where uploaded queue tracks are stored

	// Devices
	DevicePoll   time.Duration
	Sinks        []string // sink ids selected at startup
	LocalMonitor string   // sink id, "default" for the system output, "" for none
	Microphone   bool     // open the default capture device at startup

	// Mixer
	MeterRate     float64 // Hz
	GateThreshold float64 // dBFS
	MasterVolume  float64
	Crossfade     float64
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:          DefaultPort,
		StreamName:    DefaultStreamName,
		RecordDir:     DefaultRecordDir,
		RecordFormat:  DefaultRecordFormat,
		QueueDir:      DefaultQueueDir,
		DevicePoll:    DefaultDevicePoll,
		LocalMonitor:  DefaultLocalMonitor,
		MeterRate:     DefaultMeterRate,
		GateThreshold: DefaultGateThreshold,
		MasterVolume:  DefaultMasterVolume,
		Crossfade:     DefaultCrossfade,
	}
}

func newViper() *viper.Viper {
	d := Default()
	v := viper.New()
	v.SetDefault("port", d.Port)
	v.SetDefault("stream_name", d.StreamName)
	v.SetDefault("ice_servers", []string{})
	v.SetDefault("record_dir", d.RecordDir)
	v.SetDefault("record_format", d.RecordFormat)
	v.SetDefault("queue_dir", d.QueueDir)
	v.SetDefault("device_poll", d.DevicePoll)
	v.SetDefault("sinks", []string{})
	v.SetDefault("local_monitor", d.LocalMonitor)
	v.SetDefault("microphone", false)
	v.SetDefault("meter_rate", d.MeterRate)
	v.SetDefault("gate_threshold", d.GateThreshold)
	v.SetDefault("master_volume", d.MasterVolume)
	v.SetDefault("crossfade", d.Crossfade)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration. path is an optional YAML file; an empty path
// uses defaults and the environment only. Values that fail to parse or are
// out of range fall back to their defaults with a warning.
func Load(path string) (Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	d := Default()
	c := Config{
		Port:          get(v, "port", d.Port, cast.ToIntE),
		StreamName:    v.GetString("stream_name"),
		ICEServers:    splitList(v.GetStringSlice("ice_servers")),
		RecordDir:     v.GetString("record_dir"),
		RecordFormat:  strings.ToLower(v.GetString("record_format")),
		QueueDir:      v.GetString("queue_dir"),
		DevicePoll:    get(v, "device_poll", d.DevicePoll, cast.ToDurationE),
		Sinks:         splitList(v.GetStringSlice("sinks")),
		LocalMonitor:  v.GetString("local_monitor"),
		Microphone:    get(v, "microphone", false, cast.ToBoolE),
		MeterRate:     get(v, "meter_rate", d.MeterRate, cast.ToFloat64E),
		GateThreshold: get(v, "gate_threshold", d.GateThreshold, cast.ToFloat64E),
		MasterVolume:  get(v, "master_volume", d.MasterVolume, cast.ToFloat64E),
		Crossfade:     get(v, "crossfade", d.Crossfade, cast.ToFloat64E),
	}
	c.fallback()
	return c, nil
}

// get converts a raw value, falling back to def when it does not parse.
func get[T any](v *viper.Viper, key string, def T, conv func(any) (T, error)) T {
	out, err := conv(v.Get(key))
	if err != nil {
		slog.Warn("unparseable config value, using default", "key", key, "value", v.Get(key))
		return def
	}
	return out
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// fallback resets every invalid field to its default.
func (c *Config) fallback() {
	d := Default()
	for _, e := range c.problems() {
		slog.Warn("invalid config value, using default", "key", e.key, "err", e.msg)
		switch e.key {
		case "port":
			c.Port = d.Port
		case "record_format":
			c.RecordFormat = d.RecordFormat
		case "device_poll":
			c.DevicePoll = d.DevicePoll
		case "meter_rate":
			c.MeterRate = d.MeterRate
		case "gate_threshold":
			c.GateThreshold = d.GateThreshold
		case "master_volume":
			c.MasterVolume = d.MasterVolume
		case "crossfade":
			c.Crossfade = d.Crossfade
		case "record_dir":
			c.RecordDir = d.RecordDir
		case "queue_dir":
			c.QueueDir = d.QueueDir
		}
	}
}

type problem struct{ key, msg string }

func (c Config) problems() []problem {
	var ps []problem
	add := func(key, format string, args ...any) {
		ps = append(ps, problem{key, fmt.Sprintf(format, args...)})
	}
	if c.Port < 1 || c.Port > 65535 {
		add("port", "%d not in 1-65535", c.Port)
	}
	if c.RecordFormat != "wav" && c.RecordFormat != "opus" {
		add("record_format", "%q is not wav or opus", c.RecordFormat)
	}
	if c.RecordDir == "" {
		add("record_dir", "empty")
	}
	if c.QueueDir == "" {
		add("queue_dir", "empty")
	}
	if c.DevicePoll < 100*time.Millisecond {
		add("device_poll", "%v below 100ms", c.DevicePoll)
	}
	if c.MeterRate <= 0 || c.MeterRate > 240 {
		add("meter_rate", "%v not in (0, 240]", c.MeterRate)
	}
	if c.GateThreshold < -100 || c.GateThreshold > 0 {
		add("gate_threshold", "%v not in [-100, 0]", c.GateThreshold)
	}
	if c.MasterVolume < 0 || c.MasterVolume > 1 {
		add("master_volume", "%v not in [0, 1]", c.MasterVolume)
	}
	if c.Crossfade < 0 || c.Crossfade > 1 {
		add("crossfade", "%v not in [0, 1]", c.Crossfade)
	}
	return ps
}

// Validate reports every out-of-range field.
func (c Config) Validate() error {
	var errs []error
	for _, p := range c.problems() {
		errs = append(errs, fmt.Errorf("%s: %s", p.key, p.msg))
	}
	return errors.Join(errs...)
}
