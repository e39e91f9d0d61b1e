package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	TraceStdout    bool   `yaml:"trace_stdout"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

type HTTPConfig struct {
	Bind        string `yaml:"bind"`
	Port        int    `yaml:"port"`
	StaticDir   string `yaml:"static_dir"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Converter   ConverterConfig  `yaml:"converter"`
	Synth       SynthConfig      `yaml:"synth"`
	Output      OutputConfig     `yaml:"output"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Bus         BusConfig        `yaml:"bus"`
	Node        NodeConfig       `yaml:"node"`
}

// ConverterConfig describes the external media converter used to normalise
// reference clips.
type ConverterConfig struct {
	Command    string `yaml:"command"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	Codec      string `yaml:"codec"`
	TimeoutMS  int    `yaml:"timeout_ms"`
	TempDir    string `yaml:"temp_dir"`
	Verify     bool   `yaml:"verify"`
}

func (c ConverterConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

type SynthConfig struct {
	Mode      string `yaml:"mode"` // mock, exec, http
	Command   string `yaml:"command"`
	Endpoint  string `yaml:"endpoint"`
	Model     string `yaml:"model"`
	Device    string `yaml:"device"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

func (c SynthConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

type OutputConfig struct {
	Directory       string `yaml:"directory"`
	PublicBase      string `yaml:"public_base"`
	RetentionMin    int    `yaml:"retention_minutes"`
	SweepIntervalMS int    `yaml:"sweep_interval_ms"`
}

func (c OutputConfig) Retention() time.Duration {
	return time.Duration(c.RetentionMin) * time.Minute
}

func (c OutputConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMS) * time.Millisecond
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxJobs       int    `yaml:"max_jobs"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type NodeConfig struct {
	ID                string `yaml:"id"`
	Role              string `yaml:"role"`
	HeartbeatInterval int    `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeout  int    `yaml:"heartbeat_timeout_ms"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-clone",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind:        "0.0.0.0",
			Port:        8080,
			StaticDir:   "./web",
			MaxUploadMB: 32,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPInsecure:   true,
			MetricsEnabled: true,
		},
		Converter: ConverterConfig{
			Command:    "ffmpeg",
			SampleRate: 24000,
			Channels:   1,
			Codec:      "pcm_s16le",
			TimeoutMS:  60000,
		},
		Synth: SynthConfig{
			Mode:      "mock",
			Model:     "tts_models/multilingual/multi-dataset/xtts_v2",
			Device:    "auto",
			TimeoutMS: 300000,
		},
		Output: OutputConfig{
			Directory:       "./output",
			RetentionMin:    60,
			SweepIntervalMS: 60000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/loqa-clone.db",
			RetentionMode: "ephemeral",
			RetentionDays: 7,
			MaxJobs:       10000,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       false,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Node: NodeConfig{
			ID:                "loqa-clone-1",
			Role:              "voice-clone",
			HeartbeatInterval: 2000,
			HeartbeatTimeout:  6000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LOQA_CLONE_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_CLONE_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LOQA_CLONE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOQA_CLONE_HTTP_PORT")
	overrideString(&cfg.HTTP.StaticDir, "LOQA_CLONE_HTTP_STATIC_DIR")
	overrideInt(&cfg.HTTP.MaxUploadMB, "LOQA_CLONE_HTTP_MAX_UPLOAD_MB")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_CLONE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_CLONE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_CLONE_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.TraceStdout, "LOQA_CLONE_TELEMETRY_TRACE_STDOUT")
	overrideBool(&cfg.Telemetry.MetricsEnabled, "LOQA_CLONE_TELEMETRY_METRICS_ENABLED")
	overrideString(&cfg.Converter.Command, "LOQA_CLONE_CONVERTER_COMMAND")
	overrideInt(&cfg.Converter.SampleRate, "LOQA_CLONE_CONVERTER_SAMPLE_RATE")
	overrideInt(&cfg.Converter.Channels, "LOQA_CLONE_CONVERTER_CHANNELS")
	overrideString(&cfg.Converter.Codec, "LOQA_CLONE_CONVERTER_CODEC")
	overrideInt(&cfg.Converter.TimeoutMS, "LOQA_CLONE_CONVERTER_TIMEOUT_MS")
	overrideString(&cfg.Converter.TempDir, "LOQA_CLONE_CONVERTER_TEMP_DIR")
	overrideBool(&cfg.Converter.Verify, "LOQA_CLONE_CONVERTER_VERIFY")
	overrideString(&cfg.Synth.Mode, "LOQA_CLONE_SYNTH_MODE")
	overrideString(&cfg.Synth.Command, "LOQA_CLONE_SYNTH_COMMAND")
	overrideString(&cfg.Synth.Endpoint, "LOQA_CLONE_SYNTH_ENDPOINT")
	overrideString(&cfg.Synth.Model, "LOQA_CLONE_SYNTH_MODEL")
	overrideString(&cfg.Synth.Device, "LOQA_CLONE_SYNTH_DEVICE")
	overrideInt(&cfg.Synth.TimeoutMS, "LOQA_CLONE_SYNTH_TIMEOUT_MS")
	overrideString(&cfg.Output.Directory, "LOQA_CLONE_OUTPUT_DIRECTORY")
	overrideString(&cfg.Output.PublicBase, "LOQA_CLONE_OUTPUT_PUBLIC_BASE")
	overrideInt(&cfg.Output.RetentionMin, "LOQA_CLONE_OUTPUT_RETENTION_MINUTES")
	overrideInt(&cfg.Output.SweepIntervalMS, "LOQA_CLONE_OUTPUT_SWEEP_INTERVAL_MS")
	overrideString(&cfg.EventStore.Path, "LOQA_CLONE_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "LOQA_CLONE_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "LOQA_CLONE_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxJobs, "LOQA_CLONE_EVENT_STORE_MAX_JOBS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "LOQA_CLONE_EVENT_STORE_VACUUM_ON_START")
	overrideBool(&cfg.Bus.Enabled, "LOQA_CLONE_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "LOQA_CLONE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOQA_CLONE_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "LOQA_CLONE_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_CLONE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_CLONE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_CLONE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_CLONE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_CLONE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_CLONE_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Node.ID, "LOQA_CLONE_NODE_ID")
	overrideString(&cfg.Node.Role, "LOQA_CLONE_NODE_ROLE")
	overrideInt(&cfg.Node.HeartbeatInterval, "LOQA_CLONE_NODE_HEARTBEAT_INTERVAL_MS")
	overrideInt(&cfg.Node.HeartbeatTimeout, "LOQA_CLONE_NODE_HEARTBEAT_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

// Validate reports the first configuration error found in cfg.
func Validate(cfg Config) error {
	return validate(cfg)
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.HTTP.MaxUploadMB <= 0 {
		return errors.New("http.max_upload_mb must be positive")
	}
	switch strings.ToLower(cfg.Telemetry.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("telemetry.log_level must be one of debug|info|warn|error")
	}
	if strings.TrimSpace(cfg.Converter.Command) == "" {
		return errors.New("converter.command must not be empty")
	}
	if cfg.Converter.SampleRate <= 0 {
		return errors.New("converter.sample_rate must be positive")
	}
	if cfg.Converter.Channels <= 0 {
		return errors.New("converter.channels must be positive")
	}
	if cfg.Converter.Codec == "" {
		return errors.New("converter.codec must not be empty")
	}
	if cfg.Converter.TimeoutMS <= 0 {
		return errors.New("converter.timeout_ms must be positive")
	}
	switch cfg.Synth.Mode {
	case "mock", "exec", "http":
	default:
		return errors.New("synth.mode must be one of mock|exec|http")
	}
	if cfg.Synth.Mode == "exec" && strings.TrimSpace(cfg.Synth.Command) == "" {
		return errors.New("synth.command must be set when mode=exec")
	}
	if cfg.Synth.Mode == "http" && strings.TrimSpace(cfg.Synth.Endpoint) == "" {
		return errors.New("synth.endpoint must be set when mode=http")
	}
	if cfg.Synth.TimeoutMS <= 0 {
		return errors.New("synth.timeout_ms must be positive")
	}
	if cfg.Output.Directory == "" {
		return errors.New("output.directory must not be empty")
	}
	if cfg.Output.RetentionMin < 0 {
		return errors.New("output.retention_minutes must be >= 0")
	}
	if cfg.Output.RetentionMin > 0 && cfg.Output.SweepIntervalMS <= 0 {
		return errors.New("output.sweep_interval_ms must be positive when retention is enabled")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionMode != "ephemeral" && cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
		if cfg.Node.ID == "" {
			return errors.New("node.id must not be empty")
		}
		if cfg.Node.HeartbeatInterval <= 0 {
			return errors.New("node.heartbeat_interval_ms must be positive")
		}
		if cfg.Node.HeartbeatTimeout <= cfg.Node.HeartbeatInterval {
			return errors.New("node.heartbeat_timeout_ms must be greater than heartbeat interval")
		}
	}
	return nil
}
