package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
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

type SynthConfig struct {
	Mode         string `yaml:"mode"` // mock, exec, http
	Command      string `yaml:"command"`
	Endpoint     string `yaml:"endpoint"`
	SampleRate   int    `yaml:"sample_rate"`
	Channels     int    `yaml:"channels"`
	DefaultVoice string `yaml:"default_voice"`
	TimeoutMS    int    `yaml:"timeout_ms"`
}

type ChunkerConfig struct {
	MaxSegmentChars int `yaml:"max_segment_chars"`
}

type MergeConfig struct {
	GapMS int `yaml:"gap_ms"`
}

type OutputConfig struct {
	Directory string `yaml:"directory"`
}

type PipelineConfig struct {
	MaxConcurrency int `yaml:"max_concurrency"`
	JobTimeoutMS   int `yaml:"job_timeout_ms"`
}

type JobStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxJobs       int    `yaml:"max_jobs"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type VoiceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Synth       SynthConfig     `yaml:"synth"`
	Chunker     ChunkerConfig   `yaml:"chunker"`
	Merge       MergeConfig     `yaml:"merge"`
	Output      OutputConfig    `yaml:"output"`
	Pipeline    PipelineConfig  `yaml:"pipeline"`
	JobStore    JobStoreConfig  `yaml:"job_store"`
	Voices      []VoiceConfig   `yaml:"voices"`
}

func Default() Config {
	return Config{
		RuntimeName: "chekaru-voice",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Synth: SynthConfig{
			Mode:         "mock",
			SampleRate:   24000,
			Channels:     1,
			DefaultVoice: "v2/en_speaker_0",
			TimeoutMS:    60000,
		},
		Chunker: ChunkerConfig{
			MaxSegmentChars: 200,
		},
		Merge: MergeConfig{
			GapMS: 0,
		},
		Output: OutputConfig{
			Directory: "./data/audio",
		},
		Pipeline: PipelineConfig{
			MaxConcurrency: 2,
			JobTimeoutMS:   600000,
		},
		JobStore: JobStoreConfig{
			Path:          "./data/chekaru-jobs.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxJobs:       10000,
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
	overrideString(&cfg.RuntimeName, "CHEKARU_RUNTIME_NAME")
	overrideString(&cfg.Environment, "CHEKARU_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "CHEKARU_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "CHEKARU_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "CHEKARU_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "CHEKARU_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "CHEKARU_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "CHEKARU_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "CHEKARU_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "CHEKARU_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "CHEKARU_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "CHEKARU_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "CHEKARU_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "CHEKARU_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "CHEKARU_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "CHEKARU_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "CHEKARU_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Synth.Mode, "CHEKARU_SYNTH_MODE")
	overrideString(&cfg.Synth.Command, "CHEKARU_SYNTH_COMMAND")
	overrideString(&cfg.Synth.Endpoint, "CHEKARU_SYNTH_ENDPOINT")
	overrideInt(&cfg.Synth.SampleRate, "CHEKARU_SYNTH_SAMPLE_RATE")
	overrideInt(&cfg.Synth.Channels, "CHEKARU_SYNTH_CHANNELS")
	overrideString(&cfg.Synth.DefaultVoice, "CHEKARU_SYNTH_DEFAULT_VOICE")
	overrideInt(&cfg.Synth.TimeoutMS, "CHEKARU_SYNTH_TIMEOUT_MS")
	overrideInt(&cfg.Chunker.MaxSegmentChars, "CHEKARU_CHUNKER_MAX_SEGMENT_CHARS")
	overrideInt(&cfg.Merge.GapMS, "CHEKARU_MERGE_GAP_MS")
	overrideString(&cfg.Output.Directory, "CHEKARU_OUTPUT_DIRECTORY")
	overrideInt(&cfg.Pipeline.MaxConcurrency, "CHEKARU_PIPELINE_MAX_CONCURRENCY")
	overrideInt(&cfg.Pipeline.JobTimeoutMS, "CHEKARU_PIPELINE_JOB_TIMEOUT_MS")
	overrideString(&cfg.JobStore.Path, "CHEKARU_JOB_STORE_PATH")
	overrideString(&cfg.JobStore.RetentionMode, "CHEKARU_JOB_STORE_RETENTION_MODE")
	overrideInt(&cfg.JobStore.RetentionDays, "CHEKARU_JOB_STORE_RETENTION_DAYS")
	overrideInt(&cfg.JobStore.MaxJobs, "CHEKARU_JOB_STORE_MAX_JOBS")
	overrideBool(&cfg.JobStore.VacuumOnStart, "CHEKARU_JOB_STORE_VACUUM_ON_START")
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

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.Synth.Mode {
	case "mock", "exec", "http":
	default:
		return errors.New("synth.mode must be one of mock|exec|http")
	}
	if cfg.Synth.Mode == "exec" && cfg.Synth.Command == "" {
		return errors.New("synth.command must be set when mode=exec")
	}
	if cfg.Synth.Mode == "http" && cfg.Synth.Endpoint == "" {
		return errors.New("synth.endpoint must be set when mode=http")
	}
	if cfg.Synth.SampleRate <= 0 {
		return errors.New("synth.sample_rate must be positive")
	}
	if cfg.Synth.Channels <= 0 {
		return errors.New("synth.channels must be positive")
	}
	if cfg.Chunker.MaxSegmentChars <= 0 {
		return errors.New("chunker.max_segment_chars must be positive")
	}
	if cfg.Merge.GapMS < 0 {
		return errors.New("merge.gap_ms must be >= 0")
	}
	if cfg.Output.Directory == "" {
		return errors.New("output.directory must not be empty")
	}
	if cfg.Pipeline.MaxConcurrency <= 0 {
		return errors.New("pipeline.max_concurrency must be >= 1")
	}
	if cfg.JobStore.Path == "" {
		return errors.New("job_store.path must not be empty")
	}
	switch cfg.JobStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("job_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.JobStore.RetentionDays < 0 {
		return errors.New("job_store.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	for i, v := range cfg.Voices {
		if v.ID == "" {
			return fmt.Errorf("voices[%d].id must not be empty", i)
		}
	}
	return nil
}
