package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	Traces         bool   `yaml:"traces"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

// HTTPConfig describes the public listener. An empty CORSOrigin disables CORS headers.
type HTTPConfig struct {
	Bind       string `yaml:"bind"`
	Port       int    `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

type AudioConfig struct {
	Dir                  string `yaml:"dir"`
	MaxAgeSeconds        int    `yaml:"max_age_seconds"`
	SweepIntervalSeconds int    `yaml:"sweep_interval_seconds"`
}

type TTSConfig struct {
	Mode           string `yaml:"mode"` // unreal, exec, mock
	APIKey         string `yaml:"api_key"`
	Endpoint       string `yaml:"endpoint"`
	Command        string `yaml:"command"`
	DefaultVoice   string `yaml:"default_voice"`
	Bitrate        string `yaml:"bitrate"`
	MaxInputChars  int    `yaml:"max_input_chars"`
	MaxSpokenChars int    `yaml:"max_spoken_chars"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxConcurrent  int    `yaml:"max_concurrent"`
}

type ChatConfig struct {
	Mode                string `yaml:"mode"` // openai, mock
	APIKey              string `yaml:"api_key"`
	BaseURL             string `yaml:"base_url"`
	Model               string `yaml:"model"`
	MaxHistory          int    `yaml:"max_history"`
	ChatMaxTokens       int    `yaml:"chat_max_tokens"`
	RoutineMaxTokens    int    `yaml:"routine_max_tokens"`
	HealthMaxTokens     int    `yaml:"health_max_tokens"`
	TimeoutSeconds      int    `yaml:"timeout_seconds"`
	InitProbe           bool   `yaml:"init_probe"`
	InitProbeTimeoutSec int    `yaml:"init_probe_timeout_seconds"`
}

type TranscriptionConfig struct {
	APIKey           string `yaml:"api_key"`
	Endpoint         string `yaml:"endpoint"`
	ExpiresInSeconds int    `yaml:"expires_in_seconds"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
}

// RateLimitConfig holds per-minute request budgets keyed by caller address.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	TTSPerMinute      int  `yaml:"tts_per_minute"`
	ChatPerMinute     int  `yaml:"chat_per_minute"`
	RoutinePerMinute  int  `yaml:"routine_per_minute"`
	TokenPerMinute    int  `yaml:"token_per_minute"`
	TrustForwardedFor bool `yaml:"trust_forwarded_for"`
	IdleEvictSeconds  int  `yaml:"idle_evict_seconds"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type Config struct {
	RuntimeName   string              `yaml:"runtime_name"`
	Environment   string              `yaml:"environment"`
	HTTP          HTTPConfig          `yaml:"http"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	Audio         AudioConfig         `yaml:"audio"`
	TTS           TTSConfig           `yaml:"tts"`
	Chat          ChatConfig          `yaml:"chat"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Bus           BusConfig           `yaml:"bus"`
}

func Default() Config {
	return Config{
		RuntimeName: "sleep-assistant",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind:       "0.0.0.0",
			Port:       8000,
			CORSOrigin: "*",
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			Traces:         false,
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Audio: AudioConfig{
			Dir:                  os.TempDir(),
			MaxAgeSeconds:        3600,
			SweepIntervalSeconds: 3600,
		},
		TTS: TTSConfig{
			Mode:           "unreal",
			Endpoint:       "https://api.v8.unrealspeech.com/stream",
			DefaultVoice:   "Emily",
			Bitrate:        "192k",
			MaxInputChars:  10000,
			MaxSpokenChars: 1000,
			TimeoutSeconds: 30,
			MaxConcurrent:  8,
		},
		Chat: ChatConfig{
			Mode:                "openai",
			Model:               "gpt-4o-mini",
			MaxHistory:          6,
			ChatMaxTokens:       650,
			RoutineMaxTokens:    1200,
			HealthMaxTokens:     16,
			TimeoutSeconds:      60,
			InitProbeTimeoutSec: 10,
		},
		Transcription: TranscriptionConfig{
			Endpoint:         "https://streaming.assemblyai.com/v3/token",
			ExpiresInSeconds: 600,
			TimeoutSeconds:   15,
		},
		RateLimit: RateLimitConfig{
			Enabled:          true,
			TTSPerMinute:     5,
			ChatPerMinute:    10,
			RoutinePerMinute: 3,
			TokenPerMinute:   5,
			IdleEvictSeconds: 600,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       false,
			Port:           4222,
			Host:           "127.0.0.1",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
	}
}

// Load reads the optional YAML file at path, then any .env file in the
// working directory, then environment overrides.
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

	if err := loadDotEnv(".env"); err != nil {
		return cfg, err
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadDotEnv never overrides variables already present in the process environment.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "SLEEP_RUNTIME_NAME")
	overrideString(&cfg.Environment, "SLEEP_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "SLEEP_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "SLEEP_HTTP_PORT")
	overrideString(&cfg.HTTP.CORSOrigin, "SLEEP_HTTP_CORS_ORIGIN")
	overrideString(&cfg.Telemetry.LogLevel, "SLEEP_TELEMETRY_LOG_LEVEL")
	overrideBool(&cfg.Telemetry.Traces, "SLEEP_TELEMETRY_TRACES")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "SLEEP_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "SLEEP_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "SLEEP_TELEMETRY_PROMETHEUS_BIND")
	overrideString(&cfg.Audio.Dir, "SLEEP_AUDIO_DIR")
	overrideInt(&cfg.Audio.MaxAgeSeconds, "SLEEP_AUDIO_MAX_AGE_SECONDS")
	overrideInt(&cfg.Audio.SweepIntervalSeconds, "SLEEP_AUDIO_SWEEP_INTERVAL_SECONDS")
	overrideString(&cfg.TTS.Mode, "SLEEP_TTS_MODE")
	overrideString(&cfg.TTS.APIKey, "UNREAL_API_KEY")
	overrideString(&cfg.TTS.Endpoint, "SLEEP_TTS_ENDPOINT")
	overrideString(&cfg.TTS.Command, "SLEEP_TTS_COMMAND")
	overrideString(&cfg.TTS.DefaultVoice, "SLEEP_TTS_DEFAULT_VOICE")
	overrideInt(&cfg.TTS.TimeoutSeconds, "SLEEP_TTS_TIMEOUT_SECONDS")
	overrideInt(&cfg.TTS.MaxConcurrent, "SLEEP_TTS_MAX_CONCURRENT")
	overrideString(&cfg.Chat.Mode, "SLEEP_CHAT_MODE")
	overrideString(&cfg.Chat.APIKey, "OPENAI_API_KEY")
	overrideString(&cfg.Chat.BaseURL, "SLEEP_CHAT_BASE_URL")
	overrideString(&cfg.Chat.Model, "SLEEP_CHAT_MODEL")
	overrideInt(&cfg.Chat.TimeoutSeconds, "SLEEP_CHAT_TIMEOUT_SECONDS")
	overrideBool(&cfg.Chat.InitProbe, "SLEEP_CHAT_INIT_PROBE")
	overrideString(&cfg.Transcription.APIKey, "ASSEMBLYAI_API_KEY")
	overrideString(&cfg.Transcription.Endpoint, "SLEEP_TRANSCRIPTION_ENDPOINT")
	overrideInt(&cfg.Transcription.TimeoutSeconds, "SLEEP_TRANSCRIPTION_TIMEOUT_SECONDS")
	overrideBool(&cfg.RateLimit.Enabled, "SLEEP_RATE_LIMIT_ENABLED")
	overrideBool(&cfg.RateLimit.TrustForwardedFor, "SLEEP_RATE_LIMIT_TRUST_FORWARDED_FOR")
	overrideBool(&cfg.Bus.Enabled, "SLEEP_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "SLEEP_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "SLEEP_BUS_PORT")
	overrideString(&cfg.Bus.Host, "SLEEP_BUS_HOST")
	overrideStringSlice(&cfg.Bus.Servers, "SLEEP_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "SLEEP_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "SLEEP_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "SLEEP_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "SLEEP_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "SLEEP_BUS_CONNECT_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
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
	if cfg.Audio.Dir == "" {
		return errors.New("audio.dir must not be empty")
	}
	if cfg.Audio.MaxAgeSeconds <= 0 {
		return errors.New("audio.max_age_seconds must be positive")
	}
	if cfg.Audio.SweepIntervalSeconds <= 0 {
		return errors.New("audio.sweep_interval_seconds must be positive")
	}
	switch cfg.TTS.Mode {
	case "unreal", "mock":
	case "exec":
		if cfg.TTS.Command == "" {
			return errors.New("tts.command must be set when mode=exec")
		}
	default:
		return errors.New("tts.mode must be one of unreal|exec|mock")
	}
	if cfg.TTS.MaxInputChars <= 0 || cfg.TTS.MaxSpokenChars <= 0 {
		return errors.New("tts.max_input_chars and tts.max_spoken_chars must be positive")
	}
	if cfg.TTS.TimeoutSeconds <= 0 {
		return errors.New("tts.timeout_seconds must be positive")
	}
	if cfg.TTS.MaxConcurrent <= 0 {
		return errors.New("tts.max_concurrent must be >= 1")
	}
	switch cfg.Chat.Mode {
	case "openai", "mock":
	default:
		return errors.New("chat.mode must be one of openai|mock")
	}
	if cfg.Chat.Model == "" {
		return errors.New("chat.model must not be empty")
	}
	if cfg.Chat.MaxHistory < 0 {
		return errors.New("chat.max_history must be >= 0")
	}
	if cfg.Chat.TimeoutSeconds <= 0 {
		return errors.New("chat.timeout_seconds must be positive")
	}
	if cfg.Chat.InitProbe && cfg.Chat.InitProbeTimeoutSec <= 0 {
		return errors.New("chat.init_probe_timeout_seconds must be positive")
	}
	if cfg.Chat.ChatMaxTokens <= 0 || cfg.Chat.RoutineMaxTokens <= 0 || cfg.Chat.HealthMaxTokens <= 0 {
		return errors.New("chat token budgets must be positive")
	}
	if cfg.Transcription.ExpiresInSeconds < 1 || cfg.Transcription.ExpiresInSeconds > 600 {
		return errors.New("transcription.expires_in_seconds must be between 1 and 600")
	}
	if cfg.Transcription.TimeoutSeconds <= 0 {
		return errors.New("transcription.timeout_seconds must be positive")
	}
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.TTSPerMinute <= 0 || cfg.RateLimit.ChatPerMinute <= 0 ||
			cfg.RateLimit.RoutinePerMinute <= 0 || cfg.RateLimit.TokenPerMinute <= 0 {
			return errors.New("rate_limit budgets must be positive when enabled")
		}
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	return nil
}
