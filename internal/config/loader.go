package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":       {"deepgram"},
	"translate": {"anyllm", "openai", "gemini", "ollama"},
	"tts":       {"openai", "elevenlabs", "coqui"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Store backend
	if cfg.Store.Backend != "" && !cfg.Store.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("store.backend %q is invalid; valid values: memory, postgres", cfg.Store.Backend))
	}
	if cfg.Store.Backend == StorePostgres && cfg.Store.PostgresDSN == "" {
		errs = append(errs, errors.New("store.postgres_dsn is required when store.backend is postgres"))
	}
	if cfg.Store.Backend == StoreMemory || cfg.Store.Backend == "" {
		if cfg.Store.PostgresDSN != "" {
			slog.Warn("store.postgres_dsn is set but store.backend is memory; the DSN will be ignored")
		}
	}

	// Channel backend
	if cfg.Channel.Backend != "" && !cfg.Channel.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("channel.backend %q is invalid; valid values: memory, nats", cfg.Channel.Backend))
	}
	if cfg.Channel.Backend == ChannelNATS && cfg.Channel.NATSURL == "" {
		errs = append(errs, errors.New("channel.nats_url is required when channel.backend is nats"))
	}

	// Multi-node coherence: a distributed channel with a process-local lock
	// table splits the floor brain.
	if cfg.Channel.Backend == ChannelNATS && cfg.Store.Backend != StorePostgres {
		slog.Warn("channel.backend is nats but store.backend is not postgres; floor locks will not be shared across nodes")
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("translate", cfg.Providers.Translate.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	for _, fb := range cfg.Providers.Translate.Fallbacks {
		validateProviderName("translate", fb.Name)
	}
	for _, fb := range cfg.Providers.TTS.Fallbacks {
		validateProviderName("tts", fb.Name)
	}
	if len(cfg.Providers.STT.Fallbacks) > 0 {
		errs = append(errs, errors.New("providers.stt.fallbacks is not supported; recognition streams cannot fail over mid-stream"))
	}

	// Provider availability warnings
	if cfg.Providers.Translate.Name == "" {
		slog.Warn("no translate provider configured; listeners will hear untranslated text")
	}
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("no tts provider configured; listeners will not receive audio")
	}

	// Floor timing
	if cfg.Floor.StaleThreshold < 0 {
		errs = append(errs, errors.New("floor.stale_threshold must not be negative"))
	}
	if cfg.Floor.HeartbeatInterval < 0 {
		errs = append(errs, errors.New("floor.heartbeat_interval must not be negative"))
	}
	if cfg.Floor.StaleThreshold > 0 && cfg.Floor.HeartbeatInterval > 0 &&
		cfg.Floor.StaleThreshold <= cfg.Floor.HeartbeatInterval {
		errs = append(errs, fmt.Errorf("floor.stale_threshold (%s) must exceed floor.heartbeat_interval (%s), or every holder goes stale between beats",
			cfg.Floor.StaleThreshold.Std(), cfg.Floor.HeartbeatInterval.Std()))
	}

	// Pipeline
	if cfg.Pipeline.QuietInterval < 0 {
		errs = append(errs, errors.New("pipeline.quiet_interval must not be negative"))
	}
	if cfg.Pipeline.CatchUpLimit < 0 {
		errs = append(errs, errors.New("pipeline.catch_up_limit must not be negative"))
	}
	if cfg.Pipeline.TargetLanguage == "" && cfg.Providers.Translate.Name != "" {
		slog.Warn("providers.translate is configured but pipeline.target_language is empty; per-session targets must be set by clients")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
