package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PipelineChanged is true when any session default (languages, voice,
	// quiet interval, catch-up limit) changed. New sessions pick the new
	// defaults up; running sessions keep theirs.
	PipelineChanged bool

	// ProvidersChanged names the provider kinds whose entry changed
	// ("stt", "translate", "tts"). Provider swaps require new sessions.
	ProvidersChanged []string
}

// Empty reports whether the diff carries no change at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.PipelineChanged && len(d.ProvidersChanged) == 0
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Pipeline != new.Pipeline {
		d.PipelineChanged = true
	}

	if !providerEntryEqual(old.Providers.STT, new.Providers.STT) {
		d.ProvidersChanged = append(d.ProvidersChanged, "stt")
	}
	if !providerEntryEqual(old.Providers.Translate, new.Providers.Translate) {
		d.ProvidersChanged = append(d.ProvidersChanged, "translate")
	}
	if !providerEntryEqual(old.Providers.TTS, new.Providers.TTS) {
		d.ProvidersChanged = append(d.ProvidersChanged, "tts")
	}

	return d
}

// providerEntryEqual compares entries field by field. Options values can be
// nested maps from YAML, so they need a deep comparison.
func providerEntryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	return reflect.DeepEqual(a.Options, b.Options) && reflect.DeepEqual(a.Fallbacks, b.Fallbacks)
}
