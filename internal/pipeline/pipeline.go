// Package pipeline runs finalized sentences through translation and speech
// synthesis.
//
// Each dispatched item is processed independently: a source-render event
// fires synchronously, then a goroutine performs translate and (when audio
// is requested) synthesize, reporting each stage through the configured
// event sink. A failure in one item never delays or suppresses other items;
// within a single item the stages are strictly ordered and a translation
// failure skips synthesis.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eburon-meet/orbit/internal/observe"
	"github.com/eburon-meet/orbit/pkg/provider/translate"
	"github.com/eburon-meet/orbit/pkg/provider/tts"
)

// Item is one sentence travelling through the pipeline.
type Item struct {
	// ID uniquely identifies the item. Dispatch assigns one when empty.
	ID string

	// SpeakerID is the participant who produced the sentence.
	SpeakerID string

	// Text is the source sentence.
	Text string

	// Timestamp is when the sentence was finalized.
	Timestamp time.Time

	// SourceLanguage and TargetLanguage are BCP-47 codes. Empty values fall
	// back to the pipeline defaults.
	SourceLanguage string
	TargetLanguage string

	// TranslateEngine and TTSEngine override the provider-level default
	// models for this item only.
	TranslateEngine string
	TTSEngine       string

	// Voice selects the synthesis voice.
	Voice string

	// PlayAudio requests the synthesis stage. When false the item stops
	// after translation.
	PlayAudio bool
}

// Defaults fill item fields left empty at dispatch time.
type Defaults struct {
	SourceLanguage  string
	TargetLanguage  string
	TranslateEngine string
	TTSEngine       string
	Voice           string
}

// Config assembles a Pipeline.
type Config struct {
	// Translator performs the translation stage. Required.
	Translator translate.Provider

	// Synthesizer performs the synthesis stage. Required.
	Synthesizer tts.Provider

	// OnEvent receives every stage event. Required. It is called from
	// Dispatch (source render) and from per-item goroutines (translate,
	// synthesize), so it must be safe for concurrent use.
	OnEvent func(Event)

	// Defaults fill empty item fields.
	Defaults Defaults

	// Metrics records stage latencies and provider outcomes. Optional.
	Metrics *observe.Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Pipeline fans dispatched items out to per-item worker goroutines.
type Pipeline struct {
	translator  translate.Provider
	synthesizer tts.Provider
	onEvent     func(Event)
	defaults    Defaults
	metrics     *observe.Metrics
	log         *slog.Logger

	wg sync.WaitGroup
}

// New validates cfg and returns a ready Pipeline.
func New(cfg Config) (*Pipeline, error) {
	var errs []error
	if cfg.Translator == nil {
		errs = append(errs, errors.New("pipeline: Translator is required"))
	}
	if cfg.Synthesizer == nil {
		errs = append(errs, errors.New("pipeline: Synthesizer is required"))
	}
	if cfg.OnEvent == nil {
		errs = append(errs, errors.New("pipeline: OnEvent is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		translator:  cfg.Translator,
		synthesizer: cfg.Synthesizer,
		onEvent:     cfg.OnEvent,
		defaults:    cfg.Defaults,
		metrics:     cfg.Metrics,
		log:         log,
	}, nil
}

// Dispatch accepts one sentence, emits its source-render event synchronously,
// and schedules the provider stages in the background. It returns the item's
// ID (assigned when the caller left it empty) without waiting for the
// providers.
func (p *Pipeline) Dispatch(ctx context.Context, item Item) string {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.SourceLanguage == "" {
		item.SourceLanguage = p.defaults.SourceLanguage
	}
	if item.TargetLanguage == "" {
		item.TargetLanguage = p.defaults.TargetLanguage
	}
	if item.TranslateEngine == "" {
		item.TranslateEngine = p.defaults.TranslateEngine
	}
	if item.TTSEngine == "" {
		item.TTSEngine = p.defaults.TTSEngine
	}
	if item.Voice == "" {
		item.Voice = p.defaults.Voice
	}

	p.onEvent(RenderSourceEvent{Item: item})

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.process(ctx, item)
	}()
	return item.ID
}

// Wait blocks until all in-flight items have finished their stages.
func (p *Pipeline) Wait() { p.wg.Wait() }

func (p *Pipeline) process(ctx context.Context, item Item) {
	translated, err := p.runTranslate(ctx, item)
	p.onEvent(TranslateEvent{Item: item, TranslatedText: translated, Err: err})
	if err != nil {
		p.log.Warn("translation failed",
			"item_id", item.ID,
			"speaker_id", item.SpeakerID,
			"target_language", item.TargetLanguage,
			"error", err)
		return
	}

	if !item.PlayAudio {
		return
	}

	audio, err := p.runSynthesize(ctx, item, translated)
	p.onEvent(SynthesizeEvent{Item: item, Audio: audio, Err: err})
	if err != nil {
		p.log.Warn("synthesis failed",
			"item_id", item.ID,
			"speaker_id", item.SpeakerID,
			"error", err)
	}
}

func (p *Pipeline) runTranslate(ctx context.Context, item Item) (string, error) {
	start := time.Now()
	res, err := p.translator.Translate(ctx, translate.Request{
		Text:           item.Text,
		SourceLanguage: item.SourceLanguage,
		TargetLanguage: item.TargetLanguage,
		Engine:         item.TranslateEngine,
	})
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.metrics.ObserveTranslate(ctx, time.Since(start).Seconds(), status)
	p.metrics.RecordProviderRequest(ctx, item.TranslateEngine, "translate", status)
	if err != nil {
		return "", err
	}
	return res.TranslatedText, nil
}

func (p *Pipeline) runSynthesize(ctx context.Context, item Item, text string) ([]byte, error) {
	start := time.Now()
	audio, err := p.synthesizer.Synthesize(ctx, tts.Request{
		Text:     text,
		Voice:    item.Voice,
		Engine:   item.TTSEngine,
		Language: item.TargetLanguage,
	})
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.metrics.ObserveSynthesize(ctx, time.Since(start).Seconds(), status)
	p.metrics.RecordProviderRequest(ctx, item.TTSEngine, "tts", status)
	return audio, err
}
