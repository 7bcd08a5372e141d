package pipeline

// Event is the sum type for pipeline stage outcomes. Every event carries the
// ID of the item it belongs to so sinks can correlate stages across the
// concurrent item streams.
//
// Concrete types: [RenderSourceEvent], [TranslateEvent], [SynthesizeEvent].
type Event interface {
	// ItemID returns the ID of the dispatched item this event describes.
	ItemID() string
}

// RenderSourceEvent is emitted synchronously from Dispatch, before any
// provider call, so UIs can show the original sentence immediately.
type RenderSourceEvent struct {
	Item Item
}

// ItemID implements Event.
func (e RenderSourceEvent) ItemID() string { return e.Item.ID }

// TranslateEvent reports the outcome of the translation stage. Exactly one
// of TranslatedText and Err is meaningful: when Err is non-nil the stage
// failed and no synthesis follows for this item.
type TranslateEvent struct {
	Item           Item
	TranslatedText string
	Err            error
}

// ItemID implements Event.
func (e TranslateEvent) ItemID() string { return e.Item.ID }

// SynthesizeEvent reports the outcome of the synthesis stage. On success
// Audio holds one complete encoded clip for the translated sentence; this is
// the handoff point to playback.
type SynthesizeEvent struct {
	Item  Item
	Audio []byte
	Err   error
}

// ItemID implements Event.
func (e SynthesizeEvent) ItemID() string { return e.Item.ID }
