package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eburon-meet/orbit/internal/config"
	"github.com/eburon-meet/orbit/internal/floor"
	"github.com/eburon-meet/orbit/internal/observe"
	"github.com/eburon-meet/orbit/internal/playback"
	"github.com/eburon-meet/orbit/internal/roomstate"
	"github.com/eburon-meet/orbit/internal/session"
	"github.com/eburon-meet/orbit/pkg/provider/stt"
	"github.com/eburon-meet/orbit/pkg/types"
)

// speakerSampleRate and speakerChannels describe the capture format handed to
// the recognition provider.
const (
	speakerSampleRate = 48000
	speakerChannels   = 1
)

// RoomInfo holds metadata about an active room.
type RoomInfo struct {
	// RoomID is the room identifier.
	RoomID string

	// Speaker is the identity currently speaking from this process, if any.
	Speaker string

	// Listeners are the identities listening from this process.
	Listeners []string

	// StartedAt is when the first participant joined the room.
	StartedAt time.Time
}

// room tracks the sessions this process runs for one room. Other processes
// may run sessions for the same room; the floor store arbitrates between them.
type room struct {
	speakerID string
	speaker   *session.Speaker
	listeners map[string]*session.Listener
	startedAt time.Time
}

// RoomManagerConfig holds all dependencies for a [RoomManager].
type RoomManagerConfig struct {
	Config     *config.Config
	Providers  *Providers
	Store      floor.Store
	Channel    roomstate.Channel
	Archive    session.TranscriptArchive
	Reconciler *roomstate.Reconciler
	Metrics    *observe.Metrics
	Logger     *slog.Logger
}

// RoomManager manages the lifecycle of speaker and listener sessions, one
// room at a time as participants join and leave. All exported methods are
// safe for concurrent use.
type RoomManager struct {
	mu    sync.Mutex
	rooms map[string]*room

	// Dependencies injected at construction.
	cfg        *config.Config
	providers  *Providers
	store      floor.Store
	channel    roomstate.Channel
	archive    session.TranscriptArchive
	reconciler *roomstate.Reconciler
	metrics    *observe.Metrics
	log        *slog.Logger
}

// NewRoomManager creates a RoomManager with the given dependencies.
func NewRoomManager(cfg RoomManagerConfig) *RoomManager {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &RoomManager{
		rooms:      make(map[string]*room),
		cfg:        cfg.Config,
		providers:  cfg.Providers,
		store:      cfg.Store,
		channel:    cfg.Channel,
		archive:    cfg.Archive,
		reconciler: cfg.Reconciler,
		metrics:    cfg.Metrics,
		log:        log,
	}
}

// StartSpeaker begins a speaking turn for identity in roomID: it acquires the
// floor and starts streaming recognition. On contention the error matches
// [floor.ErrLockHeld] and names the current holder.
//
// Returns an error if this process already runs a speaker for the room.
func (rm *RoomManager) StartSpeaker(ctx context.Context, roomID, identity string) error {
	return rm.startSpeaker(ctx, roomID, identity, false)
}

// ForceSpeaker is StartSpeaker with a host override: the floor is taken
// unconditionally, displacing a live holder.
func (rm *RoomManager) ForceSpeaker(ctx context.Context, roomID, identity string) error {
	return rm.startSpeaker(ctx, roomID, identity, true)
}

func (rm *RoomManager) startSpeaker(ctx context.Context, roomID, identity string, force bool) error {
	if rm.providers.STT == nil {
		return fmt.Errorf("rooms: speaking requires an stt provider")
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	r := rm.getRoom(roomID)
	if r.speaker != nil {
		return fmt.Errorf("rooms: %q is already speaking in room %q", r.speakerID, roomID)
	}

	coord := floor.NewCoordinator(floor.CoordinatorConfig{
		Store:             rm.store,
		RoomID:            roomID,
		Identity:          identity,
		HeartbeatInterval: rm.cfg.Floor.HeartbeatInterval.Std(),
	})

	sp, err := session.NewSpeaker(session.SpeakerConfig{
		RoomID:      roomID,
		Identity:    identity,
		Coordinator: coord,
		Recognizer:  rm.providers.STT,
		StreamConfig: stt.StreamConfig{
			SampleRate: speakerSampleRate,
			Channels:   speakerChannels,
			Language:   rm.cfg.Pipeline.SourceLanguage,
		},
		Archive:       rm.archive,
		OnSegment:     func(seg types.TranscriptSegment) { rm.broadcast(roomID, seg) },
		QuietInterval: rm.cfg.Pipeline.QuietInterval.Std(),
		Metrics:       rm.metrics,
		Logger:        rm.log,
	})
	if err != nil {
		return err
	}

	if force {
		err = sp.ForceStart(ctx)
	} else {
		err = sp.Start(ctx)
	}
	if err != nil {
		rm.dropRoomIfEmpty(roomID)
		return err
	}

	r.speakerID = identity
	r.speaker = sp
	rm.log.Info("speaker started", "room", roomID, "identity", identity, "force", force)
	return nil
}

// StopSpeaker ends identity's speaking turn and releases the floor.
func (rm *RoomManager) StopSpeaker(ctx context.Context, roomID, identity string) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	r, ok := rm.rooms[roomID]
	if !ok || r.speaker == nil || r.speakerID != identity {
		return fmt.Errorf("rooms: %q is not speaking in room %q", identity, roomID)
	}

	sp := r.speaker
	r.speaker = nil
	r.speakerID = ""
	rm.dropRoomIfEmpty(roomID)

	if err := sp.Stop(ctx); err != nil {
		rm.log.Warn("speaker stop error", "room", roomID, "identity", identity, "err", err)
		return err
	}
	rm.log.Info("speaker stopped", "room", roomID, "identity", identity)
	return nil
}

// JoinListener adds identity to roomID as a listener: it subscribes to room
// state, mirrors the remote floor holder, and feeds translated clips to
// player. The returned Listener exposes the manual listen toggle.
func (rm *RoomManager) JoinListener(ctx context.Context, roomID, identity string, player playback.Player) (*session.Listener, error) {
	if rm.providers.Translate == nil {
		return nil, fmt.Errorf("rooms: listening requires a translate provider")
	}
	if rm.providers.TTS == nil {
		return nil, fmt.Errorf("rooms: listening requires a tts provider")
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	r := rm.getRoom(roomID)
	if _, ok := r.listeners[identity]; ok {
		return nil, fmt.Errorf("rooms: %q is already listening in room %q", identity, roomID)
	}

	l, err := session.NewListener(session.ListenerConfig{
		RoomID:          roomID,
		Identity:        identity,
		Channel:         rm.channel,
		Floor:           rm.store,
		Translator:      rm.providers.Translate,
		Synthesizer:     rm.providers.TTS,
		Player:          player,
		Archive:         rm.archive,
		SourceLanguage:  rm.cfg.Pipeline.SourceLanguage,
		TargetLanguage:  rm.cfg.Pipeline.TargetLanguage,
		TranslateEngine: rm.cfg.Providers.Translate.Model,
		TTSEngine:       rm.cfg.Providers.TTS.Model,
		Voice:           rm.cfg.Pipeline.Voice,
		CatchUpLimit:    rm.cfg.Pipeline.CatchUpLimit,
		Metrics:         rm.metrics,
		Logger:          rm.log,
	})
	if err != nil {
		rm.dropRoomIfEmpty(roomID)
		return nil, err
	}

	if err := l.Start(ctx); err != nil {
		rm.dropRoomIfEmpty(roomID)
		return nil, err
	}

	r.listeners[identity] = l
	rm.log.Info("listener joined", "room", roomID, "identity", identity)
	return l, nil
}

// LeaveListener removes identity's listener session from roomID.
func (rm *RoomManager) LeaveListener(ctx context.Context, roomID, identity string) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	r, ok := rm.rooms[roomID]
	if !ok {
		return fmt.Errorf("rooms: no sessions for room %q", roomID)
	}
	l, ok := r.listeners[identity]
	if !ok {
		return fmt.Errorf("rooms: %q is not listening in room %q", identity, roomID)
	}

	delete(r.listeners, identity)
	rm.dropRoomIfEmpty(roomID)

	l.Stop(ctx)
	rm.log.Info("listener left", "room", roomID, "identity", identity)
	return nil
}

// Rooms returns metadata for every room with active sessions in this process.
func (rm *RoomManager) Rooms() []RoomInfo {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	infos := make([]RoomInfo, 0, len(rm.rooms))
	for id, r := range rm.rooms {
		info := RoomInfo{
			RoomID:    id,
			Speaker:   r.speakerID,
			StartedAt: r.startedAt,
		}
		for identity := range r.listeners {
			info.Listeners = append(info.Listeners, identity)
		}
		infos = append(infos, info)
	}
	return infos
}

// StopAll tears down every session. Called during application shutdown.
func (rm *RoomManager) StopAll(ctx context.Context) {
	rm.mu.Lock()
	rooms := rm.rooms
	rm.rooms = make(map[string]*room)
	rm.mu.Unlock()

	for id, r := range rooms {
		if r.speaker != nil {
			if err := r.speaker.Stop(ctx); err != nil {
				rm.log.Warn("speaker stop error", "room", id, "identity", r.speakerID, "err", err)
			}
		}
		for _, l := range r.listeners {
			l.Stop(ctx)
		}
		rm.reconciler.Unwatch(id)
	}
}

// broadcast fans a finalized segment out to the room's local listeners. The
// segment's own producer filters itself out.
func (rm *RoomManager) broadcast(roomID string, seg types.TranscriptSegment) {
	rm.mu.Lock()
	var listeners []*session.Listener
	if r, ok := rm.rooms[roomID]; ok {
		for _, l := range r.listeners {
			listeners = append(listeners, l)
		}
	}
	rm.mu.Unlock()

	ctx := context.Background()
	for _, l := range listeners {
		l.HandleSegment(ctx, seg)
	}
}

// getRoom returns the session record for roomID, creating it (and putting the
// room under reconciler watch) on first use. Caller holds rm.mu.
func (rm *RoomManager) getRoom(roomID string) *room {
	r, ok := rm.rooms[roomID]
	if !ok {
		r = &room{
			listeners: make(map[string]*session.Listener),
			startedAt: time.Now().UTC(),
		}
		rm.rooms[roomID] = r
		rm.reconciler.Watch(roomID)
	}
	return r
}

// dropRoomIfEmpty removes the room record once it has no sessions left.
// Caller holds rm.mu.
func (rm *RoomManager) dropRoomIfEmpty(roomID string) {
	r, ok := rm.rooms[roomID]
	if !ok {
		return
	}
	if r.speaker == nil && len(r.listeners) == 0 {
		delete(rm.rooms, roomID)
		rm.reconciler.Unwatch(roomID)
	}
}
