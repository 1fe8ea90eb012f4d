package relay

import (
	"errors"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"live-translation-relay/internal/engine"
)

var (
	// ErrRoomNotFound is returned by stats/export lookups for unknown rooms.
	ErrRoomNotFound = errors.New("room not found")
	// ErrSpeakerActive is returned when a speaker attaches to a room whose
	// recognition session is already running.
	ErrSpeakerActive = errors.New("room already has an active speaker session")
)

// Options configures a Registry.
type Options struct {
	// TargetLanguages is the fixed set of languages every recognition
	// session is asked to translate into.
	TargetLanguages []string
	// DefaultSourceLanguage is used for rooms created without explicit
	// configuration.
	DefaultSourceLanguage string
	// RelayPartials forwards partial results to listeners as
	// PartialCaption frames. Off by default; partials are diagnostics only.
	RelayPartials bool
	// Archive receives finalized segments for rooms in ARCHIVE mode. May be
	// nil, in which case ARCHIVE behaves like NO_RECORD.
	Archive Archiver
}

// Registry is the single source of truth for room existence and
// configuration. It hands out the same Room for a given id to every caller.
type Registry struct {
	engine        engine.Engine
	targetLangs   []string
	defaultSource string
	relayPartials bool
	archive       Archiver

	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewRegistry(eng engine.Engine, opts Options) *Registry {
	if opts.DefaultSourceLanguage == "" {
		opts.DefaultSourceLanguage = "en-US"
	}
	if len(opts.TargetLanguages) == 0 {
		opts.TargetLanguages = []string{"es", "en", "fr", "it", "de", "pt"}
	}
	return &Registry{
		engine:        eng,
		targetLangs:   append([]string(nil), opts.TargetLanguages...),
		defaultSource: opts.DefaultSourceLanguage,
		relayPartials: opts.RelayPartials,
		archive:       opts.Archive,
		rooms:         make(map[string]*Room),
	}
}

// EnsureRoom returns the existing room or creates one with defaults. Creation
// is atomic with respect to concurrent callers.
func (g *Registry) EnsureRoom(id string) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()

	room, exists := g.rooms[id]
	if !exists {
		room = newRoom(id, g.defaultSource)
		g.rooms[id] = room
		log.Printf("Created room %q (source language %s)", id, g.defaultSource)
	}
	return room
}

// Room returns an existing room, or nil.
func (g *Registry) Room(id string) *Room {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rooms[id]
}

// Configure updates a room's source language and storage mode, creating the
// room if needed. It resets startedAt and never touches listeners or
// transcripts. A source language change takes effect on the next session;
// a running session keeps the language it was created with.
func (g *Registry) Configure(id, sourceLang string, mode StorageMode) RoomConfig {
	room := g.EnsureRoom(id)

	room.mu.Lock()
	defer room.mu.Unlock()
	if lang := strings.TrimSpace(sourceLang); lang != "" {
		room.sourceLanguage = lang
	}
	if ValidStorageMode(mode) {
		room.storageMode = mode
	}
	room.startedAt = time.Now()
	return RoomConfig{
		RoomID:         room.id,
		SourceLanguage: room.sourceLanguage,
		StorageMethod:  room.storageMode,
		StartedAt:      room.startedAt,
	}
}

// AttachSpeaker starts a recognition session for the room and returns it.
// A second attach while a session is active fails with ErrSpeakerActive.
// onEnd, when non-nil, is invoked once when the session ends for any reason
// (speaker detach or engine-side cancellation).
func (g *Registry) AttachSpeaker(id string, onEnd func()) (engine.Session, error) {
	room := g.EnsureRoom(id)

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.activeSession != nil {
		return nil, ErrSpeakerActive
	}

	sess, err := g.engine.StartSession(room.sourceLanguage, g.targetLangs)
	if err != nil {
		return nil, err
	}

	room.activeSession = sess
	room.onSessionEnd = onEnd
	room.speakerCount++
	room.startedAt = time.Now()
	log.Printf("Speaker attached to room %q (source %s, %d target languages)",
		id, room.sourceLanguage, len(g.targetLangs))

	go g.pump(room, sess)
	return sess, nil
}

// DetachSpeaker stops and clears the room's active session, decrements the
// speaker count (floored at zero) and clears the dedup cursor. Transcript
// history is preserved.
func (g *Registry) DetachSpeaker(id string) {
	room := g.Room(id)
	if room == nil {
		return
	}

	room.mu.Lock()
	ended := room.endSessionLocked(nil)
	if room.speakerCount > 0 {
		room.speakerCount--
	}
	remaining := room.speakerCount
	room.mu.Unlock()

	// Stop outside the room lock: the dispatch pump may be blocked on it.
	if ended != nil {
		ended.Stop()
	}
	log.Printf("Speaker detached from room %q (%d remaining)", id, remaining)
}

// AttachListener subscribes a connection to one target language's output.
func (g *Registry) AttachListener(id, lang string, c Conn) {
	room := g.EnsureRoom(id)

	room.mu.Lock()
	defer room.mu.Unlock()
	set, ok := room.listeners[lang]
	if !ok {
		set = make(map[Conn]struct{})
		room.listeners[lang] = set
	}
	set[c] = struct{}{}
	log.Printf("Listener joined room %q language %s (total: %d)", id, lang, len(set))
}

// DetachListener removes a connection from a language set, pruning the set's
// map entry when it empties.
func (g *Registry) DetachListener(id, lang string, c Conn) {
	room := g.Room(id)
	if room == nil {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	set, ok := room.listeners[lang]
	if !ok {
		return
	}
	if _, present := set[c]; !present {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(room.listeners, lang)
	}
	log.Printf("Listener left room %q language %s (remaining: %d)", id, lang, len(set))
}

// Stats returns one row per known room, ordered by room id.
func (g *Registry) Stats() []RoomStats {
	g.mu.RLock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, room := range g.rooms {
		rooms = append(rooms, room)
	}
	g.mu.RUnlock()

	stats := make([]RoomStats, 0, len(rooms))
	for _, room := range rooms {
		stats = append(stats, room.Stats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].RoomID < stats[j].RoomID })
	return stats
}

// TranscriptOriginal returns the newline-joined source transcript. An empty
// transcript yields an empty string, not an error.
func (g *Registry) TranscriptOriginal(id string) (string, error) {
	room := g.Room(id)
	if room == nil {
		return "", ErrRoomNotFound
	}
	return strings.Join(room.TranscriptOriginal(), "\n"), nil
}

// TranscriptTranslated returns the newline-joined transcript for one target
// language; empty if that language was never produced.
func (g *Registry) TranscriptTranslated(id, lang string) (string, error) {
	room := g.Room(id)
	if room == nil {
		return "", ErrRoomNotFound
	}
	return strings.Join(room.TranscriptTranslated(lang), "\n"), nil
}
