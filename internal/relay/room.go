package relay

import (
	"sync"
	"time"

	"live-translation-relay/internal/engine"
)

// Room is the per-room state: configuration, the optional active recognition
// session, the dedup cursor, transcript history and the per-language listener
// sets. All mutable fields are guarded by mu; listener tasks, the speaker
// task and the dispatch pump all touch the same room concurrently.
type Room struct {
	id string

	mu             sync.Mutex
	sourceLanguage string
	storageMode    StorageMode
	startedAt      time.Time

	activeSession engine.Session
	onSessionEnd  func()
	speakerCount  int

	// lang -> set of listener connections; a connection belongs to exactly
	// one language set, empty sets are pruned.
	listeners map[string]map[Conn]struct{}

	lastFinalText        string
	transcriptOriginal   []string
	transcriptByLanguage map[string][]string
}

func newRoom(id, sourceLang string) *Room {
	return &Room{
		id:                   id,
		sourceLanguage:       sourceLang,
		storageMode:          StorageNoRecord,
		startedAt:            time.Now(),
		listeners:            make(map[string]map[Conn]struct{}),
		transcriptByLanguage: make(map[string][]string),
	}
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// Config returns a snapshot of the room configuration.
func (r *Room) Config() RoomConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RoomConfig{
		RoomID:         r.id,
		SourceLanguage: r.sourceLanguage,
		StorageMethod:  r.storageMode,
		StartedAt:      r.startedAt,
	}
}

// Stats returns the room's stats row.
func (r *Room) Stats() RoomStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, set := range r.listeners {
		total += len(set)
	}
	return RoomStats{
		RoomID:         r.id,
		SpeakerCount:   r.speakerCount,
		ListenerCount:  total,
		ElapsedSeconds: int64(time.Since(r.startedAt).Seconds()),
	}
}

// TranscriptOriginal returns a copy of the source-language transcript.
func (r *Room) TranscriptOriginal() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.transcriptOriginal...)
}

// TranscriptTranslated returns a copy of the transcript for one target
// language; empty when the language was never produced.
func (r *Room) TranscriptTranslated(lang string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.transcriptByLanguage[lang]...)
}

// endSessionLocked clears the active session and the dedup cursor, and fires
// the session-end hook once. Caller holds r.mu. Returns the session that was
// cleared, or nil when s is not the active session anymore.
func (r *Room) endSessionLocked(s engine.Session) engine.Session {
	if r.activeSession == nil || (s != nil && r.activeSession != s) {
		return nil
	}
	ended := r.activeSession
	r.activeSession = nil
	r.lastFinalText = ""
	if r.onSessionEnd != nil {
		hook := r.onSessionEnd
		r.onSessionEnd = nil
		go hook()
	}
	return ended
}
