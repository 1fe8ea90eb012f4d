package relay

import "time"

// StorageMode selects what happens to finalized segments beyond the in-memory
// transcript. NO_RECORD is the default; ARCHIVE additionally hands segments
// to the configured Archiver.
type StorageMode string

const (
	StorageNoRecord StorageMode = "NO_RECORD"
	StorageArchive  StorageMode = "ARCHIVE"
)

// ValidStorageMode reports whether m is a known mode.
func ValidStorageMode(m StorageMode) bool {
	return m == StorageNoRecord || m == StorageArchive
}

// Caption is the payload pushed to listeners for each finalized segment.
type Caption struct {
	OriginalText   string `json:"original_text"`
	TranslatedText string `json:"translated_text"`
	AudioURL       string `json:"audio_url"`
}

// PartialCaption is pushed to listeners only when partial relaying is enabled
// for the registry.
type PartialCaption struct {
	PartialText string `json:"partial_text"`
}

// RoomStats is one row of the stats query.
type RoomStats struct {
	RoomID         string `json:"room_id"`
	SpeakerCount   int    `json:"speaker_count"`
	ListenerCount  int    `json:"listener_count"`
	ElapsedSeconds int64  `json:"elapsed_seconds"`
}

// RoomConfig echoes an accepted configuration.
type RoomConfig struct {
	RoomID         string      `json:"room_id"`
	SourceLanguage string      `json:"input_lang"`
	StorageMethod  StorageMode `json:"storage_method"`
	StartedAt      time.Time   `json:"started_at"`
}

// Conn is the write side of a listener connection. *websocket.Conn satisfies
// it; tests use in-memory fakes.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Archiver persists finalized segments for rooms in ARCHIVE mode. lang is
// empty for the original-language segment.
type Archiver interface {
	SaveSegment(roomID, lang, text string) error
}

// ArchiverFunc adapts a function to the Archiver interface.
type ArchiverFunc func(roomID, lang, text string) error

func (f ArchiverFunc) SaveSegment(roomID, lang, text string) error {
	return f(roomID, lang, text)
}
