// Package engine defines the boundary to the external speech
// recognition/translation/synthesis service. The relay consumes it purely
// through the Engine and Session interfaces, so any compliant backend is
// substitutable.
package engine

import "errors"

// ErrUnavailable indicates the engine could not be initialized or a session
// could not be started (bad configuration, missing credentials). It is fatal
// to the attach that triggered it and is not retried automatically.
var ErrUnavailable = errors.New("recognition engine unavailable")

// EventKind tags a recognition event.
type EventKind int

const (
	// EventPartial is an in-progress, revisable recognition result.
	EventPartial EventKind = iota
	// EventFinal is a completed segment with per-language translations.
	EventFinal
	// EventNoMatch means audio was consumed but no speech was recognized.
	EventNoMatch
	// EventCanceled means the engine ended the session (network loss, quota,
	// unsupported format). The session produces no further events after it.
	EventCanceled
)

// Event is one recognition result from a session. Translations is only set
// for EventFinal; Reason is only set for EventCanceled.
type Event struct {
	Kind         EventKind
	Text         string
	Translations map[string]string
	Reason       string
}

// Session is one continuous recognition+translation conversation for a
// single audio source.
//
// Events are produced on the session's own goroutines; the channel is the
// hand-off point, consumers never run engine code. The channel is closed
// after Stop (or an engine-side cancellation) and produces no further items.
type Session interface {
	// PushAudio enqueues raw PCM16LE mono audio. It never blocks the caller
	// and silently drops data once the session has been stopped.
	PushAudio(data []byte)

	// Events returns the session's event stream. The same channel is
	// returned on every call.
	Events() <-chan Event

	// Stop is idempotent. It ends recognition, closes the audio sink and
	// closes the event channel. Safe to call even if creation partially
	// failed.
	Stop()
}

// Engine creates recognition sessions and synthesizes speech.
type Engine interface {
	StartSession(sourceLang string, targetLangs []string) (Session, error)
	Synthesize(text, voice string) ([]byte, error)
}
