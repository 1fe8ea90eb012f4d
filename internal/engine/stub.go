package engine

import (
	"fmt"
	"sync"
)

// StubEngine is a deterministic in-process engine for tests and for running
// the relay without external speech services. Sessions emit whatever the test
// feeds them through Emit.
type StubEngine struct {
	// StartErr, when set, is returned by StartSession.
	StartErr error
	// SynthesizeFunc overrides Synthesize; the default returns a fake WAV
	// payload derived from the text.
	SynthesizeFunc func(text, voice string) ([]byte, error)

	mu       sync.Mutex
	sessions []*StubSession
}

func (e *StubEngine) StartSession(sourceLang string, targetLangs []string) (Session, error) {
	if e.StartErr != nil {
		return nil, e.StartErr
	}
	s := &StubSession{
		SourceLang:  sourceLang,
		TargetLangs: append([]string(nil), targetLangs...),
		events:      make(chan Event, 16),
	}
	e.mu.Lock()
	e.sessions = append(e.sessions, s)
	e.mu.Unlock()
	return s, nil
}

func (e *StubEngine) Synthesize(text, voice string) ([]byte, error) {
	if e.SynthesizeFunc != nil {
		return e.SynthesizeFunc(text, voice)
	}
	return []byte("RIFF-stub:" + voice + ":" + text), nil
}

// Sessions returns every session started so far.
func (e *StubEngine) Sessions() []*StubSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*StubSession(nil), e.sessions...)
}

// LastSession returns the most recently started session, or an error when
// none was started.
func (e *StubEngine) LastSession() (*StubSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.sessions) == 0 {
		return nil, fmt.Errorf("no session started")
	}
	return e.sessions[len(e.sessions)-1], nil
}

// StubSession records pushed audio and replays scripted events.
type StubSession struct {
	SourceLang  string
	TargetLangs []string

	events chan Event

	mu      sync.Mutex
	stopped bool
	pushed  [][]byte
}

func (s *StubSession) PushAudio(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	s.pushed = append(s.pushed, buf)
}

func (s *StubSession) Events() <-chan Event {
	return s.events
}

func (s *StubSession) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.events)
}

// Emit feeds one event to the session's consumer. Events emitted after Stop
// are dropped.
func (s *StubSession) Emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.events <- ev
}

// Cancel emits a cancellation and closes the stream, mimicking an
// engine-side failure mid-session.
func (s *StubSession) Cancel(reason string) {
	s.Emit(Event{Kind: EventCanceled, Reason: reason})
	s.Stop()
}

// Pushed returns the audio frames received so far.
func (s *StubSession) Pushed() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.pushed...)
}

// Stopped reports whether Stop has been called.
func (s *StubSession) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
