package engine

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"live-translation-relay/internal/asr"
	"live-translation-relay/internal/audio"
	"live-translation-relay/internal/translate"
	"live-translation-relay/internal/tts"
)

// Config holds the HTTP engine settings.
type Config struct {
	ASRBaseURL       string
	TranslateBaseURL string
	TTSBaseURL       string
	SampleRate       int
	WindowSeconds    int
	PollInterval     time.Duration
	FinalizeAfter    time.Duration
}

// HTTPEngine bridges the Engine interface to external ASR, translation and
// TTS services spoken to over HTTP. Recognition works on a rolling audio
// window: the session polls the ASR service and finalizes a segment once its
// transcript has been stable for FinalizeAfter (or speech went silent).
type HTTPEngine struct {
	cfg Config
	asr *asr.Client
	tr  translate.Translator
	tts *tts.Client
}

// NewHTTP builds an HTTP-backed engine. Returns ErrUnavailable when the ASR
// endpoint is not configured; translation falls back to the echo stub and
// synthesis reports failure at call time when their endpoints are missing.
func NewHTTP(cfg Config) (*HTTPEngine, error) {
	if strings.TrimSpace(cfg.ASRBaseURL) == "" {
		return nil, fmt.Errorf("%w: ASR base URL not configured", ErrUnavailable)
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = 8
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 800 * time.Millisecond
	}
	if cfg.FinalizeAfter <= 0 {
		cfg.FinalizeAfter = 500 * time.Millisecond
	}

	var tr translate.Translator = translate.Stub{}
	if strings.TrimSpace(cfg.TranslateBaseURL) != "" {
		tr = &translate.HTTPTranslator{BaseURL: cfg.TranslateBaseURL}
	}

	eng := &HTTPEngine{
		cfg: cfg,
		asr: asr.New(cfg.ASRBaseURL),
		tr:  tr,
	}
	if strings.TrimSpace(cfg.TTSBaseURL) != "" {
		eng.tts = tts.New(cfg.TTSBaseURL)
	}
	return eng, nil
}

// consecutive ASR failures after which the session gives up and cancels
const maxASRFailures = 5

func (e *HTTPEngine) StartSession(sourceLang string, targetLangs []string) (Session, error) {
	s := &httpSession{
		eng:        e,
		sourceLang: sourceLang,
		targets:    append([]string(nil), targetLangs...),
		ring:       audio.NewRing(e.cfg.SampleRate * e.cfg.WindowSeconds),
		events:     make(chan Event, 16),
		quit:       make(chan struct{}),
	}
	go s.pollLoop()
	return s, nil
}

// Synthesize converts text to a WAV via the external TTS service.
func (e *HTTPEngine) Synthesize(text, voice string) ([]byte, error) {
	if e.tts == nil {
		return nil, fmt.Errorf("%w: TTS base URL not configured", ErrUnavailable)
	}
	return e.tts.Synthesize(text, voice)
}

type httpSession struct {
	eng        *HTTPEngine
	sourceLang string
	targets    []string
	ring       *audio.Ring
	events     chan Event

	quit     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	stopped bool
}

func (s *httpSession) PushAudio(data []byte) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		log.Printf("Dropping %d audio bytes pushed after session stop", len(data))
		return
	}
	if len(data)%2 != 0 {
		log.Printf("Audio frame size not even: %d bytes", len(data))
	}
	s.ring.Write(audio.SamplesFromBytes(data))
}

func (s *httpSession) Events() <-chan Event {
	return s.events
}

func (s *httpSession) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		close(s.quit)
	})
}

// pollLoop asks the ASR service for a rolling-window transcript and turns the
// results into partial/final events, in the same way the rolling caption
// session worked: a partial that stays unchanged for FinalizeAfter (or is
// followed by silence) becomes final.
func (s *httpSession) pollLoop() {
	defer close(s.events)

	cfg := s.eng.cfg
	t := time.NewTicker(cfg.PollInterval)
	defer t.Stop()

	var (
		lastPartial string
		stableSince time.Time
		noMatchSent bool
		asrFailures int
	)

	for {
		select {
		case <-s.quit:
			// A pending partial is discarded: after Stop the session must
			// produce no further events.
			return
		case <-t.C:
			pcm := s.ring.ReadLast(cfg.SampleRate * cfg.WindowSeconds)
			if len(pcm) < cfg.SampleRate {
				continue
			}

			text, err := s.eng.asr.TranscribePCM16(pcm, cfg.SampleRate, s.sourceLang)
			if err != nil {
				asrFailures++
				log.Printf("ASR poll failed (%d/%d): %v", asrFailures, maxASRFailures, err)
				if asrFailures >= maxASRFailures {
					s.emit(Event{Kind: EventCanceled, Reason: err.Error()})
					return
				}
				continue
			}
			asrFailures = 0
			text = strings.TrimSpace(text)

			if text == "" {
				if lastPartial != "" {
					// Silence after speech ends the utterance.
					s.finalize(lastPartial)
					lastPartial = ""
					stableSince = time.Time{}
					s.ring.Clear()
				} else if !noMatchSent {
					s.emit(Event{Kind: EventNoMatch})
					noMatchSent = true
				}
				continue
			}
			noMatchSent = false

			s.emit(Event{Kind: EventPartial, Text: text})

			now := time.Now()
			if text != lastPartial {
				lastPartial = text
				stableSince = now
				continue
			}
			if !stableSince.IsZero() && now.Sub(stableSince) >= cfg.FinalizeAfter {
				s.finalize(lastPartial)
				lastPartial = ""
				stableSince = time.Time{}
				s.ring.Clear()
			}
		}
	}
}

// finalize translates the segment into every target language and emits the
// final event. Translations run in parallel; a failed language is omitted
// rather than failing the segment.
func (s *httpSession) finalize(text string) {
	translations := make(map[string]string, len(s.targets))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, target := range s.targets {
		wg.Add(1)
		go func(lang string) {
			defer wg.Done()

			if strings.HasPrefix(s.sourceLang, lang) {
				mu.Lock()
				translations[lang] = text
				mu.Unlock()
				return
			}

			translated, err := s.eng.tr.Translate(text, s.sourceLang, lang)
			if err != nil {
				log.Printf("Error translating to %s: %v", lang, err)
				return
			}
			mu.Lock()
			translations[lang] = translated
			mu.Unlock()
		}(target)
	}
	wg.Wait()

	s.emit(Event{Kind: EventFinal, Text: text, Translations: translations})
}

func (s *httpSession) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.quit:
	}
}
