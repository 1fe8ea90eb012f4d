package engine

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func fastConfig(asrURL string) Config {
	return Config{
		ASRBaseURL:    asrURL,
		SampleRate:    16000,
		WindowSeconds: 2,
		PollInterval:  10 * time.Millisecond,
		FinalizeAfter: 25 * time.Millisecond,
	}
}

// oneSecondPCM is a second of silence at 16 kHz, enough to clear the
// minimum-audio gate of the poll loop.
func oneSecondPCM() []byte {
	return make([]byte, 16000*2)
}

func asrServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/transcribe", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func collectUntilFinal(t *testing.T, sess Session) (partials []string, final Event) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-sess.Events():
			if !ok {
				t.Fatal("event channel closed before a final was emitted")
			}
			switch ev.Kind {
			case EventPartial:
				partials = append(partials, ev.Text)
			case EventFinal:
				return partials, ev
			case EventCanceled:
				t.Fatalf("session canceled: %s", ev.Reason)
			}
		case <-deadline:
			t.Fatal("timed out waiting for a final event")
		}
	}
}

func TestNewHTTPRequiresASREndpoint(t *testing.T) {
	_, err := NewHTTP(Config{})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestSessionEmitsPartialThenFinal(t *testing.T) {
	var gotLang atomic.Value
	srv := asrServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotLang.Store(r.Header.Get("x-language"))
		json.NewEncoder(w).Encode(map[string]string{"text": "hello world"})
	})

	eng, err := NewHTTP(fastConfig(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	sess, err := eng.StartSession("en-US", []string{"es", "en"})
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Stop()

	sess.PushAudio(oneSecondPCM())

	partials, final := collectUntilFinal(t, sess)
	if len(partials) == 0 {
		t.Fatal("expected at least one partial before the final")
	}
	if partials[0] != "hello world" {
		t.Fatalf("partial = %q", partials[0])
	}
	if final.Text != "hello world" {
		t.Fatalf("final text = %q", final.Text)
	}
	// The stub translator tags non-source languages; a target that is a prefix
	// of the source gets the untranslated text.
	if got := final.Translations["es"]; got != "[es] hello world" {
		t.Fatalf("es translation = %q", got)
	}
	if got := final.Translations["en"]; got != "hello world" {
		t.Fatalf("en translation = %q", got)
	}
	if lang, _ := gotLang.Load().(string); lang != "en-US" {
		t.Fatalf("language hint = %q, want en-US", lang)
	}
}

func TestSilenceAfterSpeechFinalizes(t *testing.T) {
	var polls int64
	srv := asrServer(t, func(w http.ResponseWriter, r *http.Request) {
		// One window of speech, then silence.
		text := ""
		if atomic.AddInt64(&polls, 1) == 1 {
			text = "short utterance"
		}
		json.NewEncoder(w).Encode(map[string]string{"text": text})
	})

	cfg := fastConfig(srv.URL)
	cfg.FinalizeAfter = 10 * time.Second // force the silence path
	eng, err := NewHTTP(cfg)
	if err != nil {
		t.Fatal(err)
	}
	sess, err := eng.StartSession("en-US", []string{"es"})
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Stop()

	sess.PushAudio(oneSecondPCM())

	_, final := collectUntilFinal(t, sess)
	if final.Text != "short utterance" {
		t.Fatalf("final text = %q", final.Text)
	}
}

func TestEmptyAudioEmitsSingleNoMatch(t *testing.T) {
	srv := asrServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"text": ""})
	})

	eng, err := NewHTTP(fastConfig(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	sess, err := eng.StartSession("en-US", []string{"es"})
	if err != nil {
		t.Fatal(err)
	}

	sess.PushAudio(oneSecondPCM())

	select {
	case ev := <-sess.Events():
		if ev.Kind != EventNoMatch {
			t.Fatalf("event kind = %v, want EventNoMatch", ev.Kind)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for no-match")
	}

	// The no-match is reported once per silent stretch, not per poll.
	select {
	case ev, ok := <-sess.Events():
		if ok {
			t.Fatalf("unexpected second event: %+v", ev)
		}
	case <-time.After(100 * time.Millisecond):
	}
	sess.Stop()
}

func TestRepeatedASRFailureCancelsSession(t *testing.T) {
	srv := asrServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})

	eng, err := NewHTTP(fastConfig(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	sess, err := eng.StartSession("en-US", []string{"es"})
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Stop()

	sess.PushAudio(oneSecondPCM())

	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-sess.Events():
			if !ok {
				t.Fatal("channel closed without a cancellation event")
			}
			if ev.Kind == EventCanceled {
				if ev.Reason == "" {
					t.Fatal("cancellation must carry a reason")
				}
				// The channel closes right after cancellation.
				if _, open := <-sess.Events(); open {
					t.Fatal("events produced after cancellation")
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for cancellation")
		}
	}
}

func TestStopClosesEventsAndDropsAudio(t *testing.T) {
	srv := asrServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"text": "ignored"})
	})

	eng, err := NewHTTP(fastConfig(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	sess, err := eng.StartSession("en-US", []string{"es"})
	if err != nil {
		t.Fatal(err)
	}

	sess.Stop()
	sess.Stop() // idempotent

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sess.Events():
			if !ok {
				sess.PushAudio(oneSecondPCM()) // must not panic or block
				return
			}
		case <-deadline:
			t.Fatal("event channel never closed after Stop")
		}
	}
}

func TestSynthesizeWithoutTTSEndpoint(t *testing.T) {
	srv := asrServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"text": ""})
	})

	eng, err := NewHTTP(fastConfig(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Synthesize("hola", "es-ES-ElviraNeural"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}
