package asr

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTranscribePCM16(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcribe" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Content-Type"); got != "audio/wav" {
			t.Errorf("content type = %q", got)
		}
		if got := r.Header.Get("x-language"); got != "en-US" {
			t.Errorf("language hint = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body[:4]) != "RIFF" {
			t.Error("body is not a WAV payload")
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "hello"})
	}))
	defer srv.Close()

	got, err := New(srv.URL).TranscribePCM16(make([]int16, 16000), 16000, "en-US")
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello" {
		t.Fatalf("text = %q", got)
	}
}

func TestTranscribeWAVOmitsEmptyLanguageHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, present := r.Header["X-Language"]; present {
			t.Error("x-language header must be omitted for empty language")
		}
		json.NewEncoder(w).Encode(map[string]string{"text": ""})
	}))
	defer srv.Close()

	if _, err := New(srv.URL).TranscribeWAV([]byte("RIFF"), ""); err != nil {
		t.Fatal(err)
	}
}

func TestTranscribeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := New(srv.URL).TranscribeWAV([]byte("RIFF"), "en-US"); err == nil {
		t.Fatal("expected error for non-2xx status")
	}
}
