package translate

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStubTagsText(t *testing.T) {
	got, err := Stub{}.Translate("hello", "en-US", "es")
	if err != nil {
		t.Fatal(err)
	}
	if got != "[es] hello" {
		t.Fatalf("translation = %q", got)
	}
}

func TestHTTPTranslator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req translateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Text != "hello" || req.SourceLang != "en-US" || req.TargetLang != "es" {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(translateResponse{Translation: "hola"})
	}))
	defer srv.Close()

	tr := &HTTPTranslator{BaseURL: srv.URL}
	got, err := tr.Translate("hello", "en-US", "es")
	if err != nil {
		t.Fatal(err)
	}
	if got != "hola" {
		t.Fatalf("translation = %q", got)
	}
}

func TestHTTPTranslatorDefaultsSourceToAuto(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req translateRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.SourceLang != "auto" {
			t.Errorf("source lang = %q, want auto", req.SourceLang)
		}
		json.NewEncoder(w).Encode(translateResponse{Translation: "hola"})
	}))
	defer srv.Close()

	tr := &HTTPTranslator{BaseURL: srv.URL}
	if _, err := tr.Translate("hello", "", "es"); err != nil {
		t.Fatal(err)
	}
}

func TestHTTPTranslatorSkipsEmptyText(t *testing.T) {
	tr := &HTTPTranslator{BaseURL: "http://unused"}
	got, err := tr.Translate("", "en-US", "es")
	if err != nil || got != "" {
		t.Fatalf("got (%q, %v), want empty", got, err)
	}
}
