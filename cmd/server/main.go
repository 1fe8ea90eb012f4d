package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"live-translation-relay/internal/auth"
	"live-translation-relay/internal/database"
	"live-translation-relay/internal/engine"
	"live-translation-relay/internal/relay"
	"live-translation-relay/internal/storage"
	"live-translation-relay/internal/tts"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Comma-separated allow list, e.g.
		// ALLOWED_ORIGINS=http://localhost:3000,https://yourdomain.com
		allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")

		// For development, allow all origins if not configured.
		if allowedOriginsEnv == "" {
			log.Println("WARNING: ALLOWED_ORIGINS not set - allowing all origins (development mode)")
			return true
		}

		origin := r.Header.Get("Origin")
		for _, allowed := range strings.Split(allowedOriginsEnv, ",") {
			if strings.TrimSpace(allowed) == origin {
				return true
			}
		}

		log.Printf("Rejected WebSocket connection from unauthorized origin: %s", origin)
		return false
	},
}

// Helper functions for consistent JSON error responses
func sendJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

func sendMethodNotAllowed(w http.ResponseWriter) {
	sendJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

func sendBadRequest(w http.ResponseWriter, message string) {
	sendJSONError(w, http.StatusBadRequest, message)
}

func sendNotFound(w http.ResponseWriter, message string) {
	sendJSONError(w, http.StatusNotFound, message)
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to write JSON response: %v", err)
	}
}

type configureRequest struct {
	RoomID        string `json:"room_id"`
	Action        string `json:"action"`
	InputLang     string `json:"input_lang"`
	StorageMethod string `json:"storage_method"`
}

// handleConfigureRoom applies a room configuration. The action field is
// informational: both "start" and "stop" behave as a configure, the session
// itself is started by a speaker attach.
func handleConfigureRoom(w http.ResponseWriter, r *http.Request, registry *relay.Registry) {
	if r.Method != http.MethodPost {
		sendMethodNotAllowed(w)
		return
	}

	var req configureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendBadRequest(w, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.RoomID) == "" {
		sendBadRequest(w, "room_id is required")
		return
	}
	if req.Action != "" && req.Action != "start" && req.Action != "stop" {
		sendBadRequest(w, "action must be \"start\" or \"stop\"")
		return
	}

	mode := relay.StorageMode(req.StorageMethod)
	if req.StorageMethod != "" && !relay.ValidStorageMode(mode) {
		sendBadRequest(w, "unknown storage_method")
		return
	}

	cfg := registry.Configure(req.RoomID, req.InputLang, mode)
	log.Printf("Room %q configured: action=%s input_lang=%s storage=%s",
		req.RoomID, req.Action, cfg.SourceLanguage, cfg.StorageMethod)
	writeJSON(w, cfg)
}

func handleStats(w http.ResponseWriter, r *http.Request, registry *relay.Registry) {
	if r.Method != http.MethodGet {
		sendMethodNotAllowed(w)
		return
	}
	writeJSON(w, map[string]interface{}{"rooms": registry.Stats()})
}

// handleRoomExport serves /api/rooms/{id}/transcript and
// /api/rooms/{id}/audio.
func handleRoomExport(w http.ResponseWriter, r *http.Request, registry *relay.Registry, eng engine.Engine, minioClient *storage.MinioClient) {
	if r.Method != http.MethodGet {
		sendMethodNotAllowed(w)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/rooms/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		sendNotFound(w, "Unknown rooms endpoint")
		return
	}
	roomID, op := parts[0], parts[1]

	switch op {
	case "transcript":
		handleTranscriptExport(w, r, registry, minioClient, roomID)
	case "audio":
		handleAudioExport(w, r, registry, eng, minioClient, roomID)
	default:
		sendNotFound(w, "Unknown rooms endpoint")
	}
}

func handleTranscriptExport(w http.ResponseWriter, r *http.Request, registry *relay.Registry, minioClient *storage.MinioClient, roomID string) {
	lang := r.URL.Query().Get("lang")

	var (
		content string
		err     error
	)
	if lang == "" {
		content, err = registry.TranscriptOriginal(roomID)
	} else {
		content, err = registry.TranscriptTranslated(roomID, lang)
	}
	if errors.Is(err, relay.ErrRoomNotFound) {
		// Rooms archived to the database outlive their in-memory state.
		segments, dbErr := database.ListSegments(roomID, lang)
		if dbErr != nil || len(segments) == 0 {
			sendNotFound(w, "Room not found")
			return
		}
		lines := make([]string, 0, len(segments))
		for _, s := range segments {
			lines = append(lines, s.Text)
		}
		content = strings.Join(lines, "\n")
	}

	filename := fmt.Sprintf("room_%s_original.txt", roomID)
	if lang != "" {
		filename = fmt.Sprintf("room_%s_%s.txt", roomID, lang)
	}

	archiveExport(minioClient, roomID, filename, []byte(content), "text/plain")

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(content)); err != nil {
		log.Printf("Failed to write transcript response: %v", err)
	}
}

func handleAudioExport(w http.ResponseWriter, r *http.Request, registry *relay.Registry, eng engine.Engine, minioClient *storage.MinioClient, roomID string) {
	room := registry.Room(roomID)
	if room == nil {
		sendNotFound(w, "Room not found")
		return
	}

	text := strings.Join(room.TranscriptOriginal(), "\n")
	if strings.TrimSpace(text) == "" {
		sendBadRequest(w, "Room has no transcript to synthesize")
		return
	}

	voice := strings.TrimSpace(r.URL.Query().Get("voice"))
	if voice == "" {
		voice = tts.VoiceForLanguage(room.Config().SourceLanguage)
	}

	wavData, err := eng.Synthesize(text, voice)
	if err != nil {
		log.Printf("Synthesis for room %q failed: %v", roomID, err)
		sendJSONError(w, http.StatusBadGateway, "Speech synthesis failed")
		return
	}

	filename := fmt.Sprintf("room_%s.wav", roomID)
	archiveExport(minioClient, roomID, filename, wavData, "audio/wav")

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(wavData); err != nil {
		log.Printf("Failed to write audio response: %v", err)
	}
}

// archiveExport uploads an export artifact to object storage when enabled.
// Failures only lose the archived copy, never the response.
func archiveExport(minioClient *storage.MinioClient, roomID, filename string, data []byte, contentType string) {
	if !minioClient.Enabled() || len(data) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	key := storage.SafeObjectKey("exports", roomID, fmt.Sprintf("%d_%s", time.Now().Unix(), filename))
	if _, _, err := minioClient.UploadBytes(ctx, key, data, contentType); err != nil {
		log.Printf("Failed to archive export %s: %v", key, err)
	}
}

// requireOperator wraps an operator API handler with optional bearer-token
// verification. A nil verifier leaves the endpoint open.
func requireOperator(verifier *auth.Verifier, next http.HandlerFunc) http.HandlerFunc {
	if verifier == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			sendJSONError(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if _, err := verifier.VerifyToken(r.Context(), token); err != nil {
			log.Printf("Operator token rejected: %v", err)
			sendJSONError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		next(w, r)
	}
}

func splitLanguages(value string) []string {
	parts := strings.Split(value, ",")
	langs := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			langs = append(langs, p)
		}
	}
	return langs
}

func main() {
	asrBaseURL := getEnv("ASR_BASE_URL", "http://127.0.0.1:8003")
	translationBaseURL := getEnv("TRANSLATION_BASE_URL", "http://127.0.0.1:8004")
	ttsBaseURL := getEnv("TTS_BASE_URL", "http://127.0.0.1:8005")

	eng, err := engine.NewHTTP(engine.Config{
		ASRBaseURL:       asrBaseURL,
		TranslateBaseURL: translationBaseURL,
		TTSBaseURL:       ttsBaseURL,
		SampleRate:       16000,
		WindowSeconds:    8,
		PollInterval:     800 * time.Millisecond,
		FinalizeAfter:    500 * time.Millisecond,
	})
	if err != nil {
		log.Fatalf("Failed to initialize recognition engine: %v", err)
	}

	opts := relay.Options{
		TargetLanguages:       splitLanguages(getEnv("TARGET_LANGUAGES", "es,en,fr,it,de,pt")),
		DefaultSourceLanguage: getEnv("DEFAULT_SOURCE_LANGUAGE", "en-US"),
		RelayPartials:         strings.EqualFold(getEnv("RELAY_PARTIALS", "false"), "true"),
	}

	// Optional Postgres archive for rooms in ARCHIVE storage mode.
	if strings.EqualFold(getEnv("ARCHIVE_DB_ENABLED", "false"), "true") {
		if err := database.Init(); err != nil {
			log.Fatalf("Failed to initialize archive database: %v", err)
		}
		defer database.Close()
		opts.Archive = relay.ArchiverFunc(database.SaveSegment)
	}

	registry := relay.NewRegistry(eng, opts)

	verifier, err := auth.NewVerifierFromEnv()
	if err != nil {
		log.Printf("Operator auth disabled: %v", err)
		verifier = nil
	}

	minioClient, err := storage.NewMinioFromEnv()
	if err != nil {
		log.Printf("MinIO disabled: %v", err)
		minioClient = &storage.MinioClient{}
	}

	http.HandleFunc("/ws/speaker", func(w http.ResponseWriter, r *http.Request) {
		roomID := strings.TrimSpace(r.URL.Query().Get("room"))
		if roomID == "" {
			sendBadRequest(w, "room is required")
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("Speaker upgrade failed: %v", err)
			return
		}
		go registry.HandleSpeaker(conn, roomID)
	})

	http.HandleFunc("/ws/listener", func(w http.ResponseWriter, r *http.Request) {
		roomID := strings.TrimSpace(r.URL.Query().Get("room"))
		lang := strings.TrimSpace(r.URL.Query().Get("lang"))
		if roomID == "" || lang == "" {
			sendBadRequest(w, "room and lang are required")
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("Listener upgrade failed: %v", err)
			return
		}
		go registry.HandleListener(conn, roomID, lang)
	})

	http.HandleFunc("/api/rooms/configure", requireOperator(verifier, func(w http.ResponseWriter, r *http.Request) {
		handleConfigureRoom(w, r, registry)
	}))
	http.HandleFunc("/api/stats", requireOperator(verifier, func(w http.ResponseWriter, r *http.Request) {
		handleStats(w, r, registry)
	}))
	http.HandleFunc("/api/rooms/", requireOperator(verifier, func(w http.ResponseWriter, r *http.Request) {
		handleRoomExport(w, r, registry, eng, minioClient)
	}))

	archiveEnabled := opts.Archive != nil
	http.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{"status": "ok"}
		if archiveEnabled {
			health["archive_db"] = "ok"
			if err := database.HealthCheck(); err != nil {
				health["archive_db"] = err.Error()
			}
		}
		writeJSON(w, health)
	})

	addr := ":" + getEnv("PORT", "8080")
	log.Printf("Live translation relay listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}

// getEnv gets environment variable with fallback default
func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
