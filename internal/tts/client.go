package tts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client handles text-to-speech requests against the external synthesis
// service.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 300 * time.Second},
	}
}

type synthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// Synthesize converts text to speech and returns the WAV bytes.
func (c *Client) Synthesize(text, voice string) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	body, err := json.Marshal(synthesizeRequest{Text: text, Voice: voice})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequest("POST", c.BaseURL+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("TTS service returned %d: %s", resp.StatusCode, string(respBody))
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio data: %w", err)
	}
	return audioData, nil
}

// voiceMap maps a language prefix to a default neural voice.
var voiceMap = map[string]string{
	"es": "es-ES-ElviraNeural",
	"en": "en-US-JennyNeural",
	"fr": "fr-FR-DeniseNeural",
	"de": "de-DE-KatjaNeural",
	"pt": "pt-PT-FernandaNeural",
	"zh": "zh-CN-XiaoxiaoNeural",
	"it": "it-IT-ElsaNeural",
}

// VoiceForLanguage returns the default voice for a BCP-47 tag, falling back
// to the English voice for unmapped languages.
func VoiceForLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if voice, ok := voiceMap[lang]; ok {
		return voice
	}
	if i := strings.IndexByte(lang, '-'); i > 0 {
		if voice, ok := voiceMap[lang[:i]]; ok {
			return voice
		}
	}
	return voiceMap["en"]
}
