package asr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"live-translation-relay/internal/audio"
)

// Client talks to the external speech recognition service.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 120 * time.Second},
	}
}

type transcribeResponse struct {
	Text string `json:"text"`
}

// TranscribePCM16 transcribes a window of PCM16 mono samples. The language
// hint is the room's source language; empty means service-side detection.
func (c *Client) TranscribePCM16(pcm []int16, sampleRate int, language string) (string, error) {
	wav := audio.EncodeWAV(pcm, sampleRate)
	return c.TranscribeWAV(wav, language)
}

// TranscribeWAV transcribes a complete WAV payload.
func (c *Client) TranscribeWAV(wavData []byte, language string) (string, error) {
	req, err := http.NewRequest("POST", c.BaseURL+"/transcribe", bytes.NewReader(wavData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "audio/wav")
	if language != "" {
		req.Header.Set("x-language", language)
	}

	res, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		return "", fmt.Errorf("asr status: %s", res.Status)
	}

	var r transcribeResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return "", err
	}
	return r.Text, nil
}
