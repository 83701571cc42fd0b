package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/storyscroll/api/internal/config"
)

// ElevenLabsClient narrates text through the ElevenLabs text-to-speech API
type ElevenLabsClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	modelID    string
	voiceID    string
}

// TextToSpeechRequest is the request body for /v1/text-to-speech/{voice_id}
type TextToSpeechRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id,omitempty"`
}

// NewElevenLabsClient creates a new ElevenLabs API client
func NewElevenLabsClient(cfg *config.ElevenLabsConfig) *ElevenLabsClient {
	return &ElevenLabsClient{
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		modelID: cfg.ModelID,
		voiceID: cfg.VoiceID,
	}
}

func (c *ElevenLabsClient) Name() string { return "elevenlabs" }

// Synthesize streams the MP3 narration into <outBase>.mp3. An empty voice
// uses the configured voice ID.
func (c *ElevenLabsClient) Synthesize(ctx context.Context, text, voice, outBase string) (string, error) {
	if !c.IsConfigured() {
		return "", errors.New("elevenlabs: api key not configured")
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("elevenlabs: empty text")
	}
	if voice == "" {
		voice = c.voiceID
	}

	bodyBytes, err := json.Marshal(TextToSpeechRequest{Text: text, ModelID: c.modelID})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=mp3_44100_128", c.baseURL, url.PathEscape(voice))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("elevenlabs API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := os.MkdirAll(filepath.Dir(outBase), 0o755); err != nil {
		return "", fmt.Errorf("failed to create work dir: %w", err)
	}
	out := outBase + ".mp3"
	f, err := os.Create(out)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", out, err)
	}
	n, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr == nil && closeErr == nil && n == 0 {
		copyErr = errors.New("empty audio response")
	}
	if copyErr != nil || closeErr != nil {
		os.Remove(out)
		if copyErr != nil {
			return "", fmt.Errorf("failed to read audio: %w", copyErr)
		}
		return "", fmt.Errorf("failed to write audio: %w", closeErr)
	}
	return out, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *ElevenLabsClient) IsConfigured() bool {
	return c.apiKey != ""
}
