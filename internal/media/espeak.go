package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EspeakSynthesizer narrates text with the local espeak-ng binary. It is
// the offline fallback when no hosted voice is configured.
type EspeakSynthesizer struct {
	binary       string
	defaultVoice string
	runner       commandRunner
}

func NewEspeakSynthesizer(binary, defaultVoice string) *EspeakSynthesizer {
	if strings.TrimSpace(binary) == "" {
		binary = "espeak-ng"
	}
	if defaultVoice == "" {
		defaultVoice = "en"
	}
	return &EspeakSynthesizer{binary: binary, defaultVoice: defaultVoice, runner: execRunner{}}
}

func (s *EspeakSynthesizer) Name() string { return "espeak" }

// Synthesize writes <outBase>.wav. The text is passed through a sidecar
// file next to it so long stories do not hit argument length limits.
func (s *EspeakSynthesizer) Synthesize(ctx context.Context, text, voice, outBase string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("espeak: empty text")
	}
	if voice == "" {
		voice = s.defaultVoice
	}
	if err := os.MkdirAll(filepath.Dir(outBase), 0o755); err != nil {
		return "", fmt.Errorf("failed to create work dir: %w", err)
	}

	textPath := outBase + ".txt"
	if err := os.WriteFile(textPath, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("failed to write narration text: %w", err)
	}
	defer os.Remove(textPath)

	out := outBase + ".wav"
	res, err := s.runner.Run(ctx, s.binary, "-v", voice, "-w", out, "-f", textPath)
	if err != nil {
		os.Remove(out)
		return "", fmt.Errorf("espeak: %w: %s", err, tail(res.Stderr, 300))
	}
	return out, nil
}
