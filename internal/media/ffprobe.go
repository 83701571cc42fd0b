package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Prober reads container durations with ffprobe.
type Prober struct {
	binary string
	runner commandRunner
}

func NewProber(binary string) *Prober {
	if strings.TrimSpace(binary) == "" {
		binary = "ffprobe"
	}
	return &Prober{binary: binary, runner: execRunner{}}
}

// Probe returns the duration of path in seconds. A missing, malformed or
// non-positive duration is an error.
func (p *Prober) Probe(ctx context.Context, path string) (float64, error) {
	if strings.TrimSpace(path) == "" {
		return 0, errors.New("ffprobe: empty path")
	}

	res, err := p.runner.Run(ctx, p.binary, "-v", "error", "-hide_banner", "-show_format", "-of", "json", "--", path)
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w: %s", err, tail(res.Stderr, 300))
	}
	return parseDuration([]byte(res.Stdout))
}

func parseDuration(raw []byte) (float64, error) {
	var out probeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, fmt.Errorf("ffprobe parse: %w", err)
	}
	value := strings.TrimSpace(out.Format.Duration)
	if value == "" {
		return 0, errors.New("ffprobe: duration unavailable")
	}
	d, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe: invalid duration %q", value)
	}
	if math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
		return 0, fmt.Errorf("ffprobe: unusable duration %q", value)
	}
	return d, nil
}
