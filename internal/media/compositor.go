package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// CompositeOptions controls the encoder. Zero values fall back to the
// 1080x1920 / CRF 23 / fast / 192k defaults.
type CompositeOptions struct {
	Width        int
	Height       int
	CRF          int
	Preset       string
	AudioBitrate string
	// DurationHint caps the output length in seconds when positive.
	DurationHint float64
}

func (o CompositeOptions) withDefaults() CompositeOptions {
	if o.Width <= 0 {
		o.Width = 1080
	}
	if o.Height <= 0 {
		o.Height = 1920
	}
	if o.CRF <= 0 {
		o.CRF = 23
	}
	if o.Preset == "" {
		o.Preset = "fast"
	}
	if o.AudioBitrate == "" {
		o.AudioBitrate = "192k"
	}
	return o
}

// Compositor muxes a looped background video with a narration track.
type Compositor struct {
	binary string
	runner commandRunner
}

func NewCompositor(binary string) *Compositor {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	return &Compositor{binary: binary, runner: execRunner{}}
}

// PartialPath is where ffmpeg writes before the output is moved into place.
func PartialPath(outPath string) string {
	return outPath + ".partial.mp4"
}

// Composite encodes video and audio into outPath. The file only appears at
// outPath once ffmpeg succeeded; a failed or cancelled run leaves nothing.
func (c *Compositor) Composite(ctx context.Context, video, audio, outPath string, opts CompositeOptions) (string, error) {
	if video == "" || audio == "" || outPath == "" {
		return "", errors.New("ffmpeg: video, audio and output paths are required")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	partial := PartialPath(outPath)
	args := compositeArgs(video, audio, partial, opts.withDefaults())

	res, err := c.runner.Run(ctx, c.binary, args...)
	if err != nil {
		os.Remove(partial)
		return "", fmt.Errorf("ffmpeg: %w: %s", err, tail(res.Stderr, 500))
	}
	if err := os.Rename(partial, outPath); err != nil {
		os.Remove(partial)
		return "", fmt.Errorf("failed to move output into place: %w", err)
	}
	return outPath, nil
}

func compositeArgs(video, audio, out string, o CompositeOptions) []string {
	w, h := strconv.Itoa(o.Width), strconv.Itoa(o.Height)
	filter := fmt.Sprintf(
		"scale=w=%s:h=%s:force_original_aspect_ratio=increase,crop=%s:%s:(iw-ow)/2:(ih-oh)/2",
		w, h, w, h,
	)

	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-stream_loop", "-1", "-i", video,
		"-i", audio,
		"-vf", filter,
		"-map", "0:v:0", "-map", "1:a:0",
		"-shortest",
	}
	if o.DurationHint > 0 {
		args = append(args, "-t", strconv.FormatFloat(o.DurationHint, 'f', 3, 64))
	}
	args = append(args,
		"-c:v", "libx264", "-crf", strconv.Itoa(o.CRF), "-preset", o.Preset,
		"-pix_fmt", "yuv420p",
		"-c:a", "aac", "-b:a", o.AudioBitrate,
		"-movflags", "+faststart",
		"-f", "mp4",
		out,
	)
	return args
}
