package service

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/storyscroll/api/internal/model"
)

func TestStoryReceive(t *testing.T) {
	svc := NewStoryService(t.TempDir())

	text := "  " + strings.Repeat("word ", 60) + "  "
	resp, err := svc.Receive(&model.StoryRequest{Text: text, Source: "paste"})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if resp.WordCount != 60 {
		t.Errorf("expected 60 words, got %d", resp.WordCount)
	}
	if resp.CharCount != len(strings.TrimSpace(text)) {
		t.Errorf("unexpected char count %d", resp.CharCount)
	}
	if len(resp.Preview) != 200 {
		t.Errorf("expected 200 char preview, got %d", len(resp.Preview))
	}
	if resp.Source != "paste" {
		t.Errorf("expected source paste, got %s", resp.Source)
	}

	resp, _ = svc.Receive(&model.StoryRequest{Text: "short but fine"})
	if resp.Source != "manual" {
		t.Errorf("expected default source manual, got %s", resp.Source)
	}
}

func TestStoryReceiveTooShort(t *testing.T) {
	svc := NewStoryService(t.TempDir())
	if _, err := svc.Receive(&model.StoryRequest{Text: "   tiny    "}); !errors.Is(err, ErrStoryTooShort) {
		t.Errorf("expected ErrStoryTooShort, got %v", err)
	}
}

func TestStoryUpload(t *testing.T) {
	dir := t.TempDir()
	svc := NewStoryService(dir)

	resp, err := svc.Upload(fileHeader(t, "tale.md", []byte("\n# Title\n\nOnce upon a time.\n")))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if resp.Text != "# Title\n\nOnce upon a time." {
		t.Errorf("unexpected text %q", resp.Text)
	}
	if resp.WordCount != 6 {
		t.Errorf("expected 6 words, got %d", resp.WordCount)
	}
	saved, _ := os.ReadFile(filepath.Join(dir, resp.FileID+"_tale.md"))
	if string(saved) != resp.Text {
		t.Errorf("expected saved text, got %q", saved)
	}
}

func TestStoryUploadRejects(t *testing.T) {
	svc := NewStoryService(t.TempDir())
	cases := []struct {
		name    string
		content []byte
		want    error
	}{
		{"story.pdf", []byte("text"), ErrUnsupportedFileType},
		{"story.txt", []byte{0xff, 0xfe, 0x00}, ErrNotUTF8},
		{"story.txt", []byte("   \n  "), ErrEmptyFile},
	}
	for _, tc := range cases {
		if _, err := svc.Upload(fileHeader(t, tc.name, tc.content)); !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}
