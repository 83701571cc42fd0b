package service

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/storyscroll/api/internal/model"
)

const (
	MinStoryLength     = 10
	MaxStoryUploadSize = 5 * 1024 * 1024 // 5MB
	previewLength      = 200
)

var (
	ErrStoryTooShort = errors.New("story text is too short (min 10 characters)")
	ErrNotUTF8       = errors.New("file must be UTF-8 encoded text")
	ErrEmptyFile     = errors.New("uploaded file is empty")
)

var storyExtensions = map[string]bool{".txt": true, ".md": true}

// StoryService accepts story text typed in the editor or uploaded as a file
type StoryService struct {
	uploadsDir string
}

func NewStoryService(uploadsDir string) *StoryService {
	return &StoryService{uploadsDir: uploadsDir}
}

// Receive validates a submitted story and returns its statistics.
func (s *StoryService) Receive(req *model.StoryRequest) (*model.StoryResponse, error) {
	text := strings.TrimSpace(req.Text)
	if utf8.RuneCountInString(text) < MinStoryLength {
		return nil, ErrStoryTooShort
	}

	source := req.Source
	if source == "" {
		source = "manual"
	}

	return &model.StoryResponse{
		StoryID:   uuid.New().String()[:8],
		Source:    source,
		WordCount: len(strings.Fields(text)),
		CharCount: utf8.RuneCountInString(text),
		Preview:   truncateRunes(text, previewLength),
		Message:   "Story received successfully.",
	}, nil
}

// Upload reads a .txt or .md file, stores the trimmed text under the
// uploads directory and returns it.
func (s *StoryService) Upload(file *multipart.FileHeader) (*model.StoryUploadResponse, error) {
	name := filepath.Base(file.Filename)
	if !storyExtensions[strings.ToLower(filepath.Ext(name))] {
		return nil, ErrUnsupportedFileType
	}
	if file.Size > MaxStoryUploadSize {
		return nil, ErrFileTooLarge
	}

	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	raw, err := io.ReadAll(io.LimitReader(src, MaxStoryUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(raw) > MaxStoryUploadSize {
		return nil, ErrFileTooLarge
	}
	if !utf8.Valid(raw) {
		return nil, ErrNotUTF8
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, ErrEmptyFile
	}

	if err := os.MkdirAll(s.uploadsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create uploads dir: %w", err)
	}
	fileID := uuid.New().String()[:8]
	if err := os.WriteFile(filepath.Join(s.uploadsDir, fileID+"_"+name), []byte(text), 0o644); err != nil {
		return nil, fmt.Errorf("failed to save upload: %w", err)
	}

	return &model.StoryUploadResponse{
		FileID:    fileID,
		Filename:  name,
		WordCount: len(strings.Fields(text)),
		CharCount: utf8.RuneCountInString(text),
		Text:      text,
		Message:   "File uploaded and parsed successfully.",
	}, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
