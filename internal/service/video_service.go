package service

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/storyscroll/api/internal/model"
)

const MaxVideoUploadSize = 500 * 1024 * 1024 // 500MB

var (
	ErrVideoNotFound       = errors.New("video not found")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
	ErrInvalidPath         = errors.New("invalid file path")
)

var videoExtensions = map[string]bool{".mp4": true, ".mov": true, ".webm": true}

// library is the built-in set of background clips. FilePath is relative to
// the videos directory.
var library = []model.LibraryVideo{
	{ID: "mc-1", Name: "Minecraft Parkour Clip 1", Category: "Minecraft Parkour", CategoryID: "minecraft", FilePath: "mc_parkour_1.mp4", Duration: "10:00", Color: "#4ec9b0"},
	{ID: "mc-2", Name: "Minecraft Parkour Clip 2", Category: "Minecraft Parkour", CategoryID: "minecraft", FilePath: "mc_parkour_2.mp4", Duration: "8:30", Color: "#4ec9b0"},
	{ID: "ss-1", Name: "Subway Surfers Clip 1", Category: "Subway Surfers", CategoryID: "subway", FilePath: "subway_1.mp4", Duration: "6:00", Color: "#ce9178"},
	{ID: "ss-2", Name: "Subway Surfers Clip 2", Category: "Subway Surfers", CategoryID: "subway", FilePath: "subway_2.mp4", Duration: "5:45", Color: "#ce9178"},
	{ID: "tm-1", Name: "Trackmania Clip 1", Category: "Trackmania", CategoryID: "trackmania", FilePath: "trackmania_1.mp4", Duration: "7:00", Color: "#9cdcfe"},
	{ID: "gta-1", Name: "GTA Driving Clip 1", Category: "GTA Driving", CategoryID: "gta", FilePath: "gta_1.mp4", Duration: "12:00", Color: "#f44747"},
	{ID: "sat-1", Name: "Satisfying Clip 1", Category: "Satisfying / Slime", CategoryID: "satisfying", FilePath: "satisfying_1.mp4", Duration: "9:00", Color: "#c586c0"},
	{ID: "nat-1", Name: "Nature Clip 1", Category: "Nature / Scenery", CategoryID: "nature", FilePath: "nature_1.mp4", Duration: "15:00", Color: "#6a9955"},
}

// VideoService serves the background video library and user uploads
type VideoService struct {
	videosDir string
}

func NewVideoService(videosDir string) *VideoService {
	return &VideoService{videosDir: videosDir}
}

// List returns library videos, optionally filtered by category ID.
func (s *VideoService) List(category string) *model.VideoListResponse {
	videos := make([]model.LibraryVideo, 0, len(library))
	for _, v := range library {
		if category == "" || v.CategoryID == category {
			videos = append(videos, v)
		}
	}

	seen := make(map[string]bool)
	var categories []model.VideoCategory
	for _, v := range library {
		if !seen[v.CategoryID] {
			seen[v.CategoryID] = true
			categories = append(categories, model.VideoCategory{ID: v.CategoryID, Name: v.Category})
		}
	}

	return &model.VideoListResponse{
		Count:      len(videos),
		Videos:     videos,
		Categories: categories,
	}
}

func (s *VideoService) Get(id string) (*model.LibraryVideo, error) {
	for _, v := range library {
		if v.ID == id {
			video := v
			return &video, nil
		}
	}
	return nil, ErrVideoNotFound
}

// LocalPath resolves a path relative to the videos directory. Paths that
// escape the directory are rejected.
func (s *VideoService) LocalPath(rel string) (string, error) {
	rel = filepath.ToSlash(strings.TrimSpace(rel))
	rel = strings.TrimPrefix(rel, filepath.ToSlash(filepath.Clean(s.videosDir))+"/")
	cleaned := filepath.Clean("/" + rel)
	if cleaned == "/" || rel != strings.TrimPrefix(cleaned, "/") {
		return "", ErrInvalidPath
	}
	return filepath.Join(s.videosDir, filepath.FromSlash(strings.TrimPrefix(cleaned, "/"))), nil
}

// Upload stores a user video in the videos directory.
func (s *VideoService) Upload(file *multipart.FileHeader) (*model.VideoUploadResponse, error) {
	name := filepath.Base(file.Filename)
	if !videoExtensions[strings.ToLower(filepath.Ext(name))] {
		return nil, ErrUnsupportedFileType
	}
	if file.Size > MaxVideoUploadSize {
		return nil, ErrFileTooLarge
	}

	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(s.videosDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create videos dir: %w", err)
	}

	videoID := uuid.New().String()[:8]
	saveName := videoID + "_" + name
	dst := filepath.Join(s.videosDir, saveName)

	written, err := saveFile(dst, src, MaxVideoUploadSize)
	if err != nil {
		return nil, err
	}

	return &model.VideoUploadResponse{
		VideoID:  videoID,
		Filename: name,
		FilePath: saveName,
		SizeMB:   float64(int64(float64(written)/(1024*1024)*100+0.5)) / 100,
		Message:  "Video uploaded successfully.",
	}, nil
}

// saveFile copies at most limit bytes from src to path and removes the file
// on any failure.
func saveFile(path string, src io.Reader, limit int64) (int64, error) {
	dst, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", path, err)
	}
	n, err := io.Copy(dst, io.LimitReader(src, limit+1))
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > limit {
		err = ErrFileTooLarge
	}
	if err != nil {
		os.Remove(path)
		if errors.Is(err, ErrFileTooLarge) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to save upload: %w", err)
	}
	return n, nil
}
