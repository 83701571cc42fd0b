package model

// LibraryVideo is a background clip shipped with the service
type LibraryVideo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	CategoryID string `json:"categoryId"`
	FilePath   string `json:"filePath"`
	Duration   string `json:"duration"`
	Color      string `json:"color"`
}

// VideoCategory pairs a category ID with its display name
type VideoCategory struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type VideoListResponse struct {
	Count      int             `json:"count"`
	Videos     []LibraryVideo  `json:"videos"`
	Categories []VideoCategory `json:"categories"`
}

type VideoUploadResponse struct {
	VideoID  string  `json:"videoId"`
	Filename string  `json:"filename"`
	FilePath string  `json:"filePath"`
	SizeMB   float64 `json:"sizeMb"`
	Message  string  `json:"message"`
}
