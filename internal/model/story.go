package model

// StoryRequest is a story submitted from the editor
type StoryRequest struct {
	Text      string `json:"text" validate:"required"`
	Source    string `json:"source" validate:"omitempty,oneof=manual write paste upload reddit"`
	Title     string `json:"title,omitempty"`
	WordCount *int   `json:"wordCount,omitempty"`
}

type StoryResponse struct {
	StoryID   string `json:"storyId"`
	Source    string `json:"source"`
	WordCount int    `json:"wordCount"`
	CharCount int    `json:"charCount"`
	Preview   string `json:"preview"`
	Message   string `json:"message"`
}

type StoryUploadResponse struct {
	FileID    string `json:"fileId"`
	Filename  string `json:"filename"`
	WordCount int    `json:"wordCount"`
	CharCount int    `json:"charCount"`
	Text      string `json:"text"`
	Message   string `json:"message"`
}
