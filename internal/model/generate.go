package model

// GenerateRequest represents the request to start a video generation job
type GenerateRequest struct {
	Narrative      *Narrative      `json:"narrative" validate:"required"`
	VideoSelection *VideoSelection `json:"videoSelection" validate:"required"`
	Voice          string          `json:"voice" validate:"omitempty,max=64"`
}

// Narrative is the story text to be narrated
type Narrative struct {
	Text      string `json:"text" validate:"required"`
	Title     string `json:"title,omitempty"`
	Source    string `json:"source,omitempty"`
	WordCount int    `json:"wordCount,omitempty"`
}

// VideoSelection references the background footage. Exactly one of URL,
// FilePath or ID is expected; URL wins, then FilePath, then ID.
type VideoSelection struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	URL      string `json:"url,omitempty" validate:"omitempty,url"`
	FilePath string `json:"filePath,omitempty"`
}

// GenerateResponse is returned when a job has been queued
type GenerateResponse struct {
	JobID   string    `json:"jobId"`
	Status  JobStatus `json:"status"`
	Message string    `json:"message"`
}

// CancelResponse is returned when a job has been removed
type CancelResponse struct {
	JobID   string `json:"jobId"`
	Message string `json:"message"`
}
