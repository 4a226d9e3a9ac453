package models

import "time"

type WorkflowStatus string

const (
	StatusQueued    WorkflowStatus = "queued"
	StatusRunning   WorkflowStatus = "running"
	StatusCompleted WorkflowStatus = "completed"
	StatusFailed    WorkflowStatus = "failed"
)

// Workflow is the ledger row of one pipeline run.
type Workflow struct {
	ID           string         `json:"id"`
	Pipeline     string         `json:"pipeline"`
	Status       WorkflowStatus `json:"status"`
	Stage        string         `json:"stage,omitempty"`
	Error        string         `json:"error,omitempty"`
	VideoURL     string         `json:"videoUrl,omitempty"`
	AudioURL     string         `json:"audioUrl,omitempty"`
	SubtitlesURL string         `json:"subtitlesUrl,omitempty"`
	OutputPath   string         `json:"outputPath,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// Outputs are the final artifacts of a completed workflow: public URLs for
// the publish pipeline, a local path for burn-in.
type Outputs struct {
	VideoURL     string `json:"videoUrl,omitempty"`
	AudioURL     string `json:"audioUrl,omitempty"`
	SubtitlesURL string `json:"subtitlesUrl,omitempty"`
	OutputPath   string `json:"outputPath,omitempty"`
}
