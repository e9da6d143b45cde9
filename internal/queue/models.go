package queue

import "time"

const (
	EventTranscriptionCreated = "transcription.created"
	EventTranscriptionDeleted = "transcription.deleted"
)

// TranscriptionEvent announces a change to the transcription history
type TranscriptionEvent struct {
	Type            string    `json:"type"`
	TranscriptionID string    `json:"transcription_id"`
	FileName        string    `json:"file_name,omitempty"`
	FileSizeBytes   int64     `json:"file_size_bytes,omitempty"`
	DurationSeconds *float64  `json:"duration_seconds,omitempty"`
	TextLength      int       `json:"text_length,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}
