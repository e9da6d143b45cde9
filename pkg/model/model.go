package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

const (
	// DateLayout is how timestamps are rendered in API responses.
	DateLayout = "2006-01-02 15:04:05"

	// PreviewLength is the number of characters kept in a history preview.
	PreviewLength = 100
)

// ProviderMetadata is audit data kept with a transcription but never projected
// into history listings.
type ProviderMetadata struct {
	Model           string   `json:"model" bson:"model"`
	Provider        string   `json:"provider" bson:"provider"`
	DurationSeconds *float64 `json:"duration_seconds" bson:"duration_seconds"`
	FileSizeBytes   int64    `json:"file_size_bytes" bson:"file_size_bytes"`
	RequestID       string   `json:"request_id,omitempty" bson:"request_id,omitempty"`
	MimeType        string   `json:"mime_type,omitempty" bson:"mime_type,omitempty"`
}

// Value implements the driver.Valuer interface
func (m ProviderMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan implements the sql.Scanner interface
func (m *ProviderMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = ProviderMetadata{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata type %T", value)
	}

	return json.Unmarshal(data, m)
}

// Transcription is the canonical persisted record of one transcribed upload.
// Once stored it is never updated, only deleted.
type Transcription struct {
	ID              string           `json:"id" bson:"-"`
	Text            string           `json:"text" bson:"text"`
	FileName        string           `json:"fileName" bson:"fileName"`
	DurationSeconds *float64         `json:"durationSeconds,omitempty" bson:"durationSeconds"`
	FileSizeBytes   int64            `json:"fileSizeBytes" bson:"fileSizeBytes"`
	CreatedAt       time.Time        `json:"createdAt" bson:"createdAt"`
	Metadata        ProviderMetadata `json:"metadata" bson:"metadata"`
}

// Duration renders DurationSeconds for display.
func (t *Transcription) Duration() string {
	return FormatDuration(t.DurationSeconds)
}

// FileSize renders FileSizeBytes for display.
func (t *Transcription) FileSize() string {
	return FormatFileSize(t.FileSizeBytes)
}

// Date renders CreatedAt for display in local time.
func (t *Transcription) Date() string {
	return FormatDate(t.CreatedAt)
}

// Preview returns the first PreviewLength characters of the text.
func (t *Transcription) Preview() string {
	return Preview(t.Text)
}

// FormatDuration renders seconds as "Xm Ys", or "Unknown" when absent.
func FormatDuration(seconds *float64) string {
	if seconds == nil {
		return "Unknown"
	}
	total := int64(*seconds)
	return fmt.Sprintf("%dm %ds", total/60, total%60)
}

// FormatFileSize renders a byte count with two decimals in binary units.
func FormatFileSize(size int64) string {
	value := float64(size)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if value < 1024 {
			return fmt.Sprintf("%.2f %s", value, unit)
		}
		value /= 1024
	}
	return fmt.Sprintf("%.2f TB", value)
}

// FormatDate renders t in local time using DateLayout.
func FormatDate(t time.Time) string {
	return t.Local().Format(DateLayout)
}

// Preview truncates text to PreviewLength characters and appends an ellipsis
// when anything was cut.
func Preview(text string) string {
	runes := []rune(text)
	if len(runes) > PreviewLength {
		return string(runes[:PreviewLength]) + "..."
	}
	return text
}
