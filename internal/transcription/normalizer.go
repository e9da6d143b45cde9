package transcription

import (
	"errors"
	"time"

	"luminatext/pkg/model"
)

// Normalizer maps provider results onto the canonical record.
type Normalizer struct {
	now func() time.Time
}

func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

// Normalize never defaults a missing duration to zero: unknown and zero are
// different states.
func (n *Normalizer) Normalize(result *ProviderResult, fileName string, fileSizeBytes int64) (*model.Transcription, error) {
	if result == nil {
		return nil, errors.New("provider returned no result")
	}
	if result.DurationSeconds != nil && *result.DurationSeconds < 0 {
		return nil, errors.New("provider returned a negative duration")
	}

	var duration *float64
	if result.DurationSeconds != nil {
		d := *result.DurationSeconds
		duration = &d
	}

	return &model.Transcription{
		Text:            result.Transcript,
		FileName:        fileName,
		DurationSeconds: duration,
		FileSizeBytes:   fileSizeBytes,
		CreatedAt:       n.now(),
		Metadata: model.ProviderMetadata{
			Model:           result.Model,
			Provider:        result.Provider,
			DurationSeconds: result.DurationSeconds,
			FileSizeBytes:   fileSizeBytes,
			RequestID:       result.RequestID,
		},
	}, nil
}
