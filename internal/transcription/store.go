package transcription

import (
	"context"

	"luminatext/internal/queue"
	"luminatext/pkg/model"
)

// Store persists transcriptions. Implementations must be safe for concurrent use.
type Store interface {
	// Insert stores t and returns its new id. t is left untouched.
	Insert(ctx context.Context, t *model.Transcription) (string, error)
	// List returns records newest first; ties keep insertion order, newest first.
	List(ctx context.Context, skip, limit int64) ([]*model.Transcription, error)
	Count(ctx context.Context) (int64, error)
	// DeleteByID returns the number of removed records. Unknown or malformed
	// ids yield 0 and no error.
	DeleteByID(ctx context.Context, id string) (int64, error)
	Ping(ctx context.Context) error
}

// Pager is implemented by stores that can read a page together with the
// total count it belongs to, so both describe the same history.
type Pager interface {
	Page(ctx context.Context, skip, limit int64) ([]*model.Transcription, int64, error)
}

// Archive keeps a copy of uploaded audio keyed by transcription id.
type Archive interface {
	StoreAudio(ctx context.Context, id string, content []byte, contentType string) error
	DeleteAudio(ctx context.Context, id string) error
}

// Publisher announces history changes to other services.
type Publisher interface {
	PublishEvent(ctx context.Context, event *queue.TranscriptionEvent) error
}
