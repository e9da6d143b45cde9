package transcription

import (
	"context"
	"io"
)

const DefaultModel = "nova-2"

// Options are fixed by the service and passed to the provider unchanged.
type Options struct {
	Model       string
	SmartFormat bool
	Punctuate   bool
	Paragraphs  bool
	Utterances  bool
	// ContentType of the audio body, sniffed at staging time.
	ContentType string
}

func DefaultOptions(model string) Options {
	if model == "" {
		model = DefaultModel
	}
	return Options{
		Model:       model,
		SmartFormat: true,
		Punctuate:   true,
		Paragraphs:  true,
		Utterances:  true,
	}
}

// ProviderResult is the provider-neutral shape of a finished transcription.
// Transcript is the first alternative of the first channel.
type ProviderResult struct {
	Transcript      string
	DurationSeconds *float64
	Model           string
	Provider        string
	RequestID       string
}

// Provider transcribes audio. Implementations must be safe for concurrent use.
type Provider interface {
	Transcribe(ctx context.Context, audio io.Reader, opts Options) (*ProviderResult, error)
}
