package transcription

import (
	"fmt"
	"path/filepath"
	"strings"

	"luminatext/pkg/model"

	"github.com/samber/lo"
)

// DefaultMaxFileSize is 100 MiB.
const DefaultMaxFileSize int64 = 100 * 1024 * 1024

// AllowedExtensions is the upload allow-list, in the order reported to clients.
var AllowedExtensions = []string{".mp3", ".mp4", ".mpeg", ".mpga", ".m4a", ".wav", ".webm", ".ogg", ".flac", ".opus"}

// Validator rejects uploads before any expensive work happens. Checks run in
// a fixed order: format, size, emptiness.
type Validator struct {
	maxFileSize int64
}

func NewValidator(maxFileSize int64) *Validator {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &Validator{maxFileSize: maxFileSize}
}

func (v *Validator) MaxFileSize() int64 {
	return v.maxFileSize
}

// ValidateName checks only the extension, so callers can reject an upload
// before reading its body.
func (v *Validator) ValidateName(fileName string) error {
	ext := strings.ToLower(filepath.Ext(fileName))
	if !lo.Contains(AllowedExtensions, ext) {
		return newError(KindUnsupportedFormat,
			"Unsupported file format. Allowed formats: "+strings.Join(AllowedExtensions, ", "))
	}
	return nil
}

func (v *Validator) Validate(fileName string, content []byte) error {
	if err := v.ValidateName(fileName); err != nil {
		return err
	}

	size := int64(len(content))
	if size > v.maxFileSize {
		return newError(KindPayloadTooLarge,
			fmt.Sprintf("File size exceeds %s limit", model.FormatFileSize(v.maxFileSize)))
	}

	if size == 0 {
		return newError(KindEmptyFile, "Empty file uploaded")
	}

	return nil
}
