package transcription

import (
	"context"
	"fmt"
	"time"

	"luminatext/internal/queue"
	"luminatext/pkg/logger"
	"luminatext/pkg/metrics"
	"luminatext/pkg/model"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	DefaultHistoryLimit int64 = 10
	DefaultHistorySkip  int64 = 0
)

// Persistence records what happened to a transcription after the provider
// call succeeded. Only PersistenceStored means it will appear in history.
type Persistence int

const (
	PersistenceSkipped Persistence = iota
	PersistenceStored
	PersistenceFailed
)

func (p Persistence) String() string {
	switch p {
	case PersistenceStored:
		return "stored"
	case PersistenceFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// Upload is one file received from a client.
type Upload struct {
	FileName string
	Content  []byte
}

type Result struct {
	Transcription *model.Transcription
	Persistence   Persistence
	// PersistErr is set when Persistence is PersistenceFailed.
	PersistErr error
}

// HistoryItem is the public projection of a stored transcription.
type HistoryItem struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	FileName string `json:"fileName"`
	Duration string `json:"duration"`
	FileSize string `json:"fileSize"`
	Date     string `json:"date"`
	Preview  string `json:"preview"`
}

type HistoryPage struct {
	Items []HistoryItem `json:"transcriptions"`
	Total int64         `json:"total"`
	Limit int64         `json:"limit"`
	Skip  int64         `json:"skip"`
}

// Deps wires the service. Provider and Store may be nil when unconfigured;
// Archive, Publisher and Metrics are optional.
type Deps struct {
	Validator       *Validator
	Stager          *Stager
	Normalizer      *Normalizer
	Provider        Provider
	ProviderOptions Options
	Store           Store
	Archive         Archive
	Publisher       Publisher
	Metrics         *metrics.Metrics
}

type Service struct {
	validator  *Validator
	stager     *Stager
	normalizer *Normalizer
	provider   Provider
	options    Options
	store      Store
	archive    Archive
	publisher  Publisher
	metrics    *metrics.Metrics
}

func NewService(deps Deps) *Service {
	s := &Service{
		validator:  deps.Validator,
		stager:     deps.Stager,
		normalizer: deps.Normalizer,
		provider:   deps.Provider,
		options:    deps.ProviderOptions,
		store:      deps.Store,
		archive:    deps.Archive,
		publisher:  deps.Publisher,
		metrics:    deps.Metrics,
	}
	if s.validator == nil {
		s.validator = NewValidator(DefaultMaxFileSize)
	}
	if s.stager == nil {
		s.stager = NewStager("")
	}
	if s.normalizer == nil {
		s.normalizer = NewNormalizer()
	}
	if s.options.Model == "" {
		s.options = DefaultOptions(DefaultModel)
	}
	return s
}

func (s *Service) Validator() *Validator {
	return s.validator
}

// Transcribe runs validate, stage, transcribe, normalize and persist in
// order. Only failures before persisting abort the request; a failed write
// is reported through Result.Persistence.
func (s *Service) Transcribe(ctx context.Context, upload Upload) (*Result, error) {
	result, err := s.transcribe(ctx, upload)
	if err != nil {
		s.metrics.ObserveTranscription(string(KindOf(err)))
		return nil, err
	}
	s.metrics.ObserveTranscription("ok")
	s.metrics.ObservePersistence(result.Persistence.String())
	return result, nil
}

// Preflight reports failures that do not depend on the upload, so callers
// can reject a request before reading its body.
func (s *Service) Preflight() error {
	if s.provider == nil {
		return newError(KindProviderUnconfigured,
			"Deepgram API not configured. Please set DEEPGRAM_API_KEY.")
	}
	return nil
}

func (s *Service) transcribe(ctx context.Context, upload Upload) (*Result, error) {
	if err := s.Preflight(); err != nil {
		return nil, err
	}

	if err := s.validator.Validate(upload.FileName, upload.Content); err != nil {
		return nil, err
	}

	staged, err := s.stager.Stage(upload.Content)
	if err != nil {
		return nil, wrapError(KindUnexpected, "Error transcribing file: could not stage upload", err)
	}
	defer func() {
		if err := staged.Release(); err != nil {
			logger.Warn("Failed to release staged upload",
				zap.String("path", staged.Path()),
				zap.Error(err))
		}
	}()

	// A client hanging up does not cancel work already handed to the provider.
	ctx = context.WithoutCancel(ctx)

	providerResult, err := s.callProvider(ctx, staged)
	if err != nil {
		logger.Error("Transcription provider failed",
			zap.String("file_name", upload.FileName),
			zap.Error(err))
		return nil, wrapError(KindProviderError, "Error transcribing file: "+err.Error(), err)
	}

	record, err := s.normalizer.Normalize(providerResult, upload.FileName, int64(len(upload.Content)))
	if err != nil {
		return nil, wrapError(KindProviderError, "Error transcribing file: "+err.Error(), err)
	}
	record.Metadata.MimeType = staged.ContentType()

	result := &Result{Transcription: record}
	s.persist(ctx, result, upload.Content)

	logger.Info("Transcription completed",
		zap.String("file_name", record.FileName),
		zap.Int64("file_size", record.FileSizeBytes),
		zap.Int("text_length", len(record.Text)),
		zap.Stringer("persistence", result.Persistence))

	return result, nil
}

func (s *Service) callProvider(ctx context.Context, staged *StagedFile) (*ProviderResult, error) {
	audio, err := staged.Open()
	if err != nil {
		return nil, err
	}
	defer audio.Close()

	opts := s.options
	opts.ContentType = staged.ContentType()

	start := time.Now()
	result, err := s.provider.Transcribe(ctx, audio, opts)
	s.metrics.ObserveProviderLatency(time.Since(start))
	return result, err
}

// persist is best-effort: errors are logged and recorded on result, never returned.
func (s *Service) persist(ctx context.Context, result *Result, content []byte) {
	if s.store == nil {
		result.Persistence = PersistenceSkipped
		logger.Warn("No transcription store configured, result not saved")
		return
	}

	record := result.Transcription
	id, err := s.store.Insert(ctx, record)
	if err != nil {
		result.Persistence = PersistenceFailed
		result.PersistErr = err
		logger.Warn("Failed to save transcription to database",
			zap.String("file_name", record.FileName),
			zap.Error(err))
		return
	}

	record.ID = id
	result.Persistence = PersistenceStored
	logger.Debug("Transcription saved to database", zap.String("id", id))

	if s.archive != nil {
		if err := s.archive.StoreAudio(ctx, id, content, record.Metadata.MimeType); err != nil {
			logger.Warn("Failed to archive uploaded audio", zap.String("id", id), zap.Error(err))
		}
	}

	s.publish(ctx, &queue.TranscriptionEvent{
		Type:            queue.EventTranscriptionCreated,
		TranscriptionID: id,
		FileName:        record.FileName,
		FileSizeBytes:   record.FileSizeBytes,
		DurationSeconds: record.DurationSeconds,
		TextLength:      len(record.Text),
		OccurredAt:      record.CreatedAt,
	})
}

func (s *Service) publish(ctx context.Context, event *queue.TranscriptionEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishEvent(ctx, event); err != nil {
		logger.Warn("Failed to publish event",
			zap.String("type", event.Type),
			zap.String("id", event.TranscriptionID),
			zap.Error(err))
	}
}

// History returns one page of stored transcriptions, newest first.
func (s *Service) History(ctx context.Context, limit, skip int64) (*HistoryPage, error) {
	if s.store == nil {
		return nil, newError(KindStoreUnavailable, "Database not configured")
	}
	if limit < 1 {
		return nil, newError(KindBadRequest, "limit must be a positive integer")
	}
	if skip < 0 {
		return nil, newError(KindBadRequest, "skip must be a non-negative integer")
	}

	records, total, err := s.page(ctx, skip, limit)
	if err != nil {
		logger.Error("Failed to fetch history", zap.Error(err))
		return nil, wrapError(KindStoreUnavailable, fmt.Sprintf("Error fetching history: %v", err), err)
	}

	return &HistoryPage{
		Items: lo.Map(records, func(t *model.Transcription, _ int) HistoryItem {
			return Project(t)
		}),
		Total: total,
		Limit: limit,
		Skip:  skip,
	}, nil
}

func (s *Service) page(ctx context.Context, skip, limit int64) ([]*model.Transcription, int64, error) {
	if pager, ok := s.store.(Pager); ok {
		return pager.Page(ctx, skip, limit)
	}

	records, err := s.store.List(ctx, skip, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// Project drops metadata and the raw timestamp and adds display fields.
func Project(t *model.Transcription) HistoryItem {
	return HistoryItem{
		ID:       t.ID,
		Text:     t.Text,
		FileName: t.FileName,
		Duration: t.Duration(),
		FileSize: t.FileSize(),
		Date:     t.Date(),
		Preview:  t.Preview(),
	}
}

// Delete removes one transcription. Unknown and malformed ids are both NotFound.
func (s *Service) Delete(ctx context.Context, id string) error {
	if s.store == nil {
		return newError(KindStoreUnavailable, "Database not configured")
	}

	deleted, err := s.store.DeleteByID(ctx, id)
	if err != nil {
		logger.Error("Failed to delete transcription", zap.String("id", id), zap.Error(err))
		s.metrics.ObserveDeletion("error")
		return wrapError(KindStoreUnavailable, fmt.Sprintf("Error deleting transcription: %v", err), err)
	}

	if deleted == 0 {
		s.metrics.ObserveDeletion("not_found")
		return newError(KindNotFound, "Transcription not found")
	}

	s.metrics.ObserveDeletion("deleted")
	logger.Info("Transcription deleted", zap.String("id", id))

	if s.archive != nil {
		if err := s.archive.DeleteAudio(ctx, id); err != nil {
			logger.Warn("Failed to delete archived audio", zap.String("id", id), zap.Error(err))
		}
	}

	s.publish(ctx, &queue.TranscriptionEvent{
		Type:            queue.EventTranscriptionDeleted,
		TranscriptionID: id,
		OccurredAt:      time.Now(),
	})

	return nil
}

// Ping checks the store. It returns an error when no store is configured.
func (s *Service) Ping(ctx context.Context) error {
	if s.store == nil {
		return newError(KindStoreUnavailable, "Database not configured")
	}
	return s.store.Ping(ctx)
}

// StoreConfigured reports whether a store was injected.
func (s *Service) StoreConfigured() bool {
	return s.store != nil
}
