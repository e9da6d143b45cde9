package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"luminatext/internal/transcription"
	"luminatext/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const (
	uploadField   = "file"
	healthTimeout = 5 * time.Second
	// timestampLayout matches the health payload format clients already parse.
	timestampLayout = "2006-01-02T15:04:05.000000"
)

// TranscriptionService is the subset of transcription.Service used by handlers.
type TranscriptionService interface {
	Preflight() error
	Transcribe(ctx context.Context, upload transcription.Upload) (*transcription.Result, error)
	History(ctx context.Context, limit, skip int64) (*transcription.HistoryPage, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	StoreConfigured() bool
}

// Readiness reports which external dependencies were configured at startup.
// StoreErr is the last connection error when a configured store could not be
// opened.
type Readiness struct {
	ProviderConfigured bool
	StoreConfigured    bool
	StoreErr           error
}

type Handler struct {
	service   TranscriptionService
	validator *transcription.Validator
	readiness Readiness
}

func NewHandler(service TranscriptionService, v *transcription.Validator, readiness Readiness) *Handler {
	if v == nil {
		v = transcription.NewValidator(transcription.DefaultMaxFileSize)
	}
	return &Handler{service: service, validator: v, readiness: readiness}
}

type TranscribeResponse struct {
	Text     string `json:"text"`
	FileName string `json:"fileName"`
	Duration string `json:"duration"`
	FileSize string `json:"fileSize"`
	Date     string `json:"date"`
}

type historyQuery struct {
	Limit int64 `form:"limit,default=10" binding:"min=1"`
	Skip  int64 `form:"skip,default=0" binding:"min=0"`
}

func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":  "LuminaText Transcription API",
		"version":  "2.1.0",
		"provider": "Deepgram",
		"endpoints": gin.H{
			"/api/health":       "Health check",
			"/api/transcribe":   "Transcribe audio/video files",
			"/api/history":      "Get transcription history",
			"/api/history/{id}": "Delete a transcription",
			"/metrics":          "Prometheus metrics",
		},
	})
}

// Health always answers 200; the body says whether the service can do work.
func (h *Handler) Health(c *gin.Context) {
	timestamp := time.Now().Format(timestampLayout)
	unhealthy := func(message string) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "unhealthy",
			"message":   message,
			"timestamp": timestamp,
		})
	}

	if !h.readiness.ProviderConfigured {
		unhealthy("DEEPGRAM_API_KEY not configured")
		return
	}
	if !h.readiness.StoreConfigured {
		unhealthy("MONGODB_URI or POSTGRES_DSN not configured")
		return
	}
	if !h.service.StoreConfigured() {
		message := "Database connection failed"
		if h.readiness.StoreErr != nil {
			message += ": " + h.readiness.StoreErr.Error()
		}
		unhealthy(message)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()
	if err := h.service.Ping(ctx); err != nil {
		logger.Warn("Health check failed", zap.Error(err))
		unhealthy(err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"message":   "API is running",
		"database":  "connected",
		"timestamp": timestamp,
	})
}

// Transcribe streams the multipart body so the file name is checked before
// any content is read and at most MaxFileSize+1 bytes are buffered.
func (h *Handler) Transcribe(c *gin.Context) {
	if err := h.service.Preflight(); err != nil {
		respondError(c, err)
		return
	}

	upload, err := h.readUpload(c.Request)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.service.Transcribe(c.Request.Context(), *upload)
	if err != nil {
		respondError(c, err)
		return
	}

	record := result.Transcription
	c.JSON(http.StatusOK, TranscribeResponse{
		Text:     record.Text,
		FileName: record.FileName,
		Duration: record.Duration(),
		FileSize: record.FileSize(),
		Date:     record.Date(),
	})
}

func (h *Handler) readUpload(r *http.Request) (*transcription.Upload, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, &transcription.Error{
			Kind:    transcription.KindBadRequest,
			Message: "No file uploaded",
			Err:     err,
		}
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, &transcription.Error{
				Kind:    transcription.KindBadRequest,
				Message: "No file uploaded",
			}
		}
		if err != nil {
			return nil, &transcription.Error{
				Kind:    transcription.KindBadRequest,
				Message: "Malformed multipart body",
				Err:     err,
			}
		}

		if part.FormName() != uploadField {
			_ = part.Close()
			continue
		}
		return h.readFilePart(part)
	}
}

func (h *Handler) readFilePart(part *multipart.Part) (*transcription.Upload, error) {
	defer part.Close()

	fileName := part.FileName()
	if err := h.validator.ValidateName(fileName); err != nil {
		return nil, err
	}

	content, err := io.ReadAll(io.LimitReader(part, h.validator.MaxFileSize()+1))
	if err != nil {
		return nil, &transcription.Error{
			Kind:    transcription.KindBadRequest,
			Message: "Failed to read uploaded file",
			Err:     err,
		}
	}

	return &transcription.Upload{FileName: fileName, Content: content}, nil
}

func (h *Handler) History(c *gin.Context) {
	var query historyQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		abortWithError(c, http.StatusBadRequest, string(transcription.KindBadRequest), queryErrorDetail(err))
		return
	}

	page, err := h.service.History(c.Request.Context(), query.Limit, query.Skip)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

func queryErrorDetail(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return "Invalid query parameters"
	}

	details := make([]string, 0, len(validationErrs))
	for _, fieldErr := range validationErrs {
		field := strings.ToLower(fieldErr.Field())
		switch field {
		case "limit":
			details = append(details, "limit must be a positive integer")
		case "skip":
			details = append(details, "skip must be a non-negative integer")
		default:
			details = append(details, fmt.Sprintf("%s is invalid", field))
		}
	}
	return strings.Join(details, "; ")
}

func (h *Handler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Transcription deleted successfully"})
}
