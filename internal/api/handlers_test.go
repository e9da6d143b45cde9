package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"luminatext/internal/transcription"
	"luminatext/pkg/model"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Preflight() error {
	return m.Called().Error(0)
}

func (m *MockService) Transcribe(ctx context.Context, upload transcription.Upload) (*transcription.Result, error) {
	args := m.Called(ctx, upload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transcription.Result), args.Error(1)
}

func (m *MockService) History(ctx context.Context, limit, skip int64) (*transcription.HistoryPage, error) {
	args := m.Called(ctx, limit, skip)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transcription.HistoryPage), args.Error(1)
}

func (m *MockService) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockService) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockService) StoreConfigured() bool {
	return m.Called().Bool(0)
}

var ready = Readiness{ProviderConfigured: true, StoreConfigured: true}

func setupTestRouter(service TranscriptionService, maxFileSize int64, readiness Readiness) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewHandler(service, transcription.NewValidator(maxFileSize), readiness)
	return NewRouter(handler, nil, nil)
}

func multipartBody(t *testing.T, field, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("note", "ignored"))
	if field != "" {
		part, err := writer.CreateFormFile(field, fileName)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func kindError(kind transcription.Kind, message string) error {
	return &transcription.Error{Kind: kind, Message: message}
}

func TestHandler_Transcribe(t *testing.T) {
	duration := 12.5
	record := &model.Transcription{
		ID:              "abc",
		Text:            "hello world",
		FileName:        "clip.wav",
		DurationSeconds: &duration,
		FileSizeBytes:   5000,
		CreatedAt:       time.Date(2026, 10, 15, 9, 30, 0, 0, time.Local),
	}

	tests := []struct {
		name           string
		field          string
		fileName       string
		size           int
		maxFileSize    int64
		setupMocks     func(*MockService)
		expectedStatus int
		validateBody   func(*testing.T, map[string]interface{})
	}{
		{
			name:     "success",
			field:    "file",
			fileName: "clip.wav",
			size:     5000,
			setupMocks: func(ms *MockService) {
				ms.On("Preflight").Return(nil)
				ms.On("Transcribe", mock.Anything, mock.MatchedBy(func(u transcription.Upload) bool {
					return u.FileName == "clip.wav" && len(u.Content) == 5000
				})).Return(&transcription.Result{
					Transcription: record,
					Persistence:   transcription.PersistenceStored,
				}, nil)
			},
			expectedStatus: http.StatusOK,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "hello world", body["text"])
				assert.Equal(t, "clip.wav", body["fileName"])
				assert.Equal(t, "0m 12s", body["duration"])
				assert.Equal(t, "4.88 KB", body["fileSize"])
				assert.Equal(t, "2026-10-15 09:30:00", body["date"])
				assert.Len(t, body, 5)
			},
		},
		{
			name:     "persistence failure still returns the transcript",
			field:    "file",
			fileName: "clip.wav",
			size:     10,
			setupMocks: func(ms *MockService) {
				ms.On("Preflight").Return(nil)
				ms.On("Transcribe", mock.Anything, mock.Anything).Return(&transcription.Result{
					Transcription: record,
					Persistence:   transcription.PersistenceFailed,
					PersistErr:    errors.New("db down"),
				}, nil)
			},
			expectedStatus: http.StatusOK,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "hello world", body["text"])
			},
		},
		{
			name:     "unsupported format rejected before reading",
			field:    "file",
			fileName: "doc.pdf",
			size:     10,
			setupMocks: func(ms *MockService) {
				ms.On("Preflight").Return(nil)
			},
			expectedStatus: http.StatusBadRequest,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "unsupported_format", body["kind"])
				assert.Contains(t, body["detail"], ".mp3")
				assert.Contains(t, body["detail"], ".opus")
				assert.NotEmpty(t, body["request_id"])
			},
		},
		{
			name:  "missing file field",
			field: "",
			setupMocks: func(ms *MockService) {
				ms.On("Preflight").Return(nil)
			},
			expectedStatus: http.StatusBadRequest,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "bad_request", body["kind"])
				assert.Equal(t, "No file uploaded", body["detail"])
			},
		},
		{
			name:     "provider unconfigured wins over bad extension",
			field:    "file",
			fileName: "doc.pdf",
			size:     10,
			setupMocks: func(ms *MockService) {
				ms.On("Preflight").Return(kindError(transcription.KindProviderUnconfigured,
					"Deepgram API not configured. Please set DEEPGRAM_API_KEY."))
			},
			expectedStatus: http.StatusInternalServerError,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "provider_unconfigured", body["kind"])
				assert.Equal(t, "Deepgram API not configured. Please set DEEPGRAM_API_KEY.", body["detail"])
			},
		},
		{
			name:        "too large",
			field:       "file",
			fileName:    "clip.mp3",
			size:        2000,
			maxFileSize: 1024,
			setupMocks: func(ms *MockService) {
				ms.On("Preflight").Return(nil)
				ms.On("Transcribe", mock.Anything, mock.MatchedBy(func(u transcription.Upload) bool {
					// The handler stops reading one byte past the limit.
					return len(u.Content) == 1025
				})).Return(nil, kindError(transcription.KindPayloadTooLarge, "File size exceeds 1.00 KB limit"))
			},
			expectedStatus: http.StatusRequestEntityTooLarge,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "payload_too_large", body["kind"])
				assert.Equal(t, "File size exceeds 1.00 KB limit", body["detail"])
			},
		},
		{
			name:     "empty file",
			field:    "file",
			fileName: "clip.mp3",
			size:     0,
			setupMocks: func(ms *MockService) {
				ms.On("Preflight").Return(nil)
				ms.On("Transcribe", mock.Anything, mock.Anything).
					Return(nil, kindError(transcription.KindEmptyFile, "Empty file uploaded"))
			},
			expectedStatus: http.StatusBadRequest,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "empty_file", body["kind"])
			},
		},
		{
			name:     "provider error",
			field:    "file",
			fileName: "clip.wav",
			size:     10,
			setupMocks: func(ms *MockService) {
				ms.On("Preflight").Return(nil)
				ms.On("Transcribe", mock.Anything, mock.Anything).Return(nil, &transcription.Error{
					Kind:    transcription.KindProviderError,
					Message: "Error transcribing file: deepgram returned status 401: Invalid credentials",
					Err:     errors.New("status 401"),
				})
			},
			expectedStatus: http.StatusInternalServerError,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "provider_error", body["kind"])
				assert.True(t, strings.HasPrefix(body["detail"].(string), "Error transcribing file: "))
			},
		},
		{
			name:     "unclassified error is hidden",
			field:    "file",
			fileName: "clip.wav",
			size:     10,
			setupMocks: func(ms *MockService) {
				ms.On("Preflight").Return(nil)
				ms.On("Transcribe", mock.Anything, mock.Anything).Return(nil, errors.New("secret internals"))
			},
			expectedStatus: http.StatusInternalServerError,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "unexpected", body["kind"])
				assert.Equal(t, "Internal server error", body["detail"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(MockService)
			tt.setupMocks(service)
			maxFileSize := tt.maxFileSize
			if maxFileSize == 0 {
				maxFileSize = 1024 * 1024
			}
			router := setupTestRouter(service, maxFileSize, ready)

			body, contentType := multipartBody(t, tt.field, tt.fileName, bytes.Repeat([]byte{1}, tt.size))
			req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			tt.validateBody(t, decode(t, rec))
			service.AssertExpectations(t)
		})
	}
}

func TestHandler_Transcribe_NotMultipart(t *testing.T) {
	service := new(MockService)
	service.On("Preflight").Return(nil)
	router := setupTestRouter(service, 1024, ready)

	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", strings.NewReader(`{"file":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file uploaded", decode(t, rec)["detail"])
}

func TestHandler_History(t *testing.T) {
	page := &transcription.HistoryPage{
		Items: []transcription.HistoryItem{{
			ID: "abc", Text: "hello", FileName: "a.wav", Duration: "0m 1s",
			FileSize: "1.00 KB", Date: "2026-10-15 09:30:00", Preview: "hello",
		}},
		Total: 1,
		Limit: 10,
		Skip:  0,
	}

	tests := []struct {
		name           string
		query          string
		setupMocks     func(*MockService)
		expectedStatus int
		validateBody   func(*testing.T, map[string]interface{})
	}{
		{
			name:  "defaults",
			query: "",
			setupMocks: func(ms *MockService) {
				ms.On("History", mock.Anything, int64(10), int64(0)).Return(page, nil)
			},
			expectedStatus: http.StatusOK,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, float64(1), body["total"])
				assert.Equal(t, float64(10), body["limit"])
				assert.Equal(t, float64(0), body["skip"])
				items := body["transcriptions"].([]interface{})
				require.Len(t, items, 1)
				item := items[0].(map[string]interface{})
				assert.Equal(t, "abc", item["id"])
				assert.Equal(t, "hello", item["preview"])
				assert.NotContains(t, item, "metadata")
				assert.NotContains(t, item, "createdAt")
			},
		},
		{
			name:  "explicit paging",
			query: "?limit=5&skip=20",
			setupMocks: func(ms *MockService) {
				ms.On("History", mock.Anything, int64(5), int64(20)).
					Return(&transcription.HistoryPage{Items: []transcription.HistoryItem{}, Total: 3, Limit: 5, Skip: 20}, nil)
			},
			expectedStatus: http.StatusOK,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Empty(t, body["transcriptions"])
				assert.Equal(t, float64(3), body["total"])
			},
		},
		{
			name:           "zero limit",
			query:          "?limit=0",
			setupMocks:     func(ms *MockService) {},
			expectedStatus: http.StatusBadRequest,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "bad_request", body["kind"])
				assert.Equal(t, "limit must be a positive integer", body["detail"])
			},
		},
		{
			name:           "negative skip",
			query:          "?skip=-1",
			setupMocks:     func(ms *MockService) {},
			expectedStatus: http.StatusBadRequest,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "skip must be a non-negative integer", body["detail"])
			},
		},
		{
			name:           "non numeric",
			query:          "?limit=ten",
			setupMocks:     func(ms *MockService) {},
			expectedStatus: http.StatusBadRequest,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "Invalid query parameters", body["detail"])
			},
		},
		{
			name:  "store unavailable",
			query: "",
			setupMocks: func(ms *MockService) {
				ms.On("History", mock.Anything, int64(10), int64(0)).
					Return(nil, kindError(transcription.KindStoreUnavailable, "Database not configured"))
			},
			expectedStatus: http.StatusInternalServerError,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "store_unavailable", body["kind"])
				assert.Equal(t, "Database not configured", body["detail"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(MockService)
			tt.setupMocks(service)
			router := setupTestRouter(service, 1024, ready)

			req := httptest.NewRequest(http.MethodGet, "/api/history"+tt.query, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			tt.validateBody(t, decode(t, rec))
			service.AssertExpectations(t)
		})
	}
}

func TestHandler_Delete(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedBody   string
	}{
		{name: "deleted", expectedStatus: http.StatusOK, expectedBody: "Transcription deleted successfully"},
		{
			name:           "not found",
			err:            kindError(transcription.KindNotFound, "Transcription not found"),
			expectedStatus: http.StatusNotFound,
			expectedBody:   "Transcription not found",
		},
		{
			name:           "store failure",
			err:            kindError(transcription.KindStoreUnavailable, "Error deleting transcription: timeout"),
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   "Error deleting transcription: timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(MockService)
			service.On("Delete", mock.Anything, "65f1c0ffee").Return(tt.err)
			router := setupTestRouter(service, 1024, ready)

			req := httptest.NewRequest(http.MethodDelete, "/api/history/65f1c0ffee", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			body := decode(t, rec)
			if tt.err == nil {
				assert.Equal(t, tt.expectedBody, body["message"])
			} else {
				assert.Equal(t, tt.expectedBody, body["detail"])
			}
			service.AssertExpectations(t)
		})
	}
}

func TestHandler_Health(t *testing.T) {
	tests := []struct {
		name            string
		readiness       Readiness
		storeConnected  bool
		pingErr         error
		expectPing      bool
		expectedStatus  string
		expectedMessage string
	}{
		{
			name:            "healthy",
			readiness:       ready,
			storeConnected:  true,
			expectPing:      true,
			expectedStatus:  "healthy",
			expectedMessage: "API is running",
		},
		{
			name:            "missing provider key",
			readiness:       Readiness{StoreConfigured: true},
			expectedStatus:  "unhealthy",
			expectedMessage: "DEEPGRAM_API_KEY not configured",
		},
		{
			name:            "missing store",
			readiness:       Readiness{ProviderConfigured: true},
			expectedStatus:  "unhealthy",
			expectedMessage: "MONGODB_URI or POSTGRES_DSN not configured",
		},
		{
			name: "store configured but connection failed",
			readiness: Readiness{
				ProviderConfigured: true,
				StoreConfigured:    true,
				StoreErr:           errors.New("failed to ping MongoDB: connection refused"),
			},
			expectedStatus:  "unhealthy",
			expectedMessage: "Database connection failed: failed to ping MongoDB: connection refused",
		},
		{
			name:            "store configured but never opened",
			readiness:       ready,
			expectedStatus:  "unhealthy",
			expectedMessage: "Database connection failed",
		},
		{
			name:            "ping fails",
			readiness:       ready,
			storeConnected:  true,
			pingErr:         errors.New("server selection timeout"),
			expectPing:      true,
			expectedStatus:  "unhealthy",
			expectedMessage: "server selection timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(MockService)
			service.On("StoreConfigured").Return(tt.storeConnected).Maybe()
			if tt.expectPing {
				service.On("Ping", mock.Anything).Return(tt.pingErr)
			}
			router := setupTestRouter(service, 1024, tt.readiness)

			req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, tt.expectedStatus, body["status"])
			assert.Equal(t, tt.expectedMessage, body["message"])
			assert.NotEmpty(t, body["timestamp"])
			if tt.expectedStatus == "healthy" {
				assert.Equal(t, "connected", body["database"])
			}
			service.AssertExpectations(t)
		})
	}
}

func TestHandler_Root(t *testing.T) {
	router := setupTestRouter(new(MockService), 1024, ready)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "LuminaText Transcription API", body["message"])
	assert.Equal(t, "2.1.0", body["version"])
	assert.Equal(t, "Deepgram", body["provider"])
	assert.Contains(t, body["endpoints"], "/api/transcribe")
}

type stubProvider struct {
	result *transcription.ProviderResult
	err    error
}

func (p *stubProvider) Transcribe(_ context.Context, audio io.Reader, _ transcription.Options) (*transcription.ProviderResult, error) {
	if _, err := io.Copy(io.Discard, audio); err != nil {
		return nil, err
	}
	return p.result, p.err
}

func TestTranscribe_EndToEndWithService(t *testing.T) {
	duration := 12.5
	tempDir := t.TempDir()
	service := transcription.NewService(transcription.Deps{
		Stager:   transcription.NewStager(tempDir),
		Provider: &stubProvider{result: &transcription.ProviderResult{Transcript: "hello world", DurationSeconds: &duration}},
	})
	router := setupTestRouter(service, transcription.DefaultMaxFileSize, ready)

	body, contentType := multipartBody(t, "file", "clip.wav", make([]byte, 5000))
	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, "hello world", resp["text"])
	assert.Equal(t, "clip.wav", resp["fileName"])
	assert.Equal(t, "0m 12s", resp["duration"])
	assert.Equal(t, "4.88 KB", resp["fileSize"])
	assert.True(t, strings.HasPrefix(resp["date"].(string), time.Now().Format("2006-01-02")))
}

func TestTranscribe_EndToEndProviderFailureLeavesNoFiles(t *testing.T) {
	tempDir := t.TempDir()
	service := transcription.NewService(transcription.Deps{
		Stager:   transcription.NewStager(tempDir),
		Provider: &stubProvider{err: errors.New("deepgram returned status 500: boom")},
	})
	router := setupTestRouter(service, transcription.DefaultMaxFileSize, ready)

	body, contentType := multipartBody(t, "file", "clip.wav", []byte("audio"))
	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error transcribing file: deepgram returned status 500: boom", decode(t, rec)["detail"])

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

type emptyStore struct{}

func (emptyStore) Insert(context.Context, *model.Transcription) (string, error) { return "1", nil }

func (emptyStore) List(context.Context, int64, int64) ([]*model.Transcription, error) {
	return []*model.Transcription{}, nil
}

func (emptyStore) Count(context.Context) (int64, error) { return 0, nil }

func (emptyStore) DeleteByID(context.Context, string) (int64, error) { return 0, nil }

func (emptyStore) Ping(context.Context) error { return nil }

func TestHistory_EndToEndHugeLimit(t *testing.T) {
	service := transcription.NewService(transcription.Deps{Store: emptyStore{}})
	router := setupTestRouter(service, 1024, ready)

	for _, limit := range []string{"10000000000000", "4611686018427387904"} {
		t.Run(limit, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history?limit="+limit, nil))

			require.Equal(t, http.StatusOK, rec.Code)
			body := decode(t, rec)
			assert.Empty(t, body["transcriptions"])
			assert.Equal(t, float64(0), body["total"])
		})
	}
}
