package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"luminatext/internal/transcription"
	"luminatext/pkg/logger"
	"luminatext/pkg/resilience"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.deepgram.com"
	ProviderName   = "deepgram"
	listenPath     = "/v1/listen"
)

type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
	breaker *resilience.CircuitBreaker
}

type Option func(*Client)

// WithHTTPClient replaces the default client, mostly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.client = c
	}
}

// WithCircuitBreaker guards every request with cb.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(cl *Client) {
		cl.breaker = cb
	}
}

// New Deepgram prerecorded-audio client
func NewClient(apiKey, baseURL string, timeout time.Duration, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transcribe uploads audio as the raw request body and waits for the result.
func (c *Client) Transcribe(ctx context.Context, audio io.Reader, opts transcription.Options) (*transcription.ProviderResult, error) {
	if c.breaker == nil {
		return c.listen(ctx, audio, opts)
	}

	var (
		result *transcription.ProviderResult
		// Rejections caused by the request itself do not trip the breaker.
		clientErr error
	)
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		result, err = c.listen(ctx, audio, opts)
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			clientErr = err
			return nil
		}
		return err
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, fmt.Errorf("deepgram temporarily unavailable: %w", err)
	}
	if err != nil {
		return nil, err
	}
	if clientErr != nil {
		return nil, clientErr
	}
	return result, nil
}

func (c *Client) listen(ctx context.Context, audio io.Reader, opts transcription.Options) (*transcription.ProviderResult, error) {
	endpoint := c.baseURL + listenPath + "?" + queryParams(opts).Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, audio)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	logger.Debug("Sending audio to Deepgram",
		zap.String("model", opts.Model),
		zap.String("content_type", contentType))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError(resp.StatusCode, respBody)
	}

	var listenResp ListenResponse
	if err := json.Unmarshal(respBody, &listenResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	transcript, err := listenResp.Transcript()
	if err != nil {
		return nil, err
	}

	logger.Info("Deepgram transcription received",
		zap.String("request_id", listenResp.Metadata.RequestID),
		zap.Int("text_length", len(transcript)))

	return &transcription.ProviderResult{
		Transcript:      transcript,
		DurationSeconds: listenResp.Metadata.Duration,
		Model:           opts.Model,
		Provider:        ProviderName,
		RequestID:       listenResp.Metadata.RequestID,
	}, nil
}

func queryParams(opts transcription.Options) url.Values {
	q := url.Values{}
	q.Set("model", opts.Model)
	q.Set("smart_format", strconv.FormatBool(opts.SmartFormat))
	q.Set("punctuate", strconv.FormatBool(opts.Punctuate))
	q.Set("paragraphs", strconv.FormatBool(opts.Paragraphs))
	q.Set("utterances", strconv.FormatBool(opts.Utterances))
	return q
}

// StatusError is returned when Deepgram answers with a non-200 status.
type StatusError struct {
	StatusCode int
	Message    string
}

func newStatusError(status int, body []byte) *StatusError {
	var errResp ErrorResponse
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.ErrMsg != "" {
		msg = errResp.ErrMsg
	}
	return &StatusError{StatusCode: status, Message: msg}
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("deepgram returned status %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the failure is on Deepgram's side.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}
