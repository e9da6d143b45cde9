package deepgram

import "errors"

var ErrNoAlternatives = errors.New("deepgram response contains no transcript alternatives")

// ListenResponse is the body returned by the prerecorded /v1/listen endpoint.
// Only the fields the service reads are decoded.
type ListenResponse struct {
	Metadata Metadata `json:"metadata"`
	Results  Results  `json:"results"`
}

type Metadata struct {
	RequestID string               `json:"request_id"`
	Duration  *float64             `json:"duration"`
	Channels  int                  `json:"channels"`
	ModelInfo map[string]ModelInfo `json:"model_info,omitempty"`
}

type ModelInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Arch    string `json:"arch"`
}

type Results struct {
	Channels []Channel `json:"channels"`
}

type Channel struct {
	Alternatives []Alternative `json:"alternatives"`
}

type Alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// ErrorResponse is returned with non-2xx statuses.
type ErrorResponse struct {
	ErrCode   string `json:"err_code"`
	ErrMsg    string `json:"err_msg"`
	RequestID string `json:"request_id"`
}

// Transcript returns the first alternative of the first channel.
func (r *ListenResponse) Transcript() (string, error) {
	if len(r.Results.Channels) == 0 || len(r.Results.Channels[0].Alternatives) == 0 {
		return "", ErrNoAlternatives
	}
	return r.Results.Channels[0].Alternatives[0].Transcript, nil
}
