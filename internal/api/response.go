package api

import (
	"encoding/json"
	"net/http"
)

// Response renders itself to the client.
type Response interface {
	Render(w http.ResponseWriter, r *http.Request) error
}

// Envelope is the body of every JSON response.
type Envelope struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

// ErrorDetail describes a failed request. Details maps field names to
// messages for validation failures.
type ErrorDetail struct {
	Code      string              `json:"code"`
	Message   string              `json:"message"`
	Details   map[string][]string `json:"details,omitempty"`
	RequestID string              `json:"requestId,omitempty"`
}

type jsonResponse struct {
	status int
	body   Envelope
}

func (j jsonResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	return writeJSON(w, j.status, j.body)
}

func writeJSON(w http.ResponseWriter, status int, body any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}

// JSONOption configures a JSON response.
type JSONOption func(*jsonResponse)

func WithStatus(status int) JSONOption {
	return func(j *jsonResponse) { j.status = status }
}

func WithMeta(meta map[string]any) JSONOption {
	return func(j *jsonResponse) { j.body.Meta = meta }
}

// JSON wraps data in an Envelope with status 200 unless overridden.
func JSON(data any, opts ...JSONOption) Response {
	j := &jsonResponse{status: http.StatusOK, body: Envelope{Data: data}}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

type emptyResponse struct{}

func (emptyResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// NoContent answers 204 without a body.
func NoContent() Response { return emptyResponse{} }

// failure carries an error to the API's error renderer.
type failure struct{ err error }

func (f failure) Render(http.ResponseWriter, *http.Request) error { return f.err }

// Fail turns err into an error response; the status comes from classify.
func Fail(err error) Response { return failure{err: err} }
