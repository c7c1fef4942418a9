package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xmlongan/jmomden/internal/momentfile"
	"github.com/xmlongan/jmomden/internal/persistence"
	"github.com/xmlongan/jmomden/pkg/bcast"
)

// Operand is a JSON number or array of numbers
type Operand struct {
	bcast.Value
	set bool
}

// UnmarshalJSON accepts 1.5 or [1.5, 2]. null, alone or as an element, is
// rejected rather than read as zero.
func (o *Operand) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return errors.New("operand must be a number or an array of numbers, got null")
	}
	if len(b) > 0 && b[0] == '[' {
		var ps []*float64
		if err := json.Unmarshal(b, &ps); err != nil {
			return err
		}
		xs := make([]float64, len(ps))
		for i, p := range ps {
			if p == nil {
				return fmt.Errorf("operand element %d is null", i)
			}
			xs[i] = *p
		}
		*o = Operand{Value: bcast.Vector(xs), set: true}
		return nil
	}
	var x float64
	if err := json.Unmarshal(b, &x); err != nil {
		return fmt.Errorf("operand must be a number or an array of numbers")
	}
	*o = Operand{Value: bcast.Scalar(x), set: true}
	return nil
}

// MarshalJSON writes a scalar as a number and a sequence as an array
func (o Operand) MarshalJSON() ([]byte, error) {
	if o.IsScalar() {
		return json.Marshal(o.Float())
	}
	return json.Marshal(o.Slice())
}

// BuildModelRequest is the body of POST /models
type BuildModelRequest = momentfile.File

// ModelResponse describes a model
type ModelResponse = persistence.Snapshot

// ModelListResponse is the body of GET /models
type ModelListResponse struct {
	Models []ModelResponse `json:"models"`
	Count  int             `json:"count"`
}

// EvalRequest is the body of the evaluation endpoints and of stream frames
type EvalRequest struct {
	// Op selects joint or conditional on the stream; ignored elsewhere
	Op     string  `json:"op,omitempty"`
	V      Operand `json:"v"`
	Y      Operand `json:"y"`
	Repair *bool   `json:"repair,omitempty"`
	Warn   bool    `json:"warn,omitempty"`
	// Tag is echoed back on the stream to correlate answers
	Tag string `json:"tag,omitempty"`
}

// EvalResponse carries evaluated densities
type EvalResponse struct {
	ModelID string  `json:"model_id"`
	Op      string  `json:"op"`
	Values  Operand `json:"values"`
	Tag     string  `json:"tag,omitempty"`
}

// StreamError is sent on the stream when a frame cannot be answered
type StreamError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Tag   string `json:"tag,omitempty"`
}

// ErrorResponse is the standard error body
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string                   `json:"status"` // "healthy" or "degraded"
	Timestamp time.Time                `json:"timestamp"`
	Uptime    string                   `json:"uptime"`
	Version   string                   `json:"version"`
	Models    int                      `json:"models"`
	Database  *persistence.HealthCheck `json:"database,omitempty"`
}
