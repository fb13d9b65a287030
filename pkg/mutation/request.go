// Package mutation defines the records that flow through the offline queue.
package mutation

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxRetries is the number of failed attempts after which a request is dead-lettered.
const MaxRetries = 5

// RequestType tags the kind of remote mutation. The engine never interprets it.
type RequestType string

// Request type constants
const (
	// TypeCreate creates a remote resource
	TypeCreate RequestType = "CREATE"
	// TypeUpdate updates a remote resource
	TypeUpdate RequestType = "UPDATE"
	// TypeDelete deletes a remote resource
	TypeDelete RequestType = "DELETE"
)

// Valid reports whether t is one of the supported request types.
func (t RequestType) Valid() bool {
	switch t {
	case TypeCreate, TypeUpdate, TypeDelete:
		return true
	default:
		return false
	}
}

// ParseRequestType converts a case-insensitive string to a RequestType.
func ParseRequestType(value string) (RequestType, error) {
	t := RequestType(strings.ToUpper(strings.TrimSpace(value)))
	if !t.Valid() {
		return "", mutationError(ErrValidation, "unsupported request type "+quote(value))
	}
	return t, nil
}

// Request is the caller-supplied part of a queued mutation.
type Request struct {
	Type     RequestType
	Endpoint string
	Data     json.RawMessage
	Metadata map[string]any
}

// Validate checks the fields required to enqueue a request.
func (r Request) Validate() error {
	if !r.Type.Valid() {
		return mutationError(ErrValidation, "unsupported request type "+quote(string(r.Type)))
	}
	if strings.TrimSpace(r.Endpoint) == "" {
		return mutationError(ErrValidation, "endpoint is required")
	}
	if len(bytes.TrimSpace(r.Data)) > 0 && !json.Valid(r.Data) {
		return mutationError(ErrValidation, "data must be valid JSON")
	}
	return nil
}

// QueuedRequest is a pending mutation owned by the queue engine.
type QueuedRequest struct {
	ID        string
	Type      RequestType
	Endpoint  string
	Data      json.RawMessage
	Timestamp time.Time
	Retries   int
	Metadata  map[string]any
}

// NewQueuedRequest builds a queued request with a fresh id and zero retries.
func NewQueuedRequest(req Request, now time.Time) QueuedRequest {
	return QueuedRequest{
		ID:        NewID(),
		Type:      req.Type,
		Endpoint:  strings.TrimSpace(req.Endpoint),
		Data:      cloneBytes(req.Data),
		Timestamp: now,
		Metadata:  cloneMetadata(req.Metadata),
	}
}

// Clone returns a deep copy so callers cannot mutate engine-owned state.
func (q QueuedRequest) Clone() QueuedRequest {
	q.Data = cloneBytes(q.Data)
	q.Metadata = cloneMetadata(q.Metadata)
	return q
}

// DecodeData unmarshals the request payload into v.
func (q QueuedRequest) DecodeData(v any) error {
	if len(q.Data) == 0 {
		return mutationError(ErrValidation, "request has no data")
	}
	return json.Unmarshal(q.Data, v)
}

// NewID returns a unique, time-ordered identifier: a UUIDv7 carries a millisecond
// timestamp in its high bits followed by random bits.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// MarshalData encodes an arbitrary payload as request data.
func MarshalData(payload any) (json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, mutationError(ErrValidation, "marshal request data failed: "+err.Error())
	}
	return data, nil
}

func cloneBytes(input []byte) []byte {
	if len(input) == 0 {
		return nil
	}
	out := make([]byte, len(input))
	copy(out, input)
	return out
}

func cloneMetadata(input map[string]any) map[string]any {
	if input == nil {
		return nil
	}
	out := make(map[string]any, len(input))
	for k, v := range input {
		out[k] = v
	}
	return out
}

func quote(value string) string {
	return `"` + value + `"`
}
