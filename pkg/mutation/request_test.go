package mutation

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func validRequest() Request {
	return Request{
		Type:     TypeCreate,
		Endpoint: "/transactions",
		Data:     json.RawMessage(`{"amount":100}`),
		Metadata: map[string]any{"source": "test"},
	}
}

func TestRequestValidate(t *testing.T) {
	if err := validRequest().Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestRequestValidateRejectsMalformedInput(t *testing.T) {
	req := validRequest()
	req.Type = "UPSERT"
	if err := req.Validate(); err == nil || !strings.Contains(err.Error(), "type") {
		t.Fatalf("expected type validation error, got %v", err)
	}

	req = validRequest()
	req.Endpoint = "  "
	if err := req.Validate(); err == nil || !strings.Contains(err.Error(), "endpoint") {
		t.Fatalf("expected endpoint validation error, got %v", err)
	}

	req = validRequest()
	req.Data = json.RawMessage(`{"amount":`)
	err := req.Validate()
	if err == nil || !strings.Contains(err.Error(), "JSON") {
		t.Fatalf("expected data validation error, got %v", err)
	}
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestRequestValidateAllowsEmptyData(t *testing.T) {
	req := validRequest()
	req.Type = TypeDelete
	req.Data = nil
	if err := req.Validate(); err != nil {
		t.Fatalf("expected delete without data to be valid, got %v", err)
	}
}

func TestParseRequestType(t *testing.T) {
	tests := []struct {
		input   string
		want    RequestType
		wantErr bool
	}{
		{input: "create", want: TypeCreate},
		{input: " UPDATE ", want: TypeUpdate},
		{input: "Delete", want: TypeDelete},
		{input: "patch", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRequestType(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRequestType(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("ParseRequestType(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewQueuedRequest(t *testing.T) {
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	req := validRequest()
	req.Endpoint = " /transactions "

	queued := NewQueuedRequest(req, now)
	if queued.ID == "" {
		t.Fatal("expected generated id")
	}
	if queued.Endpoint != "/transactions" {
		t.Fatalf("expected trimmed endpoint, got %q", queued.Endpoint)
	}
	if queued.Retries != 0 {
		t.Fatalf("expected zero retries, got %d", queued.Retries)
	}
	if !queued.Timestamp.Equal(now) {
		t.Fatalf("expected timestamp %v, got %v", now, queued.Timestamp)
	}

	req.Data[2] = 'X'
	req.Metadata["source"] = "mutated"
	if string(queued.Data) != `{"amount":100}` {
		t.Fatalf("expected data to be copied, got %s", queued.Data)
	}
	if queued.Metadata["source"] != "test" {
		t.Fatalf("expected metadata to be copied, got %v", queued.Metadata["source"])
	}
}

func TestNewIDIsUniqueAndTimeOrdered(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}

		parsed, err := uuid.Parse(id)
		if err != nil {
			t.Fatalf("expected uuid, got %q: %v", id, err)
		}
		if parsed.Version() != 7 {
			t.Fatalf("expected version 7 uuid, got %d", parsed.Version())
		}
	}
}

func TestQueuedRequestClone(t *testing.T) {
	original := NewQueuedRequest(validRequest(), time.Now())
	clone := original.Clone()
	clone.Data[0] = '['
	clone.Metadata["source"] = "clone"

	if original.Data[0] != '{' {
		t.Fatal("expected clone data to be independent")
	}
	if original.Metadata["source"] != "test" {
		t.Fatal("expected clone metadata to be independent")
	}
}

func TestDecodeData(t *testing.T) {
	queued := NewQueuedRequest(validRequest(), time.Now())
	var payload struct {
		Amount int `json:"amount"`
	}
	if err := queued.DecodeData(&payload); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if payload.Amount != 100 {
		t.Fatalf("expected amount 100, got %d", payload.Amount)
	}

	queued.Data = nil
	if err := queued.DecodeData(&payload); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty data, got %v", err)
	}
}

func TestNoProcessorError(t *testing.T) {
	err := NoProcessorError("/unknown")
	if !errors.Is(err, ErrNoProcessor) {
		t.Fatalf("expected ErrNoProcessor, got %v", err)
	}
	if !strings.Contains(err.Error(), "no processor") || !strings.Contains(err.Error(), "/unknown") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
