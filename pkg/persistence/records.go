package persistence

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nimburion/offlinequeue/pkg/mutation"
)

// requestRecord is the stored shape of a QueuedRequest. Timestamps are epoch milliseconds.
type requestRecord struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Endpoint  string          `json:"endpoint"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Retries   int             `json:"retries"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
}

// deadLetterRecord flattens the request fields next to the failure details.
type deadLetterRecord struct {
	requestRecord
	FailedAt  int64  `json:"failedAt"`
	LastError string `json:"lastError"`
}

type syncStatusRecord struct {
	LastSyncAttempt    *int64 `json:"lastSyncAttempt"`
	LastSuccessfulSync *int64 `json:"lastSuccessfulSync"`
}

var errInvalidRecord = errors.New("invalid record")

func toRequestRecord(req mutation.QueuedRequest) requestRecord {
	return requestRecord{
		ID:        req.ID,
		Type:      string(req.Type),
		Endpoint:  req.Endpoint,
		Data:      req.Data,
		Timestamp: req.Timestamp.UnixMilli(),
		Retries:   req.Retries,
		Metadata:  req.Metadata,
	}
}

func (r requestRecord) toRequest() (mutation.QueuedRequest, error) {
	if strings.TrimSpace(r.ID) == "" {
		return mutation.QueuedRequest{}, fmt.Errorf("%w: missing id", errInvalidRecord)
	}
	if strings.TrimSpace(r.Endpoint) == "" {
		return mutation.QueuedRequest{}, fmt.Errorf("%w: request %s has no endpoint", errInvalidRecord, r.ID)
	}
	reqType := mutation.RequestType(r.Type)
	if !reqType.Valid() {
		return mutation.QueuedRequest{}, fmt.Errorf("%w: request %s has type %q", errInvalidRecord, r.ID, r.Type)
	}
	if r.Retries < 0 {
		return mutation.QueuedRequest{}, fmt.Errorf("%w: request %s has negative retries", errInvalidRecord, r.ID)
	}

	data := r.Data
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		data = nil
	}
	return mutation.QueuedRequest{
		ID:        r.ID,
		Type:      reqType,
		Endpoint:  r.Endpoint,
		Data:      data,
		Timestamp: time.UnixMilli(r.Timestamp),
		Retries:   r.Retries,
		Metadata:  r.Metadata,
	}, nil
}

func toDeadLetterRecord(item mutation.DeadLetterItem) deadLetterRecord {
	return deadLetterRecord{
		requestRecord: toRequestRecord(item.Request),
		FailedAt:      item.FailedAt.UnixMilli(),
		LastError:     item.LastError,
	}
}

func (r deadLetterRecord) toItem() (mutation.DeadLetterItem, error) {
	req, err := r.requestRecord.toRequest()
	if err != nil {
		return mutation.DeadLetterItem{}, err
	}
	return mutation.DeadLetterItem{
		Request:   req,
		FailedAt:  time.UnixMilli(r.FailedAt),
		LastError: r.LastError,
	}, nil
}

func toSyncStatusRecord(status mutation.SyncStatus) syncStatusRecord {
	return syncStatusRecord{
		LastSyncAttempt:    toMillis(status.LastSyncAttempt),
		LastSuccessfulSync: toMillis(status.LastSuccessfulSync),
	}
}

func (r syncStatusRecord) toStatus() mutation.SyncStatus {
	return mutation.SyncStatus{
		LastSyncAttempt:    fromMillis(r.LastSyncAttempt),
		LastSuccessfulSync: fromMillis(r.LastSuccessfulSync),
	}
}

func toMillis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func fromMillis(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms)
	return &t
}
