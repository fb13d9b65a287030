// Package persistence mirrors queue engine state into a store.KV.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nimburion/offlinequeue/pkg/mutation"
	"github.com/nimburion/offlinequeue/pkg/observability/logger"
	"github.com/nimburion/offlinequeue/pkg/store"
)

// DefaultKeyPrefix namespaces the three persisted records.
const DefaultKeyPrefix = "offline_queue:"

const (
	queueSuffix      = "queue"
	deadLetterSuffix = "dead_letter"
	syncStatusSuffix = "sync_status"
)

// collection serializes writes of one record and remembers the newest version written.
type collection struct {
	key     string
	mu      sync.Mutex
	written uint64
}

// Adapter loads and saves the main queue, the dead-letter list and the sync
// timestamps. Loads never fail; saves are serialized per record and a save
// carrying a version older than the last one written is skipped.
type Adapter struct {
	store  store.KV
	logger logger.Logger

	queue      collection
	deadLetter collection
	syncStatus collection
}

// NewAdapter builds an adapter writing keys under prefix (DefaultKeyPrefix when empty).
func NewAdapter(kv store.KV, prefix string, log logger.Logger) *Adapter {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Adapter{
		store:      kv,
		logger:     log.With("component", "persistence"),
		queue:      collection{key: prefix + queueSuffix},
		deadLetter: collection{key: prefix + deadLetterSuffix},
		syncStatus: collection{key: prefix + syncStatusSuffix},
	}
}

// Keys returns the queue, dead-letter and sync-status keys.
func (a *Adapter) Keys() (queue, deadLetter, syncStatus string) {
	return a.queue.key, a.deadLetter.key, a.syncStatus.key
}

// LoadQueue returns the persisted main queue, or an empty slice when it is missing or unreadable.
func (a *Adapter) LoadQueue(ctx context.Context) []mutation.QueuedRequest {
	var records []requestRecord
	if !a.load(ctx, a.queue.key, &records) {
		return []mutation.QueuedRequest{}
	}

	items := make([]mutation.QueuedRequest, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for idx, record := range records {
		req, err := record.toRequest()
		if err != nil {
			a.logger.Warn("dropping unreadable queued request", "key", a.queue.key, "index", idx, "error", err)
			continue
		}
		if _, dup := seen[req.ID]; dup {
			a.logger.Warn("dropping duplicate queued request", "key", a.queue.key, "request_id", req.ID)
			continue
		}
		seen[req.ID] = struct{}{}
		items = append(items, req)
	}
	return items
}

// LoadDeadLetter returns the persisted dead-letter list, or an empty slice.
func (a *Adapter) LoadDeadLetter(ctx context.Context) []mutation.DeadLetterItem {
	var records []deadLetterRecord
	if !a.load(ctx, a.deadLetter.key, &records) {
		return []mutation.DeadLetterItem{}
	}

	items := make([]mutation.DeadLetterItem, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for idx, record := range records {
		item, err := record.toItem()
		if err != nil {
			a.logger.Warn("dropping unreadable dead-letter item", "key", a.deadLetter.key, "index", idx, "error", err)
			continue
		}
		if _, dup := seen[item.Request.ID]; dup {
			a.logger.Warn("dropping duplicate dead-letter item", "request_id", item.Request.ID)
			continue
		}
		seen[item.Request.ID] = struct{}{}
		items = append(items, item)
	}
	return items
}

// LoadSyncStatus returns the persisted sync timestamps, nil when never recorded.
func (a *Adapter) LoadSyncStatus(ctx context.Context) mutation.SyncStatus {
	var record syncStatusRecord
	if !a.load(ctx, a.syncStatus.key, &record) {
		return mutation.SyncStatus{}
	}
	return record.toStatus()
}

// SaveQueue writes the main queue snapshot taken at version.
func (a *Adapter) SaveQueue(ctx context.Context, version uint64, items []mutation.QueuedRequest) error {
	records := make([]requestRecord, 0, len(items))
	for _, item := range items {
		records = append(records, toRequestRecord(item))
	}
	return a.save(ctx, &a.queue, version, records)
}

// SaveDeadLetter writes the dead-letter snapshot taken at version.
func (a *Adapter) SaveDeadLetter(ctx context.Context, version uint64, items []mutation.DeadLetterItem) error {
	records := make([]deadLetterRecord, 0, len(items))
	for _, item := range items {
		records = append(records, toDeadLetterRecord(item))
	}
	return a.save(ctx, &a.deadLetter, version, records)
}

// SaveSyncStatus writes the sync timestamps taken at version.
func (a *Adapter) SaveSyncStatus(ctx context.Context, version uint64, status mutation.SyncStatus) error {
	return a.save(ctx, &a.syncStatus, version, toSyncStatusRecord(status))
}

func (a *Adapter) load(ctx context.Context, key string, out any) bool {
	raw, found, err := a.store.Get(ctx, key)
	if err != nil {
		a.logger.Warn("failed to read persisted state, starting empty", "key", key, "error", err)
		return false
	}
	if !found || len(raw) == 0 {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		a.logger.Warn("corrupt persisted state, starting empty", "key", key, "error", err)
		return false
	}
	return true
}

func (a *Adapter) save(ctx context.Context, c *collection, version uint64, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if version != 0 && version < c.written {
		a.logger.Debug("skipping stale snapshot", "key", c.key, "version", version, "written", c.written)
		return nil
	}
	if version > c.written {
		c.written = version
	}

	payload, err := json.Marshal(value)
	if err != nil {
		a.logger.Error("failed to encode snapshot", "key", c.key, "error", err)
		return fmt.Errorf("encode %s: %w", c.key, err)
	}
	if err := a.store.Set(ctx, c.key, payload); err != nil {
		a.logger.Error("failed to persist snapshot", "key", c.key, "error", err)
		return fmt.Errorf("persist %s: %w", c.key, err)
	}
	return nil
}
