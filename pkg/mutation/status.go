package mutation

import "time"

// DeadLetterItem is a request that exhausted its retry budget.
type DeadLetterItem struct {
	Request   QueuedRequest
	FailedAt  time.Time
	LastError string
}

// Clone returns a deep copy of the item.
func (d DeadLetterItem) Clone() DeadLetterItem {
	d.Request = d.Request.Clone()
	return d
}

// SyncStatus holds the two persisted sync timestamps. Nil means "never".
type SyncStatus struct {
	LastSyncAttempt    *time.Time
	LastSuccessfulSync *time.Time
}

// QueueStatus is a read-only snapshot derived from engine state.
type QueueStatus struct {
	Pending            int        `json:"pending"`
	Processing         bool       `json:"processing"`
	LastSyncAttempt    *time.Time `json:"lastSyncAttempt"`
	LastSuccessfulSync *time.Time `json:"lastSuccessfulSync"`
	DeadLetterCount    int        `json:"deadLetterCount"`
}

// TimePtr returns a pointer to a copy of t.
func TimePtr(t time.Time) *time.Time {
	return &t
}

// CopyTime returns an independent copy of a nullable timestamp.
func CopyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
