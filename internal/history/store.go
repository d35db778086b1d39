// Package history provides the durable, append-only log of resolved
// actions and terminal task outcomes.
package history

import (
	"context"
	"sync"
	"time"
)

// RecordStatus is the outcome recorded for an action or task.
type RecordStatus string

const (
	StatusApproved RecordStatus = "approved"
	StatusRejected RecordStatus = "rejected"
	StatusSuccess  RecordStatus = "success"
	StatusFailed   RecordStatus = "failed"
)

// TaskActionType marks records written for a terminal task outcome
// rather than an individual action.
const TaskActionType = "task"

// ActionRecord is one history entry. Records are append-only; there are
// no in-place edits.
type ActionRecord struct {
	TaskID      string        `json:"plan_id"`
	ActionType  string        `json:"action_type"`
	Description string        `json:"description,omitempty"`
	Status      RecordStatus  `json:"status"`
	Timestamp   time.Time     `json:"timestamp"`
	Duration    time.Duration `json:"duration,omitempty"`
}

// Store is the persistence interface for action records.
type Store interface {
	Append(ctx context.Context, rec ActionRecord) error
	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]ActionRecord, error)
	Close() error
}

// MemStore is an in-memory Store, used in tests and when no history
// path is configured.
type MemStore struct {
	mu   sync.Mutex
	recs []ActionRecord
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) Append(_ context.Context, rec ActionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func (s *MemStore) Recent(_ context.Context, limit int) ([]ActionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.recs)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]ActionRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.recs[i])
	}
	return out, nil
}

func (s *MemStore) Close() error { return nil }

// All returns every record in append order. Test helper.
func (s *MemStore) All() []ActionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ActionRecord, len(s.recs))
	copy(out, s.recs)
	return out
}
