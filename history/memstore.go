package history

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/petal-labs/mcpchat/core"
)

// MemStore is a thread-safe in-memory transcript store.
type MemStore struct {
	mu      sync.RWMutex
	entries map[string][]Entry // sessionID -> entries
	now     func() time.Time
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		entries: make(map[string][]Entry),
		now:     time.Now,
	}
}

func (s *MemStore) Record(ctx context.Context, sessionID string, messages []core.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	at := s.now().UTC()
	existing := s.entries[sessionID]
	for _, msg := range messages {
		existing = append(existing, Entry{
			SessionID: sessionID,
			Seq:       len(existing) + 1,
			Time:      at,
			Message:   msg,
		})
	}
	s.entries[sessionID] = existing
	return nil
}

func (s *MemStore) Sessions(_ context.Context, limit int) ([]SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]SessionSummary, 0, len(s.entries))
	for id, entries := range s.entries {
		if len(entries) == 0 {
			continue
		}
		summaries = append(summaries, SessionSummary{
			ID:       id,
			Started:  entries[0].Time,
			Updated:  entries[len(entries)-1].Time,
			Messages: len(entries),
		})
	}
	sortSummaries(summaries)
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

func (s *MemStore) Transcript(_ context.Context, sessionID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.entries[sessionID]
	if len(entries) == 0 {
		return nil, ErrSessionNotFound
	}
	return slices.Clone(entries), nil
}

func (s *MemStore) Close() error { return nil }

// sortSummaries orders by last update, newest first, then by ID.
func sortSummaries(summaries []SessionSummary) {
	slices.SortFunc(summaries, func(a, b SessionSummary) int {
		if c := b.Updated.Compare(a.Updated); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// Compile-time interface check.
var _ Store = (*MemStore)(nil)
