package audit

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// InMemoryStore is a slice-backed Store used by tests and the zero-config dev
// mode.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []*Record
}

// NewInMemoryStore creates an empty in-memory audit store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Save(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *rec
	s.records = append(s.records, &copied)
	return nil
}

// Len returns the number of stored records.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *InMemoryStore) Query(_ context.Context, f Filter) (*Page, error) {
	f = f.Normalize()

	s.mu.RLock()
	matched := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		if matches(rec, f) {
			copied := *rec
			matched = append(matched, &copied)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].InitiatedAt.After(matched[j].InitiatedAt)
	})

	total := len(matched)
	start := (f.Page - 1) * f.Size
	if start > total {
		start = total
	}
	end := start + f.Size
	if end > total {
		end = total
	}

	return NewPage(matched[start:end], f, total), nil
}

func matches(rec *Record, f Filter) bool {
	if f.ActorEmail != "" && !containsFold(rec.ActorEmail, f.ActorEmail) {
		return false
	}
	if f.ActorName != "" && !containsFold(rec.ActorName, f.ActorName) {
		return false
	}
	if f.Action != "" && rec.Action != f.Action {
		return false
	}
	if f.Resource != "" && rec.Resource != f.Resource {
		return false
	}
	if f.Status != "" && rec.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && rec.InitiatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && rec.InitiatedAt.After(f.To) {
		return false
	}
	if f.Search != "" && !containsFold(rec.Description, f.Search) {
		return false
	}
	return true
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
