package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps predictions in process memory
type MemoryStore struct {
	mu          sync.RWMutex
	predictions map[string]Prediction
	order       []string // insertion order
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		predictions: make(map[string]Prediction),
	}
}

// Save stores a prediction; ids must be unique
func (s *MemoryStore) Save(_ context.Context, p Prediction) error {
	if p.ID == "" {
		return fmt.Errorf("prediction id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.predictions[p.ID]; exists {
		return fmt.Errorf("prediction %s already exists", p.ID)
	}
	s.predictions[p.ID] = p
	s.order = append(s.order, p.ID)
	return nil
}

// Get returns a prediction by id
func (s *MemoryStore) Get(_ context.Context, id string) (Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.predictions[id]
	if !ok {
		return Prediction{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, nil
}

// List returns up to limit predictions, newest first
func (s *MemoryStore) List(_ context.Context, limit int) ([]Prediction, error) {
	limit = clampLimit(limit)

	s.mu.RLock()
	out := make([]Prediction, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.predictions[id])
	}
	s.mu.RUnlock()

	// Newest first; insertion order breaks timestamp ties
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Stats counts stored predictions and anomalies
func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	for _, p := range s.predictions {
		st.Predictions++
		st.Anomalies += int64(p.AnomalyCount)
	}
	return st, nil
}

// Close is a no-op
func (s *MemoryStore) Close() {}
