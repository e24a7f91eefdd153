// Package history keeps the newest-first record of completed generations.
package history

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"vaultx/internal/domain"
	"vaultx/internal/infra"
	"vaultx/internal/notify"
)

// Store is an in-memory, append-only, newest-first sequence of results.
// Persistence is handled by the caller through Serialize and Load.
type Store struct {
	mu     sync.RWMutex
	items  []domain.GenerationResult
	hub    notify.Hub[[]domain.GenerationResult]
	logger *infra.Logger
}

func NewStore(logger *infra.Logger) *Store {
	return &Store{logger: infra.LoggerOrDiscard(logger)}
}

// Append inserts r at the front.
func (s *Store) Append(r domain.GenerationResult) {
	s.mu.Lock()
	s.items = append([]domain.GenerationResult{r}, s.items...)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	s.hub.Publish(snapshot)
}

// All returns a copy of the results, newest first.
func (s *Store) All() []domain.GenerationResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Get looks a result up by id.
func (s *Store) Get(id string) (domain.GenerationResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.items {
		if r.ID == id {
			return r, true
		}
	}
	return domain.GenerationResult{}, false
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Subscribe registers fn for every change to the sequence.
func (s *Store) Subscribe(fn func([]domain.GenerationResult)) func() {
	return s.hub.Subscribe(fn)
}

func (s *Store) snapshotLocked() []domain.GenerationResult {
	out := make([]domain.GenerationResult, len(s.items))
	copy(out, s.items)
	return out
}

type record struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Prompt      string `json:"prompt"`
	StyleID     string `json:"styleId"`
	Timestamp   int64  `json:"timestamp"`
	AspectRatio string `json:"aspectRatio"`
	Kind        string `json:"kind,omitempty"`
}

// Serialize encodes the sequence as a JSON array, newest first.
func (s *Store) Serialize() (string, error) {
	return Encode(s.All())
}

// Encode writes results in the persisted blob format.
func Encode(items []domain.GenerationResult) (string, error) {
	records := make([]record, 0, len(items))
	for _, r := range items {
		records = append(records, record{
			ID:          r.ID,
			URL:         r.MediaURL,
			Prompt:      r.DisplayPrompt,
			StyleID:     r.StyleID,
			Timestamp:   r.CreatedAt.UnixMilli(),
			AspectRatio: string(r.AspectRatio),
			Kind:        string(r.MediaKind),
		})
	}
	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("history: encode: %w", err)
	}
	return string(data), nil
}

// Load replaces the sequence with the decoded blob. Malformed input is logged
// and leaves the store untouched; the returned error wraps
// domain.ErrPersistenceCorrupt so callers may ignore it.
func (s *Store) Load(serialized string) error {
	if serialized == "" {
		return nil
	}
	var records []record
	if err := json.Unmarshal([]byte(serialized), &records); err != nil {
		s.logger.Error().Err(err).Msg("history: discarding malformed stored history")
		return fmt.Errorf("history: decode: %w: %w", domain.ErrPersistenceCorrupt, err)
	}

	items := make([]domain.GenerationResult, 0, len(records))
	for _, rec := range records {
		kind := domain.MediaKind(rec.Kind)
		if kind == "" {
			kind = domain.MediaKindImage
			if rec.StyleID == domain.StyleIDVideo {
				kind = domain.MediaKindVideo
			}
		}
		items = append(items, domain.GenerationResult{
			ID:            rec.ID,
			MediaURL:      rec.URL,
			DisplayPrompt: rec.Prompt,
			StyleID:       rec.StyleID,
			CreatedAt:     time.UnixMilli(rec.Timestamp).UTC(),
			AspectRatio:   domain.AspectRatio(rec.AspectRatio),
			MediaKind:     kind,
		})
	}

	s.mu.Lock()
	s.items = items
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	s.hub.Publish(snapshot)
	return nil
}
