package metrics

import (
	"sync"
	"time"

	"plantwatch/internal/model"
)

// Store keeps the latest status per frame source plus tick bookkeeping,
// served by the status endpoint.
type Store struct {
	mu       sync.RWMutex
	bySource map[string]SourceStatus
	limit    int
}

type SourceStatus struct {
	Status      model.Status `json:"status"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Ticks       uint64       `json:"ticks"`
	FailedTicks uint64       `json:"failed_ticks"`
	LastError   string       `json:"last_error,omitempty"`
	LastErrorAt time.Time    `json:"last_error_at,omitempty"`
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 64
	}
	return &Store{
		bySource: make(map[string]SourceStatus),
		limit:    limit,
	}
}

func (s *Store) Update(source string, st model.Status) {
	if source == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.bySource[source]
	cur.Status = st
	cur.Ticks++
	cur.UpdatedAt = time.Now().UTC()
	s.bySource[source] = cur
	if len(s.bySource) > s.limit {
		s.evictOldest()
	}
}

func (s *Store) Fail(source string, err error) {
	if source == "" || err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.bySource[source]
	cur.FailedTicks++
	cur.LastError = err.Error()
	cur.LastErrorAt = time.Now().UTC()
	cur.UpdatedAt = cur.LastErrorAt
	s.bySource[source] = cur
	if len(s.bySource) > s.limit {
		s.evictOldest()
	}
}

func (s *Store) Get(source string) (SourceStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.bySource[source]
	return st, ok
}

func (s *Store) GetAll() map[string]SourceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]SourceStatus, len(s.bySource))
	for k, v := range s.bySource {
		out[k] = v
	}
	return out
}

func (s *Store) evictOldest() {
	var oldestSource string
	var oldest time.Time
	for source, st := range s.bySource {
		if oldestSource == "" || st.UpdatedAt.Before(oldest) {
			oldestSource = source
			oldest = st.UpdatedAt
		}
	}
	if oldestSource != "" {
		delete(s.bySource, oldestSource)
	}
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySource = make(map[string]SourceStatus)
}
