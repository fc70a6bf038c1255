package alerts

import (
	"sync"
	"time"

	"plantwatch/internal/model"
)

// Store is a bounded in-memory ring of recent alerts.
type Store struct {
	mu     sync.RWMutex
	buf    []model.Alert
	start  int
	limit  int
	counts map[model.AlertKind]uint64
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1000
	}
	return &Store{limit: limit, counts: make(map[model.AlertKind]uint64)}
}

func (s *Store) Add(alert model.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[alert.Kind]++
	if len(s.buf) < s.limit {
		s.buf = append(s.buf, alert)
		return
	}
	s.buf[s.start] = alert
	s.start = (s.start + 1) % s.limit
}

// at returns the i-th oldest alert. Caller holds the lock.
func (s *Store) at(i int) model.Alert {
	return s.buf[(s.start+i)%len(s.buf)]
}

// List returns up to limit of the newest alerts, oldest first.
func (s *Store) List(limit int) []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.buf)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]model.Alert, 0, limit)
	for i := n - limit; i < n; i++ {
		out = append(out, s.at(i))
	}
	return out
}

func (s *Store) Since(ts time.Time) []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Alert, 0)
	for i := 0; i < len(s.buf); i++ {
		if a := s.at(i); !a.Timestamp.Before(ts) {
			out = append(out, a)
		}
	}
	return out
}

// Counts reports how many alerts of each kind were ever added, including evicted ones.
func (s *Store) Counts() map[model.AlertKind]uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[model.AlertKind]uint64, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
	s.start = 0
	s.counts = make(map[model.AlertKind]uint64)
}
