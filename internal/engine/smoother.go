package engine

import (
	"sort"
	"sync"
)

// Smoother is a fixed-capacity FIFO of raw readings reporting their median.
type Smoother struct {
	mu       sync.Mutex
	values   []float64
	head     int
	capacity int
}

func NewSmoother(capacity int) *Smoother {
	if capacity < 1 {
		capacity = 1
	}
	return &Smoother{values: make([]float64, 0, capacity), capacity: capacity}
}

// Push adds raw, evicting the oldest reading when full, and returns the
// median of the buffer. Even lengths average the two middle values.
func (s *Smoother) Push(raw float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) < s.capacity {
		s.values = append(s.values, raw)
	} else {
		s.values[s.head] = raw
		s.head = (s.head + 1) % s.capacity
	}
	if len(s.values) == 1 {
		return raw
	}
	sorted := make([]float64, len(s.values))
	copy(sorted, s.values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func (s *Smoother) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}

func (s *Smoother) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = s.values[:0]
	s.head = 0
}
