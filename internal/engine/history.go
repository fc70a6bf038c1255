package engine

import (
	"sort"
	"sync"
	"time"

	"plantwatch/internal/model"
)

// History is the append-only, time-ordered record of successful ticks.
// Readers get copies; only Append mutates it.
type History struct {
	mu         sync.RWMutex
	samples    []model.Sample
	head       int
	maxSamples int
}

// NewHistory keeps every sample when maxSamples is zero.
func NewHistory(maxSamples int) *History {
	return &History{
		samples:    make([]model.Sample, 0, 1024),
		maxSamples: maxSamples,
	}
}

// Append stores s and returns it as stored. A timestamp earlier than the
// last sample is clamped forward so timestamps never decrease.
func (h *History) Append(s model.Sample) model.Sample {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	if n := len(h.samples); n > h.head {
		if last := h.samples[n-1].Timestamp; s.Timestamp.Before(last) {
			s.Timestamp = last
		}
	}
	h.samples = append(h.samples, s)
	if h.maxSamples > 0 && len(h.samples)-h.head > h.maxSamples {
		h.head = len(h.samples) - h.maxSamples
		if h.head*2 >= len(h.samples) {
			h.samples = append(make([]model.Sample, 0, cap(h.samples)), h.samples[h.head:]...)
			h.head = 0
		}
	}
	return s
}

// live returns the retained samples. Caller holds the lock.
func (h *History) live() []model.Sample {
	return h.samples[h.head:]
}

// Window returns the samples with from <= Timestamp <= to.
func (h *History) Window(from, to time.Time) []model.Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	live := h.live()
	lo := sort.Search(len(live), func(i int) bool { return !live[i].Timestamp.Before(from) })
	hi := sort.Search(len(live), func(i int) bool { return live[i].Timestamp.After(to) })
	if lo >= hi {
		return nil
	}
	out := make([]model.Sample, hi-lo)
	copy(out, live[lo:hi])
	return out
}

// Since returns samples at or after ts.
func (h *History) Since(ts time.Time) []model.Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	live := h.live()
	lo := sort.Search(len(live), func(i int) bool { return !live[i].Timestamp.Before(ts) })
	out := make([]model.Sample, len(live)-lo)
	copy(out, live[lo:])
	return out
}

func (h *History) Snapshot() []model.Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]model.Sample, len(h.live()))
	copy(out, h.live())
	return out
}

func (h *History) Last() (model.Sample, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	live := h.live()
	if len(live) == 0 {
		return model.Sample{}, false
	}
	return live[len(live)-1], true
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.live())
}
