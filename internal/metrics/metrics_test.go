package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"plantwatch/internal/model"
)

func TestRegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register should be tolerated: %v", err)
	}
}

func TestCollectors(t *testing.T) {
	before := testutil.ToFloat64(ticksTotal.WithLabelValues(OutcomeError))
	ObserveTick(0, errors.New("boom"))
	if got := testutil.ToFloat64(ticksTotal.WithLabelValues(OutcomeError)); got != before+1 {
		t.Fatalf("expected error tick counter %v, got %v", before+1, got)
	}

	SetVegetation(41.5, 40.25)
	if got := testutil.ToFloat64(vegetationPercent.WithLabelValues("smoothed")); got != 40.25 {
		t.Fatalf("expected smoothed gauge 40.25, got %v", got)
	}

	before = testutil.ToFloat64(alertsTotal.WithLabelValues("sustained_low"))
	IncAlert("sustained_low")
	if got := testutil.ToFloat64(alertsTotal.WithLabelValues("sustained_low")); got != before+1 {
		t.Fatalf("alert counter not incremented")
	}

	before = testutil.ToFloat64(publishDroppedTotal)
	IncPublishDropped()
	if got := testutil.ToFloat64(publishDroppedTotal); got != before+1 {
		t.Fatalf("dropped counter not incremented")
	}
}

func TestStoreTracksTicksAndFailures(t *testing.T) {
	s := NewStore(2)
	s.Update("camera:1", model.Status{GreenPercentage: 42})
	s.Update("camera:1", model.Status{GreenPercentage: 43})
	s.Fail("camera:1", errors.New("read timed out"))

	st, ok := s.Get("camera:1")
	if !ok {
		t.Fatalf("expected status")
	}
	if st.Ticks != 2 || st.FailedTicks != 1 || st.Status.GreenPercentage != 43 {
		t.Fatalf("unexpected status %+v", st)
	}
	if st.LastError != "read timed out" {
		t.Fatalf("unexpected last error %q", st.LastError)
	}

	s.Update("b", model.Status{})
	s.Update("c", model.Status{})
	if len(s.GetAll()) != 2 {
		t.Fatalf("expected eviction down to limit, got %d", len(s.GetAll()))
	}
	s.Clear()
	if len(s.GetAll()) != 0 {
		t.Fatalf("expected empty store")
	}
}
