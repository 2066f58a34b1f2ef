// ABOUTME: Tests for the rolling latency profile
// ABOUTME: Covers median estimates, prior fallback, clamping, and window trimming
package device

import (
	"math"
	"testing"
)

func floatsClose(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestProfilePriorBeforeMeasurement(t *testing.T) {
	p := NewProfile(0.22, 2.0, 5)
	if got := p.Estimate(); !floatsClose(got, 0.22) {
		t.Errorf("expected prior 0.22, got %f", got)
	}
	if p.Measured() {
		t.Error("profile should not count as measured before samples")
	}
}

func TestProfileMedianOddWindow(t *testing.T) {
	p := NewProfile(0.1, 2.0, 5)
	for _, s := range []float64{0.08, 0.5, 0.07} {
		p.AddSample(s)
	}
	if got := p.Estimate(); !floatsClose(got, 0.08) {
		t.Errorf("expected median 0.08, got %f", got)
	}
}

func TestProfileMedianEvenWindow(t *testing.T) {
	p := NewProfile(0.1, 2.0, 5)
	for _, s := range []float64{0.02, 0.04, 0.06, 0.08} {
		p.AddSample(s)
	}
	if got := p.Estimate(); !floatsClose(got, 0.05) {
		t.Errorf("expected median 0.05, got %f", got)
	}
}

func TestProfileWindowTrims(t *testing.T) {
	p := NewProfile(0.1, 2.0, 3)
	for _, s := range []float64{1.0, 1.0, 0.01, 0.02, 0.03} {
		p.AddSample(s)
	}
	// Only the trailing three samples should remain.
	if got := p.Estimate(); !floatsClose(got, 0.02) {
		t.Errorf("expected median 0.02 over trailing window, got %f", got)
	}
	st := p.Stats()
	if st.Samples != 3 {
		t.Errorf("expected 3 retained samples, got %d", st.Samples)
	}
	if !floatsClose(st.Min, 0.01) || !floatsClose(st.Max, 0.03) {
		t.Errorf("expected min 0.01 max 0.03, got %f %f", st.Min, st.Max)
	}
}

func TestProfileClampsSamples(t *testing.T) {
	p := NewProfile(0.1, 2.0, 5)
	if got := p.AddSample(-0.5); got != 0 {
		t.Errorf("expected negative sample clamped to 0, got %f", got)
	}
	if got := p.AddSample(9.0); !floatsClose(got, 2.0) {
		t.Errorf("expected oversized sample clamped to ceiling 2.0, got %f", got)
	}
	if got := p.Estimate(); got > 2.0 {
		t.Errorf("estimate exceeded ceiling: %f", got)
	}
}

func TestProfileSetCalibration(t *testing.T) {
	p := NewProfile(0.1, 2.0, 5)
	p.AddSample(1.5)
	p.SetCalibration(0.08)
	if got := p.Estimate(); !floatsClose(got, 0.08) {
		t.Errorf("expected calibrated estimate 0.08, got %f", got)
	}
	if st := p.Stats(); st.Samples != 1 {
		t.Errorf("expected calibration to reset the window, got %d samples", st.Samples)
	}
}

func TestProfileQuality(t *testing.T) {
	p := NewProfile(0.1, 2.0, 5)

	if got := p.QualityWithFailures(0); got != QualityDegraded {
		t.Errorf("unmeasured profile should be degraded, got %v", got)
	}

	p.AddSample(0.05)
	tests := []struct {
		failures int
		want     Quality
	}{
		{0, QualityGood},
		{1, QualityDegraded},
		{2, QualityDegraded},
		{3, QualityLost},
		{7, QualityLost},
	}
	for _, tt := range tests {
		if got := p.QualityWithFailures(tt.failures); got != tt.want {
			t.Errorf("failures=%d: expected %v, got %v", tt.failures, tt.want, got)
		}
	}
}

func TestPriorFor(t *testing.T) {
	if got := PriorFor(nil, ClassBluetooth); !floatsClose(got, 0.22) {
		t.Errorf("expected default bluetooth prior 0.22, got %f", got)
	}
	custom := map[Class]float64{ClassCast: 0.095}
	if got := PriorFor(custom, ClassCast); !floatsClose(got, 0.095) {
		t.Errorf("expected custom cast prior 0.095, got %f", got)
	}
	if got := PriorFor(custom, Class("toaster")); !floatsClose(got, DefaultPriors[ClassWeb]) {
		t.Errorf("expected web fallback for unknown class, got %f", got)
	}
}
