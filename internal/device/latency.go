// ABOUTME: Rolling latency profile per device with class priors as fallback
// ABOUTME: Median over a trailing sample window; estimates clamped to a sane ceiling
package device

import (
	"sort"
	"sync"
)

// Quality grades how trustworthy a device's latency estimate is right now.
type Quality int

const (
	QualityGood     Quality = iota // measured recently, no failures
	QualityDegraded                // running on the class prior, or recent failures
	QualityLost                    // repeated consecutive failures
)

func (q Quality) String() string {
	switch q {
	case QualityGood:
		return "good"
	case QualityDegraded:
		return "degraded"
	case QualityLost:
		return "lost"
	default:
		return "unknown"
	}
}

// lostAfterFailures is the consecutive-failure count at which quality drops
// to lost. Eviction itself is the registry owner's call.
const lostAfterFailures = 3

// Default profile bounds.
const (
	DefaultWindowSize = 5
	DefaultCeiling    = 2.0 // seconds
)

// DefaultPriors maps each device class to its assumed latency in seconds,
// used until the first successful measurement.
var DefaultPriors = map[Class]float64{
	ClassCast:      0.08,
	ClassBluetooth: 0.22,
	ClassWeb:       0.02,
	ClassMobile:    0.12,
}

// PriorFor returns the configured prior for a class, falling back to the
// web prior for anything unknown.
func PriorFor(priors map[Class]float64, class Class) float64 {
	if priors == nil {
		priors = DefaultPriors
	}
	if p, ok := priors[class]; ok {
		return p
	}
	return DefaultPriors[ClassWeb]
}

// Profile is a rolling window of latency samples for one device. The median
// of the window is the current estimate; before any sample lands, the class
// prior stands in.
type Profile struct {
	mu      sync.RWMutex
	prior   float64
	ceiling float64
	size    int
	samples []float64 // trailing window, oldest first
}

// NewProfile creates a profile seeded with the class prior. Non-positive
// size and ceiling fall back to the defaults.
func NewProfile(prior, ceiling float64, size int) *Profile {
	if size < 1 {
		size = DefaultWindowSize
	}
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	if prior < 0 {
		prior = 0
	}
	if prior > ceiling {
		prior = ceiling
	}
	return &Profile{prior: prior, ceiling: ceiling, size: size}
}

// AddSample appends a measurement to the window, clamping it into
// [0, ceiling]. It returns the stored value so callers can log clamped
// outliers.
func (p *Profile) AddSample(s float64) float64 {
	if s < 0 {
		s = 0
	}
	if s > p.ceiling {
		s = p.ceiling
	}
	p.mu.Lock()
	p.samples = append(p.samples, s)
	if len(p.samples) > p.size {
		p.samples = p.samples[len(p.samples)-p.size:]
	}
	p.mu.Unlock()
	return s
}

// SetCalibration replaces the window with one calibrated value, as produced
// by registration probing.
func (p *Profile) SetCalibration(estimate float64) {
	if estimate < 0 {
		estimate = 0
	}
	if estimate > p.ceiling {
		estimate = p.ceiling
	}
	p.mu.Lock()
	p.samples = append(p.samples[:0], estimate)
	p.mu.Unlock()
}

// Estimate returns the median of the sample window, or the class prior when
// nothing has been measured yet.
func (p *Profile) Estimate() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.samples) == 0 {
		return p.prior
	}
	return median(p.samples)
}

// Measured reports whether at least one real sample has landed.
func (p *Profile) Measured() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.samples) > 0
}

// Stats summarizes the current window.
type Stats struct {
	Min      float64
	Median   float64
	Max      float64
	Samples  int
	Measured bool
}

// Stats returns min/median/max over the trailing window. An unmeasured
// profile reports the prior in all three positions.
func (p *Profile) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.samples) == 0 {
		return Stats{Min: p.prior, Median: p.prior, Max: p.prior}
	}
	st := Stats{
		Min:      p.samples[0],
		Max:      p.samples[0],
		Median:   median(p.samples),
		Samples:  len(p.samples),
		Measured: true,
	}
	for _, s := range p.samples[1:] {
		if s < st.Min {
			st.Min = s
		}
		if s > st.Max {
			st.Max = s
		}
	}
	return st
}

// QualityWithFailures grades the profile given the device's consecutive
// failure count.
func (p *Profile) QualityWithFailures(failures int) Quality {
	switch {
	case failures >= lostAfterFailures:
		return QualityLost
	case failures > 0 || !p.Measured():
		return QualityDegraded
	default:
		return QualityGood
	}
}

// median returns the middle value of xs; for even counts, the mean of the
// two middle values. xs must be non-empty.
func median(xs []float64) float64 {
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
