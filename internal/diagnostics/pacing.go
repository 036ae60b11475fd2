// Package diagnostics records when each producer delivers a reading and
// reports how closely the intervals track the target frequency.
package diagnostics

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/sensor.display/internal/monitoring"
)

// DefaultMaxSamples bounds the intervals kept per producer.
const DefaultMaxSamples = 10000

// PacingRecorder collects inter-reading intervals per producer. Record
// matches the producer OnReading hook, so a recorder can be wired into every
// producer directly.
type PacingRecorder struct {
	mu         sync.Mutex
	maxSamples int
	order      []string
	targets    map[string]float64
	last       map[string]time.Time
	intervals  map[string][]float64 // seconds
	readings   map[string]int
}

// NewPacingRecorder creates a recorder keeping at most maxSamples intervals
// per producer (the oldest are discarded). Non-positive means
// DefaultMaxSamples.
func NewPacingRecorder(maxSamples int) *PacingRecorder {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &PacingRecorder{
		maxSamples: maxSamples,
		targets:    make(map[string]float64),
		last:       make(map[string]time.Time),
		intervals:  make(map[string][]float64),
		readings:   make(map[string]int),
	}
}

// SetTarget registers a producer and its target frequency.
func (r *PacingRecorder) SetTarget(name string, frequencyHz float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.register(name)
	r.targets[name] = frequencyHz
}

func (r *PacingRecorder) register(name string) {
	if _, ok := r.readings[name]; !ok {
		r.readings[name] = 0
		r.order = append(r.order, name)
	}
}

// Record notes that name produced a reading at at.
func (r *PacingRecorder) Record(name string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.register(name)
	r.readings[name]++
	if prev, ok := r.last[name]; ok {
		iv := r.intervals[name]
		if len(iv) >= r.maxSamples {
			copy(iv, iv[1:])
			iv = iv[:len(iv)-1]
		}
		r.intervals[name] = append(iv, at.Sub(prev).Seconds())
	}
	r.last[name] = at
}

// Summary describes one producer's pacing.
type Summary struct {
	Name         string
	Readings     int
	TargetHz     float64 // 0 when unknown
	MeanInterval time.Duration
	StdDev       time.Duration
	P95          time.Duration
	RateHz       float64 // 1 / mean interval
}

// Summaries returns one Summary per producer, in registration order.
// Producers with fewer than two readings report zero interval statistics.
func (r *PacingRecorder) Summaries() []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Summary, 0, len(r.order))
	for _, name := range r.order {
		s := Summary{Name: name, Readings: r.readings[name], TargetHz: r.targets[name]}
		if iv := r.intervals[name]; len(iv) > 0 {
			mean, std := stat.MeanStdDev(iv, nil)
			if len(iv) == 1 {
				std = 0
			}
			sorted := append([]float64(nil), iv...)
			sort.Float64s(sorted)
			p95 := stat.Quantile(0.95, stat.Empirical, sorted, nil)

			s.MeanInterval = seconds(mean)
			s.StdDev = seconds(std)
			s.P95 = seconds(p95)
			if mean > 0 {
				s.RateHz = 1 / mean
			}
		}
		out = append(out, s)
	}
	return out
}

// intervalsOf returns a copy of the recorded intervals for name.
func (r *PacingRecorder) intervalsOf(name string) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.intervals[name]...)
}

// LogSummary writes one line per producer to the diagnostics log.
func (r *PacingRecorder) LogSummary() {
	logger := monitoring.For("Diagnostics")
	for _, s := range r.Summaries() {
		if s.Readings < 2 {
			logger.Infof("%s: %d readings, not enough for interval statistics", s.Name, s.Readings)
			continue
		}
		logger.Infof("%s: %d readings, %.2f Hz (target %.2f Hz), interval mean=%v stddev=%v p95=%v",
			s.Name, s.Readings, s.RateHz, s.TargetHz, s.MeanInterval, s.StdDev, s.P95)
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
