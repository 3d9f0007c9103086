package publisher

import (
	"math/rand/v2"
	"sync"
)

// Sampler thins out high-volume operations events. Compliance and security
// events are never sampled.
type Sampler struct {
	mu          sync.RWMutex
	defaultRate float64
	byAction    map[string]float64
	draw        func() float64
}

// NewSampler keeps each operations event with probability rate, clamped to [0, 1].
func NewSampler(rate float64) *Sampler {
	return &Sampler{
		defaultRate: clampRate(rate),
		byAction:    make(map[string]float64),
		draw:        rand.Float64, //nolint:gosec // sampling does not need crypto rand
	}
}

// SetRate overrides the rate for one action.
func (s *Sampler) SetRate(action string, rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byAction[action] = clampRate(rate)
}

// Keep reports whether an event with action should be delivered.
func (s *Sampler) Keep(action string) bool {
	s.mu.RLock()
	rate, ok := s.byAction[action]
	if !ok {
		rate = s.defaultRate
	}
	s.mu.RUnlock()

	switch {
	case rate >= 1:
		return true
	case rate <= 0:
		return false
	}
	return s.draw() < rate
}

func clampRate(rate float64) float64 {
	return min(max(rate, 0), 1)
}
