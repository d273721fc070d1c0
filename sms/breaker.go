package sms

import (
	"sync"
	"time"
)

const (
	BreakerStateClosed = "closed"
	BreakerStateOpen   = "open"
)

type breakerSample struct {
	at      time.Time
	success bool
}

// Breaker is a sliding-window error-rate circuit breaker around the messaging
// provider. When the recent error rate crosses the threshold it opens, calls
// fail fast, and the queue's backoff spaces out the retries instead of
// hammering a provider that is already down. After the cooldown the breaker
// closes and the next attempts re-measure the provider.
type Breaker struct {
	mu sync.Mutex

	window     time.Duration
	minSamples int
	threshold  float64
	cooldown   time.Duration

	samples  []breakerSample
	open     bool
	openedAt time.Time
}

func NewBreaker() *Breaker {
	return &Breaker{
		window:     2 * time.Minute,
		minSamples: 10,
		threshold:  0.5,
		cooldown:   30 * time.Second,
	}
}

// Allow reports whether a call may proceed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return true
	}
	if time.Since(b.openedAt) < b.cooldown {
		return false
	}
	// Cooldown over; close and let fresh samples decide again.
	b.open = false
	b.samples = nil
	return true
}

// Record feeds one call outcome into the window.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.samples = append(b.samples, breakerSample{at: now, success: success})
	b.prune(now)

	if b.open || len(b.samples) < b.minSamples {
		return
	}
	failures := 0
	for _, s := range b.samples {
		if !s.success {
			failures++
		}
	}
	if float64(failures)/float64(len(b.samples)) >= b.threshold {
		b.open = true
		b.openedAt = now
	}
}

func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open && time.Since(b.openedAt) < b.cooldown {
		return BreakerStateOpen
	}
	return BreakerStateClosed
}

func (b *Breaker) prune(now time.Time) {
	cutoff := now.Add(-b.window)
	kept := b.samples[:0]
	for _, s := range b.samples {
		if s.at.After(cutoff) {
			kept = append(kept, s)
		}
	}
	b.samples = kept
}
