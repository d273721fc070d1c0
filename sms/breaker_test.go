package sms

import (
	"testing"
	"time"
)

func testBreaker() *Breaker {
	return &Breaker{
		window:     time.Minute,
		minSamples: 4,
		threshold:  0.5,
		cooldown:   50 * time.Millisecond,
	}
}

func TestBreakerStaysClosedUnderMinSamples(t *testing.T) {
	b := testBreaker()
	for i := 0; i < 3; i++ {
		b.Record(false)
	}
	if !b.Allow() || b.State() != BreakerStateClosed {
		t.Fatal("breaker must not open before reaching the sample floor")
	}
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := testBreaker()
	b.Record(true)
	b.Record(false)
	b.Record(false)
	b.Record(false)
	if b.Allow() {
		t.Fatal("breaker should be open at 75% error rate")
	}
	if b.State() != BreakerStateOpen {
		t.Fatalf("expected open state, got %s", b.State())
	}
}

func TestBreakerClosesAfterCooldown(t *testing.T) {
	b := testBreaker()
	for i := 0; i < 4; i++ {
		b.Record(false)
	}
	if b.Allow() {
		t.Fatal("breaker should be open")
	}
	time.Sleep(60 * time.Millisecond)
	if !b.Allow() {
		t.Fatal("breaker should allow calls again after cooldown")
	}
	if b.State() != BreakerStateClosed {
		t.Fatalf("expected closed after cooldown, got %s", b.State())
	}
}

func TestBreakerSuccessesKeepItClosed(t *testing.T) {
	b := testBreaker()
	for i := 0; i < 10; i++ {
		b.Record(true)
	}
	b.Record(false)
	if !b.Allow() {
		t.Fatal("one failure among many successes must not open the breaker")
	}
}
