package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// SendQueueDirectProcessing controls the DB-polling safety-net worker.
// Default on: Pub/Sub delivery/permissions can be misconfigured and jobs must
// not sit in the queue forever. Disable explicitly with SEND_QUEUE_DIRECT_PROCESSING=false.
func SendQueueDirectProcessing() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("SEND_QUEUE_DIRECT_PROCESSING")))
	if v == "false" || v == "0" || v == "no" {
		return false
	}
	return true
}

// SendDispatchDelay is how long an eligible transaction waits before dispatch.
// Batches near-simultaneous purchases and gives the POS time to settle order state.
//
// Set via env:
// - SEND_DISPATCH_DELAY_SECONDS (default 30)
func SendDispatchDelay() time.Duration {
	if v := strings.TrimSpace(os.Getenv("SEND_DISPATCH_DELAY_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return time.Duration(n) * time.Second
		}
	}
	return 30 * time.Second
}

// ContactDedupWindow is the rolling window during which a customer phone is
// not contacted again by the same account.
//
// Set via env:
// - CONTACT_DEDUP_WINDOW_DAYS (default 30)
func ContactDedupWindow() time.Duration {
	if v := strings.TrimSpace(os.Getenv("CONTACT_DEDUP_WINDOW_DAYS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * 24 * time.Hour
		}
	}
	return 30 * 24 * time.Hour
}
