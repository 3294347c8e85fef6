// Package ratelimit implements KIS gateway quota tracking and request gating.
// It monitors the X-RateLimit-Remaining and X-RateLimit-Reset headers to keep
// the app key inside its request quota; draining the quota gets the key
// suspended by the gateway.
package ratelimit

import (
	"time"
)

// Redis keys for quota state storage.
const (
	RedisKeyQuotaRemaining = "kis:quota:remaining"
	RedisKeyResetTimestamp = "kis:quota:reset_timestamp"
	RedisKeyLastUpdate     = "kis:quota:last_update"
)

// Thresholds for quota decisions.
const (
	// QuotaThresholdCritical blocks all requests when the remaining quota
	// falls below this value. This keeps a safety margin so the app key is
	// never suspended.
	QuotaThresholdCritical = 3

	// QuotaThresholdWarning applies throttling when the remaining quota
	// falls below this value. This slows the request rate until the
	// window resets.
	QuotaThresholdWarning = 10

	// QuotaThresholdHealthy indicates normal operation.
	// When the remaining quota is at or above this value, no restrictions apply.
	QuotaThresholdHealthy = 25
)

// QuotaState represents the current KIS request quota state.
// This state is shared across all client instances via Redis.
type QuotaState struct {
	// Remaining is the number of requests left in the current quota window.
	// Extracted from the X-RateLimit-Remaining header.
	Remaining int `json:"remaining"`

	// ResetAt is the timestamp when the quota window resets.
	// Calculated from the X-RateLimit-Reset header (seconds until reset).
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is the timestamp when this state was last updated.
	// Used to detect stale state and determine if data should be refreshed.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy indicates whether the quota is in a healthy state.
	// True when Remaining >= QuotaThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state data is older than the given duration.
// Stale state should be refreshed from Redis or gateway headers.
func (s *QuotaState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if requests should be blocked because the
// quota safety margin is reached.
func (s *QuotaState) NeedsCriticalBlock() bool {
	return s.Remaining < QuotaThresholdCritical
}

// NeedsThrottling returns true if requests should be throttled due to the
// warning threshold.
func (s *QuotaState) NeedsThrottling() bool {
	return s.Remaining < QuotaThresholdWarning && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until the quota window resets.
// Returns 0 if the reset time has already passed.
func (s *QuotaState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates the IsHealthy field based on the current Remaining value.
func (s *QuotaState) UpdateHealth() {
	s.IsHealthy = s.Remaining >= QuotaThresholdHealthy
}
