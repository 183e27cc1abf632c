package service

import (
	"math"
	"time"

	"chargeway/backend/services/charging-service/internal/battery"
)

// DefaultPerPercentInterval is the simulated time to charge one percent.
const DefaultPerPercentInterval = 30 * time.Second

// ChargingDurationMs is the simulated time to go from start percent to full.
func ChargingDurationMs(startPercent int, perPercent time.Duration) int64 {
	if perPercent <= 0 {
		perPercent = DefaultPerPercentInterval
	}
	return int64(100-battery.Clamp(startPercent)) * perPercent.Milliseconds()
}

// Progress derives the charge progress from wall-clock time, so it is the same for
// every reader regardless of when it was last persisted.
func Progress(startedAt *time.Time, durationMs int64, now time.Time) int {
	if startedAt == nil {
		return 0
	}
	if durationMs <= 0 {
		return 100
	}
	elapsed := now.Sub(*startedAt).Milliseconds()
	if elapsed <= 0 {
		return 0
	}
	return battery.Clamp(int(math.Round(100 * float64(elapsed) / float64(durationMs))))
}

// EstimatedCompletion is startedAt plus the session duration.
func EstimatedCompletion(startedAt *time.Time, durationMs int64) *time.Time {
	if startedAt == nil {
		return nil
	}
	ts := startedAt.Add(time.Duration(durationMs) * time.Millisecond)
	return &ts
}
