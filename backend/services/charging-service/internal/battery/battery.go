// Package battery models vehicle battery tiers and the passive drain applied to
// idle vehicles. Drain is computed lazily from timestamps; nothing here runs in
// the background.
package battery

import (
	"math"
	"time"
)

// Status is the coarse tier shown to users.
type Status string

const (
	StatusFull     Status = "FULL"
	StatusHigh     Status = "HIGH"
	StatusMedium   Status = "MEDIUM"
	StatusLow      Status = "LOW"
	StatusCritical Status = "CRITICAL"
)

const (
	// DefaultPercent is assumed for vehicles that never reported a level.
	DefaultPercent   = 100
	defaultDrainTick = 10 * time.Minute
	defaultDrainStep = 5
)

// Valid reports whether s is one of the known tiers.
func (s Status) Valid() bool {
	switch s {
	case StatusFull, StatusHigh, StatusMedium, StatusLow, StatusCritical:
		return true
	}
	return false
}

// Rank orders tiers from CRITICAL (0) to FULL (4).
func (s Status) Rank() int {
	switch s {
	case StatusFull:
		return 4
	case StatusHigh:
		return 3
	case StatusMedium:
		return 2
	case StatusLow:
		return 1
	default:
		return 0
	}
}

// StatusFor maps a percentage onto its tier.
func StatusFor(percent int) Status {
	switch {
	case percent >= 80:
		return StatusFull
	case percent >= 60:
		return StatusHigh
	case percent >= 40:
		return StatusMedium
	case percent >= 20:
		return StatusLow
	default:
		return StatusCritical
	}
}

// Clamp bounds percent to [0,100].
func Clamp(percent int) int {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}

// ClampFloat rounds and bounds a fractional percentage.
func ClampFloat(percent float64) int {
	if math.IsNaN(percent) || math.IsInf(percent, 0) {
		return DefaultPercent
	}
	return Clamp(int(math.Round(percent)))
}

// ChargedPercent is the battery level reached after progress percent of a
// session that started at start percent. A full session always ends at 100.
func ChargedPercent(start, progress int) int {
	start = Clamp(start)
	progress = Clamp(progress)
	return ClampFloat(float64(start) + float64(100-start)*float64(progress)/100)
}

// Snapshot is the battery-relevant view of a vehicle.
type Snapshot struct {
	Percent       int
	Status        Status
	Active        bool
	Charging      bool
	LastUpdatedAt *time.Time
}

// Update carries the fields to persist after a refresh.
type Update struct {
	Percent       int
	Status        Status
	LastUpdatedAt time.Time
}

// Policy configures passive drain.
type Policy struct {
	DrainTick time.Duration
	DrainStep int
}

// DefaultPolicy drains 5% every 10 minutes.
func DefaultPolicy() Policy {
	return Policy{DrainTick: defaultDrainTick, DrainStep: defaultDrainStep}
}

func (p Policy) normalized() Policy {
	if p.DrainTick <= 0 {
		p.DrainTick = defaultDrainTick
	}
	if p.DrainStep < 0 {
		p.DrainStep = defaultDrainStep
	}
	return p
}

// Refresh applies any whole drain ticks elapsed since the last update and
// recomputes the tier. The returned Update is nil when nothing needs to be
// persisted. LastUpdatedAt advances only by consumed ticks so partial ticks
// carry over to the next read.
func (p Policy) Refresh(s Snapshot, now time.Time) (Snapshot, *Update) {
	p = p.normalized()

	current := Clamp(s.Percent)
	currentStatus := s.Status
	if !currentStatus.Valid() {
		currentStatus = StatusFor(current)
	}

	next := current
	var nextUpdatedAt time.Time
	if s.LastUpdatedAt != nil {
		nextUpdatedAt = *s.LastUpdatedAt
	} else {
		nextUpdatedAt = now
	}

	if s.Active && !s.Charging && s.LastUpdatedAt != nil {
		elapsed := now.Sub(*s.LastUpdatedAt)
		if elapsed >= p.DrainTick {
			steps := int(elapsed / p.DrainTick)
			next = Clamp(current - steps*p.DrainStep)
			nextUpdatedAt = s.LastUpdatedAt.Add(time.Duration(steps) * p.DrainTick)
		}
	}
	nextStatus := StatusFor(next)

	changed := next != current ||
		nextStatus != currentStatus ||
		s.LastUpdatedAt == nil ||
		!nextUpdatedAt.Equal(*s.LastUpdatedAt)

	ts := nextUpdatedAt
	out := Snapshot{
		Percent:       next,
		Status:        nextStatus,
		Active:        s.Active,
		Charging:      s.Charging,
		LastUpdatedAt: &ts,
	}
	if !changed {
		return out, nil
	}
	return out, &Update{Percent: next, Status: nextStatus, LastUpdatedAt: nextUpdatedAt}
}
