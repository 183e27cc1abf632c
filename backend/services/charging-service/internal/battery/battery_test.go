package battery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusForBoundaries(t *testing.T) {
	cases := map[int]Status{
		0:   StatusCritical,
		19:  StatusCritical,
		20:  StatusLow,
		39:  StatusLow,
		40:  StatusMedium,
		59:  StatusMedium,
		60:  StatusHigh,
		79:  StatusHigh,
		80:  StatusFull,
		100: StatusFull,
	}
	for percent, want := range cases {
		assert.Equal(t, want, StatusFor(percent), "percent %d", percent)
	}
}

func TestStatusForIsMonotonic(t *testing.T) {
	prev := StatusFor(0).Rank()
	for p := 1; p <= 100; p++ {
		rank := StatusFor(p).Rank()
		require.GreaterOrEqual(t, rank, prev, "tier dropped at %d%%", p)
		prev = rank
	}
}

func TestChargedPercent(t *testing.T) {
	assert.Equal(t, 100, ChargedPercent(40, 100))
	assert.Equal(t, 70, ChargedPercent(40, 50))
	assert.Equal(t, 40, ChargedPercent(40, 0))
	assert.Equal(t, 100, ChargedPercent(100, 0))
	assert.Equal(t, 100, ChargedPercent(130, 20))
}

func TestRefreshDrainsWholeTicksOnly(t *testing.T) {
	last := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := last.Add(25 * time.Minute)

	out, upd := DefaultPolicy().Refresh(Snapshot{
		Percent:       62,
		Status:        StatusHigh,
		Active:        true,
		LastUpdatedAt: &last,
	}, now)

	require.NotNil(t, upd)
	assert.Equal(t, 52, out.Percent)
	assert.Equal(t, StatusMedium, out.Status)
	assert.Equal(t, last.Add(20*time.Minute), upd.LastUpdatedAt)
	assert.Equal(t, last.Add(20*time.Minute), *out.LastUpdatedAt)
}

func TestRefreshFloorsAtZero(t *testing.T) {
	last := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out, upd := DefaultPolicy().Refresh(Snapshot{
		Percent:       7,
		Active:        true,
		LastUpdatedAt: &last,
	}, last.Add(5*time.Hour))

	require.NotNil(t, upd)
	assert.Equal(t, 0, out.Percent)
	assert.Equal(t, StatusCritical, out.Status)
}

func TestRefreshSkipsDrainWhileChargingOrInactive(t *testing.T) {
	last := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := last.Add(time.Hour)

	for name, snap := range map[string]Snapshot{
		"charging": {Percent: 50, Status: StatusMedium, Active: true, Charging: true, LastUpdatedAt: &last},
		"inactive": {Percent: 50, Status: StatusMedium, Active: false, LastUpdatedAt: &last},
	} {
		out, upd := DefaultPolicy().Refresh(snap, now)
		assert.Nil(t, upd, name)
		assert.Equal(t, 50, out.Percent, name)
	}
}

func TestRefreshRecomputesStaleTier(t *testing.T) {
	last := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out, upd := DefaultPolicy().Refresh(Snapshot{
		Percent:       30,
		Status:        StatusFull,
		LastUpdatedAt: &last,
	}, last.Add(time.Minute))

	require.NotNil(t, upd)
	assert.Equal(t, StatusLow, out.Status)
	assert.Equal(t, last, upd.LastUpdatedAt)
}

func TestRefreshInitialisesMissingTimestamp(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out, upd := DefaultPolicy().Refresh(Snapshot{Percent: 90, Status: StatusFull, Active: true}, now)

	require.NotNil(t, upd)
	assert.Equal(t, 90, out.Percent)
	assert.Equal(t, now, upd.LastUpdatedAt)
}
