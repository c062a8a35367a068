package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIntervalConstants(t *testing.T) {
	assert.Equal(t, time.Duration(IntervalMinutes)*time.Minute, Interval)
}

func TestTariffSlotDuration(t *testing.T) {
	start := time.Date(2024, 11, 21, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, Interval, TariffSlot{Start: start, End: start.Add(Interval)}.Duration())
	assert.Equal(t, time.Hour, TariffSlot{Start: start, End: start.Add(time.Hour)}.Duration())
}

func TestSlotKeyTime(t *testing.T) {
	start := time.Date(2024, 11, 21, 10, 15, 0, 0, time.UTC)
	k := SlotKey(start.UnixMilli())
	assert.True(t, start.Equal(k.Time()))
}

func TestComparisonResultHasCoverage(t *testing.T) {
	assert.False(t, ComparisonResult{}.HasCoverage())
	assert.False(t, ComparisonResult{MissingCount: 4, ExtraEntries: 2}.HasCoverage())
	assert.True(t, ComparisonResult{MatchedCount: 1}.HasCoverage())
}
