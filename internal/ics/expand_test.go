package ics

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teambition/rrule-go"
)

func dayWindow(y int, m time.Month, d int) (time.Time, time.Time) {
	from := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return from, from.Add(24*time.Hour - time.Millisecond)
}

func TestOccurrencesDaily(t *testing.T) {
	ev := ParsedEvent{
		UID:      "daily",
		Start:    time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		End:      time.Date(2025, 3, 1, 9, 45, 0, 0, time.UTC),
		RawRRule: "FREQ=DAILY",
	}

	from, to := dayWindow(2025, 3, 12)
	var got []Occurrence
	for occ := range ev.Occurrences(from, to) {
		got = append(got, occ)
	}

	require.Len(t, got, 1)
	assert.Equal(t, time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC), got[0].Start)
	assert.Equal(t, time.Date(2025, 3, 12, 9, 45, 0, 0, time.UTC), got[0].End)
}

func TestOccurrencesRespectsUntilAndExDates(t *testing.T) {
	ev := ParsedEvent{
		UID:      "weekday",
		Start:    time.Date(2025, 3, 3, 14, 0, 0, 0, time.UTC),
		End:      time.Date(2025, 3, 3, 15, 0, 0, 0, time.UTC),
		RawRRule: "FREQ=WEEKLY;BYDAY=MO;UNTIL=20250331T235959Z",
		ExDates:  []time.Time{time.Date(2025, 3, 17, 14, 0, 0, 0, time.UTC)},
	}

	_, ok := ev.FirstOccurrence(dayWindow(2025, 3, 17))
	assert.False(t, ok, "excluded instance")

	occ, ok := ev.FirstOccurrence(dayWindow(2025, 3, 24))
	require.True(t, ok)
	assert.Equal(t, 24, occ.Start.Day())

	_, ok = ev.FirstOccurrence(dayWindow(2025, 4, 7))
	assert.False(t, ok, "after UNTIL")

	_, ok = ev.FirstOccurrence(dayWindow(2025, 3, 18))
	assert.False(t, ok, "not a Monday")
}

func TestOccurrencesTakesFirstOfSeveral(t *testing.T) {
	ev := ParsedEvent{
		UID:      "hourly",
		Start:    time.Date(2025, 3, 1, 0, 30, 0, 0, time.UTC),
		End:      time.Date(2025, 3, 1, 0, 40, 0, 0, time.UTC),
		RawRRule: "FREQ=HOURLY;INTERVAL=6",
	}

	from, to := dayWindow(2025, 3, 5)
	n := 0
	for range ev.Occurrences(from, to) {
		n++
	}
	assert.Equal(t, 4, n)

	occ, ok := ev.FirstOccurrence(from, to)
	require.True(t, ok)
	assert.Equal(t, 0, occ.Start.Hour())
	assert.Equal(t, 30, occ.Start.Minute())
}

func TestOccurrencesNonRecurringAndBadRule(t *testing.T) {
	single := ParsedEvent{UID: "one", Start: time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)}
	_, ok := single.FirstOccurrence(dayWindow(2025, 3, 5))
	assert.False(t, ok)

	bad := ParsedEvent{UID: "bad", Start: single.Start, RawRRule: "FREQ=SOMETIMES"}
	_, ok = bad.FirstOccurrence(dayWindow(2025, 3, 5))
	assert.False(t, ok)
}

func TestOccurrencesBeforeDTStart(t *testing.T) {
	ev := ParsedEvent{
		UID:      "future",
		Start:    time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		End:      time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		RawRRule: "FREQ=DAILY",
	}
	_, ok := ev.FirstOccurrence(dayWindow(2025, 5, 31))
	assert.False(t, ok)
}

func TestOccurrencesDenseRuleWithOldDTStart(t *testing.T) {
	ev := ParsedEvent{
		UID:      "ping",
		Start:    time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2010, 1, 1, 0, 15, 0, 0, time.UTC),
		RawRRule: "FREQ=HOURLY",
	}

	from, to := dayWindow(2025, 3, 12)
	occ, ok := ev.FirstOccurrence(from, to)
	require.True(t, ok)
	assert.Equal(t, from, occ.Start)
	assert.Equal(t, from.Add(15*time.Minute), occ.End)

	n := 0
	for range ev.Occurrences(from, to) {
		n++
	}
	assert.Equal(t, 24, n)
}

func TestOccurrencesMinutelyIntervalKeepsPhase(t *testing.T) {
	// Every 7 minutes since 2000-01-01 00:03.
	start := time.Date(2000, 1, 1, 0, 3, 0, 0, time.UTC)
	ev := ParsedEvent{UID: "odd", Start: start, End: start, RawRRule: "FREQ=MINUTELY;INTERVAL=7"}

	from, to := dayWindow(2025, 3, 12)
	occ, ok := ev.FirstOccurrence(from, to)
	require.True(t, ok)

	offset := occ.Start.Sub(start) % (7 * time.Minute)
	assert.Zero(t, offset)
	assert.Less(t, occ.Start.Sub(from), 7*time.Minute)
}

func TestOccurrencesMatchFullExpansionAcrossDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	start := time.Date(2024, 1, 1, 1, 30, 0, 0, ny)
	raw := "FREQ=HOURLY;INTERVAL=5;BYMINUTE=30"
	ev := ParsedEvent{UID: "dst", Start: start, End: start.Add(time.Hour), RawRRule: raw}

	// 2025-03-09 is the spring-forward day in New York.
	from := time.Date(2025, 3, 9, 0, 0, 0, 0, ny)
	to := from.AddDate(0, 0, 1).Add(-time.Millisecond)

	want, err := rrule.StrToRRule(raw)
	require.NoError(t, err)
	want.DTStart(start)

	var got []time.Time
	for occ := range ev.Occurrences(from, to) {
		got = append(got, occ.Start)
	}
	require.NotEmpty(t, got)
	assert.Equal(t, want.Between(from, to, true), got)
}

func TestFastForwardLeavesCountAndDailyRulesAlone(t *testing.T) {
	start := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	from := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, start, fastForward(rrule.ROption{Freq: rrule.HOURLY, Count: 10}, start, from))
	assert.Equal(t, start, fastForward(rrule.ROption{Freq: rrule.DAILY}, start, from))

	moved := fastForward(rrule.ROption{Freq: rrule.HOURLY}, start, from)
	assert.True(t, moved.Before(from))
	assert.True(t, moved.After(from.AddDate(0, 0, -3)))
}
