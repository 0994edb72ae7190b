package clock

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/adhocore/gronx"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/alarmd/internal/alarm"
)

// 2025-03-03 is a Monday.
func day(d, hour, minute int) time.Time {
	return time.Date(2025, 3, d, hour, minute, 0, 0, time.UTC)
}

func TestNextTrigger_OneTime(t *testing.T) {
	t.Run("later today", func(t *testing.T) {
		require.Equal(t, day(3, 7, 0), NextTrigger(7, 0, 0, day(3, 6, 59)))
	})
	t.Run("already past fires tomorrow", func(t *testing.T) {
		require.Equal(t, day(4, 7, 0), NextTrigger(7, 0, 0, day(3, 7, 5)))
	})
	t.Run("exactly now fires tomorrow", func(t *testing.T) {
		require.Equal(t, day(4, 7, 0), NextTrigger(7, 0, 0, day(3, 7, 0)))
	})
	t.Run("seconds past the minute", func(t *testing.T) {
		now := day(3, 7, 0).Add(30 * time.Second)
		require.Equal(t, day(4, 7, 0), NextTrigger(7, 0, 0, now))
	})
	t.Run("month rollover", func(t *testing.T) {
		now := time.Date(2025, 1, 31, 23, 0, 0, 0, time.UTC)
		require.Equal(t, time.Date(2025, 2, 1, 6, 0, 0, 0, time.UTC), NextTrigger(6, 0, 0, now))
	})
}

func TestNextTrigger_Repeating(t *testing.T) {
	tests := []struct {
		name string
		days alarm.Weekdays
		now  time.Time
		want time.Time
	}{
		{"today matches and not passed", alarm.NewWeekdays(alarm.Monday), day(3, 6, 0), day(3, 7, 0)},
		{"today matches but passed wraps a week", alarm.NewWeekdays(alarm.Monday), day(3, 8, 0), day(10, 7, 0)},
		{"weekdays from saturday", alarm.WorkingDays, day(8, 9, 0), day(10, 7, 0)},
		{"weekdays from sunday", alarm.WorkingDays, day(9, 6, 0), day(10, 7, 0)},
		{"weekdays from friday after time", alarm.WorkingDays, day(7, 7, 30), day(10, 7, 0)},
		{"weekends from friday", alarm.Weekend, day(7, 12, 0), day(8, 7, 0)},
		{"sunday only from monday", alarm.NewWeekdays(alarm.Sunday), day(3, 6, 0), day(9, 7, 0)},
		{"every day past time", alarm.EveryDay, day(5, 7, 1), day(6, 7, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, NextTrigger(7, 0, tt.days, tt.now))
		})
	}
}

// Each canonical day must resolve to the matching calendar date within one week.
func TestNextTrigger_SingleDayMapping(t *testing.T) {
	now := day(2, 12, 0) // Sunday noon
	for d := alarm.Monday; d <= alarm.Sunday; d++ {
		t.Run(d.String(), func(t *testing.T) {
			got := NextTrigger(7, 0, alarm.NewWeekdays(d), now)
			require.Equal(t, day(3+int(d), 7, 0), got)
			require.Equal(t, d, alarm.WeekdayOf(got.Weekday()))
		})
	}
}

func TestNextTrigger_AlwaysAfterNow(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	loc, err := time.LoadLocation("Europe/Oslo")
	if err != nil {
		loc = time.FixedZone("CET", 3600)
	}
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, loc)

	for i := range 5000 {
		now := base.Add(time.Duration(r.Int64N(int64(400 * 24 * time.Hour))))
		hour, minute := r.IntN(24), r.IntN(60)
		days := alarm.Weekdays(r.IntN(128))

		got := NextTrigger(hour, minute, days, now)
		require.Truef(t, got.After(now), "case %d: %v not after %v", i, got, now)
		require.LessOrEqualf(t, got.Sub(now), 8*24*time.Hour, "case %d", i)
		if !days.Empty() {
			require.True(t, days.Has(alarm.WeekdayOf(got.Weekday())), "case %d", i)
		}
	}
}

// cronExpr expresses the same schedule in five-field cron, where day-of-week is Sunday=0.
func cronExpr(hour, minute int, days alarm.Weekdays) string {
	dow := "*"
	if !days.Empty() {
		parts := []string{}
		for _, d := range days.Days() {
			parts = append(parts, strconv.Itoa((int(d)+1)%7))
		}
		dow = strings.Join(parts, ",")
	}
	return fmt.Sprintf("%d %d * * %s", minute, hour, dow)
}

func TestNextTrigger_MatchesCron(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	base := day(1, 0, 0)
	for i := range 500 {
		now := base.Add(time.Duration(r.Int64N(int64(60*24*time.Hour)))).Truncate(time.Second)
		hour, minute := r.IntN(24), r.IntN(60)
		days := alarm.Weekdays(r.IntN(128))

		want, err := gronx.NextTickAfter(cronExpr(hour, minute, days), now, false)
		require.NoError(t, err)
		require.Truef(t, want.Equal(NextTrigger(hour, minute, days, now)),
			"case %d: %s from %v", i, cronExpr(hour, minute, days), now)
	}
}

func TestNextAlarm(t *testing.T) {
	now := day(3, 6, 0)
	alarms := []alarm.Definition{
		{ID: 1, Hour: 9, Minute: 0, Enabled: true},
		{ID: 2, Hour: 6, Minute: 30, Enabled: false},
		{ID: 3, Hour: 7, Minute: 0, Enabled: true, RepeatDays: alarm.Weekend},
		{ID: 4, Hour: 8, Minute: 15, Enabled: true},
	}
	got, ok := NextAlarm(alarms, now)
	require.True(t, ok)
	require.Equal(t, int64(4), got.Alarm.ID)
	require.Equal(t, day(3, 8, 15), got.TriggerAt)

	_, ok = NextAlarm(alarms[1:2], now)
	require.False(t, ok)
}

func TestFormatTimeUntil(t *testing.T) {
	require.Equal(t, "7h 30m", FormatTimeUntil(7*time.Hour+30*time.Minute+20*time.Second))
	require.Equal(t, "45m", FormatTimeUntil(45*time.Minute))
	require.Equal(t, "1h 0m", FormatTimeUntil(time.Hour))
	require.Equal(t, "now", FormatTimeUntil(30*time.Second))
	require.Equal(t, "now", FormatTimeUntil(-time.Minute))
}
