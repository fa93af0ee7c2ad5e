package worktime

import (
	"testing"
	"time"

	"github.com/org/mdmagent/pkg/models"
)

const everyDay = 0b1111111

// 2025-06-02 is a Monday.
func at(day, hour, minute int) time.Time {
	return time.Date(2025, time.June, day, hour, minute, 0, 0, time.UTC)
}

func TestParseMinute(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"00:00", 0},
		{"09:30", 570},
		{"9:05", 545},
		{" 23:59 ", 1439},
		{"24:00", 0},
		{"12:60", 0},
		{"-1:30", 0},
		{"12", 0},
		{"12:30:15", 0},
		{"ab:cd", 0},
		{"", 0},
	}
	for _, tc := range cases {
		if got := ParseMinute(tc.in); got != tc.want {
			t.Errorf("ParseMinute(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestDayMask(t *testing.T) {
	cases := []struct {
		day  time.Weekday
		want int64
	}{
		{time.Monday, 1},
		{time.Tuesday, 2},
		{time.Wednesday, 4},
		{time.Thursday, 8},
		{time.Friday, 16},
		{time.Saturday, 32},
		{time.Sunday, 64},
	}
	for _, tc := range cases {
		if got := DayMask(tc.day); got != tc.want {
			t.Errorf("DayMask(%s) = %d, want %d", tc.day, got, tc.want)
		}
	}
}

func TestGoverningDay(t *testing.T) {
	night := [2]int{22 * 60, 6 * 60}
	office := [2]int{9 * 60, 17 * 60}
	cases := []struct {
		name   string
		now    time.Time
		window [2]int
		want   time.Weekday
	}{
		{"crossing, late evening", at(6, 23, 0), night, time.Friday},
		{"crossing, early morning belongs to yesterday", at(7, 5, 59), night, time.Friday},
		{"crossing, end minute is today", at(7, 6, 0), night, time.Saturday},
		{"crossing, monday morning belongs to sunday", at(2, 1, 0), night, time.Sunday},
		{"non-crossing early morning", at(7, 5, 0), office, time.Saturday},
	}
	for _, tc := range cases {
		if got := GoverningDay(tc.now, tc.window[0], tc.window[1]); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestIsWorkTimeNonCrossingSweep(t *testing.T) {
	pol := &models.PolicyDocument{StartTime: "09:00", EndTime: "17:00", DaysOfWeek: everyDay}
	start, end := 9*60, 17*60
	for m := 0; m < minutesPerDay; m++ {
		// Seconds must not matter.
		now := at(2, 0, 0).Add(time.Duration(m)*time.Minute + 59*time.Second)
		want := m >= start && m < end
		if got := IsWorkTime(pol, now); got != want {
			t.Fatalf("minute %d: got %v, want %v", m, got, want)
		}
	}
}

func TestIsWorkTimeCrossingMidnight(t *testing.T) {
	pol := &models.PolicyDocument{StartTime: "22:00", EndTime: "06:00", DaysOfWeek: everyDay}
	cases := []struct {
		now  time.Time
		want bool
	}{
		{at(3, 23, 30), true},
		{at(3, 5, 59), true},
		{at(3, 6, 0), false},
		{at(3, 21, 59), false},
		{at(3, 22, 0), true},
		{at(3, 0, 0), true},
		{at(3, 12, 0), false},
	}
	for _, tc := range cases {
		if got := IsWorkTime(pol, tc.now); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.now.Format("15:04"), got, tc.want)
		}
	}
}

func TestIsWorkTimeWeekdaysOnly(t *testing.T) {
	pol := &models.PolicyDocument{StartTime: "09:00", EndTime: "17:00", DaysOfWeek: 0b0011111}
	for day := 2; day <= 8; day++ {
		now := at(day, 10, 0)
		want := now.Weekday() != time.Saturday && now.Weekday() != time.Sunday
		if got := IsWorkTime(pol, now); got != want {
			t.Errorf("%s 10:00: got %v, want %v", now.Weekday(), got, want)
		}
	}
}

func TestIsWorkTimeCrossingUsesGoverningDay(t *testing.T) {
	// Friday night shift only.
	pol := &models.PolicyDocument{StartTime: "22:00", EndTime: "06:00", DaysOfWeek: DayMask(time.Friday)}
	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"friday evening", at(6, 23, 0), true},
		{"saturday early morning", at(7, 5, 0), true},
		{"friday early morning belongs to thursday", at(6, 5, 0), false},
		{"saturday evening", at(7, 23, 0), false},
	}
	for _, tc := range cases {
		if got := IsWorkTime(pol, tc.now); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestIsWorkTimeInertPolicy(t *testing.T) {
	cases := []*models.PolicyDocument{
		nil,
		{EndTime: "17:00", DaysOfWeek: everyDay},
		{StartTime: "09:00", DaysOfWeek: everyDay},
		{StartTime: "10:00", EndTime: "10:00", DaysOfWeek: everyDay},
	}
	for i, pol := range cases {
		for _, now := range []time.Time{at(2, 0, 0), at(2, 10, 0), at(2, 23, 59)} {
			if IsWorkTime(pol, now) {
				t.Errorf("case %d at %s: expected not work time", i, now.Format("15:04"))
			}
		}
	}
}

func TestIsWorkTimeMalformedStartFallsBackToMidnight(t *testing.T) {
	pol := &models.PolicyDocument{StartTime: "garbage", EndTime: "08:00", DaysOfWeek: everyDay}
	if !IsWorkTime(pol, at(2, 7, 0)) {
		t.Error("expected malformed start to behave as 00:00")
	}
	if IsWorkTime(pol, at(2, 9, 0)) {
		t.Error("expected 09:00 to be outside 00:00-08:00")
	}
}

func TestIsWorkTimeIgnoresReservedBits(t *testing.T) {
	pol := &models.PolicyDocument{StartTime: "09:00", EndTime: "17:00", DaysOfWeek: 1 << 10}
	if IsWorkTime(pol, at(2, 10, 0)) {
		t.Error("reserved bits must not enable any day")
	}
}
