package worktime

import (
	"strconv"
	"strings"
	"time"

	"github.com/org/mdmagent/pkg/models"
)

const minutesPerDay = 24 * 60

// ParseMinute converts an "HH:mm" string to a minute of the day.
// Anything that is not a valid 24h time yields 0.
func ParseMinute(s string) int {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0
	}
	return h*60 + m
}

// MinuteOfDay returns the wall-clock minute of t in t's location.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// DayMask returns the policy bit for d: Monday is bit 0, Sunday is bit 6.
func DayMask(d time.Weekday) int64 {
	// time.Sunday == 0, so rotate it to the end of the week.
	idx := (int(d) + 6) % 7
	return 1 << idx
}

// GoverningDay returns the calendar day the window containing now belongs
// to. For a window crossing midnight, the early-morning part belongs to the
// previous day.
func GoverningDay(now time.Time, startMinute, endMinute int) time.Weekday {
	if startMinute > endMinute && MinuteOfDay(now) < endMinute {
		return (now.Weekday() + 6) % 7
	}
	return now.Weekday()
}

// inWindow applies the time-of-day check only. start is inclusive and end
// exclusive; start > end means the window crosses midnight.
func inWindow(cur, start, end int) bool {
	if start <= end {
		return cur >= start && cur < end
	}
	return cur >= start || cur < end
}

// IsWorkTime reports whether now falls into the policy's work-time window on
// one of its work days.
func IsWorkTime(p *models.PolicyDocument, now time.Time) bool {
	if !p.HasWindow() {
		return false
	}
	start := ParseMinute(p.StartTime)
	end := ParseMinute(p.EndTime)
	if !inWindow(MinuteOfDay(now), start, end) {
		return false
	}
	day := GoverningDay(now, start, end)
	return p.DaysOfWeek&DayMask(day) != 0
}
