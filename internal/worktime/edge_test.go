package worktime

import (
	"testing"
	"time"

	"github.com/org/mdmagent/pkg/models"
)

func TestEdgeSignalFullDaySweep(t *testing.T) {
	pol := &models.PolicyDocument{
		EnforcementEnabled: true,
		StartTime:          "09:00",
		EndTime:            "17:00",
		DaysOfWeek:         everyDay,
	}
	var e EdgeSignal
	var fired []int
	for m := 0; m < minutesPerDay; m++ {
		if e.Observe(pol, at(2, 0, 0).Add(time.Duration(m)*time.Minute)) {
			fired = append(fired, m)
		}
	}
	want := []int{0, 9 * 60, 17 * 60}
	if len(fired) != len(want) {
		t.Fatalf("expected signals at %v, got %v", want, fired)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Errorf("signal %d at minute %d, want %d", i, fired[i], want[i])
		}
	}
}

func TestEdgeSignalCrossingMidnightSweep(t *testing.T) {
	pol := &models.PolicyDocument{
		EnforcementEnabled: true,
		StartTime:          "22:00",
		EndTime:            "06:00",
		DaysOfWeek:         everyDay,
	}
	var e EdgeSignal
	count := 0
	for m := 0; m < 2*minutesPerDay; m++ {
		if e.Observe(pol, at(2, 0, 0).Add(time.Duration(m)*time.Minute)) {
			count++
		}
	}
	// seed, 06:00, 22:00, 06:00, 22:00
	if count != 5 {
		t.Errorf("expected 5 signals over two days, got %d", count)
	}
}

func TestEdgeSignalDisabledResets(t *testing.T) {
	pol := &models.PolicyDocument{
		EnforcementEnabled: true,
		StartTime:          "09:00",
		EndTime:            "17:00",
		DaysOfWeek:         everyDay,
	}
	var e EdgeSignal
	now := at(2, 10, 0)
	if !e.Observe(pol, now) {
		t.Fatal("first observation should signal")
	}
	if e.Observe(pol, now) {
		t.Fatal("unchanged state should not signal")
	}
	if e.Observe(nil, now) {
		t.Fatal("nil policy must never signal")
	}
	disabled := *pol
	disabled.EnforcementEnabled = false
	if e.Observe(&disabled, now) {
		t.Fatal("disabled policy must never signal")
	}
	if !e.Observe(pol, now) {
		t.Error("state should have been cleared by the disabled policy")
	}
}
