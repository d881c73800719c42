package core

import (
	"fmt"
	"time"
)

// CatchUpMonths is the trailing window within which missed occurrences are backfilled.
const CatchUpMonths = 3

// OccurrenceStepper computes the next occurrence for one frequency.
// Each implementation encapsulates the calendar rule for its frequency.
type OccurrenceStepper interface {
	Next(t time.Time) time.Time
}

// DailyStepper adds exactly one calendar day.
type DailyStepper struct{}

func (DailyStepper) Next(t time.Time) time.Time { return t.AddDate(0, 0, 1) }

// WeeklyStepper adds exactly seven calendar days.
type WeeklyStepper struct{}

func (WeeklyStepper) Next(t time.Time) time.Time { return t.AddDate(0, 0, 7) }

// MonthlyStepper moves to the same day of the following month, clamped to the
// last day of that month. The result is the new anchor: Jan 31 -> Feb 28 -> Mar 28.
type MonthlyStepper struct{}

func (MonthlyStepper) Next(t time.Time) time.Time { return AddMonths(t, 1) }

// AddMonths moves t by n calendar months (n may be negative), clamping the
// day to the last day of the target month: May 31 - 3 months = Feb 28.
func AddMonths(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	total := int(month) - 1 + n
	targetYear := year + total/12
	if total%12 < 0 {
		targetYear--
	}
	targetMonth := time.Month((total%12+12)%12 + 1)
	if last := DaysInMonth(targetYear, targetMonth); day > last {
		day = last
	}
	return time.Date(targetYear, targetMonth, day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// steppers is closed over the declared frequencies.
var steppers = map[Frequency]OccurrenceStepper{
	Daily:   DailyStepper{},
	Weekly:  WeeklyStepper{},
	Monthly: MonthlyStepper{},
}

// StepperFor returns the stepper for a frequency, or an error for values
// outside the declared set.
func StepperFor(f Frequency) (OccurrenceStepper, error) {
	s, ok := steppers[f]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownFrequency, f)
	}
	return s, nil
}

// NextOccurrence returns the occurrence following t for frequency f.
func NextOccurrence(t time.Time, f Frequency) (time.Time, error) {
	s, err := StepperFor(f)
	if err != nil {
		return time.Time{}, err
	}
	return s.Next(t), nil
}

// DaysInMonth returns the number of days in the given month, leap years included.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// CatchUpWindowStart returns the exclusive lower bound of the backfill window,
// CatchUpMonths before now with month-end clamping.
func CatchUpWindowStart(now time.Time) time.Time {
	return AddMonths(now, -CatchUpMonths)
}

// MissedOccurrences lists the occurrences of a due template that fall at or
// before now. A template that has never run yields only its NextDate. Otherwise
// occurrences at or before the catch-up window start are dropped and counted.
func MissedOccurrences(rt RecurringTemplate, now time.Time) (dates []time.Time, dropped int, err error) {
	if !rt.IsDue(now) {
		return nil, 0, nil
	}
	if rt.NeverRun() {
		return []time.Time{rt.NextDate}, 0, nil
	}
	stepper, err := StepperFor(rt.Frequency)
	if err != nil {
		return nil, 0, err
	}
	windowStart := CatchUpWindowStart(now)
	for d := rt.NextDate; !d.After(now); d = stepper.Next(d) {
		if !d.After(windowStart) {
			dropped++
			continue
		}
		dates = append(dates, d)
	}
	return dates, dropped, nil
}
