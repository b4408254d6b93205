// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for recurring-transaction date
// stepping. Each frequency has its own strategy that encapsulates the
// calendar arithmetic for advancing a due date.

package services

import (
	"fmt"
	"time"

	"moneybook/internal/core"
)

// DateStepper is the strategy interface for advancing a recurring due date to
// the next occurrence. Steps operate on calendar dates, not elapsed time.
type DateStepper interface {
	// Step returns the due date that follows d.
	Step(d time.Time) time.Time
}

// DailyStepper advances by one day.
type DailyStepper struct{}

func (DailyStepper) Step(d time.Time) time.Time { return d.AddDate(0, 0, 1) }

// WeeklyStepper advances by seven days.
type WeeklyStepper struct{}

func (WeeklyStepper) Step(d time.Time) time.Time { return d.AddDate(0, 0, 7) }

// MonthlyStepper advances by one calendar month, clamping to the last valid
// day when the target month is shorter (Jan 31 -> Feb 29 on leap years).
type MonthlyStepper struct{}

func (MonthlyStepper) Step(d time.Time) time.Time { return addMonthsClamped(d, 1) }

// BiMonthlyStepper advances one month at a time until the month number has the
// required parity, yielding exactly one due date every two months regardless
// of the starting month.
type BiMonthlyStepper struct {
	WantOdd bool
}

func (s BiMonthlyStepper) Step(d time.Time) time.Time {
	next := addMonthsClamped(d, 1)
	for (int(next.Month())%2 == 1) != s.WantOdd {
		next = addMonthsClamped(next, 1)
	}
	return next
}

// YearlyStepper advances by one calendar year, clamping Feb 29 to Feb 28 on
// non-leap years.
type YearlyStepper struct{}

func (YearlyStepper) Step(d time.Time) time.Time {
	next := d.AddDate(1, 0, 0)
	if next.Day() != d.Day() {
		next = endOfMonth(d.Year()+1, d.Month())
	}
	return next
}

// addMonthsClamped shifts d by n months keeping the day of month, clamped to
// the last valid day of the target month. time.AddDate alone would overflow
// Jan 31 + 1 month into March.
func addMonthsClamped(d time.Time, n int) time.Time {
	year, month, day := d.Date()
	first := time.Date(year, month+time.Month(n), 1, 0, 0, 0, 0, d.Location())
	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, d.Location())
}

func endOfMonth(year int, month time.Month) time.Time {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
}

// stepStrategies maps frequencies to their steppers.
var stepStrategies = map[core.Frequency]DateStepper{
	core.Daily:         DailyStepper{},
	core.Weekly:        WeeklyStepper{},
	core.Monthly:       MonthlyStepper{},
	core.BiMonthlyOdd:  BiMonthlyStepper{WantOdd: true},
	core.BiMonthlyEven: BiMonthlyStepper{WantOdd: false},
	core.Yearly:        YearlyStepper{},
}

// GetDateStepper returns the stepper for a frequency, or an error for
// unsupported frequencies.
func GetDateStepper(freq core.Frequency) (DateStepper, error) {
	stepper, ok := stepStrategies[freq]
	if !ok {
		return nil, fmt.Errorf("unknown frequency: %s", freq)
	}
	return stepper, nil
}

// StepDate advances a date by one occurrence of the given frequency.
func StepDate(d time.Time, freq core.Frequency) (time.Time, error) {
	stepper, err := GetDateStepper(freq)
	if err != nil {
		return time.Time{}, err
	}
	return stepper.Step(d), nil
}
