package services

import (
	"time"

	"moneybook/internal/core"
)

// maxCatchUpInstances caps how many overdue instances a single Advance call
// may emit, so a template dormant for years cannot flood the log in one pass.
const maxCatchUpInstances = 12

// AdvanceResult carries the instances spawned by one catch-up pass and the
// template with its due-date bookkeeping updated.
type AdvanceResult struct {
	Instances []core.Transaction
	Template  core.RecurringTransaction
}

// Advance materializes every due occurrence of a template up to today,
// bounded by the template's end date and the catch-up cap. It never returns
// an error: a template with an unreadable due date or frequency simply stays
// put until the data is repaired.
//
// Advancing is idempotent per calendar day: once NextDueDate moves past
// today, re-invoking with the same today emits nothing.
func Advance(tpl core.RecurringTransaction, today time.Time, newID func() string) AdvanceResult {
	result := AdvanceResult{Template: tpl}

	due, ok := tpl.NextDueDate.Time()
	if !ok {
		return result
	}
	stepper, err := GetDateStepper(tpl.Frequency)
	if err != nil {
		return result
	}

	var end time.Time
	hasEnd := false
	if tpl.EndDate != "" {
		if e, ok := tpl.EndDate.Time(); ok {
			end, hasEnd = e, true
		}
	}

	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	for !due.After(day) && len(result.Instances) < maxCatchUpInstances {
		if hasEnd && due.After(end) {
			break
		}
		result.Instances = append(result.Instances, core.Transaction{
			ID:                  newID(),
			Date:                core.DateOf(due),
			Amount:              tpl.Amount,
			Type:                tpl.Type,
			Category:            tpl.Category,
			Description:         tpl.Description,
			Location:            tpl.Location,
			AccountID:           tpl.AccountID,
			ToAccountID:         tpl.ToAccountID,
			IsRecurringInstance: true,
		})
		result.Template.LastGenerated = core.DateOf(due)
		due = stepper.Step(due)
		result.Template.NextDueDate = core.DateOf(due)
	}

	return result
}
