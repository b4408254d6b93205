package core

import (
	"errors"
	"strings"
)

const (
	Income   TransactionType = "INCOME"
	Expense  TransactionType = "EXPENSE"
	Transfer TransactionType = "TRANSFER"
)

const (
	Cash    AccountType = "CASH"
	Bank    AccountType = "BANK"
	Credit  AccountType = "CREDIT"
	EWallet AccountType = "E-WALLET"
	Other   AccountType = "OTHER"
)

const (
	Daily         Frequency = "DAILY"
	Weekly        Frequency = "WEEKLY"
	Monthly       Frequency = "MONTHLY"
	BiMonthlyOdd  Frequency = "BI_MONTHLY_ODD"
	BiMonthlyEven Frequency = "BI_MONTHLY_EVEN"
	Yearly        Frequency = "YEARLY"
)

type (
	TransactionType string
	AccountType     string
	Frequency       string

	Account struct {
		ID             string      `json:"id"`
		Name           string      `json:"name"`
		Type           AccountType `json:"type"`
		InitialBalance int64       `json:"initialBalance"`
		Color          string      `json:"color"`
	}

	Transaction struct {
		ID                  string          `json:"id"`
		Date                Date            `json:"date"`
		Amount              Amount          `json:"amount"`
		Type                TransactionType `json:"type"`
		Category            string          `json:"category"`
		Description         string          `json:"description"`
		Location            string          `json:"location,omitempty"`
		AccountID           string          `json:"accountId"`
		ToAccountID         string          `json:"toAccountId,omitempty"`
		ReceiptImage        string          `json:"receiptImage,omitempty"`
		IsRecurringInstance bool            `json:"isRecurringInstance,omitempty"`
	}

	RecurringTransaction struct {
		ID          string    `json:"id"`
		Frequency   Frequency `json:"frequency"`
		StartDate   Date      `json:"startDate"`
		NextDueDate Date      `json:"nextDueDate"`
		EndDate     Date      `json:"endDate,omitempty"`
		// LastGenerated is the due date of the most recently spawned instance.
		LastGenerated Date            `json:"lastGenerated,omitempty"`
		Amount        Amount          `json:"amount"`
		Type          TransactionType `json:"type"`
		Category      string          `json:"category"`
		Description   string          `json:"description"`
		Location      string          `json:"location,omitempty"`
		AccountID     string          `json:"accountId"`
		ToAccountID   string          `json:"toAccountId,omitempty"`
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidDate      = errors.New("invalid date")
	ErrUnknownType      = errors.New("unknown transaction type")
	ErrUnknownFrequency = errors.New("unknown frequency")
	ErrMissingAccount   = errors.New("missing account reference")
	ErrSameAccount      = errors.New("transfer source and destination are the same account")
	ErrEmptyName        = errors.New("empty name")
)

func (t TransactionType) Known() bool {
	switch t {
	case Income, Expense, Transfer:
		return true
	}
	return false
}

func (f Frequency) Known() bool {
	switch f {
	case Daily, Weekly, Monthly, BiMonthlyOdd, BiMonthlyEven, Yearly:
		return true
	}
	return false
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	switch a.Type {
	case Cash, Bank, Credit, EWallet, Other:
	default:
		return errors.New("unknown account type: " + string(a.Type))
	}
	return nil
}

func (t Transaction) Validate() error {
	if !t.Amount.Valid || t.Amount.Value < 0 {
		return ErrInvalidAmount
	}
	if !t.Type.Known() {
		return ErrUnknownType
	}
	if strings.TrimSpace(t.AccountID) == "" {
		return ErrMissingAccount
	}
	if t.Type == Transfer {
		if strings.TrimSpace(t.ToAccountID) == "" {
			return ErrMissingAccount
		}
		if t.ToAccountID == t.AccountID {
			return ErrSameAccount
		}
	}
	return nil
}

func (rt RecurringTransaction) Validate() error {
	if !rt.Frequency.Known() {
		return ErrUnknownFrequency
	}
	if _, ok := rt.StartDate.Time(); !ok {
		return ErrInvalidDate
	}
	if _, ok := rt.NextDueDate.Time(); !ok {
		return ErrInvalidDate
	}
	if rt.EndDate != "" {
		end, ok := rt.EndDate.Time()
		if !ok {
			return ErrInvalidDate
		}
		start, _ := rt.StartDate.Time()
		if end.Before(start) {
			return errors.New("end date before start date")
		}
	}
	if !rt.Amount.Valid || rt.Amount.Value < 0 {
		return ErrInvalidAmount
	}
	if !rt.Type.Known() {
		return ErrUnknownType
	}
	if strings.TrimSpace(rt.AccountID) == "" {
		return ErrMissingAccount
	}
	if rt.Type == Transfer && rt.ToAccountID == rt.AccountID {
		return ErrSameAccount
	}
	return nil
}

// Dormant reports whether the template is past its end date and must not
// spawn further instances.
func (rt RecurringTransaction) Dormant() bool {
	if rt.EndDate == "" {
		return false
	}
	end, ok := rt.EndDate.Time()
	if !ok {
		return false
	}
	due, ok := rt.NextDueDate.Time()
	if !ok {
		// A template whose next due date is unreadable stays dormant rather
		// than raising; it resumes if the date is repaired.
		return true
	}
	return due.After(end)
}
