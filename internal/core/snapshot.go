package core

import "time"

// BackupVersion identifies the backup file layout.
const BackupVersion = "1.0"

// Snapshot is the persisted application state. It is threaded explicitly
// through the service layer; there is no ambient singleton.
type Snapshot struct {
	Accounts              []Account              `json:"accounts"`
	Transactions          []Transaction          `json:"transactions"`
	RecurringTransactions []RecurringTransaction `json:"recurringTransactions"`
	Theme                 string                 `json:"theme"`
}

// Backup is a snapshot plus provenance, written to backup files.
type Backup struct {
	Snapshot
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// NewBackup stamps the snapshot with the current time and format version.
func NewBackup(s Snapshot, now time.Time) Backup {
	return Backup{Snapshot: s, Timestamp: now, Version: BackupVersion}
}

// Clone returns a deep copy so callers can hand out state without exposing
// internal slices to mutation.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Theme: s.Theme}
	out.Accounts = append([]Account(nil), s.Accounts...)
	out.Transactions = append([]Transaction(nil), s.Transactions...)
	out.RecurringTransactions = append([]RecurringTransaction(nil), s.RecurringTransactions...)
	return out
}

// AccountByName returns the first account with the given name.
func (s Snapshot) AccountByName(name string) (Account, bool) {
	for _, a := range s.Accounts {
		if a.Name == name {
			return a, true
		}
	}
	return Account{}, false
}

// AccountByID returns the account with the given id.
func (s Snapshot) AccountByID(id string) (Account, bool) {
	for _, a := range s.Accounts {
		if a.ID == id {
			return a, true
		}
	}
	return Account{}, false
}
