package core

// ComputeBalances derives the current balance of every account from the full
// transaction log. It is a pure full replay: no caching, no incremental
// maintenance, so the result can never drift from the log.
//
// The computation is order-independent. Transactions with an invalid amount
// are skipped, and a TRANSFER missing its destination only debits the source;
// both are data-integrity conditions recovered locally, never errors.
func ComputeBalances(accounts []Account, transactions []Transaction) map[string]int64 {
	balances := make(map[string]int64, len(accounts))
	for _, a := range accounts {
		balances[a.ID] = a.InitialBalance
	}

	for _, t := range transactions {
		if !t.Amount.Valid {
			continue
		}
		amount := t.Amount.Value
		switch t.Type {
		case Income:
			balances[t.AccountID] += amount
		case Expense:
			balances[t.AccountID] -= amount
		case Transfer:
			balances[t.AccountID] -= amount
			if t.ToAccountID != "" {
				balances[t.ToAccountID] += amount
			}
		}
	}

	// Drop contributions from transactions referencing accounts that no
	// longer exist; the output carries exactly the known accounts.
	for id := range balances {
		found := false
		for _, a := range accounts {
			if a.ID == id {
				found = true
				break
			}
		}
		if !found {
			delete(balances, id)
		}
	}

	return balances
}
