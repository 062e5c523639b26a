package store

import "context"

type LedgerStore struct {
	db DB
}

type LedgerEntryInput struct {
	ID          string
	TransferID  string
	AccountID   string
	Amount      int64
	Description string
}

func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

func (s *LedgerStore) InsertEntries(ctx context.Context, tx Execer, entries []LedgerEntryInput) error {
	query := `
		INSERT INTO ledger_entries (id, transfer_id, account_id, amount, description)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, entry := range entries {
		if _, err := tx.ExecContext(ctx, query, entry.ID, entry.TransferID, entry.AccountID, entry.Amount, entry.Description); err != nil {
			return err
		}
	}
	return nil
}

func (s *LedgerStore) SumByAccount(ctx context.Context, accountID string) (int64, error) {
	var sum int64
	err := s.db.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE account_id = $1
	`, accountID)
	return sum, err
}
