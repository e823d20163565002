package database

import (
	"database/sql"
	"fmt"
	"time"
)

var _ AccountRepository = (*AccountRepo)(nil)

// AccountRepo handles database operations for upstream credentials
type AccountRepo struct {
	db *DB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *DB) *AccountRepo {
	return &AccountRepo{db: db}
}

const accountColumns = `id, name, token, status, created_at, updated_at`

func (r *AccountRepo) GetAccount(id int64) (*Account, error) {
	row := r.db.QueryRow(`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)

	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

func (r *AccountRepo) ListAccounts() ([]Account, error) {
	rows, err := r.db.Query(`SELECT ` + accountColumns + ` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	return collectAccounts(rows)
}

func (r *AccountRepo) ListAccountsByStatus(status AccountStatus) ([]Account, error) {
	rows, err := r.db.Query(`SELECT `+accountColumns+` FROM accounts WHERE status = ? ORDER BY id`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts by status: %w", err)
	}
	defer rows.Close()

	return collectAccounts(rows)
}

func (r *AccountRepo) CreateAccount(name, token string) (*Account, error) {
	now := time.Now().UTC()

	res, err := r.db.Exec(`
		INSERT INTO accounts (name, token, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, name, token, string(AccountEnabled), now.Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read account id: %w", err)
	}

	return &Account{
		ID:        id,
		Name:      name,
		Token:     token,
		Status:    AccountEnabled,
		CreatedAt: time.Unix(now.Unix(), 0).UTC(),
		UpdatedAt: time.Unix(now.Unix(), 0).UTC(),
	}, nil
}

func (r *AccountRepo) UpdateAccount(id int64, name, token string, status AccountStatus) error {
	res, err := r.db.Exec(`
		UPDATE accounts
		SET name = ?, token = ?, status = ?, updated_at = ?
		WHERE id = ?
	`, name, token, string(status), time.Now().UTC().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}

	return requireAffected(res, "account", id)
}

func (r *AccountRepo) UpdateAccountStatus(id int64, status AccountStatus) error {
	res, err := r.db.Exec(`
		UPDATE accounts SET status = ?, updated_at = ? WHERE id = ?
	`, string(status), time.Now().UTC().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update account status: %w", err)
	}

	return requireAffected(res, "account", id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*Account, error) {
	var account Account
	var status string
	var createdAt, updatedAt int64

	if err := row.Scan(&account.ID, &account.Name, &account.Token, &status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	account.Status = AccountStatus(status)
	account.CreatedAt = time.Unix(createdAt, 0).UTC()
	account.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return &account, nil
}

func collectAccounts(rows *sql.Rows) ([]Account, error) {
	var accounts []Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account row: %w", err)
		}
		accounts = append(accounts, *account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account rows: %w", err)
	}

	return accounts, nil
}

func requireAffected(res sql.Result, entity string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %v not found", entity, id)
	}
	return nil
}
