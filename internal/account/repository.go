// AngelaMos | 2026
// repository.go

package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/carterperez-dev/eternal-vault/internal/core"
)

type Repository interface {
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	UpdateUsername(ctx context.Context, a *Account) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UsernameTakenByOther(ctx context.Context, username, id string) (bool, error)
	CredentialsTaken(ctx context.Context, email, username string) (bool, error)
	Debit(ctx context.Context, id string, amount int) (int, error)
	Credit(ctx context.Context, id string, amount int) (int, error)
	TopByBalance(ctx context.Context, limit int) ([]Account, error)
	Totals(ctx context.Context) (Totals, error)
}

type repository struct {
	db core.DBTX
}

// NewRepository accepts either the pool or an open transaction, which is how
// capsule writes debit the creator in the same unit of work.
func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

const accountColumns = `id, username, email, password_hash, role, coin_balance,
		       created_at, updated_at`

func (r *repository) Create(ctx context.Context, a *Account) error {
	query := `
		INSERT INTO accounts (id, username, email, password_hash, role, coin_balance)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		a.ID,
		a.Username,
		a.Email,
		a.PasswordHash,
		a.Role,
		a.CoinBalance,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if core.IsDuplicateKeyError(err) {
			return fmt.Errorf("create account: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("create account: %w", err)
	}

	return nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	var a Account
	err := r.db.GetContext(ctx, &a, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get account: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}

	return &a, nil
}

// GetByEmail resolves the oldest account with that email. Emails are not
// unique, so the earliest registration owns the address.
func (r *repository) GetByEmail(
	ctx context.Context,
	email string,
) (*Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM accounts
		WHERE email = $1
		ORDER BY created_at ASC, id ASC
		LIMIT 1`

	var a Account
	err := r.db.GetContext(ctx, &a, query, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get account by email: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account by email: %w", err)
	}

	return &a, nil
}

func (r *repository) UpdateUsername(ctx context.Context, a *Account) error {
	query := `
		UPDATE accounts
		SET username = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.GetContext(ctx, &a.UpdatedAt, query, a.ID, a.Username)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update username: %w", core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update username: %w", err)
	}

	return nil
}

func (r *repository) UpdatePassword(
	ctx context.Context,
	id, passwordHash string,
) error {
	query := `
		UPDATE accounts
		SET password_hash = $2, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update password: %w", core.ErrNotFound)
	}

	return nil
}

func (r *repository) UsernameTakenByOther(
	ctx context.Context,
	username, id string,
) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM accounts WHERE username = $1 AND id <> $2)`

	var taken bool
	if err := r.db.GetContext(ctx, &taken, query, username, id); err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}

	return taken, nil
}

func (r *repository) CredentialsTaken(
	ctx context.Context,
	email, username string,
) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM accounts WHERE email = $1 OR username = $2)`

	var taken bool
	if err := r.db.GetContext(ctx, &taken, query, email, username); err != nil {
		return false, fmt.Errorf("check credentials: %w", err)
	}

	return taken, nil
}

// Debit removes amount coins only while the balance covers it and returns
// the new balance. The guard lives in the WHERE clause so concurrent debits
// can never drive the balance below zero.
func (r *repository) Debit(
	ctx context.Context,
	id string,
	amount int,
) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("debit %d: %w", amount, core.ErrInvalidInput)
	}

	query := `
		UPDATE accounts
		SET coin_balance = coin_balance - $2, updated_at = NOW()
		WHERE id = $1 AND coin_balance >= $2
		RETURNING coin_balance`

	var balance int
	err := r.db.GetContext(ctx, &balance, query, id, amount)
	if errors.Is(err, sql.ErrNoRows) {
		exists, existsErr := r.exists(ctx, id)
		if existsErr != nil {
			return 0, fmt.Errorf("debit: %w", existsErr)
		}
		if !exists {
			return 0, fmt.Errorf("debit: %w", core.ErrNotFound)
		}
		return 0, fmt.Errorf("debit: %w", core.ErrInsufficientFunds)
	}
	if core.IsCheckViolation(err, core.BalanceConstraint) {
		return 0, fmt.Errorf("debit: %w", core.ErrInsufficientFunds)
	}
	if err != nil {
		return 0, fmt.Errorf("debit: %w", err)
	}

	return balance, nil
}

func (r *repository) Credit(
	ctx context.Context,
	id string,
	amount int,
) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("credit %d: %w", amount, core.ErrInvalidInput)
	}

	query := `
		UPDATE accounts
		SET coin_balance = coin_balance + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING coin_balance`

	var balance int
	err := r.db.GetContext(ctx, &balance, query, id, amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("credit: %w", core.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("credit: %w", err)
	}

	return balance, nil
}

func (r *repository) TopByBalance(
	ctx context.Context,
	limit int,
) ([]Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM accounts
		WHERE role = 'user'
		ORDER BY coin_balance DESC, created_at ASC
		LIMIT $1`

	var accounts []Account
	if err := r.db.SelectContext(ctx, &accounts, query, limit); err != nil {
		return nil, fmt.Errorf("top accounts: %w", err)
	}

	return accounts, nil
}

func (r *repository) Totals(ctx context.Context) (Totals, error) {
	query := `
		SELECT COUNT(*) AS accounts,
		       COUNT(*) FILTER (WHERE role = 'admin') AS admins,
		       COALESCE(SUM(coin_balance), 0) AS coins_in_play
		FROM accounts`

	var t Totals
	if err := r.db.GetContext(ctx, &t, query); err != nil {
		return Totals{}, fmt.Errorf("account totals: %w", err)
	}

	return t, nil
}

func (r *repository) exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`, id)
	return exists, err
}
