// AngelaMos | 2026
// repository.go

package capsule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/carterperez-dev/eternal-vault/internal/account"
	"github.com/carterperez-dev/eternal-vault/internal/core"
)

type Repository interface {
	// Create debits fee from the creator and stores the capsule with its
	// seeded emails as one unit. A fee of zero skips the debit.
	Create(ctx context.Context, c *Capsule, fee int) error
	GetByID(ctx context.Context, id string) (*Capsule, error)
	GetSharedByCode(ctx context.Context, code string) (*Capsule, error)
	GetAssignedTo(ctx context.Context, email string) (*Capsule, error)
	Public(ctx context.Context) iter.Seq2[*Capsule, error]
	IncrementViews(ctx context.Context, id string) (int, error)
	// GrantAccess adds email to the allowed list and charges fee only when
	// the email was not already present. It reports whether it charged.
	GrantAccess(ctx context.Context, capsuleID, accountID, email string, fee int) (bool, error)
	Update(ctx context.Context, c *Capsule, addEmails []string) error
	Delete(ctx context.Context, id string) error
	ListByCreator(ctx context.Context, creatorID string) ([]Capsule, error)
	UnlockingOn(ctx context.Context, day time.Time) ([]Capsule, error)
	Counts(ctx context.Context, today time.Time) (Counts, error)
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const capsuleSelect = `
		SELECT c.id, c.kind, c.creator_id, a.email AS creator_email,
		       c.name, c.message, c.media, c.links, c.is_shared, c.unique_code,
		       ARRAY(
		           SELECT ca.email FROM capsule_access ca
		           WHERE ca.capsule_id = c.id
		           ORDER BY ca.granted_at, ca.email
		       ) AS allowed_emails,
		       c.view_count, c.unlock_date, c.created_at, c.updated_at
		FROM capsules c
		JOIN accounts a ON a.id = c.creator_id`

const insertAccess = `
		INSERT INTO capsule_access (capsule_id, email)
		VALUES ($1, $2)
		ON CONFLICT (capsule_id, email) DO NOTHING`

func (r *repository) Create(ctx context.Context, c *Capsule, fee int) error {
	return core.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if fee > 0 {
			if _, err := account.NewRepository(tx).Debit(ctx, c.CreatorID, fee); err != nil {
				return fmt.Errorf("create capsule: %w", err)
			}
		}

		query := `
		INSERT INTO capsules (id, kind, creator_id, name, message, media, links,
		                      is_shared, unique_code, unlock_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING view_count, created_at, updated_at`

		err := tx.QueryRowxContext(ctx, query,
			c.ID,
			c.Kind,
			c.CreatorID,
			c.Name,
			c.Message,
			nonNil(c.Media),
			nonNil(c.Links),
			c.IsShared,
			c.UniqueCode,
			c.UnlockDate,
		).Scan(&c.ViewCount, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			if core.IsDuplicateKeyError(err) {
				return fmt.Errorf("create capsule: %w", core.ErrDuplicateKey)
			}
			return fmt.Errorf("create capsule: %w", err)
		}

		for _, email := range c.AllowedEmails {
			if _, err := tx.ExecContext(ctx, insertAccess, c.ID, email); err != nil {
				return fmt.Errorf("seed capsule access: %w", err)
			}
		}

		return nil
	})
}

func (r *repository) GetByID(ctx context.Context, id string) (*Capsule, error) {
	return r.getOne(ctx, "get capsule", capsuleSelect+` WHERE c.id = $1`, id)
}

func (r *repository) GetSharedByCode(
	ctx context.Context,
	code string,
) (*Capsule, error) {
	query := capsuleSelect + `
		WHERE c.unique_code = $1 AND c.kind = 'private' AND c.is_shared`
	return r.getOne(ctx, "get capsule by code", query, code)
}

// GetAssignedTo returns the earliest direct-assignment capsule seeded with
// email.
func (r *repository) GetAssignedTo(
	ctx context.Context,
	email string,
) (*Capsule, error) {
	query := capsuleSelect + `
		WHERE c.kind = 'private' AND NOT c.is_shared
		  AND EXISTS (
		      SELECT 1 FROM capsule_access ca
		      WHERE ca.capsule_id = c.id AND ca.email = $1
		  )
		ORDER BY c.created_at ASC
		LIMIT 1`
	return r.getOne(ctx, "get assigned capsule", query, email)
}

func (r *repository) getOne(
	ctx context.Context,
	op, query string,
	args ...any,
) (*Capsule, error) {
	var c Capsule
	err := r.db.GetContext(ctx, &c, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &c, nil
}

// Public streams public capsules ordered by unlock date. The cursor holds
// its pooled connection while the caller ranges, so callers must not issue
// other queries on the same pool until the sequence is done.
func (r *repository) Public(ctx context.Context) iter.Seq2[*Capsule, error] {
	return func(yield func(*Capsule, error) bool) {
		query := capsuleSelect + `
		WHERE c.kind = 'public'
		ORDER BY c.unlock_date ASC, c.created_at ASC`

		rows, err := r.db.QueryxContext(ctx, query)
		if err != nil {
			yield(nil, fmt.Errorf("list public capsules: %w", err))
			return
		}
		defer rows.Close() //nolint:errcheck // read-only cursor

		for rows.Next() {
			var c Capsule
			if err := rows.StructScan(&c); err != nil {
				yield(nil, fmt.Errorf("scan public capsule: %w", err))
				return
			}
			if !yield(&c, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("list public capsules: %w", err))
		}
	}
}

func (r *repository) IncrementViews(ctx context.Context, id string) (int, error) {
	query := `
		UPDATE capsules
		SET view_count = view_count + 1
		WHERE id = $1
		RETURNING view_count`

	var views int
	err := r.db.GetContext(ctx, &views, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("increment views: %w", core.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("increment views: %w", err)
	}

	return views, nil
}

func (r *repository) GrantAccess(
	ctx context.Context,
	capsuleID, accountID, email string,
	fee int,
) (bool, error) {
	var charged bool

	err := core.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, insertAccess, capsuleID, email)
		if err != nil {
			return fmt.Errorf("grant access: %w", err)
		}

		inserted, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("grant access: %w", err)
		}
		if inserted == 0 {
			return nil
		}

		if fee > 0 {
			if _, err := account.NewRepository(tx).Debit(ctx, accountID, fee); err != nil {
				return fmt.Errorf("grant access: %w", err)
			}
			charged = true
		}

		return nil
	})
	if err != nil {
		return false, err
	}

	return charged, nil
}

func (r *repository) Update(
	ctx context.Context,
	c *Capsule,
	addEmails []string,
) error {
	return core.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `
		UPDATE capsules
		SET name = $2, message = $3, media = $4, links = $5,
		    unlock_date = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

		err := tx.GetContext(ctx, &c.UpdatedAt, query,
			c.ID,
			c.Name,
			c.Message,
			nonNil(c.Media),
			nonNil(c.Links),
			c.UnlockDate,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("update capsule: %w", core.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("update capsule: %w", err)
		}

		for _, email := range addEmails {
			if _, err := tx.ExecContext(ctx, insertAccess, c.ID, email); err != nil {
				return fmt.Errorf("update capsule access: %w", err)
			}
		}

		return nil
	})
}

func (r *repository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM capsules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete capsule: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete capsule: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("delete capsule: %w", core.ErrNotFound)
	}

	return nil
}

func (r *repository) ListByCreator(
	ctx context.Context,
	creatorID string,
) ([]Capsule, error) {
	query := capsuleSelect + `
		WHERE c.creator_id = $1
		ORDER BY c.created_at DESC`

	var capsules []Capsule
	if err := r.db.SelectContext(ctx, &capsules, query, creatorID); err != nil {
		return nil, fmt.Errorf("list capsules by creator: %w", err)
	}

	return capsules, nil
}

func (r *repository) UnlockingOn(
	ctx context.Context,
	day time.Time,
) ([]Capsule, error) {
	query := capsuleSelect + `
		WHERE c.unlock_date = $1
		ORDER BY c.created_at ASC`

	var capsules []Capsule
	if err := r.db.SelectContext(ctx, &capsules, query, day); err != nil {
		return nil, fmt.Errorf("list capsules unlocking: %w", err)
	}

	return capsules, nil
}

func (r *repository) Counts(ctx context.Context, today time.Time) (Counts, error) {
	query := `
		SELECT COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE kind = 'public') AS public,
		       COUNT(*) FILTER (WHERE kind = 'private') AS private,
		       COUNT(*) FILTER (WHERE kind = 'private' AND is_shared) AS shared,
		       COUNT(*) FILTER (WHERE unlock_date <= $1) AS unlocked
		FROM capsules`

	var counts Counts
	if err := r.db.GetContext(ctx, &counts, query, today); err != nil {
		return Counts{}, fmt.Errorf("capsule counts: %w", err)
	}

	return counts, nil
}

// nonNil keeps array columns at '{}' rather than NULL.
func nonNil(a pq.StringArray) pq.StringArray {
	if a == nil {
		return pq.StringArray{}
	}
	return a
}
