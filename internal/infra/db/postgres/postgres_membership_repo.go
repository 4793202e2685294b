package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"product-entitlements/internal/domain/model"
	"product-entitlements/internal/domain/ports/repository"
)

var _ repository.MembershipRepository = (*membershipRepo)(nil)

type membershipRepo struct {
	pool *pgxpool.Pool
}

func NewMembershipRepo(pool *pgxpool.Pool) *membershipRepo {
	return &membershipRepo{pool: pool}
}

const membershipColumns = `user_id, level, expires_at, activated_at, updated_at`

func (r *membershipRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Membership, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+membershipColumns+` FROM memberships WHERE user_id=$1`, userID)
	if err != nil {
		return nil, err
	}
	return scanMembership(row)
}

// LockForUpdate must run inside a transaction for the row lock to hold.
func (r *membershipRepo) LockForUpdate(ctx context.Context, tx repository.Tx, userID string) (*model.Membership, error) {
	if _, err := execSQL(ctx, r.pool, tx, `
		INSERT INTO memberships (user_id, level, updated_at)
		VALUES ($1, 'none', NOW())
		ON CONFLICT (user_id) DO NOTHING
	`, userID); err != nil {
		return nil, translateErr(err)
	}
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+membershipColumns+` FROM memberships WHERE user_id=$1 FOR UPDATE`, userID)
	if err != nil {
		return nil, err
	}
	return scanMembership(row)
}

func (r *membershipRepo) Save(ctx context.Context, tx repository.Tx, m *model.Membership) error {
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now()
	}
	_, err := execSQL(ctx, r.pool, tx, `
		INSERT INTO memberships (user_id, level, expires_at, activated_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			level = EXCLUDED.level,
			expires_at = EXCLUDED.expires_at,
			activated_at = EXCLUDED.activated_at,
			updated_at = EXCLUDED.updated_at
	`, m.UserID, string(m.Level), m.ExpiresAt, m.ActivatedAt, m.UpdatedAt)
	return translateErr(err)
}

func (r *membershipRepo) CountActiveByLevel(ctx context.Context, tx repository.Tx, now time.Time) (map[model.Level]int, error) {
	rows, err := queryRows(ctx, r.pool, tx, `
		SELECT level, COUNT(*)
		FROM memberships
		WHERE level <> 'none' AND (expires_at IS NULL OR expires_at > $1)
		GROUP BY level
	`, now)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	out := make(map[model.Level]int)
	for rows.Next() {
		var level string
		var n int
		if err := rows.Scan(&level, &n); err != nil {
			return nil, translateErr(err)
		}
		out[model.Level(level)] = n
	}
	return out, translateErr(rows.Err())
}

func scanMembership(row scanner) (*model.Membership, error) {
	var m model.Membership
	var level string
	if err := row.Scan(&m.UserID, &level, &m.ExpiresAt, &m.ActivatedAt, &m.UpdatedAt); err != nil {
		return nil, translateErr(err)
	}
	m.Level = model.Level(level)
	return &m, nil
}
