package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/curameet/curameet/internal/platform/db"
)

type storePG struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) Store {
	return &storePG{pool: pool}
}

func (s *storePG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, s.pool)
}

const entryColumns = `id, user_id, role, action, method, path, status,
	ip_address, user_agent, request_id, created_at`

func (s *storePG) Record(ctx context.Context, e *Entry) error {
	e.ID = uuid.New()
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO activity_log (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.UserID, e.Role, e.Action, e.Method, e.Path, e.Status,
		e.IPAddress, e.UserAgent, e.RequestID, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (s *storePG) Query(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	where, args := buildWhere(f)

	var total int
	if err := s.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM activity_log`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count activity: %w", err)
	}

	idx := len(args) + 1
	query := `SELECT ` + entryColumns + ` FROM activity_log` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := s.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query activity: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// buildWhere appends one placeholder per set filter field.
func buildWhere(f Filter) (string, []interface{}) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.UserID != nil {
		where += fmt.Sprintf(` AND user_id = $%d`, idx)
		args = append(args, *f.UserID)
		idx++
	}
	if f.Action != "" {
		where += fmt.Sprintf(` AND action = $%d`, idx)
		args = append(args, f.Action)
		idx++
	}
	if f.From != nil {
		where += fmt.Sprintf(` AND created_at >= $%d`, idx)
		args = append(args, *f.From)
		idx++
	}
	if f.To != nil {
		where += fmt.Sprintf(` AND created_at <= $%d`, idx)
		args = append(args, *f.To)
	}
	return where, args
}

func (s *storePG) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.conn(ctx).Exec(ctx, `DELETE FROM activity_log WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune activity: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(
		&e.ID, &e.UserID, &e.Role, &e.Action, &e.Method, &e.Path, &e.Status,
		&e.IPAddress, &e.UserAgent, &e.RequestID, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
