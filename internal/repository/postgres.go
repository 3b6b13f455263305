package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallbiznis/valora-filing/internal/domain/filing"
)

const schema = `
CREATE TABLE IF NOT EXISTS form_submissions (
	id            BIGINT PRIMARY KEY,
	form_type     TEXT        NOT NULL,
	submission_id TEXT        NOT NULL DEFAULT '',
	state         TEXT        NOT NULL,
	document      JSONB       NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS form_submissions_state_idx ON form_submissions (state);
CREATE INDEX IF NOT EXISTS form_submissions_form_type_idx ON form_submissions (form_type);
`

var _ SubmissionRepository = (*PostgresSubmissionRepo)(nil)

// PostgresSubmissionRepo stores each submission as a JSONB document with its
// filterable columns lifted out.
type PostgresSubmissionRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresSubmissionRepo(pool *pgxpool.Pool) *PostgresSubmissionRepo {
	return &PostgresSubmissionRepo{pool: pool}
}

// EnsureSchema creates the submissions table when it does not exist.
func (r *PostgresSubmissionRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (r *PostgresSubmissionRepo) Save(ctx context.Context, sub *filing.FormSubmission) error {
	doc, err := sonic.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO form_submissions (id, form_type, submission_id, state, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			submission_id = EXCLUDED.submission_id,
			state         = EXCLUDED.state,
			document      = EXCLUDED.document,
			updated_at    = EXCLUDED.updated_at
		WHERE form_submissions.state = EXCLUDED.state
			OR (form_submissions.state = 'InProgress' AND EXCLUDED.state IN ('Filed', 'Rejected'))
			OR (form_submissions.state = 'Filed' AND EXCLUDED.state IN ('Accepted', 'Rejected'))`,
		sub.ID, sub.FormType, sub.SubmissionID, string(sub.State), doc, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("save submission %d as %s: %w", sub.ID, sub.State, filing.ErrInvalidTransition)
	}
	return nil
}

func (r *PostgresSubmissionRepo) Get(ctx context.Context, id int64) (*filing.FormSubmission, error) {
	var doc []byte
	err := r.pool.QueryRow(ctx, `SELECT document FROM form_submissions WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("submission %d: %w", id, filing.ErrSubmissionNotFound)
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return decodeSubmission(doc)
}

func (r *PostgresSubmissionRepo) List(ctx context.Context, filter ListFilter) ([]*filing.FormSubmission, error) {
	var (
		where []string
		args  []any
	)
	if filter.FormType != "" {
		args = append(args, filter.FormType)
		where = append(where, fmt.Sprintf("form_type = $%d", len(args)))
	}
	if filter.State != "" {
		args = append(args, string(filter.State))
		where = append(where, fmt.Sprintf("state = $%d", len(args)))
	}
	query := `SELECT document FROM form_submissions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	out := []*filing.FormSubmission{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		sub, err := decodeSubmission(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return out, nil
}

func (r *PostgresSubmissionRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM form_submissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("submission %d: %w", id, filing.ErrSubmissionNotFound)
	}
	return nil
}

func decodeSubmission(doc []byte) (*filing.FormSubmission, error) {
	var sub filing.FormSubmission
	if err := sonic.Unmarshal(doc, &sub); err != nil {
		return nil, fmt.Errorf("decode submission: %w", err)
	}
	return &sub, nil
}
