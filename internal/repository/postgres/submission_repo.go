package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
	"github.com/Harsh-BH/sentinel-judge/internal/repository"
)

// Ensure pgSubmissionRepo implements repository.SubmissionRepository.
var _ repository.SubmissionRepository = (*pgSubmissionRepo)(nil)

type pgSubmissionRepo struct {
	pool *pgxpool.Pool
}

// NewPostgresSubmissionRepository creates a PostgreSQL-backed submission repository.
func NewPostgresSubmissionRepository(pool *pgxpool.Pool) repository.SubmissionRepository {
	return &pgSubmissionRepo{pool: pool}
}

func (r *pgSubmissionRepo) Create(ctx context.Context, sub *domain.Submission) error {
	query := `
		INSERT INTO submissions (id, user_id, problem_id, difficulty, language, code, status, verdicts, test_case_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	verdicts, err := encodeVerdicts(sub.Verdicts)
	if err != nil {
		return fmt.Errorf("postgres: create submission: %w", err)
	}
	if verdicts == nil {
		verdicts = []byte("{}")
	}

	now := time.Now().UTC()
	_, err = r.pool.Exec(ctx, query,
		sub.ID, sub.UserID, sub.ProblemID, sub.Difficulty, sub.Language, sub.Code,
		sub.Status, verdicts, sub.TestCaseIDs, now, now,
	)
	if err != nil {
		return fmt.Errorf("postgres: create submission: %w", err)
	}
	sub.CreatedAt = now
	sub.UpdatedAt = now
	return nil
}

const selectSubmission = `
	SELECT id, user_id, problem_id, difficulty, language, code, status,
	       verdicts, test_case_ids, created_at, updated_at
	FROM submissions`

func (r *pgSubmissionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Submission, error) {
	sub, err := scanSubmission(r.pool.QueryRow(ctx, selectSubmission+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSubmissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get submission by id: %w", err)
	}
	return sub, nil
}

func (r *pgSubmissionRepo) ListByProblem(ctx context.Context, problemID string, limit int) ([]*domain.Submission, error) {
	rows, err := r.pool.Query(ctx,
		selectSubmission+` WHERE problem_id = $1 ORDER BY created_at DESC, id LIMIT $2`,
		problemID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list submissions: %w", err)
	}
	defer rows.Close()

	subs := make([]*domain.Submission, 0)
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: list submissions: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list submissions: %w", err)
	}
	return subs, nil
}

func (r *pgSubmissionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM submissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubmissionNotFound
	}
	return nil
}

// UpdateStatus applies the transition only from an allowed source status.
// A nil verdict map leaves the stored verdicts untouched.
func (r *pgSubmissionRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SubmissionStatus, verdicts domain.VerdictMap) error {
	sources := domain.TransitionSources(status)
	if len(sources) == 0 {
		return domain.ErrInvalidStatus
	}
	allowed := make([]string, len(sources))
	for i, s := range sources {
		allowed[i] = string(s)
	}

	encoded, err := encodeVerdicts(verdicts)
	if err != nil {
		return fmt.Errorf("postgres: update status: %w", err)
	}

	query := `
		UPDATE submissions
		SET status = $1, verdicts = COALESCE($2::jsonb, verdicts), updated_at = $3
		WHERE id = $4 AND status = ANY($5)`

	tag, err := r.pool.Exec(ctx, query, status, encoded, time.Now().UTC(), id, allowed)
	if err != nil {
		return fmt.Errorf("postgres: update status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM submissions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: update status: %w", err)
	}
	if !exists {
		return domain.ErrSubmissionNotFound
	}
	return domain.ErrInvalidTransition
}

func (r *pgSubmissionRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanSubmission(row pgx.Row) (*domain.Submission, error) {
	sub := &domain.Submission{}
	var verdicts []byte
	err := row.Scan(
		&sub.ID, &sub.UserID, &sub.ProblemID, &sub.Difficulty, &sub.Language, &sub.Code,
		&sub.Status, &verdicts, &sub.TestCaseIDs, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(verdicts) > 0 {
		if err := json.Unmarshal(verdicts, &sub.Verdicts); err != nil {
			return nil, fmt.Errorf("decode verdicts: %w", err)
		}
	}
	return sub, nil
}

func encodeVerdicts(v domain.VerdictMap) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
