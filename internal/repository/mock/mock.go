package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
	"github.com/Harsh-BH/sentinel-judge/internal/repository"
)

// ---- SubmissionRepository mock ----

var _ repository.SubmissionRepository = (*SubmissionRepository)(nil)

// SubmissionRepository is an in-memory test double that applies the same
// transition guard as the Postgres implementation.
type SubmissionRepository struct {
	mu          sync.RWMutex
	submissions map[uuid.UUID]*domain.Submission

	CreateFn       func(ctx context.Context, sub *domain.Submission) error
	GetByIDFn      func(ctx context.Context, id uuid.UUID) (*domain.Submission, error)
	ListFn         func(ctx context.Context, problemID string, limit int) ([]*domain.Submission, error)
	DeleteFn       func(ctx context.Context, id uuid.UUID) error
	UpdateStatusFn func(ctx context.Context, id uuid.UUID, status domain.SubmissionStatus, verdicts domain.VerdictMap) error
	PingFn         func(ctx context.Context) error

	StatusUpdates []StatusUpdate
}

// StatusUpdate records one UpdateStatus call.
type StatusUpdate struct {
	ID       uuid.UUID
	Status   domain.SubmissionStatus
	Verdicts domain.VerdictMap
}

// NewSubmissionRepository creates an empty mock repository.
func NewSubmissionRepository() *SubmissionRepository {
	return &SubmissionRepository{submissions: make(map[uuid.UUID]*domain.Submission)}
}

func (m *SubmissionRepository) Create(ctx context.Context, sub *domain.Submission) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, sub)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
		sub.UpdatedAt = sub.CreatedAt
	}
	cp := *sub
	m.submissions[sub.ID] = &cp
	return nil
}

func (m *SubmissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Submission, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.submissions[id]
	if !ok {
		return nil, domain.ErrSubmissionNotFound
	}
	cp := *sub
	return &cp, nil
}

func (m *SubmissionRepository) ListByProblem(ctx context.Context, problemID string, limit int) ([]*domain.Submission, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, problemID, limit)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Submission, 0)
	for _, sub := range m.submissions {
		if sub.ProblemID == problemID {
			cp := *sub
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *SubmissionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.submissions[id]; !ok {
		return domain.ErrSubmissionNotFound
	}
	delete(m.submissions, id)
	return nil
}

func (m *SubmissionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SubmissionStatus, verdicts domain.VerdictMap) error {
	m.mu.Lock()
	m.StatusUpdates = append(m.StatusUpdates, StatusUpdate{ID: id, Status: status, Verdicts: verdicts})
	m.mu.Unlock()
	if m.UpdateStatusFn != nil {
		return m.UpdateStatusFn(ctx, id, status, verdicts)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.submissions[id]
	if !ok {
		return domain.ErrSubmissionNotFound
	}
	if !domain.CanTransition(sub.Status, status) {
		return domain.ErrInvalidTransition
	}
	sub.Status = status
	if verdicts != nil {
		sub.Verdicts = verdicts
	}
	return nil
}

func (m *SubmissionRepository) Ping(ctx context.Context) error {
	if m.PingFn != nil {
		return m.PingFn(ctx)
	}
	return nil
}

// ---- IdempotencyStore mock ----

var _ repository.IdempotencyStore = (*IdempotencyStore)(nil)

// IdempotencyStore is a test double for repository.IdempotencyStore.
type IdempotencyStore struct {
	mu sync.Mutex

	AcquireLockFn   func(ctx context.Context, id uuid.UUID) (repository.LockState, error)
	RefreshLockFn   func(ctx context.Context, id uuid.UUID) error
	ReleaseLockFn   func(ctx context.Context, id uuid.UUID) error
	MarkCompletedFn func(ctx context.Context, id uuid.UUID) error

	AcquireCalls   []uuid.UUID
	RefreshCalls   []uuid.UUID
	ReleaseCalls   []uuid.UUID
	CompletedCalls []uuid.UUID
}

func (m *IdempotencyStore) AcquireLock(ctx context.Context, id uuid.UUID) (repository.LockState, error) {
	m.mu.Lock()
	m.AcquireCalls = append(m.AcquireCalls, id)
	m.mu.Unlock()
	if m.AcquireLockFn != nil {
		return m.AcquireLockFn(ctx, id)
	}
	return repository.LockAcquired, nil
}

func (m *IdempotencyStore) RefreshLock(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	m.RefreshCalls = append(m.RefreshCalls, id)
	m.mu.Unlock()
	if m.RefreshLockFn != nil {
		return m.RefreshLockFn(ctx, id)
	}
	return nil
}

// Refreshes returns how many times RefreshLock was called.
func (m *IdempotencyStore) Refreshes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.RefreshCalls)
}

func (m *IdempotencyStore) ReleaseLock(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	m.ReleaseCalls = append(m.ReleaseCalls, id)
	m.mu.Unlock()
	if m.ReleaseLockFn != nil {
		return m.ReleaseLockFn(ctx, id)
	}
	return nil
}

func (m *IdempotencyStore) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	m.CompletedCalls = append(m.CompletedCalls, id)
	m.mu.Unlock()
	if m.MarkCompletedFn != nil {
		return m.MarkCompletedFn(ctx, id)
	}
	return nil
}

// ---- ProblemFetcher mock ----

var _ repository.ProblemFetcher = (*ProblemFetcher)(nil)

// ProblemFetcher serves problems from a map.
type ProblemFetcher struct {
	Problems     map[string]*domain.Problem
	GetProblemFn func(ctx context.Context, problemID string) (*domain.Problem, error)
}

func (m *ProblemFetcher) GetProblem(ctx context.Context, problemID string) (*domain.Problem, error) {
	if m.GetProblemFn != nil {
		return m.GetProblemFn(ctx, problemID)
	}
	p, ok := m.Problems[problemID]
	if !ok {
		return nil, domain.ErrProblemNotFound
	}
	cp := *p
	cp.TestCases = append([]domain.TestCase(nil), p.TestCases...)
	return &cp, nil
}

// ---- ResultDeliverer mock ----

var _ repository.ResultDeliverer = (*ResultDeliverer)(nil)

// ResultDeliverer records deliveries.
type ResultDeliverer struct {
	mu sync.Mutex

	DeliverFn func(ctx context.Context, id uuid.UUID, status domain.SubmissionStatus, verdicts domain.VerdictMap) error

	Deliveries []StatusUpdate
}

func (m *ResultDeliverer) Deliver(ctx context.Context, id uuid.UUID, status domain.SubmissionStatus, verdicts domain.VerdictMap) error {
	m.mu.Lock()
	m.Deliveries = append(m.Deliveries, StatusUpdate{ID: id, Status: status, Verdicts: verdicts})
	m.mu.Unlock()
	if m.DeliverFn != nil {
		return m.DeliverFn(ctx, id, status, verdicts)
	}
	return nil
}

// Statuses returns the delivered statuses in order.
func (m *ResultDeliverer) Statuses() []domain.SubmissionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.SubmissionStatus, len(m.Deliveries))
	for i, d := range m.Deliveries {
		out[i] = d.Status
	}
	return out
}

// ---- Evaluator mock ----

var _ repository.Evaluator = (*Evaluator)(nil)

// Evaluator is a test double for repository.Evaluator. By default every
// test case is accepted.
type Evaluator struct {
	mu sync.Mutex

	EvaluateFn func(ctx context.Context, job *domain.EvaluationJob) (domain.VerdictMap, error)

	EvaluateCalls []*domain.EvaluationJob
}

func (m *Evaluator) Evaluate(ctx context.Context, job *domain.EvaluationJob) (domain.VerdictMap, error) {
	m.mu.Lock()
	m.EvaluateCalls = append(m.EvaluateCalls, job)
	m.mu.Unlock()
	if m.EvaluateFn != nil {
		return m.EvaluateFn(ctx, job)
	}
	out := make(domain.VerdictMap, len(job.Problem.TestCases))
	for _, tc := range job.Problem.TestCases {
		out[tc.ID] = domain.VerdictAccepted
	}
	return out, nil
}

// ---- Leaderboard mock ----

var _ repository.Leaderboard = (*Leaderboard)(nil)

// Leaderboard is a test double for repository.Leaderboard.
type Leaderboard struct {
	mu sync.Mutex

	CreditFn func(ctx context.Context, submissionID, userID string, difficulty domain.Difficulty) (bool, error)
	TopKFn   func(ctx context.Context, scope domain.Scope, limit int) ([]domain.LeaderboardEntry, error)

	Credits []Credit
	Limits  []int
}

// Credit records one Credit call.
type Credit struct {
	SubmissionID string
	UserID       string
	Difficulty   domain.Difficulty
}

func (m *Leaderboard) Credit(ctx context.Context, submissionID, userID string, difficulty domain.Difficulty) (bool, error) {
	m.mu.Lock()
	m.Credits = append(m.Credits, Credit{SubmissionID: submissionID, UserID: userID, Difficulty: difficulty})
	m.mu.Unlock()
	if m.CreditFn != nil {
		return m.CreditFn(ctx, submissionID, userID, difficulty)
	}
	return true, nil
}

func (m *Leaderboard) TopK(ctx context.Context, scope domain.Scope, limit int) ([]domain.LeaderboardEntry, error) {
	m.mu.Lock()
	m.Limits = append(m.Limits, limit)
	m.mu.Unlock()
	if m.TopKFn != nil {
		return m.TopKFn(ctx, scope, limit)
	}
	return []domain.LeaderboardEntry{}, nil
}
