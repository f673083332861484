package mock

import (
	"context"
	"sync"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
	"github.com/Harsh-BH/sentinel-judge/internal/publisher"
)

// Ensure MockPublisher implements publisher.Publisher.
var _ publisher.Publisher = (*MockPublisher)(nil)

// MockPublisher is a mock job publisher for testing.
type MockPublisher struct {
	mu        sync.Mutex
	Published []*domain.EvaluationJob
	PublishFn func(ctx context.Context, job *domain.EvaluationJob) error
	Down      bool
}

// NewMockPublisher creates a new mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, job *domain.EvaluationJob) error {
	if m.PublishFn != nil {
		return m.PublishFn(ctx, job)
	}
	m.mu.Lock()
	m.Published = append(m.Published, job)
	m.mu.Unlock()
	return nil
}

func (m *MockPublisher) Healthy() bool {
	return !m.Down
}

func (m *MockPublisher) Close() error {
	return nil
}
