package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
)

// problemEnvelope is the Problem Service response body.
type problemEnvelope struct {
	Success bool           `json:"success"`
	Data    domain.Problem `json:"data"`
}

// ProblemClient fetches problems from the external Problem Service.
type ProblemClient struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewProblemClient creates a Problem Service client.
func NewProblemClient(baseURL string, httpClient *http.Client, logger *zap.Logger) *ProblemClient {
	return &ProblemClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logger,
	}
}

// GetProblem returns the problem with its test cases and a normalized
// difficulty.
func (c *ProblemClient) GetProblem(ctx context.Context, problemID string) (*domain.Problem, error) {
	endpoint := fmt.Sprintf("%s/problems/%s", c.baseURL, url.PathEscape(problemID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("client: build problem request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrProblemServiceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrProblemNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", domain.ErrProblemServiceUnavailable, resp.StatusCode)
	}

	var env problemEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", domain.ErrInvalidProblemData, err)
	}
	if !env.Success {
		return nil, domain.ErrProblemNotFound
	}

	difficulty, err := domain.ParseDifficulty(string(env.Data.Difficulty))
	if err != nil {
		c.logger.Warn("problem has unknown difficulty",
			zap.String("problem_id", problemID),
			zap.String("difficulty", string(env.Data.Difficulty)),
		)
		return nil, fmt.Errorf("%w: %w: %q", domain.ErrInvalidProblemData, err, env.Data.Difficulty)
	}
	problem := env.Data
	problem.Difficulty = difficulty
	if problem.ID == "" {
		problem.ID = problemID
	}
	return &problem, nil
}
