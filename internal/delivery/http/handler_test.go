package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
	mockpub "github.com/Harsh-BH/sentinel-judge/internal/publisher/mock"
	mockrepo "github.com/Harsh-BH/sentinel-judge/internal/repository/mock"
	"github.com/Harsh-BH/sentinel-judge/internal/sandbox"
	"github.com/Harsh-BH/sentinel-judge/internal/usecase"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router   *gin.Engine
	repo     *mockrepo.SubmissionRepository
	pub      *mockpub.MockPublisher
	problems *mockrepo.ProblemFetcher
	board    *mockrepo.Leaderboard
}

func setupTestRouter(t *testing.T, checks map[string]Checker) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	repo := mockrepo.NewSubmissionRepository()
	pub := mockpub.NewMockPublisher()
	problems := &mockrepo.ProblemFetcher{Problems: map[string]*domain.Problem{
		"p1": {ID: "p1", Difficulty: domain.DifficultyEasy, TestCases: []domain.TestCase{
			{ID: "tc1", Input: "1", Output: "1"},
			{ID: "tc2", Input: "2", Output: "2"},
		}},
	}}
	board := &mockrepo.Leaderboard{}
	registry := sandbox.NewRegistry(
		sandbox.PythonProfile("python:3.8-slim", 4*time.Second, 256<<20),
		sandbox.CppProfile("gcc:latest", 4*time.Second, 256<<20),
	)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	router := NewRouter(ctx, RouterDeps{
		SubmitUC:        usecase.NewSubmitSubmissionUsecase(repo, problems, pub, registry, logger),
		GetUC:           usecase.NewGetSubmissionUsecase(repo, logger),
		UpdateUC:        usecase.NewUpdateStatusUsecase(repo, logger),
		ListUC:          usecase.NewListSubmissionsUsecase(repo),
		DeleteUC:        usecase.NewDeleteSubmissionUsecase(repo, logger),
		LeaderboardUC:   usecase.NewGetLeaderboardUsecase(board, 100, 1000),
		Languages:       registry,
		HealthChecks:    checks,
		RateLimitPerMin: 3,
		MaxBodyBytes:    2 << 20,
		ServiceToken:    testServiceToken,
		Logger:          logger,
	})
	return &testEnv{router: router, repo: repo, pub: pub, problems: problems, board: board}
}

const testServiceToken = "internal-test-token"

func doJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	return doJSONWithHeaders(router, method, path, body, nil)
}

// doInternal calls a route reserved for internal callers.
func doInternal(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	return doJSONWithHeaders(router, method, path, body, map[string]string{
		"Authorization": "Bearer " + testServiceToken,
	})
}

func doJSONWithHeaders(router *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func submitBody() map[string]any {
	return map[string]any{
		"userId":    "u1",
		"problemId": "p1",
		"code":      "print(input())",
		"language":  "python",
	}
}

func TestSubmitHandler_Success(t *testing.T) {
	env := setupTestRouter(t, nil)

	w := doJSON(env.router, http.MethodPost, "/api/v1/submissions", submitBody())
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	var resp domain.SubmitResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.SubmissionID == uuid.Nil || resp.Status != domain.StatusPending {
		t.Errorf("unexpected response %+v", resp)
	}
	if len(env.pub.Published) != 1 {
		t.Errorf("expected 1 published job, got %d", len(env.pub.Published))
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}
}

func TestSubmitHandler_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(b map[string]any)
		setup  func(env *testEnv)
		want   int
	}{
		{"unsupported language", func(b map[string]any) { b["language"] = "ruby" }, nil, http.StatusBadRequest},
		{"missing code", func(b map[string]any) { delete(b, "code") }, nil, http.StatusBadRequest},
		{"blank code", func(b map[string]any) { b["code"] = "   " }, nil, http.StatusBadRequest},
		{"code too large", func(b map[string]any) { b["code"] = strings.Repeat("x", 1<<20+1) }, nil, http.StatusRequestEntityTooLarge},
		{"unknown problem", func(b map[string]any) { b["problemId"] = "nope" }, nil, http.StatusNotFound},
		{"problem service sends bad data", nil, func(env *testEnv) {
			env.problems.GetProblemFn = func(ctx context.Context, id string) (*domain.Problem, error) {
				return nil, fmt.Errorf("%w: %w", domain.ErrInvalidProblemData, domain.ErrInvalidDifficulty)
			}
		}, http.StatusBadGateway},
		{"problem service down", nil, func(env *testEnv) {
			env.problems.GetProblemFn = func(ctx context.Context, id string) (*domain.Problem, error) {
				return nil, domain.ErrProblemServiceUnavailable
			}
		}, http.StatusServiceUnavailable},
		{"queue down", nil, func(env *testEnv) {
			env.pub.PublishFn = func(ctx context.Context, job *domain.EvaluationJob) error {
				return errors.New("connection closed")
			}
		}, http.StatusServiceUnavailable},
		{"repository failure", nil, func(env *testEnv) {
			env.repo.CreateFn = func(ctx context.Context, sub *domain.Submission) error {
				return errors.New("pool exhausted")
			}
		}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestRouter(t, nil)
			if tt.setup != nil {
				tt.setup(env)
			}
			body := submitBody()
			if tt.mutate != nil {
				tt.mutate(body)
			}
			w := doJSON(env.router, http.MethodPost, "/api/v1/submissions", body)
			if w.Code != tt.want {
				t.Errorf("expected status %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestSubmitHandler_BodyTooLarge(t *testing.T) {
	env := setupTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", strings.NewReader(strings.Repeat("x", 3<<20)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected status 413, got %d", w.Code)
	}
}

func TestSubmitHandler_RateLimited(t *testing.T) {
	env := setupTestRouter(t, nil)

	var last *httptest.ResponseRecorder
	for i := 0; i < 4; i++ {
		last = doJSON(env.router, http.MethodPost, "/api/v1/submissions", submitBody())
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", last.Code)
	}
	if !strings.Contains(last.Body.String(), "Maximum 3 requests per minute") {
		t.Errorf("unexpected rate limit message: %s", last.Body.String())
	}
}

func TestGetHandler(t *testing.T) {
	env := setupTestRouter(t, nil)
	id := uuid.New()
	_ = env.repo.Create(context.Background(), &domain.Submission{ID: id, UserID: "u1", Status: domain.StatusPending})

	w := doJSON(env.router, http.MethodGet, "/api/v1/submissions/"+id.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var sub domain.Submission
	if err := json.Unmarshal(w.Body.Bytes(), &sub); err != nil || sub.ID != id {
		t.Errorf("unexpected body %s (%v)", w.Body.String(), err)
	}

	if w := doJSON(env.router, http.MethodGet, "/api/v1/submissions/"+uuid.NewString(), nil); w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
	if w := doJSON(env.router, http.MethodGet, "/api/v1/submissions/not-a-uuid", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestUpdateStatusHandler(t *testing.T) {
	tests := []struct {
		name string
		from domain.SubmissionStatus
		body map[string]any
		want int
	}{
		{"processing", domain.StatusPending, map[string]any{"status": "processing"}, http.StatusOK},
		{"completed", domain.StatusProcessing, map[string]any{
			"status":         "completed",
			"submissionData": map[string]string{"tc1": "AC", "tc2": "WA"},
		}, http.StatusOK},
		{"terminal is final", domain.StatusCompleted, map[string]any{"status": "failed"}, http.StatusConflict},
		{"verdict set mismatch", domain.StatusProcessing, map[string]any{
			"status":         "completed",
			"submissionData": map[string]string{"tc1": "AC"},
		}, http.StatusUnprocessableEntity},
		{"unknown status", domain.StatusPending, map[string]any{"status": "judging"}, http.StatusBadRequest},
		{"missing status", domain.StatusPending, map[string]any{}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestRouter(t, nil)
			id := uuid.New()
			_ = env.repo.Create(context.Background(), &domain.Submission{
				ID:          id,
				Status:      tt.from,
				Verdicts:    domain.VerdictMap{},
				TestCaseIDs: []string{"tc1", "tc2"},
			})

			w := doInternal(env.router, http.MethodPatch, "/api/v1/submissions/"+id.String()+"/status", tt.body)
			if w.Code != tt.want {
				t.Errorf("expected status %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestUpdateStatusHandler_RequiresServiceToken(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
	}{
		{"no credentials", nil},
		{"wrong token", map[string]string{"Authorization": "Bearer nope"}},
		{"wrong scheme", map[string]string{"Authorization": "Basic " + testServiceToken}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestRouter(t, nil)
			id := uuid.New()
			_ = env.repo.Create(context.Background(), &domain.Submission{
				ID:          id,
				Status:      domain.StatusProcessing,
				Verdicts:    domain.VerdictMap{},
				TestCaseIDs: []string{"tc1", "tc2"},
			})

			w := doJSONWithHeaders(env.router, http.MethodPatch, "/api/v1/submissions/"+id.String()+"/status", map[string]any{
				"status":         "completed",
				"submissionData": map[string]string{"tc1": "AC", "tc2": "AC"},
			}, tt.headers)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("expected status 401, got %d: %s", w.Code, w.Body.String())
			}
			if len(env.repo.StatusUpdates) != 0 {
				t.Error("an unauthenticated caller must not change the submission")
			}
			sub, _ := env.repo.GetByID(context.Background(), id)
			if sub.Status != domain.StatusProcessing {
				t.Errorf("expected submission to stay processing, got %s", sub.Status)
			}
		})
	}
}

func TestListHandler(t *testing.T) {
	env := setupTestRouter(t, nil)
	for i := 0; i < 2; i++ {
		_ = env.repo.Create(context.Background(), &domain.Submission{ID: uuid.New(), ProblemID: "p1", Status: domain.StatusPending})
	}
	_ = env.repo.Create(context.Background(), &domain.Submission{ID: uuid.New(), ProblemID: "p2", Status: domain.StatusPending})

	w := doJSON(env.router, http.MethodGet, "/api/v1/submissions?problemId=p1&limit=x", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Success bool                `json:"success"`
		Data    []domain.Submission `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if !resp.Success || len(resp.Data) != 2 {
		t.Fatalf("expected 2 submissions for p1, got %+v", resp)
	}
	for _, sub := range resp.Data {
		if sub.ProblemID != "p1" {
			t.Errorf("unexpected problem %q in list", sub.ProblemID)
		}
	}

	w = doJSON(env.router, http.MethodGet, "/api/v1/submissions?problemId=none", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"data":[]`) {
		t.Errorf("expected empty list, got %d: %s", w.Code, w.Body.String())
	}

	if w := doJSON(env.router, http.MethodGet, "/api/v1/submissions", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 without problemId, got %d", w.Code)
	}
}

func TestDeleteHandler(t *testing.T) {
	env := setupTestRouter(t, nil)
	id := uuid.New()
	_ = env.repo.Create(context.Background(), &domain.Submission{ID: id, ProblemID: "p1", Status: domain.StatusCompleted})
	path := "/api/v1/submissions/" + id.String()

	if w := doJSON(env.router, http.MethodDelete, path, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 without token, got %d", w.Code)
	}

	if w := doInternal(env.router, http.MethodDelete, path, nil); w.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d: %s", w.Code, w.Body.String())
	}
	if w := doJSON(env.router, http.MethodGet, path, nil); w.Code != http.StatusNotFound {
		t.Errorf("expected deleted submission to be gone, got %d", w.Code)
	}
	if w := doInternal(env.router, http.MethodDelete, path, nil); w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 on second delete, got %d", w.Code)
	}
	if w := doInternal(env.router, http.MethodDelete, "/api/v1/submissions/not-a-uuid", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for bad id, got %d", w.Code)
	}
}

func TestLeaderboardHandler(t *testing.T) {
	env := setupTestRouter(t, nil)
	env.board.TopKFn = func(ctx context.Context, scope domain.Scope, limit int) ([]domain.LeaderboardEntry, error) {
		return []domain.LeaderboardEntry{{UserID: "u1", Score: 30, Rank: 1}}, nil
	}

	w := doJSON(env.router, http.MethodGet, "/api/v1/leaderboard/global?limit=abc", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp struct {
		Success bool                      `json:"success"`
		Data    []domain.LeaderboardEntry `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if !resp.Success || len(resp.Data) != 1 || resp.Data[0].UserID != "u1" {
		t.Errorf("unexpected response %+v", resp)
	}
	if env.board.Limits[0] != 100 {
		t.Errorf("expected default limit for non-numeric input, got %d", env.board.Limits[0])
	}

	if w := doJSON(env.router, http.MethodGet, "/api/v1/leaderboard/monthly", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for unknown board, got %d", w.Code)
	}
}

func TestLanguageHandler(t *testing.T) {
	env := setupTestRouter(t, nil)

	w := doJSON(env.router, http.MethodGet, "/api/v1/languages", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp struct {
		Languages []domain.LanguageInfo `json:"languages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if len(resp.Languages) != 2 {
		t.Errorf("expected 2 languages, got %d", len(resp.Languages))
	}
}

func TestHealthHandler(t *testing.T) {
	ok := func(ctx context.Context) error { return nil }
	down := func(ctx context.Context) error { return errors.New("connection refused") }

	env := setupTestRouter(t, map[string]Checker{"postgres": ok, "redis": ok})
	if w := doJSON(env.router, http.MethodGet, "/api/v1/health", nil); w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	env = setupTestRouter(t, map[string]Checker{"postgres": ok, "rabbitmq": down})
	w := doJSON(env.router, http.MethodGet, "/api/v1/health", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"rabbitmq":"down"`) {
		t.Errorf("expected rabbitmq to be reported down: %s", w.Body.String())
	}
}

func TestStreamHandler(t *testing.T) {
	env := setupTestRouter(t, nil)
	id := uuid.New()
	_ = env.repo.Create(context.Background(), &domain.Submission{
		ID:          id,
		Status:      domain.StatusPending,
		Verdicts:    domain.VerdictMap{},
		TestCaseIDs: []string{"tc1"},
	})

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/submissions/" + id.String() + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first domain.Submission
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read first frame: %v", err)
	}
	if first.Status != domain.StatusPending {
		t.Errorf("expected pending first, got %s", first.Status)
	}

	_ = env.repo.UpdateStatus(context.Background(), id, domain.StatusCompleted, domain.VerdictMap{"tc1": domain.VerdictAccepted})

	var last domain.Submission
	if err := conn.ReadJSON(&last); err != nil {
		t.Fatalf("read terminal frame: %v", err)
	}
	if last.Status != domain.StatusCompleted || last.Verdicts["tc1"] != domain.VerdictAccepted {
		t.Errorf("unexpected terminal frame %+v", last)
	}

	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected normal close, got %v", err)
	}
}
