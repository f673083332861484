package ranking

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
)

const (
	memberPrefix   = "user:"
	creditedPrefix = "leaderboard:credited:"
)

// DefaultPoints is the score awarded per fully accepted submission.
var DefaultPoints = map[domain.Difficulty]int64{
	domain.DifficultyEasy:   10,
	domain.DifficultyMedium: 20,
	domain.DifficultyHard:   30,
}

// creditScript marks the submission as credited and bumps both boards in
// one step. Returns 1 if points were awarded, 0 if already credited.
var creditScript = goredis.NewScript(`
if not redis.call('SET', KEYS[3], ARGV[3], 'NX') then
  return 0
end
redis.call('ZINCRBY', KEYS[1], ARGV[1], ARGV[2])
redis.call('ZINCRBY', KEYS[2], ARGV[1], ARGV[2])
return 1
`)

// Engine maintains all-time scoreboards in Redis sorted sets.
type Engine struct {
	client *goredis.Client
	points map[domain.Difficulty]int64
	logger *zap.Logger
}

// NewEngine creates a ranking engine using DefaultPoints.
func NewEngine(client *goredis.Client, logger *zap.Logger) *Engine {
	return &Engine{client: client, points: DefaultPoints, logger: logger}
}

// BoardKey returns the sorted set key for a scope.
func BoardKey(scope domain.Scope) string {
	return "leaderboard:" + string(scope) + ":all-time"
}

// Credit awards the difficulty's points to userID on the global board and
// the difficulty board. It is a no-op for a submission already credited.
func (e *Engine) Credit(ctx context.Context, submissionID, userID string, difficulty domain.Difficulty) (bool, error) {
	pts, ok := e.points[difficulty]
	if !ok {
		return false, fmt.Errorf("ranking: credit: %w: %q", domain.ErrInvalidDifficulty, difficulty)
	}
	if userID == "" {
		return false, fmt.Errorf("ranking: credit: %w", domain.ErrMissingUserID)
	}

	keys := []string{
		BoardKey(domain.ScopeGlobal),
		BoardKey(difficulty.Scope()),
		creditedPrefix + submissionID,
	}
	n, err := creditScript.Run(ctx, e.client, keys, pts, memberPrefix+userID, userID).Int()
	if err != nil {
		return false, fmt.Errorf("ranking: credit: %w", err)
	}

	credited := n == 1
	e.logger.Debug("leaderboard credit",
		zap.String("submission_id", submissionID),
		zap.String("user_id", userID),
		zap.String("difficulty", string(difficulty)),
		zap.Int64("points", pts),
		zap.Bool("credited", credited),
	)
	return credited, nil
}

// TopK returns up to limit entries ordered by score descending, then user
// id ascending. Rank is the 1-based position in that order.
func (e *Engine) TopK(ctx context.Context, scope domain.Scope, limit int) ([]domain.LeaderboardEntry, error) {
	if !scope.IsValid() {
		return nil, domain.ErrInvalidScope
	}
	if limit <= 0 {
		return []domain.LeaderboardEntry{}, nil
	}
	key := BoardKey(scope)

	top, err := e.client.ZRevRangeWithScores(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("ranking: top: %w", err)
	}
	if len(top) == 0 {
		return []domain.LeaderboardEntry{}, nil
	}

	// Redis breaks score ties by member descending, so the members sharing
	// the cut-off score are refetched in ascending order.
	boundary := top[len(top)-1].Score
	above := make([]goredis.Z, 0, len(top))
	for _, z := range top {
		if z.Score > boundary {
			above = append(above, z)
		}
	}
	sort.SliceStable(above, func(i, j int) bool {
		if above[i].Score != above[j].Score {
			return above[i].Score > above[j].Score
		}
		return member(above[i]) < member(above[j])
	})

	bound := strconv.FormatFloat(boundary, 'f', -1, 64)
	tied, err := e.client.ZRangeByScore(ctx, key, &goredis.ZRangeBy{
		Min:   bound,
		Max:   bound,
		Count: int64(limit - len(above)),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("ranking: top ties: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, 0, limit)
	for _, z := range above {
		entries = append(entries, newEntry(member(z), z.Score, len(entries)+1))
	}
	for _, m := range tied {
		if len(entries) == limit {
			break
		}
		entries = append(entries, newEntry(m, boundary, len(entries)+1))
	}
	return entries, nil
}

func member(z goredis.Z) string {
	s, _ := z.Member.(string)
	return s
}

func newEntry(m string, score float64, rank int) domain.LeaderboardEntry {
	return domain.LeaderboardEntry{
		UserID: strings.TrimPrefix(m, memberPrefix),
		Score:  int64(score),
		Rank:   rank,
	}
}
