package usecase

import (
	"context"
	"strings"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
	"github.com/Harsh-BH/sentinel-judge/internal/repository"
)

// GetLeaderboardUsecase reads a scoreboard with a clamped limit.
type GetLeaderboardUsecase struct {
	board        repository.Leaderboard
	defaultLimit int
	maxLimit     int
}

// NewGetLeaderboardUsecase creates a new GetLeaderboardUsecase.
func NewGetLeaderboardUsecase(board repository.Leaderboard, defaultLimit, maxLimit int) *GetLeaderboardUsecase {
	return &GetLeaderboardUsecase{
		board:        board,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

// Execute returns the top entries of the named board. Non-positive limits
// fall back to the default and large ones are capped.
func (uc *GetLeaderboardUsecase) Execute(ctx context.Context, boardType string, limit int) ([]domain.LeaderboardEntry, error) {
	scope := domain.Scope(strings.ToLower(strings.TrimSpace(boardType)))
	if !scope.IsValid() {
		return nil, domain.ErrInvalidScope
	}
	return uc.board.TopK(ctx, scope, uc.clamp(limit))
}

func (uc *GetLeaderboardUsecase) clamp(limit int) int {
	if limit <= 0 {
		return uc.defaultLimit
	}
	if limit > uc.maxLimit {
		return uc.maxLimit
	}
	return limit
}
