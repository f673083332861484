package domain

import "strings"

// Difficulty is a problem's difficulty tier.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// IsValid checks if the difficulty is one of the known tiers.
func (d Difficulty) IsValid() bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

// Scope returns the scoreboard scope of the tier.
func (d Difficulty) Scope() Scope {
	return Scope(strings.ToLower(string(d)))
}

// ParseDifficulty accepts any casing of the tier name.
func ParseDifficulty(s string) (Difficulty, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easy":
		return DifficultyEasy, nil
	case "medium":
		return DifficultyMedium, nil
	case "hard":
		return DifficultyHard, nil
	}
	return "", ErrInvalidDifficulty
}

// Scope names a scoreboard partition.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeEasy   Scope = "easy"
	ScopeMedium Scope = "medium"
	ScopeHard   Scope = "hard"
)

// IsValid checks if the scope names a scoreboard.
func (s Scope) IsValid() bool {
	switch s {
	case ScopeGlobal, ScopeEasy, ScopeMedium, ScopeHard:
		return true
	}
	return false
}

// LeaderboardEntry is one ranked row of a scoreboard.
type LeaderboardEntry struct {
	UserID string `json:"userId"`
	Score  int64  `json:"score"`
	Rank   int    `json:"rank"`
}
