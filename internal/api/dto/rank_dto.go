package dto

import "time"

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	Rank          int        `json:"rank"`
	UserID        string     `json:"user_id"`
	Wins          int        `json:"wins"`
	Losses        int        `json:"losses"`
	WinStreak     int        `json:"win_streak"`
	PeakWinStreak int        `json:"peak_win_streak"`
	LastResultAt  *time.Time `json:"last_result_at,omitempty"`
}

// SetWinsRequest is the administrative win override payload.
type SetWinsRequest struct {
	UserID string `json:"user_id"`
	Wins   int    `json:"wins"`
}

// ResultRequest records a manual match result.
type ResultRequest struct {
	WinnerIDs []string `json:"winner_ids"`
	LoserIDs  []string `json:"loser_ids"`
}

// TierUpsertRequest replaces a guild's tier ladder.
type TierUpsertRequest struct {
	Tiers   []TierEntry `json:"tiers"`
	TopN    int         `json:"top_n"`
	TopRole string      `json:"top_role_id"`
}

// TierEntry is one rung on the ladder.
type TierEntry struct {
	Name      string `json:"name"`
	Threshold int    `json:"threshold"`
	RoleID    string `json:"role_id"`
}
