package domain

import "time"

// Profile tracks cumulative results for one member of a guild. Wins are
// monotonically non-decreasing except under administrative override.
type Profile struct {
	UserID        string
	GuildID       string
	Wins          int
	Losses        int
	WinStreak     int
	LossStreak    int
	PeakWinStreak int
	LastResultAt  *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
