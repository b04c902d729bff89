package domain

import "time"

// Tier maps a cumulative-win threshold to an external role.
type Tier struct {
	Name      string `json:"name"`
	Threshold int    `json:"threshold"`
	RoleID    string `json:"role_id"`
}

// TierConfig is the per-guild tier ladder plus the top-N role. It is
// externally administered and read-only to the rank engine per invocation.
type TierConfig struct {
	GuildID   string
	Tiers     []Tier // sorted descending by threshold
	TopRoleID string
	TopN      int
	UpdatedAt time.Time
}

// DefaultTopN bounds the leaderboard role when unconfigured.
const DefaultTopN = 10

// TierFor returns the highest tier whose threshold is <= wins, or nil below
// the lowest threshold. Exactly one tier matches any win count.
func (c *TierConfig) TierFor(wins int) *Tier {
	for i := range c.Tiers {
		if wins >= c.Tiers[i].Threshold {
			return &c.Tiers[i]
		}
	}
	return nil
}

// RoleIDs returns every configured tier role id, excluding the top-N role.
func (c *TierConfig) RoleIDs() []string {
	out := make([]string, 0, len(c.Tiers))
	for _, t := range c.Tiers {
		out = append(out, t.RoleID)
	}
	return out
}
