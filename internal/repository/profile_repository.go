package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/wager-arbiter/internal/domain"
)

// ProfileRepository handles persistence for participant profiles. Result
// mutations are single UPDATE statements so concurrent results interleave
// without lost increments.
type ProfileRepository interface {
	Ensure(ctx context.Context, guildID, userID string) error
	GetByUser(ctx context.Context, guildID, userID string) (*domain.Profile, error)
	ApplyWin(ctx context.Context, guildID, userID string) (*domain.Profile, error)
	ApplyLoss(ctx context.Context, guildID, userID string) (*domain.Profile, error)
	TopByWins(ctx context.Context, guildID string, limit int) ([]domain.Profile, error)
	// OverrideWins is the administrative escape hatch from win monotonicity.
	OverrideWins(ctx context.Context, guildID, userID string, wins int) (*domain.Profile, error)
}

const profileColumns = `user_id, guild_id, wins, losses, win_streak, loss_streak,
           peak_win_streak, last_result_at, created_at, updated_at`

type profileRepository struct {
	pool *pgxpool.Pool
}

// NewProfileRepository instantiates the repository.
func NewProfileRepository(pool *pgxpool.Pool) ProfileRepository {
	return &profileRepository{pool: pool}
}

func (r *profileRepository) Ensure(ctx context.Context, guildID, userID string) error {
	const query = `
        INSERT INTO profiles (guild_id, user_id) VALUES ($1,$2)
        ON CONFLICT (guild_id, user_id) DO NOTHING`
	_, err := r.pool.Exec(ctx, query, guildID, userID)
	return err
}

func (r *profileRepository) GetByUser(ctx context.Context, guildID, userID string) (*domain.Profile, error) {
	const query = `SELECT ` + profileColumns + ` FROM profiles WHERE guild_id=$1 AND user_id=$2`
	return r.fetchSingle(ctx, query, guildID, userID)
}

func (r *profileRepository) ApplyWin(ctx context.Context, guildID, userID string) (*domain.Profile, error) {
	if err := r.Ensure(ctx, guildID, userID); err != nil {
		return nil, err
	}
	const query = `
        UPDATE profiles SET wins=wins+1, win_streak=win_streak+1, loss_streak=0,
            peak_win_streak=GREATEST(peak_win_streak, win_streak+1),
            last_result_at=NOW(), updated_at=NOW()
        WHERE guild_id=$1 AND user_id=$2
        RETURNING ` + profileColumns
	return r.fetchSingle(ctx, query, guildID, userID)
}

func (r *profileRepository) ApplyLoss(ctx context.Context, guildID, userID string) (*domain.Profile, error) {
	if err := r.Ensure(ctx, guildID, userID); err != nil {
		return nil, err
	}
	const query = `
        UPDATE profiles SET losses=losses+1, loss_streak=loss_streak+1, win_streak=0,
            last_result_at=NOW(), updated_at=NOW()
        WHERE guild_id=$1 AND user_id=$2
        RETURNING ` + profileColumns
	return r.fetchSingle(ctx, query, guildID, userID)
}

func (r *profileRepository) TopByWins(ctx context.Context, guildID string, limit int) ([]domain.Profile, error) {
	if limit <= 0 {
		limit = domain.DefaultTopN
	}
	const query = `SELECT ` + profileColumns + `
        FROM profiles WHERE guild_id=$1 ORDER BY wins DESC, user_id LIMIT $2`
	rows, err := r.pool.Query(ctx, query, guildID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProfiles(rows)
}

func (r *profileRepository) OverrideWins(ctx context.Context, guildID, userID string, wins int) (*domain.Profile, error) {
	if err := r.Ensure(ctx, guildID, userID); err != nil {
		return nil, err
	}
	const query = `
        UPDATE profiles SET wins=$3, updated_at=NOW()
        WHERE guild_id=$1 AND user_id=$2
        RETURNING ` + profileColumns
	return r.fetchSingle(ctx, query, guildID, userID, wins)
}

func (r *profileRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Profile, error) {
	var profile domain.Profile
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&profile.UserID,
		&profile.GuildID,
		&profile.Wins,
		&profile.Losses,
		&profile.WinStreak,
		&profile.LossStreak,
		&profile.PeakWinStreak,
		&profile.LastResultAt,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &profile, nil
}

func scanProfiles(rows pgx.Rows) ([]domain.Profile, error) {
	var result []domain.Profile
	for rows.Next() {
		var profile domain.Profile
		if err := rows.Scan(
			&profile.UserID,
			&profile.GuildID,
			&profile.Wins,
			&profile.Losses,
			&profile.WinStreak,
			&profile.LossStreak,
			&profile.PeakWinStreak,
			&profile.LastResultAt,
			&profile.CreatedAt,
			&profile.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, profile)
	}
	return result, rows.Err()
}
