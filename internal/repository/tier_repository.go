package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/wager-arbiter/internal/domain"
)

// TierRepository stores the externally administered per-guild tier ladder.
type TierRepository interface {
	GetByGuild(ctx context.Context, guildID string) (*domain.TierConfig, error)
	Put(ctx context.Context, cfg *domain.TierConfig) error
}

type tierRepository struct {
	pool *pgxpool.Pool
}

// NewTierRepository instantiates the repository.
func NewTierRepository(pool *pgxpool.Pool) TierRepository {
	return &tierRepository{pool: pool}
}

func (r *tierRepository) GetByGuild(ctx context.Context, guildID string) (*domain.TierConfig, error) {
	const query = `SELECT guild_id, tiers, top_role_id, top_n, updated_at FROM tier_configs WHERE guild_id=$1`
	var cfg domain.TierConfig
	var raw []byte
	if err := r.pool.QueryRow(ctx, query, guildID).Scan(
		&cfg.GuildID,
		&raw,
		&cfg.TopRoleID,
		&cfg.TopN,
		&cfg.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// an unconfigured guild has an empty ladder, not an error
			return &domain.TierConfig{GuildID: guildID, TopN: domain.DefaultTopN}, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(raw, &cfg.Tiers); err != nil {
		return nil, err
	}
	sortTiersDescending(cfg.Tiers)
	return &cfg, nil
}

func (r *tierRepository) Put(ctx context.Context, cfg *domain.TierConfig) error {
	sortTiersDescending(cfg.Tiers)
	raw, err := json.Marshal(cfg.Tiers)
	if err != nil {
		return err
	}
	if cfg.TopN <= 0 {
		cfg.TopN = domain.DefaultTopN
	}
	const query = `
        INSERT INTO tier_configs (guild_id, tiers, top_role_id, top_n, updated_at)
        VALUES ($1,$2,$3,$4,NOW())
        ON CONFLICT (guild_id) DO UPDATE
        SET tiers=EXCLUDED.tiers, top_role_id=EXCLUDED.top_role_id, top_n=EXCLUDED.top_n, updated_at=NOW()
        RETURNING updated_at`
	return r.pool.QueryRow(ctx, query, cfg.GuildID, raw, cfg.TopRoleID, cfg.TopN).Scan(&cfg.UpdatedAt)
}

func sortTiersDescending(tiers []domain.Tier) {
	sort.SliceStable(tiers, func(i, j int) bool {
		return tiers[i].Threshold > tiers[j].Threshold
	})
}
