package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/wager-arbiter/internal/domain"
)

// CategoryRepository tracks capacity-bounded channel containers. TryAcquire
// is a conditional increment so the recorded count never knowingly exceeds
// capacity; Release and SetCount tolerate drift which reconciliation repairs.
type CategoryRepository interface {
	Upsert(ctx context.Context, slot *domain.CategorySlot) error
	ListByScope(ctx context.Context, guildID string, kind domain.TicketKind, region string) ([]domain.CategorySlot, error)
	ListByGuild(ctx context.Context, guildID string) ([]domain.CategorySlot, error)
	TryAcquire(ctx context.Context, categoryID string) (*domain.CategorySlot, error)
	Release(ctx context.Context, categoryID string) error
	SetCount(ctx context.Context, categoryID string, count int) error
}

const categoryColumns = `category_id, guild_id, kind, region, position, channel_count, capacity, created_at, updated_at`

type categoryRepository struct {
	pool *pgxpool.Pool
}

// NewCategoryRepository instantiates the repository.
func NewCategoryRepository(pool *pgxpool.Pool) CategoryRepository {
	return &categoryRepository{pool: pool}
}

func (r *categoryRepository) Upsert(ctx context.Context, slot *domain.CategorySlot) error {
	if slot.Capacity <= 0 {
		slot.Capacity = domain.CategoryCapacity
	}
	const query = `
        INSERT INTO category_slots (category_id, guild_id, kind, region, position, channel_count, capacity)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (category_id) DO UPDATE
        SET position=EXCLUDED.position, capacity=EXCLUDED.capacity, updated_at=NOW()
        RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		slot.CategoryID,
		slot.GuildID,
		slot.Kind,
		slot.Region,
		slot.Position,
		slot.ChannelCount,
		slot.Capacity,
	).Scan(&slot.CreatedAt, &slot.UpdatedAt)
}

func (r *categoryRepository) ListByScope(ctx context.Context, guildID string, kind domain.TicketKind, region string) ([]domain.CategorySlot, error) {
	const query = `SELECT ` + categoryColumns + `
        FROM category_slots WHERE guild_id=$1 AND kind=$2 AND region=$3 ORDER BY position`
	rows, err := r.pool.Query(ctx, query, guildID, kind, region)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSlots(rows)
}

func (r *categoryRepository) ListByGuild(ctx context.Context, guildID string) ([]domain.CategorySlot, error) {
	const query = `SELECT ` + categoryColumns + `
        FROM category_slots WHERE guild_id=$1 ORDER BY position`
	rows, err := r.pool.Query(ctx, query, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSlots(rows)
}

// TryAcquire increments the count only while below capacity.
func (r *categoryRepository) TryAcquire(ctx context.Context, categoryID string) (*domain.CategorySlot, error) {
	const query = `
        UPDATE category_slots SET channel_count=channel_count+1, updated_at=NOW()
        WHERE category_id=$1 AND channel_count < capacity
        RETURNING ` + categoryColumns
	return r.fetchSingle(ctx, query, categoryID)
}

// Release decrements with a floor of zero; missed releases are reconciled.
func (r *categoryRepository) Release(ctx context.Context, categoryID string) error {
	const query = `
        UPDATE category_slots SET channel_count=GREATEST(channel_count-1, 0), updated_at=NOW()
        WHERE category_id=$1`
	_, err := r.pool.Exec(ctx, query, categoryID)
	return err
}

func (r *categoryRepository) SetCount(ctx context.Context, categoryID string, count int) error {
	const query = `
        UPDATE category_slots SET channel_count=$2, updated_at=NOW()
        WHERE category_id=$1`
	_, err := r.pool.Exec(ctx, query, categoryID, count)
	return err
}

func (r *categoryRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.CategorySlot, error) {
	var slot domain.CategorySlot
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&slot.CategoryID,
		&slot.GuildID,
		&slot.Kind,
		&slot.Region,
		&slot.Position,
		&slot.ChannelCount,
		&slot.Capacity,
		&slot.CreatedAt,
		&slot.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &slot, nil
}

func scanSlots(rows pgx.Rows) ([]domain.CategorySlot, error) {
	var result []domain.CategorySlot
	for rows.Next() {
		var slot domain.CategorySlot
		if err := rows.Scan(
			&slot.CategoryID,
			&slot.GuildID,
			&slot.Kind,
			&slot.Region,
			&slot.Position,
			&slot.ChannelCount,
			&slot.Capacity,
			&slot.CreatedAt,
			&slot.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, slot)
	}
	return result, rows.Err()
}
