package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Clan — строка таблицы clan_data.
type Clan struct {
	ID        int32
	Name      string
	LeaderID  int32
	CreatedAt time.Time
}

// clanOwnedTables — строки, удаляемые при роспуске клана.
var clanOwnedTables = []string{
	`DELETE FROM clan_privs WHERE clan_id = $1`,
	`DELETE FROM clan_skills WHERE clan_id = $1`,
	`DELETE FROM clan_wars WHERE clan1 = $1 OR clan2 = $1`,
	`UPDATE characters SET clan_id = 0 WHERE clan_id = $1`,
}

// ClanRepository управляет кланами в БД.
type ClanRepository struct {
	pool *pgxpool.Pool
	ids  IDAllocator
}

// NewClanRepository создаёт новый ClanRepository.
func NewClanRepository(pool *pgxpool.Pool, ids IDAllocator) *ClanRepository {
	return &ClanRepository{pool: pool, ids: ids}
}

// Create основывает клан и записывает в него лидера.
func (r *ClanRepository) Create(ctx context.Context, name string, leaderID int32) (int32, error) {
	id, err := r.ids.Allocate()
	if err != nil {
		return 0, fmt.Errorf("allocating clan id: %w", err)
	}

	if err := r.insert(ctx, id, name, leaderID); err != nil {
		r.ids.Release(id)
		return 0, err
	}
	return id, nil
}

func (r *ClanRepository) insert(ctx context.Context, clanID int32, name string, leaderID int32) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer rollback(ctx, tx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO clan_data (clan_id, clan_name, leader_id) VALUES ($1, $2, $3)`,
		clanID, name, leaderID,
	); err != nil {
		return fmt.Errorf("creating clan %q: %w", name, err)
	}

	result, err := tx.Exec(ctx,
		`UPDATE characters SET clan_id = $1 WHERE character_id = $2`, clanID, leaderID)
	if err != nil {
		return fmt.Errorf("setting clan of leader %d: %w", leaderID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("clan leader %d: %w", leaderID, ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create of clan %q: %w", name, err)
	}
	return nil
}

// LoadByID загружает клан. Возвращает nil если клан не найден.
func (r *ClanRepository) LoadByID(ctx context.Context, clanID int32) (*Clan, error) {
	var c Clan
	err := r.pool.QueryRow(ctx,
		`SELECT clan_id, clan_name, leader_id, created_at FROM clan_data WHERE clan_id = $1`, clanID,
	).Scan(&c.ID, &c.Name, &c.LeaderID, &c.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading clan %d: %w", clanID, err)
	}
	return &c, nil
}

// Delete распускает клан: удаляет привилегии, умения, войны и клановый склад,
// снимает клан с участников. После коммита ID клана и предметов склада
// возвращаются в пул.
func (r *ClanRepository) Delete(ctx context.Context, clanID int32) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer rollback(ctx, tx)

	batch := &pgx.Batch{}
	for _, query := range clanOwnedTables {
		batch.Queue(query, clanID)
	}
	br := tx.SendBatch(ctx, batch)
	for range clanOwnedTables {
		if _, err := br.Exec(); err != nil {
			br.Close() //nolint:errcheck
			return fmt.Errorf("deleting data of clan %d: %w", clanID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close clan batch: %w", err)
	}

	rows, err := tx.Query(ctx, `DELETE FROM items WHERE owner_id = $1 RETURNING object_id`, clanID)
	if err != nil {
		return fmt.Errorf("deleting warehouse of clan %d: %w", clanID, err)
	}
	itemIDs, err := collectIDs(rows)
	if err != nil {
		return fmt.Errorf("deleting warehouse of clan %d: %w", clanID, err)
	}

	result, err := tx.Exec(ctx, `DELETE FROM clan_data WHERE clan_id = $1`, clanID)
	if err != nil {
		return fmt.Errorf("deleting clan %d: %w", clanID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("clan %d: %w", clanID, ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete of clan %d: %w", clanID, err)
	}

	for _, id := range itemIDs {
		r.ids.Release(id)
	}
	r.ids.Release(clanID)

	return nil
}
