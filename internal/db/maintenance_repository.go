package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// orphanCleanup удаляет строки, ссылающиеся на несуществующих персонажей,
// кланы или предметы. Порядок важен: сначала кланы без лидера, затем всё,
// что ссылается на кланы.
var orphanCleanup = []string{
	// Персонажи
	`DELETE FROM character_friends WHERE character_id NOT IN (SELECT character_id FROM characters)`,
	`DELETE FROM character_friends WHERE friend_id NOT IN (SELECT character_id FROM characters)`,
	`DELETE FROM character_skills WHERE character_id NOT IN (SELECT character_id FROM characters)`,
	`DELETE FROM character_quests WHERE character_id NOT IN (SELECT character_id FROM characters)`,
	`DELETE FROM character_instance_time WHERE character_id NOT IN (SELECT character_id FROM characters)`,
	`DELETE FROM character_skills_save WHERE character_id NOT IN (SELECT character_id FROM characters)`,
	`DELETE FROM messages WHERE receiver_id NOT IN (SELECT character_id FROM characters)`,

	// Кланы
	`DELETE FROM clan_data WHERE leader_id NOT IN (SELECT character_id FROM characters)`,
	`DELETE FROM clan_privs WHERE clan_id NOT IN (SELECT clan_id FROM clan_data)`,
	`DELETE FROM clan_skills WHERE clan_id NOT IN (SELECT clan_id FROM clan_data)`,
	`DELETE FROM clan_wars WHERE clan1 NOT IN (SELECT clan_id FROM clan_data)`,
	`DELETE FROM clan_wars WHERE clan2 NOT IN (SELECT clan_id FROM clan_data)`,

	// Предметы: владелец — персонаж или клан
	`DELETE FROM items WHERE owner_id NOT IN (SELECT character_id FROM characters)
	   AND owner_id NOT IN (SELECT clan_id FROM clan_data)`,
}

// orphanFixups не удаляют строки и не входят в счётчик.
var orphanFixups = []string{
	`UPDATE characters SET clan_id = 0 WHERE clan_id > 0 AND clan_id NOT IN (SELECT clan_id FROM clan_data)`,
}

// expiredTimestamps — $1 = текущее время в unix millis.
var expiredTimestamps = []string{
	`DELETE FROM character_instance_time WHERE time <= $1`,
	`DELETE FROM character_skills_save WHERE restore_type = 1 AND systime <= $1`,
}

// MaintenanceRepository выполняет обслуживание БД при старте сервера,
// до чтения занятых object ID.
type MaintenanceRepository struct {
	db *pgxpool.Pool
}

// NewMaintenanceRepository создаёт новый MaintenanceRepository.
func NewMaintenanceRepository(db *pgxpool.Pool) *MaintenanceRepository {
	return &MaintenanceRepository{db: db}
}

// ResetOnlineStatus сбрасывает флаг online у всех персонажей
// (после падения сервера флаги остаются выставленными).
func (r *MaintenanceRepository) ResetOnlineStatus(ctx context.Context) (int64, error) {
	result, err := r.db.Exec(ctx, `UPDATE characters SET online = FALSE WHERE online`)
	if err != nil {
		return 0, fmt.Errorf("resetting online status: %w", err)
	}
	return result.RowsAffected(), nil
}

// CleanUpOrphans удаляет осиротевшие строки и возвращает их количество.
// Останавливается на первой ошибке, возвращая уже удалённое.
func (r *MaintenanceRepository) CleanUpOrphans(ctx context.Context) (int64, error) {
	var cleaned int64
	for _, query := range orphanCleanup {
		result, err := r.db.Exec(ctx, query)
		if err != nil {
			return cleaned, fmt.Errorf("cleaning orphans: %w", err)
		}
		cleaned += result.RowsAffected()
	}
	for _, query := range orphanFixups {
		if _, err := r.db.Exec(ctx, query); err != nil {
			return cleaned, fmt.Errorf("fixing orphan references: %w", err)
		}
	}
	return cleaned, nil
}

// CleanExpiredTimestamps удаляет истёкшие откаты инстансов и умений.
func (r *MaintenanceRepository) CleanExpiredTimestamps(ctx context.Context, now time.Time) (int64, error) {
	var cleaned int64
	for _, query := range expiredTimestamps {
		result, err := r.db.Exec(ctx, query, now.UnixMilli())
		if err != nil {
			return cleaned, fmt.Errorf("cleaning expired timestamps: %w", err)
		}
		cleaned += result.RowsAffected()
	}
	return cleaned, nil
}

// PrepareObjectIDs выполняет стартовое обслуживание и возвращает занятые object ID.
// Ошибки обслуживания логируются и не прерывают старт: аллокатор поднимается
// с тем, что удалось прочитать.
func PrepareObjectIDs(ctx context.Context, pool *pgxpool.Pool, cleanUp bool) []int32 {
	maint := NewMaintenanceRepository(pool)

	if n, err := maint.ResetOnlineStatus(ctx); err != nil {
		slog.Warn("could not update characters online status", "error", err)
	} else {
		slog.Info("updated characters online status", "count", n)
	}

	if cleanUp {
		start := time.Now()
		n, err := maint.CleanUpOrphans(ctx)
		if err != nil {
			slog.Warn("could not clean up database", "cleaned", n, "error", err)
		} else {
			slog.Info("cleaned orphan rows", "count", n, "took", time.Since(start))
		}
	}

	if n, err := maint.CleanExpiredTimestamps(ctx, time.Now()); err != nil {
		slog.Warn("could not clean expired timestamps", "error", err)
	} else {
		slog.Info("cleaned expired timestamps", "count", n)
	}

	return NewObjectIDRepository(pool).LoadUsedIDs(ctx)
}
