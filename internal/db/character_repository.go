package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Character — строка таблицы characters.
type Character struct {
	ID          int32
	AccountName string
	Name        string
	ClanID      int32
	Online      bool
	CreatedAt   time.Time
}

// characterOwnedTables — строки, удаляемые вместе с персонажем.
var characterOwnedTables = []string{
	`DELETE FROM character_friends WHERE character_id = $1 OR friend_id = $1`,
	`DELETE FROM character_skills WHERE character_id = $1`,
	`DELETE FROM character_quests WHERE character_id = $1`,
	`DELETE FROM character_instance_time WHERE character_id = $1`,
	`DELETE FROM character_skills_save WHERE character_id = $1`,
}

// CharacterRepository управляет персонажами в БД.
type CharacterRepository struct {
	db  *pgxpool.Pool
	ids IDAllocator
}

// NewCharacterRepository создаёт новый CharacterRepository.
func NewCharacterRepository(db *pgxpool.Pool, ids IDAllocator) *CharacterRepository {
	return &CharacterRepository{db: db, ids: ids}
}

// Create создаёт персонажа с новым object ID.
// При ошибке INSERT ID возвращается в пул.
func (r *CharacterRepository) Create(ctx context.Context, accountName, name string) (int32, error) {
	id, err := r.ids.Allocate()
	if err != nil {
		return 0, fmt.Errorf("allocating character id: %w", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO characters (character_id, account_name, name) VALUES ($1, $2, $3)`,
		id, accountName, name,
	)
	if err != nil {
		r.ids.Release(id)
		return 0, fmt.Errorf("creating character %q: %w", name, err)
	}

	return id, nil
}

// LoadByID загружает персонажа по ID.
// Возвращает nil если персонаж не найден (не ошибка).
func (r *CharacterRepository) LoadByID(ctx context.Context, characterID int32) (*Character, error) {
	var c Character
	err := r.db.QueryRow(ctx,
		`SELECT character_id, account_name, name, clan_id, online, created_at
		 FROM characters WHERE character_id = $1`, characterID,
	).Scan(&c.ID, &c.AccountName, &c.Name, &c.ClanID, &c.Online, &c.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading character %d: %w", characterID, err)
	}
	return &c, nil
}

// SetOnline обновляет флаг online.
func (r *CharacterRepository) SetOnline(ctx context.Context, characterID int32, online bool) error {
	result, err := r.db.Exec(ctx,
		`UPDATE characters SET online = $1 WHERE character_id = $2`, online, characterID)
	if err != nil {
		return fmt.Errorf("updating online status of character %d: %w", characterID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("character %d: %w", characterID, ErrNotFound)
	}
	return nil
}

// Delete удаляет персонажа, его предметы, письма и зависимые строки одной транзакцией.
// После коммита ID персонажа, предметов и писем возвращаются в пул.
func (r *CharacterRepository) Delete(ctx context.Context, characterID int32) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer rollback(ctx, tx)

	for _, query := range characterOwnedTables {
		if _, err := tx.Exec(ctx, query, characterID); err != nil {
			return fmt.Errorf("deleting data of character %d: %w", characterID, err)
		}
	}

	rows, err := tx.Query(ctx, `DELETE FROM items WHERE owner_id = $1 RETURNING object_id`, characterID)
	if err != nil {
		return fmt.Errorf("deleting items of character %d: %w", characterID, err)
	}
	itemIDs, err := collectIDs(rows)
	if err != nil {
		return fmt.Errorf("deleting items of character %d: %w", characterID, err)
	}

	rows, err = tx.Query(ctx, `DELETE FROM messages WHERE receiver_id = $1 RETURNING message_id`, characterID)
	if err != nil {
		return fmt.Errorf("deleting mail of character %d: %w", characterID, err)
	}
	messageIDs, err := collectIDs(rows)
	if err != nil {
		return fmt.Errorf("deleting mail of character %d: %w", characterID, err)
	}

	result, err := tx.Exec(ctx, `DELETE FROM characters WHERE character_id = $1`, characterID)
	if err != nil {
		return fmt.Errorf("deleting character %d: %w", characterID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("character %d: %w", characterID, ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete of character %d: %w", characterID, err)
	}

	for _, id := range itemIDs {
		r.ids.Release(id)
	}
	for _, id := range messageIDs {
		r.ids.Release(id)
	}
	r.ids.Release(characterID)

	return nil
}
