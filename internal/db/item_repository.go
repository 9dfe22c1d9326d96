package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Item — предмет во владении персонажа или клана.
type Item struct {
	ObjectID  int32
	OwnerID   int32
	ItemType  int32
	Count     int64
	CreatedAt time.Time
}

// GroundItem — предмет, лежащий на земле.
type GroundItem struct {
	ObjectID int32
	ItemType int32
	Count    int64
	X, Y, Z  int32
	DropTime time.Time
}

// ItemRepository управляет предметами в БД.
// Предмет сохраняет object ID при перемещении между инвентарём и землёй.
type ItemRepository struct {
	db  *pgxpool.Pool
	ids IDAllocator
}

// NewItemRepository создаёт новый ItemRepository.
func NewItemRepository(db *pgxpool.Pool, ids IDAllocator) *ItemRepository {
	return &ItemRepository{db: db, ids: ids}
}

// Create создаёт предмет у владельца и возвращает его object ID.
func (r *ItemRepository) Create(ctx context.Context, ownerID, itemType int32, count int64) (int32, error) {
	id, err := r.ids.Allocate()
	if err != nil {
		return 0, fmt.Errorf("allocating item id: %w", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO items (object_id, owner_id, item_type, count) VALUES ($1, $2, $3, $4)`,
		id, ownerID, itemType, count,
	)
	if err != nil {
		r.ids.Release(id)
		return 0, fmt.Errorf("creating item type %d for owner %d: %w", itemType, ownerID, err)
	}

	return id, nil
}

// LoadByOwner загружает все предметы владельца.
func (r *ItemRepository) LoadByOwner(ctx context.Context, ownerID int32) ([]Item, error) {
	rows, err := r.db.Query(ctx,
		`SELECT object_id, owner_id, item_type, count, created_at
		 FROM items WHERE owner_id = $1 ORDER BY object_id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying items of owner %d: %w", ownerID, err)
	}
	defer rows.Close()

	items := make([]Item, 0, 16)
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ObjectID, &it.OwnerID, &it.ItemType, &it.Count, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning item row: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating item rows: %w", err)
	}
	return items, nil
}

// Delete уничтожает предмет и возвращает его ID в пул.
func (r *ItemRepository) Delete(ctx context.Context, objectID int32) error {
	result, err := r.db.Exec(ctx, `DELETE FROM items WHERE object_id = $1`, objectID)
	if err != nil {
		return fmt.Errorf("deleting item %d: %w", objectID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("item %d: %w", objectID, ErrNotFound)
	}

	r.ids.Release(objectID)
	return nil
}

// DropToGround переносит предмет из инвентаря на землю с тем же object ID.
// DELETE и INSERT — один запрос (CTE).
func (r *ItemRepository) DropToGround(ctx context.Context, objectID, x, y, z int32) error {
	tag, err := r.db.Exec(ctx,
		`WITH moved AS (DELETE FROM items WHERE object_id = $1 RETURNING object_id, item_type, count)
		 INSERT INTO items_on_ground (object_id, item_type, count, x, y, z)
		 SELECT object_id, item_type, count, $2, $3, $4 FROM moved`,
		objectID, x, y, z,
	)
	if err != nil {
		return fmt.Errorf("dropping item %d: %w", objectID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("item %d: %w", objectID, ErrNotFound)
	}
	return nil
}

// PickUp переносит предмет с земли в инвентарь ownerID.
func (r *ItemRepository) PickUp(ctx context.Context, objectID, ownerID int32) error {
	tag, err := r.db.Exec(ctx,
		`WITH picked AS (DELETE FROM items_on_ground WHERE object_id = $1 RETURNING object_id, item_type, count)
		 INSERT INTO items (object_id, owner_id, item_type, count)
		 SELECT object_id, $2, item_type, count FROM picked`,
		objectID, ownerID,
	)
	if err != nil {
		return fmt.Errorf("picking up item %d: %w", objectID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ground item %d: %w", objectID, ErrNotFound)
	}
	return nil
}

// LoadGround загружает все предметы на земле (восстановление после рестарта).
func (r *ItemRepository) LoadGround(ctx context.Context) ([]GroundItem, error) {
	rows, err := r.db.Query(ctx,
		`SELECT object_id, item_type, count, x, y, z, drop_time
		 FROM items_on_ground ORDER BY object_id`)
	if err != nil {
		return nil, fmt.Errorf("querying ground items: %w", err)
	}
	defer rows.Close()

	var items []GroundItem
	for rows.Next() {
		var it GroundItem
		if err := rows.Scan(&it.ObjectID, &it.ItemType, &it.Count, &it.X, &it.Y, &it.Z, &it.DropTime); err != nil {
			return nil, fmt.Errorf("scanning ground item row: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ground item rows: %w", err)
	}
	return items, nil
}

// DestroyOnGround удаляет предмет с земли (auto-destroy) и возвращает ID в пул.
func (r *ItemRepository) DestroyOnGround(ctx context.Context, objectID int32) error {
	result, err := r.db.Exec(ctx, `DELETE FROM items_on_ground WHERE object_id = $1`, objectID)
	if err != nil {
		return fmt.Errorf("destroying ground item %d: %w", objectID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("ground item %d: %w", objectID, ErrNotFound)
	}

	r.ids.Release(objectID)
	return nil
}
