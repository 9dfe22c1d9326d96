package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udisondev/la2go-idfactory/internal/config"
	"github.com/udisondev/la2go-idfactory/internal/db"
	"github.com/udisondev/la2go-idfactory/internal/idfactory"
)

// services — единственный аллокатор процесса и репозитории, создающие
// и удаляющие сущности через него.
type services struct {
	IDs        *idfactory.Allocator
	Characters *db.CharacterRepository
	Items      *db.ItemRepository
	Clans      *db.ClanRepository
	Mail       *db.MailRepository
}

// newServices чистит БД, собирает занятые object ID и поднимает аллокатор.
func newServices(ctx context.Context, pool *pgxpool.Pool, cfg config.IDFactory) (*services, error) {
	used := db.PrepareObjectIDs(ctx, pool, cfg.CleanUpOnStart)

	ids, err := idfactory.New(cfg.AllocatorConfig(), used)
	if err != nil {
		return nil, fmt.Errorf("creating allocator: %w", err)
	}

	return &services{
		IDs:        ids,
		Characters: db.NewCharacterRepository(pool, ids),
		Items:      db.NewItemRepository(pool, ids),
		Clans:      db.NewClanRepository(pool, ids),
		Mail:       db.NewMailRepository(pool, ids),
	}, nil
}
