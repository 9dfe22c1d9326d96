package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// IDTable — таблица со столбцом, хранящим выданный object ID.
type IDTable struct {
	Table  string
	Column string
}

// IDTables — все таблицы, чьи ключи берутся из пула object ID.
// При добавлении новой сущности с object ID её нужно внести сюда,
// иначе после рестарта ID будут выданы повторно.
var IDTables = []IDTable{
	{Table: "characters", Column: "character_id"},
	{Table: "items", Column: "object_id"},
	{Table: "clan_data", Column: "clan_id"},
	{Table: "items_on_ground", Column: "object_id"},
	{Table: "messages", Column: "message_id"},
}

// ObjectIDRepository читает занятые object ID для инициализации аллокатора.
type ObjectIDRepository struct {
	db     *pgxpool.Pool
	tables []IDTable
}

// NewObjectIDRepository создаёт репозиторий над IDTables.
func NewObjectIDRepository(db *pgxpool.Pool) *ObjectIDRepository {
	return &ObjectIDRepository{db: db, tables: IDTables}
}

// LoadUsedIDs возвращает все занятые object ID.
// Каждая таблица читается отдельным запросом: ошибка одной таблицы логируется
// и не мешает загрузить остальные. Дубликаты между таблицами не удаляются
// (аллокатор считает их один раз).
func (r *ObjectIDRepository) LoadUsedIDs(ctx context.Context) []int32 {
	var ids []int32
	for _, t := range r.tables {
		tableIDs, err := r.loadTable(ctx, t)
		if err != nil {
			slog.Error("loading used object ids",
				"table", t.Table,
				"column", t.Column,
				"error", err)
			continue
		}
		slog.Debug("used object ids loaded", "table", t.Table, "count", len(tableIDs))
		ids = append(ids, tableIDs...)
	}
	return ids
}

func (r *ObjectIDRepository) loadTable(ctx context.Context, t IDTable) ([]int32, error) {
	// Имена таблиц/столбцов — константы из IDTables, не пользовательский ввод.
	query := fmt.Sprintf(`SELECT %s FROM %s`, t.Column, t.Table)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying %s.%s: %w", t.Table, t.Column, err)
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, fmt.Errorf("scanning %s.%s: %w", t.Table, t.Column, err)
	}
	return ids, nil
}
