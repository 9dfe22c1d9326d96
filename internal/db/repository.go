package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound возвращается, когда удаляемая/перемещаемая запись отсутствует.
var ErrNotFound = errors.New("not found")

// IDAllocator выдаёт и освобождает object ID.
// Реализуется idfactory.Allocator; репозитории вызывают Allocate перед INSERT
// и Release после успешного DELETE.
type IDAllocator interface {
	Allocate() (int32, error)
	Release(id int32)
}

// rollback откатывает транзакцию, игнорируя уже закрытую.
func rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		slog.Error("rollback failed", "error", err)
	}
}

// collectIDs читает один столбец INTEGER из rows.
func collectIDs(rows pgx.Rows) ([]int32, error) {
	return pgx.CollectRows(rows, pgx.RowTo[int32])
}
