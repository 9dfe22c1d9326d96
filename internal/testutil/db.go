package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/udisondev/la2go-idfactory/internal/db/migrations"
)

// StartPostgres запускает PostgreSQL 16 testcontainer и возвращает DSN.
// Использует модуль postgres с BasicWaitStrategies (log occurrence(2) + port check).
// terminate останавливает контейнер.
func StartPostgres(ctx context.Context) (dsn string, terminate func(), err error) {
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("starting postgres container: %w", err)
	}

	terminate = func() {
		_ = testcontainers.TerminateContainer(container)
	}

	dsn, err = container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		terminate()
		return "", nil, fmt.Errorf("getting connection string: %w", err)
	}

	return dsn, terminate, nil
}

// SetupTestDB создаёт PostgreSQL testcontainer, применяет миграции и возвращает pool.
// Пропускает тест в режиме -short. Автоматически cleanup при завершении теста.
func SetupTestDB(tb testing.TB) *pgxpool.Pool {
	tb.Helper()
	if testing.Short() {
		tb.Skip("skipping PostgreSQL test in short mode")
	}
	ctx := context.Background()

	dsn, terminate, err := StartPostgres(ctx)
	if err != nil {
		tb.Fatalf("%v", err)
	}
	tb.Cleanup(terminate)

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		tb.Fatalf("connecting to test db: %v", err)
	}
	tb.Cleanup(func() { pool.Close() })

	if err := RunMigrations(pool); err != nil {
		tb.Fatalf("running migrations: %v", err)
	}

	return pool
}

// RunMigrations применяет embedded миграции через goose.
func RunMigrations(pool *pgxpool.Pool) error {
	// goose требует *sql.DB, получаем его из pgxpool
	connStr := stdlib.RegisterConnConfig(pool.Config().ConnConfig)
	defer stdlib.UnregisterConnConfig(connStr)

	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("opening sql.DB: %w", err)
	}
	defer sqlDB.Close()

	goose.SetBaseFS(migrations.FS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(sqlDB, "."); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	return nil
}

// TruncateObjectTables очищает все таблицы схемы для изоляции тестов.
func TruncateObjectTables(tb testing.TB, pool *pgxpool.Pool) {
	tb.Helper()

	_, err := pool.Exec(context.Background(), `TRUNCATE
		characters, clan_data, items, items_on_ground, messages,
		character_friends, character_skills, character_quests,
		character_instance_time, character_skills_save,
		clan_privs, clan_skills, clan_wars`)
	if err != nil {
		tb.Fatalf("truncating tables: %v", err)
	}
}
