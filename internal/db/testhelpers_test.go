package db

import (
	"context"
	"flag"
	"log"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udisondev/la2go-idfactory/internal/testutil"
)

// testPool — shared connection pool для всех тестов package db.
// nil в режиме -short: тесты, требующие БД, пропускаются.
var testPool *pgxpool.Pool

// TestMain поднимает PostgreSQL testcontainer один раз на пакет.
func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	os.Exit(runWithPostgres(m))
}

func runWithPostgres(m *testing.M) int {
	ctx := context.Background()

	dsn, terminate, err := testutil.StartPostgres(ctx)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer terminate()

	if err := RunMigrations(ctx, dsn); err != nil {
		log.Fatalf("running migrations: %v", err)
	}

	testPool, err = pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatalf("connecting to test db: %v", err)
	}
	defer testPool.Close()

	return m.Run()
}

// setupTestDB возвращает shared pool с пустыми таблицами.
func setupTestDB(tb testing.TB) *pgxpool.Pool {
	tb.Helper()
	if testPool == nil {
		tb.Skip("skipping PostgreSQL test in short mode")
	}

	testutil.TruncateObjectTables(tb, testPool)
	return testPool
}
