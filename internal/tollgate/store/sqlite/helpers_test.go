package sqlite_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/tollgate-labs/tollgate/server/internal/db"
)

var (
	registryA = common.HexToAddress("0x00000000000000000000000000000000000aaaa1")
	registryB = common.HexToAddress("0x00000000000000000000000000000000000bbbb2")
	moduleX   = common.HexToAddress("0x00000000000000000000000000000000000d0001")
	moduleY   = common.HexToAddress("0x00000000000000000000000000000000000d0002")
	moduleZ   = common.HexToAddress("0x00000000000000000000000000000000000d0003")
	alice     = common.HexToAddress("0x0000000000000000000000000000000000001001")
	bob       = common.HexToAddress("0x0000000000000000000000000000000000001002")
)

// openTestDB returns a migrated in-memory SQLite connection unique to the
// test. It is closed when the test finishes.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// Shared cache keeps the database alive across pool reconnects.
	dsn := fmt.Sprintf(
		"file:test_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		t.Name(),
	)
	conn, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	require.NoError(t, conn.Ping())
	_, err = db.Migrate(context.Background(), conn)
	require.NoError(t, err)

	t.Cleanup(func() { conn.Close() })
	return conn
}

func newTestWriter(t *testing.T, conn *sql.DB) *db.Worker {
	t.Helper()
	w := db.NewWorker(conn)
	t.Cleanup(w.Close)
	return w
}
