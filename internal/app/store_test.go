package app

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/gobd-ledger/internal/compliance"
)

func TestOpenStoreSQLite(t *testing.T) {
	cfg := &Config{StoreDriver: DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "ledger.db")}
	handle, err := OpenStore(context.Background(), cfg, slog.Default())
	require.NoError(t, err)
	defer handle.Close()

	require.NoError(t, handle.Ping(context.Background()))

	svc := compliance.NewService(handle.Store)
	ref, err := svc.GetNextSequenceNumber(context.Background(), "EA", time.Now().Year())
	require.NoError(t, err)
	assert.Contains(t, ref, "EA-")
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	_, err := OpenStore(context.Background(), &Config{StoreDriver: "oracle"}, slog.Default())
	assert.ErrorContains(t, err, "unknown store driver")
}
