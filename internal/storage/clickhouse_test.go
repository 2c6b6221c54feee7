package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trade-analytics/internal/config"
)

func TestNewClickHouseDB(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := &config.ClickHouseConfig{
		Host:     "localhost",
		Port:     "9000",
		Database: "trade_analytics",
		User:     "default",
		Password: "",
	}

	db, err := NewClickHouseDB(testContext(t), cfg)
	if err != nil {
		t.Skipf("Skipping test - ClickHouse not available: %v", err)
		return
	}
	defer func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	}()

	ctx := testContext(t)
	if err := db.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestSplitSQLStatements(t *testing.T) {
	content := `
-- header comment
CREATE TABLE a (
    x UInt8
) ENGINE = Memory;

-- second
CREATE TABLE b (y String) ENGINE = Memory;
SELECT 1`

	got := splitSQLStatements(content)

	assert.Len(t, got, 3)
	assert.Contains(t, got[0], "CREATE TABLE a")
	assert.NotContains(t, got[0], ";")
	assert.Equal(t, "CREATE TABLE b (y String) ENGINE = Memory", got[1])
	assert.Equal(t, "SELECT 1", got[2])
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
}
