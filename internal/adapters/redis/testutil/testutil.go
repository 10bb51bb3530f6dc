// Package testutil connects adapter tests to a Redis server.
package testutil

import (
	"context"
	"os"
	"testing"

	goredis "github.com/redis/go-redis/v9"

	redisadapter "github.com/travelmap/ratings-api/internal/adapters/redis"
)

// OpenClient connects to REDIS_ADDR. Tests are skipped when REDIS_ADDR is unset.
func OpenClient(t *testing.T) *goredis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping redis tests")
	}
	rdb, err := redisadapter.NewClient(context.Background(), redisadapter.Options{Addr: addr})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}
