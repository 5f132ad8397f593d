package genstore

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestNewRedisGenStoreRejectsNilClient(t *testing.T) {
	if _, err := NewRedisGenStore(nil, RedisOptions{}); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

func TestRedisGenStoreKeyPrefix(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	s, err := NewRedisGenStore(rdb, RedisOptions{CloseClient: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	if got := s.key("/groups/g1/board"); got != "swrgen:/groups/g1/board" {
		t.Fatalf("key=%q", got)
	}
}

func TestParseGen(t *testing.T) {
	if g, err := parseGen("k", "42"); err != nil || g != 42 {
		t.Fatalf("got %d, %v", g, err)
	}
	if _, err := parseGen("k", "-1"); err == nil {
		t.Fatalf("negative generation should not parse")
	}
}
