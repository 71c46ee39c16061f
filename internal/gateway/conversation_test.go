package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"aigateway/internal/providers"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestConversationSaveLoadRoundTrip(t *testing.T) {
	store := NewConversationStore(newTestRedis(t), time.Hour)
	ctx := context.Background()

	conv := Conversation{
		ID:       "conv-1",
		TenantID: "tenant-1",
		Messages: []providers.ChatMessage{
			{Role: providers.RoleUser, Content: "Hi"},
			{Role: providers.RoleAssistant, Content: "Hello!"},
		},
	}
	if err := store.Save(ctx, conv); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, found, err := store.Load(ctx, "tenant-1", "conv-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !found {
		t.Fatalf("expected conversation found")
	}
	if len(loaded.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(loaded.Messages))
	}
	if loaded.Messages[0] != conv.Messages[0] || loaded.Messages[1] != conv.Messages[1] {
		t.Fatalf("messages changed across round trip: %+v", loaded.Messages)
	}
}

func TestConversationLoadMissing(t *testing.T) {
	store := NewConversationStore(newTestRedis(t), time.Hour)

	_, found, err := store.Load(context.Background(), "tenant-1", "nope")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if found {
		t.Fatalf("expected missing conversation")
	}
}

func TestConversationTenantIsolation(t *testing.T) {
	store := NewConversationStore(newTestRedis(t), time.Hour)
	ctx := context.Background()

	conv := Conversation{ID: "shared-id", TenantID: "tenant-a",
		Messages: []providers.ChatMessage{{Role: providers.RoleUser, Content: "secret"}}}
	if err := store.Save(ctx, conv); err != nil {
		t.Fatalf("save: %v", err)
	}

	_, found, err := store.Load(ctx, "tenant-b", "shared-id")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if found {
		t.Fatalf("conversation leaked across tenants")
	}
}
