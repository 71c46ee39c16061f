package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"aigateway/internal/providers"
)

// Conversation is an append-only ordered message sequence identified by an
// opaque id. History lives in redis so concurrent gateway instances share
// nothing in process memory.
type Conversation struct {
	ID       string                  `json:"id"`
	TenantID string                  `json:"tenant_id"`
	Messages []providers.ChatMessage `json:"messages"`
}

type ConversationStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewConversationStore(rdb *redis.Client, ttl time.Duration) *ConversationStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ConversationStore{redis: rdb, ttl: ttl}
}

func conversationKey(tenantID, id string) string {
	return fmt.Sprintf("aigateway:conv:%s:%s", tenantID, id)
}

func (s *ConversationStore) Load(ctx context.Context, tenantID, id string) (Conversation, bool, error) {
	raw, err := s.redis.Get(ctx, conversationKey(tenantID, id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Conversation{}, false, nil
		}
		return Conversation{}, false, fmt.Errorf("load conversation: %w", err)
	}

	var conv Conversation
	if err := json.Unmarshal([]byte(raw), &conv); err != nil {
		return Conversation{}, false, fmt.Errorf("decode conversation: %w", err)
	}
	return conv, true, nil
}

func (s *ConversationStore) Save(ctx context.Context, conv Conversation) error {
	if conv.ID == "" || conv.TenantID == "" {
		return fmt.Errorf("conversation id and tenant id are required")
	}
	raw, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("encode conversation: %w", err)
	}
	if err := s.redis.Set(ctx, conversationKey(conv.TenantID, conv.ID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}
