package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gongtu-rag-go/internal/model"

	"github.com/go-redis/redis/v8"
)

// ConversationCache 在 Redis 中维护每个会话的近期消息窗口，
// 用于提示词历史拼装。完整消息仍持久化在 MySQL，缓存丢失可接受。
type ConversationCache interface {
	GetHistory(ctx context.Context, chatID string) ([]model.ChatMessage, error)
	AppendExchange(ctx context.Context, chatID, question, answer string) error
}

type redisConversationCache struct {
	redisClient *redis.Client
}

// NewConversationCache 创建一个新的 ConversationCache 实例。
func NewConversationCache(redisClient *redis.Client) ConversationCache {
	return &redisConversationCache{redisClient: redisClient}
}

func historyKey(chatID string) string {
	return fmt.Sprintf("chat:%s:history", chatID)
}

// GetHistory 从 Redis 获取会话的近期消息。
func (c *redisConversationCache) GetHistory(ctx context.Context, chatID string) ([]model.ChatMessage, error) {
	jsonData, err := c.redisClient.Get(ctx, historyKey(chatID)).Result()
	if err == redis.Nil {
		return []model.ChatMessage{}, nil // 尚无历史
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}
	var messages []model.ChatMessage
	if err := json.Unmarshal([]byte(jsonData), &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation history: %w", err)
	}
	return messages, nil
}

// AppendExchange 追加一轮问答并裁剪到最近 20 条。
func (c *redisConversationCache) AppendExchange(ctx context.Context, chatID, question, answer string) error {
	messages, err := c.GetHistory(ctx, chatID)
	if err != nil {
		return err
	}

	now := time.Now()
	messages = append(messages,
		model.ChatMessage{Role: "user", Content: question, Timestamp: now},
		model.ChatMessage{Role: "assistant", Content: answer, Timestamp: now},
	)

	// 保留最近 20 条
	if len(messages) > 20 {
		messages = messages[len(messages)-20:]
	}
	jsonData, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation history: %w", err)
	}
	if err := c.redisClient.Set(ctx, historyKey(chatID), jsonData, 7*24*time.Hour).Err(); err != nil {
		return fmt.Errorf("failed to set conversation history: %w", err)
	}
	return nil
}
