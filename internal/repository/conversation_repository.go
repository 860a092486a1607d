package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"smartdoc-go/internal/model"

	"github.com/go-redis/redis/v8"
)

const (
	maxHistory = 20
	historyTTL = 7 * 24 * time.Hour
)

// ConversationRepository 保存每个用户最近的问答记录。
type ConversationRepository interface {
	Append(ctx context.Context, userID uint, record model.AskRecord) error
	List(ctx context.Context, userID uint) ([]model.AskRecord, error)
}

type redisConversationRepository struct {
	redisClient *redis.Client
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(redisClient *redis.Client) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient}
}

func historyKey(userID uint) string {
	return fmt.Sprintf("user:%d:ask_history", userID)
}

// Append 追加一条记录，只保留最近 20 条并刷新过期时间。
func (r *redisConversationRepository) Append(ctx context.Context, userID uint, record model.AskRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal ask record: %w", err)
	}
	key := historyKey(userID)
	pipe := r.redisClient.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -maxHistory, -1)
	pipe.Expire(ctx, key, historyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append ask history: %w", err)
	}
	return nil
}

// List 按时间顺序返回记录。
func (r *redisConversationRepository) List(ctx context.Context, userID uint) ([]model.AskRecord, error) {
	items, err := r.redisClient.LRange(ctx, historyKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get ask history: %w", err)
	}
	records := make([]model.AskRecord, 0, len(items))
	for _, item := range items {
		var rec model.AskRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
