package cache

import (
	"context"
	"fmt"
	"time"

	"barrio-alarm/internal/config"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// MessageCache holds the per-chat recent-message history and the processed
// message-id markers. Both live in Redis so mutation is serialized per key
// even when the host processes several chats concurrently.
type MessageCache struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewMessageCache creates the cache manager.
func NewMessageCache(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) *MessageCache {
	return &MessageCache{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

func (c *MessageCache) recentKey(chatID string) string {
	return fmt.Sprintf("%s%s:recent", c.config.Cache.RecentKeyPrefix, chatID)
}

func (c *MessageCache) processedKey(messageID string) string {
	return c.config.Cache.ProcessedKeyPrefix + messageID
}

// MarkProcessed records a message id and reports whether it was seen for
// the first time. Duplicate webhook deliveries yield false. Every id gets
// its own marker key with its own TTL, so old ids age out individually no
// matter how busy the chats are.
func (c *MessageCache) MarkProcessed(ctx context.Context, messageID string) (bool, error) {
	ttl := time.Duration(c.config.Cache.ProcessedTTL) * time.Second
	first, err := c.redisClient.SetNX(ctx, c.processedKey(messageID), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark message processed: %w", err)
	}
	return first, nil
}

// AppendRecent pushes a message onto the chat's bounded history, evicting
// the oldest entry beyond the cap. Push and trim run in one pipeline so the
// list never grows past the limit.
func (c *MessageCache) AppendRecent(ctx context.Context, chatID, text string) error {
	key := c.recentKey(chatID)
	limit := int64(c.config.Cache.RecentLimit)

	pipe := c.redisClient.TxPipeline()
	pipe.LPush(ctx, key, text)
	pipe.LTrim(ctx, key, 0, limit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append recent message: %w", err)
	}

	c.logger.Debug("Recent message cached",
		zap.String("chat_id", chatID),
	)
	return nil
}

// Recent returns the chat's history, newest first.
func (c *MessageCache) Recent(ctx context.Context, chatID string) ([]string, error) {
	messages, err := c.redisClient.LRange(ctx, c.recentKey(chatID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read recent messages: %w", err)
	}
	return messages, nil
}
