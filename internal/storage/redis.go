package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/maneesh/tagdrop/internal/models"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// CacheTTL is the time-to-live for cached file records (5 minutes)
	CacheTTL = 5 * time.Minute

	// outboxMaxLen bounds undelivered messages kept per chat
	outboxMaxLen = 100
)

// RedisClient wraps Redis operations with tracing
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient initializes a new Redis client
func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test the connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// Close closes the Redis connection
func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

// Ping checks that Redis is reachable
func (rc *RedisClient) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// GetFileRecord retrieves a cached file record, returning nil on a miss
func (rc *RedisClient) GetFileRecord(ctx context.Context, fileID string) (*models.FileRecord, error) {
	ctx, span := tracer.Start(ctx, "redis.get_file_record",
		trace.WithAttributes(
			attribute.String("file_id", fileID),
		),
	)
	defer span.End()

	data, err := rc.client.Get(ctx, fileKey(fileID)).Result()

	if err == redis.Nil {
		span.SetAttributes(
			attribute.Bool("cache_hit", false),
			attribute.String("cache_status", "miss"),
		)
		return nil, nil // Cache miss, not an error
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get from cache: %w", err)
	}

	var file models.FileRecord
	if err := json.Unmarshal([]byte(data), &file); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to unmarshal cached data: %w", err)
	}

	span.SetAttributes(
		attribute.Bool("cache_hit", true),
		attribute.String("cache_status", "hit"),
	)
	return &file, nil
}

// SetFileRecord stores a file record in cache with tracing
func (rc *RedisClient) SetFileRecord(ctx context.Context, file *models.FileRecord) error {
	ctx, span := tracer.Start(ctx, "redis.set_file_record",
		trace.WithAttributes(
			attribute.String("file_id", file.ID),
			attribute.String("file_name", file.DisplayName),
		),
	)
	defer span.End()

	data, err := json.Marshal(file)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal file: %w", err)
	}

	if err := rc.client.Set(ctx, fileKey(file.ID), data, CacheTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set cache: %w", err)
	}

	span.SetAttributes(
		attribute.Bool("cache_set_success", true),
		attribute.Int64("ttl_seconds", int64(CacheTTL.Seconds())),
	)
	return nil
}

// InvalidateFileRecord removes a file record from cache with tracing
func (rc *RedisClient) InvalidateFileRecord(ctx context.Context, fileID string) error {
	ctx, span := tracer.Start(ctx, "redis.invalidate_file_record",
		trace.WithAttributes(
			attribute.String("file_id", fileID),
		),
	)
	defer span.End()

	if err := rc.client.Del(ctx, fileKey(fileID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}

	span.SetAttributes(attribute.Bool("cache_invalidate_success", true))
	return nil
}

// QuotaCounter exposes the Redis quota counters with a fixed key retention
type QuotaCounter struct {
	rc        *RedisClient
	retention time.Duration
}

// QuotaCounter returns a quota counter whose keys expire after retention
func (rc *RedisClient) QuotaCounter(retention time.Duration) *QuotaCounter {
	return &QuotaCounter{rc: rc, retention: retention}
}

// GetQuota returns the delivery count for a user on day, or 0
func (qc *QuotaCounter) GetQuota(ctx context.Context, userID int64, day string) (int, error) {
	ctx, span := tracer.Start(ctx, "redis.get_quota",
		trace.WithAttributes(
			attribute.Int64("user_id", userID),
			attribute.String("day", day),
		),
	)
	defer span.End()

	count, err := qc.rc.client.Get(ctx, quotaKey(userID, day)).Int()
	if err == redis.Nil {
		return 0, nil
	} else if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to get quota: %w", err)
	}

	span.SetAttributes(attribute.Int("count", count))
	return count, nil
}

// IncrementQuota atomically increments the counter for (userID, day) and
// refreshes its retention in the same MULTI/EXEC block
func (qc *QuotaCounter) IncrementQuota(ctx context.Context, userID int64, day string) (int, error) {
	ctx, span := tracer.Start(ctx, "redis.increment_quota",
		trace.WithAttributes(
			attribute.Int64("user_id", userID),
			attribute.String("day", day),
		),
	)
	defer span.End()

	key := quotaKey(userID, day)
	var incr *redis.IntCmd
	_, err := qc.rc.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, qc.retention)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to increment quota: %w", err)
	}

	span.SetAttributes(attribute.Int64("count", incr.Val()))
	return int(incr.Val()), nil
}

// PushOutbox appends a delivered file to the chat's outbox
func (rc *RedisClient) PushOutbox(ctx context.Context, msg *models.OutboxMessage, ttl time.Duration) error {
	ctx, span := tracer.Start(ctx, "redis.push_outbox",
		trace.WithAttributes(
			attribute.Int64("chat_id", msg.ChatID),
			attribute.String("payload_id", msg.PayloadID),
		),
	)
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal outbox message: %w", err)
	}

	key := outboxKey(msg.ChatID)
	_, err = rc.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, -outboxMaxLen, -1)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to push outbox message: %w", err)
	}

	return nil
}

// DrainOutbox returns and removes all pending messages for a chat
func (rc *RedisClient) DrainOutbox(ctx context.Context, chatID int64) ([]models.OutboxMessage, error) {
	ctx, span := tracer.Start(ctx, "redis.drain_outbox",
		trace.WithAttributes(
			attribute.Int64("chat_id", chatID),
		),
	)
	defer span.End()

	key := outboxKey(chatID)
	var items *redis.StringSliceCmd
	_, err := rc.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		items = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to drain outbox: %w", err)
	}

	messages := make([]models.OutboxMessage, 0, len(items.Val()))
	for _, raw := range items.Val() {
		var msg models.OutboxMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to unmarshal outbox message: %w", err)
		}
		messages = append(messages, msg)
	}

	span.SetAttributes(attribute.Int("message_count", len(messages)))
	return messages, nil
}

func fileKey(fileID string) string {
	return fmt.Sprintf("file:%s", fileID)
}

func quotaKey(userID int64, day string) string {
	return "quota:" + strconv.FormatInt(userID, 10) + ":" + day
}

func outboxKey(chatID int64) string {
	return "outbox:" + strconv.FormatInt(chatID, 10)
}
