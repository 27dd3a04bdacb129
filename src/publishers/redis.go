package publishers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"quote-streamer/src/helpers"
	"quote-streamer/src/interfaces"
	"quote-streamer/src/logger"
	"quote-streamer/src/models"

	"github.com/redis/go-redis/v9"
)

const redisOpTimeout = 2 * time.Second

// -----------------------------------------------------------------------------
// RedisPublisher implements interfaces.IPublisher. Every changed record is
// cached under <key_prefix><symbol> and announced on <channel_prefix><symbol>
// in one pipeline per snapshot.
// -----------------------------------------------------------------------------

type RedisPublisher struct {
	name       string
	config     *models.MRedisConfig
	logger     *logger.Logger
	serializer interfaces.ISerializer

	mu     sync.RWMutex
	client *redis.Client
}

// -----------------------------------------------------------------------------

// NewRedisPublisher creates a new Redis publisher instance
func NewRedisPublisher(name string, config *models.MRedisConfig, logger *logger.Logger, serializer interfaces.ISerializer) *RedisPublisher {
	return &RedisPublisher{
		name:       name,
		config:     config,
		logger:     logger,
		serializer: serializer,
	}
}

// -----------------------------------------------------------------------------

// Connect opens the client and waits for the server to answer PING
func (rp *RedisPublisher) Connect() error {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rp.client != nil {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     rp.config.Addr,
		Password: rp.config.Password,
		DB:       rp.config.DB,
	})

	err := helpers.RetryWithBackoff(3, 200*time.Millisecond, 2*time.Second, nil, func(attempt int) error {
		ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			rp.logger.Warning("%s : redis ping attempt %d failed: %v", rp.name, attempt+1, err)
			return err
		}
		return nil
	})
	if err != nil {
		client.Close()
		return fmt.Errorf("redis connection failed: %w", err)
	}

	rp.client = client
	rp.logger.Info("%s : connected to Redis at %s", rp.name, rp.config.Addr)
	return nil
}

// -----------------------------------------------------------------------------

// OnSnapshot caches and announces the records that changed in the snapshot
func (rp *RedisPublisher) OnSnapshot(snapshot models.MSnapshot, changed []models.MQuoteRecord) {
	rp.mu.RLock()
	defer rp.mu.RUnlock()

	if rp.client == nil || len(changed) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	pipe := rp.client.Pipeline()
	queued := 0
	for _, record := range changed {
		payload, err := rp.serializer.Marshal(record)
		if err != nil {
			rp.logger.Error("%s : failed to serialize quote for %s: %v", rp.name, record.Symbol, err)
			continue
		}
		pipe.Set(ctx, rp.config.KeyPrefix+record.Symbol, payload, rp.config.TTL)
		pipe.Publish(ctx, rp.config.ChannelPrefix+record.Symbol, payload)
		queued++
	}
	if queued == 0 {
		return
	}

	if _, err := pipe.Exec(ctx); err != nil {
		rp.logger.Error("%s : redis pipeline failed for %d quotes: %v", rp.name, queued, err)
	}
}

// -----------------------------------------------------------------------------

// Disconnect closes the Redis client
func (rp *RedisPublisher) Disconnect() error {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rp.client == nil {
		return nil
	}

	err := rp.client.Close()
	rp.client = nil
	if err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	rp.logger.Info("%s : Redis connection closed", rp.name)
	return nil
}

// -----------------------------------------------------------------------------

// IsConnected returns connection status
func (rp *RedisPublisher) IsConnected() bool {
	rp.mu.RLock()
	defer rp.mu.RUnlock()
	return rp.client != nil
}

// -----------------------------------------------------------------------------

// GetName returns the publisher name
func (rp *RedisPublisher) GetName() string {
	return rp.name
}
