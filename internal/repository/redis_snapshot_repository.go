package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lrspeiser/Grue.is-sub000/internal/models"
)

// Compile-time check
var _ SnapshotCache = (*redisSnapshotRepository)(nil)

// snapshotTTL ограничивает жизнь кэшированного снапшота: источник
// истины всегда Postgres, кэш лишь ускоряет горячие сессии.
const snapshotTTL = 24 * time.Hour

type redisSnapshotRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisSnapshotRepository создает Redis-кэш снапшотов состояния.
func NewRedisSnapshotRepository(client *redis.Client, logger *zap.Logger) SnapshotCache {
	return &redisSnapshotRepository{
		client: client,
		logger: logger.Named("RedisSnapshotRepo"),
	}
}

func snapshotKey(userID string, worldID uuid.UUID) string {
	return fmt.Sprintf("game_state:%s:%s", userID, worldID)
}

func (r *redisSnapshotRepository) Set(ctx context.Context, state *models.GameState) error {
	key := snapshotKey(state.UserID, state.WorldID)
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("ошибка сериализации снапшота: %w", err)
	}
	if err := r.client.Set(ctx, key, data, snapshotTTL).Err(); err != nil {
		r.logger.Error("Failed to cache game state snapshot",
			zap.String("key", key), zap.Error(err))
		return fmt.Errorf("ошибка записи снапшота в redis: %w", err)
	}
	r.logger.Debug("Snapshot cached", zap.String("key", key))
	return nil
}

func (r *redisSnapshotRepository) Get(ctx context.Context, userID string, worldID uuid.UUID) (*models.GameState, error) {
	key := snapshotKey(userID, worldID)
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to read snapshot from cache",
			zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("ошибка чтения снапшота из redis: %w", err)
	}

	var state models.GameState
	if err := json.Unmarshal(data, &state); err != nil {
		// Битый кэш не должен ломать загрузку: убираем ключ и идем в БД.
		r.logger.Warn("Corrupted snapshot in cache, evicting",
			zap.String("key", key), zap.Error(err))
		_ = r.client.Del(ctx, key).Err()
		return nil, ErrNotFound
	}
	return &state, nil
}

func (r *redisSnapshotRepository) Delete(ctx context.Context, userID string, worldID uuid.UUID) error {
	key := snapshotKey(userID, worldID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.logger.Error("Failed to delete snapshot from cache",
			zap.String("key", key), zap.Error(err))
		return fmt.Errorf("ошибка удаления снапшота из redis: %w", err)
	}
	return nil
}
