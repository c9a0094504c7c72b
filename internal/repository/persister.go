package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lrspeiser/Grue.is-sub000/internal/models"
)

// ActionEventPublisher уведомляет внешних потребителей о действии игрока.
// Публикация best-effort: ее сбой не считается сбоем персистентности.
type ActionEventPublisher interface {
	PublishActionEvent(ctx context.Context, rec *models.ActionRecord) error
}

// Persister связывает движок со стораджем: снапшот пишется в Postgres
// и дублируется в кэш, действие уходит в append-only журнал и в очередь
// событий. Кэш и очередь вторичны, их сбои только логируются.
type Persister struct {
	states    GameStateRepository
	actions   ActionLogRepository
	cache     SnapshotCache
	publisher ActionEventPublisher
	logger    *zap.Logger
}

// NewPersister создает адаптер персистентности. cache и publisher
// опциональны (nil отключает соответствующий канал).
func NewPersister(states GameStateRepository, actions ActionLogRepository, cache SnapshotCache, publisher ActionEventPublisher, logger *zap.Logger) *Persister {
	return &Persister{
		states:    states,
		actions:   actions,
		cache:     cache,
		publisher: publisher,
		logger:    logger.Named("Persister"),
	}
}

func (p *Persister) SaveSnapshot(ctx context.Context, w *models.World, state *models.GameState) error {
	if err := p.states.Upsert(ctx, state); err != nil {
		return err
	}
	if p.cache != nil {
		if err := p.cache.Set(ctx, state); err != nil {
			p.logger.Warn("Snapshot cache write failed",
				zap.String("userID", state.UserID), zap.Error(err))
		}
	}
	return nil
}

// LoadState достает снапшот: сперва из кэша, при промахе из Postgres
// (и прогревает кэш найденным значением).
func (p *Persister) LoadState(ctx context.Context, userID string, worldID uuid.UUID) (*models.GameState, error) {
	if p.cache != nil {
		if state, err := p.cache.Get(ctx, userID, worldID); err == nil {
			return state, nil
		}
	}
	state, err := p.states.Get(ctx, userID, worldID)
	if err != nil {
		return nil, err
	}
	if p.cache != nil {
		if err := p.cache.Set(ctx, state); err != nil {
			p.logger.Warn("Snapshot cache warmup failed",
				zap.String("userID", userID), zap.Error(err))
		}
	}
	return state, nil
}

// DropState удаляет снапшот из кэша и из Postgres.
func (p *Persister) DropState(ctx context.Context, userID string, worldID uuid.UUID) error {
	if p.cache != nil {
		if err := p.cache.Delete(ctx, userID, worldID); err != nil {
			p.logger.Warn("Snapshot cache delete failed",
				zap.String("userID", userID), zap.Error(err))
		}
	}
	return p.states.Delete(ctx, userID, worldID)
}

func (p *Persister) AppendAction(ctx context.Context, userID string, w *models.World, action string, details interface{}) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("ошибка сериализации деталей действия: %w", err)
	}
	rec := &models.ActionRecord{
		UserID:  userID,
		WorldID: w.ID,
		Action:  action,
		Details: payload,
	}
	if err := p.actions.Append(ctx, rec); err != nil {
		return err
	}
	if p.publisher != nil {
		if err := p.publisher.PublishActionEvent(ctx, rec); err != nil {
			p.logger.Warn("Action event publish failed",
				zap.String("userID", userID), zap.Error(err))
		}
	}
	return nil
}
