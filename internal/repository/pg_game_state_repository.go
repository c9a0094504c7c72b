package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/lrspeiser/Grue.is-sub000/internal/models"
)

// Compile-time check
var _ GameStateRepository = (*pgGameStateRepository)(nil)

const (
	upsertGameStateQuery = `
        INSERT INTO game_states
            (user_id, world_id, current_room, inventory, health, score, game_state, continuation_token, updated_at)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (user_id, world_id) DO UPDATE SET
            current_room = EXCLUDED.current_room,
            inventory = EXCLUDED.inventory,
            health = EXCLUDED.health,
            score = EXCLUDED.score,
            game_state = EXCLUDED.game_state,
            continuation_token = EXCLUDED.continuation_token,
            updated_at = EXCLUDED.updated_at
    `
	getGameStateQuery = `
        SELECT user_id, world_id, current_room, inventory, health, score, game_state, continuation_token, updated_at
        FROM game_states
        WHERE user_id = $1 AND world_id = $2
    `
	deleteGameStateQuery = `DELETE FROM game_states WHERE user_id = $1 AND world_id = $2`
)

type pgGameStateRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgGameStateRepository создает Postgres-репозиторий снапшотов состояния.
func NewPgGameStateRepository(db DBTX, logger *zap.Logger) GameStateRepository {
	return &pgGameStateRepository{
		db:     db,
		logger: logger.Named("PgGameStateRepo"),
	}
}

// Upsert пишет снапшот целиком: частичных обновлений нет, последняя
// запись по паре (user_id, world_id) всегда выигрывает.
func (r *pgGameStateRepository) Upsert(ctx context.Context, state *models.GameState) error {
	logFields := []zap.Field{zap.String("userID", state.UserID), zap.String("worldID", state.WorldID.String())}
	r.logger.Debug("Upserting game state", logFields...)

	inventory, err := json.Marshal(state.Inventory)
	if err != nil {
		return fmt.Errorf("ошибка сериализации инвентаря: %w", err)
	}
	fullState, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("ошибка сериализации состояния: %w", err)
	}
	var token *string
	if state.ContinuationToken != "" {
		token = &state.ContinuationToken
	}

	_, err = r.db.Exec(ctx, upsertGameStateQuery,
		state.UserID, state.WorldID, state.CurrentRoomID,
		inventory, state.Health, state.Score, fullState, token, time.Now().UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to upsert game state", append(logFields, zap.Error(err))...)
		return fmt.Errorf("ошибка записи состояния для user %s: %w", state.UserID, err)
	}
	r.logger.Debug("Game state upserted successfully", logFields...)
	return nil
}

func (r *pgGameStateRepository) Get(ctx context.Context, userID string, worldID uuid.UUID) (*models.GameState, error) {
	logFields := []zap.Field{zap.String("userID", userID), zap.String("worldID", worldID.String())}
	r.logger.Debug("Getting game state", logFields...)

	var rec models.GameStateRecord
	err := pgxscan.Get(ctx, r.db, &rec, getGameStateQuery, userID, worldID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Warn("Game state not found", logFields...)
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get game state", append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("ошибка получения состояния для user %s: %w", userID, err)
	}

	var state models.GameState
	if err := json.Unmarshal(rec.GameState, &state); err != nil {
		r.logger.Error("Failed to decode stored game state", append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("ошибка десериализации состояния для user %s: %w", userID, err)
	}
	state.UserID = rec.UserID
	state.WorldID = rec.WorldID
	state.UpdatedAt = rec.UpdatedAt
	if rec.ContinuationToken != nil {
		state.ContinuationToken = *rec.ContinuationToken
	}
	return &state, nil
}

func (r *pgGameStateRepository) Delete(ctx context.Context, userID string, worldID uuid.UUID) error {
	logFields := []zap.Field{zap.String("userID", userID), zap.String("worldID", worldID.String())}
	r.logger.Debug("Deleting game state", logFields...)

	commandTag, err := r.db.Exec(ctx, deleteGameStateQuery, userID, worldID)
	if err != nil {
		r.logger.Error("Failed to delete game state", append(logFields, zap.Error(err))...)
		return fmt.Errorf("ошибка удаления состояния для user %s: %w", userID, err)
	}
	if commandTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	r.logger.Info("Game state deleted", logFields...)
	return nil
}
