package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/lrspeiser/Grue.is-sub000/internal/models"
)

// Compile-time check
var _ WorldRepository = (*pgWorldRepository)(nil)

const (
	createWorldQuery = `
        INSERT INTO worlds (id, user_id, title, description, setting, world_data, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `
	getWorldByIDQuery = `
        SELECT id, user_id, title, description, setting, world_data, created_at
        FROM worlds
        WHERE id = $1
    `
	listWorldsByUserQuery = `
        SELECT id, user_id, title, description, setting, world_data, created_at
        FROM worlds
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT $2
    `
)

type pgWorldRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgWorldRepository создает Postgres-репозиторий миров.
func NewPgWorldRepository(db DBTX, logger *zap.Logger) WorldRepository {
	return &pgWorldRepository{
		db:     db,
		logger: logger.Named("PgWorldRepo"),
	}
}

func (r *pgWorldRepository) Create(ctx context.Context, w *models.World) error {
	logFields := []zap.Field{zap.String("worldID", w.ID.String()), zap.String("userID", w.UserID)}
	r.logger.Debug("Creating world", logFields...)

	worldData, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("ошибка сериализации мира %s: %w", w.ID, err)
	}

	_, err = r.db.Exec(ctx, createWorldQuery,
		w.ID, w.UserID, w.Title, w.Description, w.Setting, worldData, w.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create world", append(logFields, zap.Error(err))...)
		return fmt.Errorf("ошибка создания мира %s: %w", w.ID, err)
	}
	r.logger.Info("World created successfully", logFields...)
	return nil
}

func (r *pgWorldRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.World, error) {
	logFields := []zap.Field{zap.String("worldID", id.String())}
	r.logger.Debug("Getting world by ID", logFields...)

	var rec models.WorldRecord
	err := pgxscan.Get(ctx, r.db, &rec, getWorldByIDQuery, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Warn("World not found by ID", logFields...)
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get world by ID", append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("ошибка получения мира %s: %w", id, err)
	}

	var w models.World
	if err := json.Unmarshal(rec.WorldData, &w); err != nil {
		r.logger.Error("Failed to decode stored world data", append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("ошибка десериализации мира %s: %w", id, err)
	}
	// Колонки таблицы авторитетнее содержимого блоба.
	w.ID = rec.ID
	w.UserID = rec.UserID
	w.CreatedAt = rec.CreatedAt
	return &w, nil
}

func (r *pgWorldRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.WorldRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	logFields := []zap.Field{zap.String("userID", userID), zap.Int("limit", limit)}
	r.logger.Debug("Listing worlds for user", logFields...)

	var records []models.WorldRecord
	if err := pgxscan.Select(ctx, r.db, &records, listWorldsByUserQuery, userID, limit); err != nil {
		r.logger.Error("Failed to list worlds", append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("ошибка получения списка миров для user %s: %w", userID, err)
	}
	return records, nil
}
