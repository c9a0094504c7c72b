package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lrspeiser/Grue.is-sub000/internal/models"
)

// Compile-time check
var _ ActionLogRepository = (*pgActionLogRepository)(nil)

const (
	appendActionQuery = `
        INSERT INTO actions (user_id, world_id, action, details, created_at)
        VALUES ($1, $2, $3, $4, $5)
    `
	listActionsQuery = `
        SELECT id, user_id, world_id, action, details, created_at
        FROM actions
        WHERE user_id = $1 AND world_id = $2
        ORDER BY id DESC
        LIMIT $3
    `
)

type pgActionLogRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgActionLogRepository создает Postgres-репозиторий журнала действий.
func NewPgActionLogRepository(db DBTX, logger *zap.Logger) ActionLogRepository {
	return &pgActionLogRepository{
		db:     db,
		logger: logger.Named("PgActionLogRepo"),
	}
}

// Append добавляет запись в журнал. Журнал только растет: никакой
// операции обновления или удаления у репозитория нет.
func (r *pgActionLogRepository) Append(ctx context.Context, rec *models.ActionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	logFields := []zap.Field{zap.String("userID", rec.UserID), zap.String("action", rec.Action)}
	r.logger.Debug("Appending action record", logFields...)

	_, err := r.db.Exec(ctx, appendActionQuery,
		rec.UserID, rec.WorldID, rec.Action, rec.Details, rec.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to append action record", append(logFields, zap.Error(err))...)
		return fmt.Errorf("ошибка записи действия для user %s: %w", rec.UserID, err)
	}
	return nil
}

func (r *pgActionLogRepository) ListByUser(ctx context.Context, userID string, worldID uuid.UUID, limit int) ([]models.ActionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	logFields := []zap.Field{zap.String("userID", userID), zap.Int("limit", limit)}
	r.logger.Debug("Listing action records", logFields...)

	var records []models.ActionRecord
	if err := pgxscan.Select(ctx, r.db, &records, listActionsQuery, userID, worldID, limit); err != nil {
		r.logger.Error("Failed to list action records", append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("ошибка чтения журнала действий для user %s: %w", userID, err)
	}
	return records, nil
}
