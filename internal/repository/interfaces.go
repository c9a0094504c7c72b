package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lrspeiser/Grue.is-sub000/internal/models"
)

// ErrNotFound возвращается, когда запрошенная запись отсутствует.
var ErrNotFound = errors.New("record not found")

// DBTX - минимальный контракт выполнения запросов: его удовлетворяют
// и *pgxpool.Pool, и pgx.Tx, что позволяет репозиториям работать внутри
// транзакций без изменения кода.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// WorldRepository хранит сгенерированные миры. Мир после записи
// неизменяем: только вставка и чтение.
type WorldRepository interface {
	Create(ctx context.Context, w *models.World) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.World, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]models.WorldRecord, error)
}

// GameStateRepository хранит снапшоты состояния игры. Пара
// (user_id, world_id) уникальна, запись всегда идет upsert-ом.
type GameStateRepository interface {
	Upsert(ctx context.Context, state *models.GameState) error
	Get(ctx context.Context, userID string, worldID uuid.UUID) (*models.GameState, error)
	Delete(ctx context.Context, userID string, worldID uuid.UUID) error
}

// ActionLogRepository - append-only журнал действий игроков.
// Обновлений и удалений у журнала нет.
type ActionLogRepository interface {
	Append(ctx context.Context, rec *models.ActionRecord) error
	ListByUser(ctx context.Context, userID string, worldID uuid.UUID, limit int) ([]models.ActionRecord, error)
}

// SnapshotCache - быстрый кэш последних снапшотов состояния поверх
// основного стораджа. Промах кэша не является ошибкой уровня ErrNotFound
// для вызывающего: он просто идет в Postgres.
type SnapshotCache interface {
	Set(ctx context.Context, state *models.GameState) error
	Get(ctx context.Context, userID string, worldID uuid.UUID) (*models.GameState, error)
	Delete(ctx context.Context, userID string, worldID uuid.UUID) error
}
