package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/lrspeiser/Grue.is-sub000/internal/models"
)

// Mock WorldRepository
type WorldRepository struct {
	mock.Mock
}

func (m *WorldRepository) Create(ctx context.Context, w *models.World) error {
	args := m.Called(ctx, w)
	return args.Error(0)
}
func (m *WorldRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.World, error) {
	args := m.Called(ctx, id)
	w, _ := args.Get(0).(*models.World)
	return w, args.Error(1)
}
func (m *WorldRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.WorldRecord, error) {
	args := m.Called(ctx, userID, limit)
	records, _ := args.Get(0).([]models.WorldRecord)
	return records, args.Error(1)
}

// Mock GameStateRepository
type GameStateRepository struct {
	mock.Mock
}

func (m *GameStateRepository) Upsert(ctx context.Context, state *models.GameState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}
func (m *GameStateRepository) Get(ctx context.Context, userID string, worldID uuid.UUID) (*models.GameState, error) {
	args := m.Called(ctx, userID, worldID)
	state, _ := args.Get(0).(*models.GameState)
	return state, args.Error(1)
}
func (m *GameStateRepository) Delete(ctx context.Context, userID string, worldID uuid.UUID) error {
	args := m.Called(ctx, userID, worldID)
	return args.Error(0)
}

// Mock ActionLogRepository
type ActionLogRepository struct {
	mock.Mock
}

func (m *ActionLogRepository) Append(ctx context.Context, rec *models.ActionRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}
func (m *ActionLogRepository) ListByUser(ctx context.Context, userID string, worldID uuid.UUID, limit int) ([]models.ActionRecord, error) {
	args := m.Called(ctx, userID, worldID, limit)
	records, _ := args.Get(0).([]models.ActionRecord)
	return records, args.Error(1)
}

// Mock SnapshotCache
type SnapshotCache struct {
	mock.Mock
}

func (m *SnapshotCache) Set(ctx context.Context, state *models.GameState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}
func (m *SnapshotCache) Get(ctx context.Context, userID string, worldID uuid.UUID) (*models.GameState, error) {
	args := m.Called(ctx, userID, worldID)
	state, _ := args.Get(0).(*models.GameState)
	return state, args.Error(1)
}
func (m *SnapshotCache) Delete(ctx context.Context, userID string, worldID uuid.UUID) error {
	args := m.Called(ctx, userID, worldID)
	return args.Error(0)
}

// Mock ActionEventPublisher
type ActionEventPublisher struct {
	mock.Mock
}

func (m *ActionEventPublisher) PublishActionEvent(ctx context.Context, rec *models.ActionRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}
