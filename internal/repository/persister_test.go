package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lrspeiser/Grue.is-sub000/internal/models"
	"github.com/lrspeiser/Grue.is-sub000/internal/repository"
	"github.com/lrspeiser/Grue.is-sub000/internal/repository/mocks"
)

func testState() *models.GameState {
	return &models.GameState{
		UserID:        "player-1",
		WorldID:       uuid.New(),
		CurrentRoomID: "start",
		Health:        100,
		Status:        models.SessionStatusReady,
	}
}

func testWorld(state *models.GameState) *models.World {
	return &models.World{ID: state.WorldID, UserID: state.UserID, Title: "Test World"}
}

func TestSaveSnapshot(t *testing.T) {
	t.Run("writes postgres then cache", func(t *testing.T) {
		states := new(mocks.GameStateRepository)
		cache := new(mocks.SnapshotCache)
		state := testState()

		states.On("Upsert", mock.Anything, state).Return(nil).Once()
		cache.On("Set", mock.Anything, state).Return(nil).Once()

		p := repository.NewPersister(states, nil, cache, nil, zap.NewNop())
		require.NoError(t, p.SaveSnapshot(context.Background(), testWorld(state), state))
		states.AssertExpectations(t)
		cache.AssertExpectations(t)
	})

	t.Run("cache failure is swallowed", func(t *testing.T) {
		states := new(mocks.GameStateRepository)
		cache := new(mocks.SnapshotCache)
		state := testState()

		states.On("Upsert", mock.Anything, state).Return(nil).Once()
		cache.On("Set", mock.Anything, state).Return(errors.New("redis down")).Once()

		p := repository.NewPersister(states, nil, cache, nil, zap.NewNop())
		assert.NoError(t, p.SaveSnapshot(context.Background(), testWorld(state), state))
	})

	t.Run("postgres failure propagates", func(t *testing.T) {
		states := new(mocks.GameStateRepository)
		state := testState()
		states.On("Upsert", mock.Anything, state).Return(errors.New("pg down")).Once()

		p := repository.NewPersister(states, nil, nil, nil, zap.NewNop())
		assert.Error(t, p.SaveSnapshot(context.Background(), testWorld(state), state))
	})
}

func TestAppendAction(t *testing.T) {
	t.Run("appends record and publishes event", func(t *testing.T) {
		actions := new(mocks.ActionLogRepository)
		publisher := new(mocks.ActionEventPublisher)
		state := testState()
		w := testWorld(state)

		actions.On("Append", mock.Anything, mock.MatchedBy(func(rec *models.ActionRecord) bool {
			return rec.UserID == "player-1" && rec.Action == "command" && rec.WorldID == w.ID
		})).Return(nil).Once()
		publisher.On("PublishActionEvent", mock.Anything, mock.Anything).Return(nil).Once()

		p := repository.NewPersister(nil, actions, nil, publisher, zap.NewNop())
		err := p.AppendAction(context.Background(), "player-1", w, "command", map[string]interface{}{"command": "look"})
		require.NoError(t, err)
		actions.AssertExpectations(t)
		publisher.AssertExpectations(t)
	})

	t.Run("publisher failure is swallowed", func(t *testing.T) {
		actions := new(mocks.ActionLogRepository)
		publisher := new(mocks.ActionEventPublisher)
		state := testState()

		actions.On("Append", mock.Anything, mock.Anything).Return(nil).Once()
		publisher.On("PublishActionEvent", mock.Anything, mock.Anything).Return(errors.New("amqp down")).Once()

		p := repository.NewPersister(nil, actions, nil, publisher, zap.NewNop())
		assert.NoError(t, p.AppendAction(context.Background(), "player-1", testWorld(state), "command", nil))
	})
}

func TestLoadState(t *testing.T) {
	t.Run("cache hit skips postgres", func(t *testing.T) {
		states := new(mocks.GameStateRepository)
		cache := new(mocks.SnapshotCache)
		state := testState()

		cache.On("Get", mock.Anything, state.UserID, state.WorldID).Return(state, nil).Once()

		p := repository.NewPersister(states, nil, cache, nil, zap.NewNop())
		loaded, err := p.LoadState(context.Background(), state.UserID, state.WorldID)
		require.NoError(t, err)
		assert.Equal(t, state, loaded)
		states.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("cache miss falls through and warms cache", func(t *testing.T) {
		states := new(mocks.GameStateRepository)
		cache := new(mocks.SnapshotCache)
		state := testState()

		cache.On("Get", mock.Anything, state.UserID, state.WorldID).Return(nil, repository.ErrNotFound).Once()
		states.On("Get", mock.Anything, state.UserID, state.WorldID).Return(state, nil).Once()
		cache.On("Set", mock.Anything, state).Return(nil).Once()

		p := repository.NewPersister(states, nil, cache, nil, zap.NewNop())
		loaded, err := p.LoadState(context.Background(), state.UserID, state.WorldID)
		require.NoError(t, err)
		assert.Equal(t, state, loaded)
		cache.AssertExpectations(t)
	})

	t.Run("not found anywhere", func(t *testing.T) {
		states := new(mocks.GameStateRepository)
		state := testState()
		states.On("Get", mock.Anything, state.UserID, state.WorldID).Return(nil, repository.ErrNotFound).Once()

		p := repository.NewPersister(states, nil, nil, nil, zap.NewNop())
		_, err := p.LoadState(context.Background(), state.UserID, state.WorldID)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}
