package session_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lrspeiser/Grue.is-sub000/internal/models"
	"github.com/lrspeiser/Grue.is-sub000/internal/session"
)

func TestStoreGetOrCreate(t *testing.T) {
	store := session.NewStore(zap.NewNop())

	s := store.GetOrCreate("user-1", 42)
	require.NotNil(t, s)
	assert.Equal(t, int64(42), s.Seed)
	assert.Equal(t, models.SessionStatusUninitialized, s.State.Status)
	assert.Equal(t, models.HealthMax, s.State.Health)

	// Повторный вызов возвращает ту же сессию, seed не перезаписывается.
	again := store.GetOrCreate("user-1", 99)
	assert.Same(t, s, again)
	assert.Equal(t, int64(42), again.Seed)
}

func TestStoreGetAbsent(t *testing.T) {
	store := session.NewStore(zap.NewNop())
	_, err := store.Get("missing")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestStoreDelete(t *testing.T) {
	store := session.NewStore(zap.NewNop())
	store.GetOrCreate("user-1", 1)
	assert.Equal(t, 1, store.Len())

	store.Delete("user-1")
	assert.Equal(t, 0, store.Len())
	_, err := store.Get("user-1")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestSessionCommandSerialization(t *testing.T) {
	store := session.NewStore(zap.NewNop())
	s := store.GetOrCreate("user-1", 1)

	require.NoError(t, s.BeginCommand())
	// Вторая команда до завершения первой - явная ошибка, не гонка.
	assert.ErrorIs(t, s.BeginCommand(), session.ErrCommandInFlight)

	s.EndCommand()
	assert.NoError(t, s.BeginCommand())
	s.EndCommand()
}

func TestSessionLogBufferFIFO(t *testing.T) {
	store := session.NewStore(zap.NewNop())
	s := store.GetOrCreate("user-1", 1)

	for i := 0; i < 250; i++ {
		s.Log(fmt.Sprintf("entry-%d", i))
	}

	entries := s.LogEntries()
	require.Len(t, entries, 200)
	// Старые записи вытеснены первыми: буфер начинается с entry-50.
	assert.Equal(t, "entry-50", entries[0].Message)
	assert.Equal(t, "entry-249", entries[len(entries)-1].Message)
}

func TestAwaitWorld(t *testing.T) {
	t.Run("no pending generation returns immediately", func(t *testing.T) {
		store := session.NewStore(zap.NewNop())
		s := store.GetOrCreate("user-1", 1)
		assert.NoError(t, s.AwaitWorld(context.Background(), time.Millisecond))
	})

	t.Run("resolved world becomes visible", func(t *testing.T) {
		store := session.NewStore(zap.NewNop())
		s := store.GetOrCreate("user-1", 1)
		s.MarkWorldPending()

		go func() {
			time.Sleep(10 * time.Millisecond)
			s.ResolveWorld(&models.World{Title: "Generated"}, nil)
		}()

		require.NoError(t, s.AwaitWorld(context.Background(), time.Second))
		require.NotNil(t, s.World)
		assert.Equal(t, "Generated", s.World.Title)
	})

	t.Run("bounded wait gives up with reason", func(t *testing.T) {
		store := session.NewStore(zap.NewNop())
		s := store.GetOrCreate("user-1", 1)
		s.MarkWorldPending()

		err := s.AwaitWorld(context.Background(), 5*time.Millisecond)
		assert.ErrorIs(t, err, session.ErrWorldNotReady)
	})

	t.Run("generation failure is reported to waiter", func(t *testing.T) {
		store := session.NewStore(zap.NewNop())
		s := store.GetOrCreate("user-1", 1)
		s.MarkWorldPending()

		genErr := errors.New("generator exploded")
		go s.ResolveWorld(nil, genErr)

		err := s.AwaitWorld(context.Background(), time.Second)
		assert.ErrorIs(t, err, genErr)
		assert.Nil(t, s.World)
	})
}
