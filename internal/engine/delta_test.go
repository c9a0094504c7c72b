package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lrspeiser/Grue.is-sub000/internal/engine"
	"github.com/lrspeiser/Grue.is-sub000/internal/models"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func baseState() *models.GameState {
	return &models.GameState{
		UserID:        "player-1",
		CurrentRoomID: "start",
		Health:        100,
		Status:        models.SessionStatusReady,
	}
}

func TestApplyDelta(t *testing.T) {
	t.Run("movement and inventory applied field by field", func(t *testing.T) {
		w := twoRoomWorld()
		state := baseState()

		delta := &models.StateDelta{
			NewRoomID:    strPtr("hall"),
			InventoryAdd: []string{"torch"},
			RoomItems:    []models.RoomItemUpdate{{RoomID: "start", Remove: []string{"torch"}}},
			ScoreDelta:   intPtr(5),
		}
		require.NoError(t, engine.ApplyDelta(w, state, delta))

		assert.Equal(t, "hall", state.CurrentRoomID)
		assert.Equal(t, []string{"torch"}, state.Inventory)
		assert.Empty(t, w.Rooms[0].Items)
		assert.Equal(t, 5, state.Score)
	})

	t.Run("unknown room rejects entire delta", func(t *testing.T) {
		w := twoRoomWorld()
		state := baseState()

		delta := &models.StateDelta{
			NewRoomID:    strPtr("void"),
			InventoryAdd: []string{"torch"},
		}
		err := engine.ApplyDelta(w, state, delta)
		require.ErrorIs(t, err, engine.ErrInvariantViolation)
		// Состояние полностью нетронуто.
		assert.Equal(t, "start", state.CurrentRoomID)
		assert.Empty(t, state.Inventory)
	})

	t.Run("health clamped to bounds", func(t *testing.T) {
		w := twoRoomWorld()
		state := baseState()

		require.NoError(t, engine.ApplyDelta(w, state, &models.StateDelta{HealthDelta: intPtr(-150)}))
		assert.Equal(t, 0, state.Health)

		require.NoError(t, engine.ApplyDelta(w, state, &models.StateDelta{HealthDelta: intPtr(500)}))
		assert.Equal(t, 100, state.Health)
	})

	t.Run("game ended flips status", func(t *testing.T) {
		w := twoRoomWorld()
		state := baseState()
		require.NoError(t, engine.ApplyDelta(w, state, &models.StateDelta{GameEnded: boolPtr(true)}))
		assert.Equal(t, models.SessionStatusEnded, state.Status)
	})

	t.Run("npc relations accumulate across deltas", func(t *testing.T) {
		w := twoRoomWorld()
		state := baseState()

		require.NoError(t, engine.ApplyDelta(w, state, &models.StateDelta{
			NPCRelations: map[string]int{"keeper": 2},
		}))
		require.NoError(t, engine.ApplyDelta(w, state, &models.StateDelta{
			NPCRelations: map[string]int{"keeper": -1},
		}))

		assert.Equal(t, map[string]int{"keeper": 1}, state.NPCRelations)
	})

	t.Run("relation for unknown npc rejects entire delta", func(t *testing.T) {
		w := twoRoomWorld()
		state := baseState()

		err := engine.ApplyDelta(w, state, &models.StateDelta{
			NPCRelations: map[string]int{"ghost": 1},
			ScoreDelta:   intPtr(5),
		})
		require.ErrorIs(t, err, engine.ErrInvariantViolation)
		assert.Empty(t, state.NPCRelations)
		assert.Zero(t, state.Score)
	})

	t.Run("set_vars overwrite story flags", func(t *testing.T) {
		w := twoRoomWorld()
		state := baseState()

		require.NoError(t, engine.ApplyDelta(w, state, &models.StateDelta{
			SetVars: map[string]string{"door": "locked"},
		}))
		require.NoError(t, engine.ApplyDelta(w, state, &models.StateDelta{
			SetVars: map[string]string{"door": "open", "lantern": "lit"},
		}))

		assert.Equal(t, map[string]string{"door": "open", "lantern": "lit"}, state.Vars)
	})

	t.Run("relations-only delta counts as a change", func(t *testing.T) {
		delta := &models.StateDelta{NPCRelations: map[string]int{"keeper": 1}}
		assert.False(t, delta.Empty())
	})

	t.Run("empty delta is a no-op", func(t *testing.T) {
		w := twoRoomWorld()
		state := baseState()
		require.NoError(t, engine.ApplyDelta(w, state, &models.StateDelta{}))
		assert.Equal(t, "start", state.CurrentRoomID)
	})
}

func TestQuestRules(t *testing.T) {
	questedWorld := func() *models.World {
		w := twoRoomWorld()
		w.Quests = []models.Quest{{ID: "q1", Title: "Quest One", Reward: 25}}
		return w
	}

	t.Run("start is idempotent", func(t *testing.T) {
		w := questedWorld()
		state := baseState()

		delta := &models.StateDelta{QuestUpdates: []models.QuestUpdate{{QuestID: "q1", Action: models.QuestActionStart}}}
		require.NoError(t, engine.ApplyDelta(w, state, delta))
		require.NoError(t, engine.ApplyDelta(w, state, delta))

		assert.Len(t, state.ActiveQuests, 1)
	})

	t.Run("progress moves fixed step and appends note", func(t *testing.T) {
		w := questedWorld()
		state := baseState()

		require.NoError(t, engine.ApplyDelta(w, state, &models.StateDelta{
			QuestUpdates: []models.QuestUpdate{{QuestID: "q1", Action: models.QuestActionStart}},
		}))
		require.NoError(t, engine.ApplyDelta(w, state, &models.StateDelta{
			QuestUpdates: []models.QuestUpdate{{QuestID: "q1", Action: models.QuestActionProgress, Note: "found the key"}},
		}))

		qp := state.ActiveQuest("q1")
		require.NotNil(t, qp)
		assert.Equal(t, 10, qp.Progress)
		assert.Equal(t, []string{"found the key"}, qp.Notes)
	})

	t.Run("progress on inactive quest is ignored", func(t *testing.T) {
		w := questedWorld()
		state := baseState()
		require.NoError(t, engine.ApplyDelta(w, state, &models.StateDelta{
			QuestUpdates: []models.QuestUpdate{{QuestID: "q1", Action: models.QuestActionProgress}},
		}))
		assert.Empty(t, state.ActiveQuests)
	})

	t.Run("complete moves quest, stamps turn, adds reward", func(t *testing.T) {
		w := questedWorld()
		state := baseState()
		state.Turn = 12

		require.NoError(t, engine.ApplyDelta(w, state, &models.StateDelta{
			QuestUpdates: []models.QuestUpdate{{QuestID: "q1", Action: models.QuestActionStart}},
		}))
		require.NoError(t, engine.ApplyDelta(w, state, &models.StateDelta{
			QuestUpdates: []models.QuestUpdate{{QuestID: "q1", Action: models.QuestActionComplete}},
		}))

		assert.Empty(t, state.ActiveQuests)
		require.Len(t, state.CompletedQuests, 1)
		require.NotNil(t, state.CompletedQuests[0].DoneTurn)
		assert.Equal(t, 12, *state.CompletedQuests[0].DoneTurn)
		assert.Equal(t, 25, state.Score)
	})
}
