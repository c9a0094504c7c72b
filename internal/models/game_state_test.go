package models_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lrspeiser/Grue.is-sub000/internal/models"
)

func TestPushTurnWindow(t *testing.T) {
	t.Run("window never exceeds cap, oldest evicted first", func(t *testing.T) {
		gs := &models.GameState{}
		total := models.ConversationWindow + 3
		for i := 0; i < total; i++ {
			gs.PushTurn("user", fmt.Sprintf("turn-%d", i))
		}

		require.Len(t, gs.Conversation, models.ConversationWindow)
		// Первые три реплики вытеснены, порядок остальных сохранен.
		assert.Equal(t, "turn-3", gs.Conversation[0].Content)
		assert.Equal(t, fmt.Sprintf("turn-%d", total-1), gs.Conversation[len(gs.Conversation)-1].Content)
	})

	t.Run("below cap nothing is evicted", func(t *testing.T) {
		gs := &models.GameState{}
		gs.PushTurn("user", "look")
		gs.PushTurn("assistant", "You see a room.")

		require.Len(t, gs.Conversation, 2)
		assert.Equal(t, "look", gs.Conversation[0].Content)
	})
}

func TestGameStateClone(t *testing.T) {
	done := 4
	original := &models.GameState{
		UserID:        "player-1",
		CurrentRoomID: "start",
		Inventory:     []string{"torch", "sword"},
		ActiveQuests: []models.QuestProgress{
			{QuestID: "q1", Notes: []string{"found the key"}},
		},
		CompletedQuests: []models.QuestProgress{
			{QuestID: "q0", DoneTurn: &done},
		},
		NPCRelations: map[string]int{"keeper": 1},
		Vars:         map[string]string{"door": "locked"},
	}
	original.PushTurn("user", "look")

	clone := original.Clone()

	// Мутации оригинала не видны копии.
	original.Inventory = append(original.Inventory[:0], original.Inventory[1:]...)
	original.ActiveQuests[0].Notes[0] = "rewritten"
	*original.CompletedQuests[0].DoneTurn = 99
	original.NPCRelations["keeper"] = -2
	original.Vars["door"] = "open"
	original.Conversation[0].Content = "rewritten"

	assert.Equal(t, []string{"torch", "sword"}, clone.Inventory)
	assert.Equal(t, []string{"found the key"}, clone.ActiveQuests[0].Notes)
	require.NotNil(t, clone.CompletedQuests[0].DoneTurn)
	assert.Equal(t, 4, *clone.CompletedQuests[0].DoneTurn)
	assert.Equal(t, 1, clone.NPCRelations["keeper"])
	assert.Equal(t, "locked", clone.Vars["door"])
	assert.Equal(t, "look", clone.Conversation[0].Content)
}
