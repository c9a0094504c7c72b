package engine

import (
	"fmt"
	"time"

	"github.com/lrspeiser/Grue.is-sub000/internal/models"
	"github.com/lrspeiser/Grue.is-sub000/internal/world"
)

const (
	// questProgressStep - фиксированный шаг счетчика прогресса квеста.
	questProgressStep = 10
	// questDefaultReward - награда за квест без явного reward в мире.
	questDefaultReward = 50
)

// ApplyDelta применяет дельту к состоянию и миру пополево, без слепого
// слияния. Сначала проверяются все ссылки на мир; нарушение инварианта
// отклоняет дельту целиком, состояние остается нетронутым.
func ApplyDelta(w *models.World, state *models.GameState, delta *models.StateDelta) error {
	if delta.Empty() {
		return nil
	}

	// Фаза проверки: все целевые комнаты должны существовать.
	if delta.NewRoomID != nil {
		if _, err := world.FindRoom(w, *delta.NewRoomID); err != nil {
			return fmt.Errorf("%w: new room %q", ErrInvariantViolation, *delta.NewRoomID)
		}
	}
	for _, update := range delta.RoomItems {
		if _, err := world.FindRoom(w, update.RoomID); err != nil {
			return fmt.Errorf("%w: room %q in item update", ErrInvariantViolation, update.RoomID)
		}
	}
	for npcID := range delta.NPCRelations {
		if _, ok := world.FindNPC(w, npcID); !ok {
			return fmt.Errorf("%w: npc %q in relation update", ErrInvariantViolation, npcID)
		}
	}

	// Фаза применения.
	if delta.NewRoomID != nil {
		state.CurrentRoomID = *delta.NewRoomID
	}
	for _, item := range delta.InventoryRemove {
		if idx, _, ok := world.MatchItem(state.Inventory, item); ok {
			state.Inventory = append(state.Inventory[:idx], state.Inventory[idx+1:]...)
		}
	}
	state.Inventory = append(state.Inventory, delta.InventoryAdd...)

	for _, update := range delta.RoomItems {
		room, _ := world.FindRoom(w, update.RoomID)
		for _, item := range update.Remove {
			if idx, _, ok := world.MatchItem(room.Items, item); ok {
				room.Items = append(room.Items[:idx], room.Items[idx+1:]...)
			}
		}
		room.Items = append(room.Items, update.Add...)
	}

	if delta.HealthDelta != nil {
		state.Health = models.ClampHealth(state.Health + *delta.HealthDelta)
	}
	if delta.ScoreDelta != nil {
		state.Score += *delta.ScoreDelta
	}

	for _, qu := range delta.QuestUpdates {
		applyQuestUpdate(w, state, qu)
	}

	// Отношения аддитивны (сдвиг за ход), переменные перезаписываются.
	if len(delta.NPCRelations) > 0 && state.NPCRelations == nil {
		state.NPCRelations = make(map[string]int, len(delta.NPCRelations))
	}
	for npcID, shift := range delta.NPCRelations {
		state.NPCRelations[npcID] += shift
	}
	if len(delta.SetVars) > 0 && state.Vars == nil {
		state.Vars = make(map[string]string, len(delta.SetVars))
	}
	for name, value := range delta.SetVars {
		state.Vars[name] = value
	}

	if delta.GameEnded != nil && *delta.GameEnded {
		state.Status = models.SessionStatusEnded
	}
	return nil
}

// applyQuestUpdate применяет одно изменение квеста по правилам:
// start идемпотентен, progress двигает счетчик на фиксированный шаг,
// complete переносит квест в завершенные, штампует ход и начисляет награду.
func applyQuestUpdate(w *models.World, state *models.GameState, qu models.QuestUpdate) {
	switch qu.Action {
	case models.QuestActionStart:
		if state.ActiveQuest(qu.QuestID) != nil {
			return // Уже активен: ровно одна запись на квест.
		}
		state.ActiveQuests = append(state.ActiveQuests, models.QuestProgress{
			QuestID:     qu.QuestID,
			StartedTurn: state.Turn,
			UpdatedAt:   time.Now().UTC(),
		})
	case models.QuestActionProgress:
		qp := state.ActiveQuest(qu.QuestID)
		if qp == nil {
			return
		}
		qp.Progress += questProgressStep
		if qu.Note != "" {
			qp.Notes = append(qp.Notes, qu.Note)
		}
		qp.UpdatedAt = time.Now().UTC()
	case models.QuestActionComplete:
		for i := range state.ActiveQuests {
			if state.ActiveQuests[i].QuestID != qu.QuestID {
				continue
			}
			qp := state.ActiveQuests[i]
			turn := state.Turn
			qp.DoneTurn = &turn
			qp.UpdatedAt = time.Now().UTC()
			if qu.Note != "" {
				qp.Notes = append(qp.Notes, qu.Note)
			}
			state.ActiveQuests = append(state.ActiveQuests[:i], state.ActiveQuests[i+1:]...)
			state.CompletedQuests = append(state.CompletedQuests, qp)
			state.Score += questReward(w, qu.QuestID)
			return
		}
	}
}

func questReward(w *models.World, questID string) int {
	for _, q := range w.Quests {
		if q.ID == questID && q.Reward > 0 {
			return q.Reward
		}
	}
	return questDefaultReward
}
