package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/lrspeiser/Grue.is-sub000/internal/ai"
	"github.com/lrspeiser/Grue.is-sub000/internal/models"
	"github.com/lrspeiser/Grue.is-sub000/internal/session"
	"github.com/lrspeiser/Grue.is-sub000/internal/world"
)

const narratorSystemPrompt = `You are the narrator of a text adventure game. ` +
	`You receive the current game context as JSON and the player's command. ` +
	`Respond with a single JSON object {"narrative": "...", "delta": {...}} and nothing else. ` +
	`The narrative is 2-4 atmospheric sentences in second person. ` +
	`The delta describes only what changed: "new_room_id" if the player moved (must be an existing room id), ` +
	`"inventory_add"/"inventory_remove" as item name arrays, ` +
	`"room_items" as [{"room_id", "add", "remove"}], "health_delta" and "score_delta" as integers, ` +
	`"quest_updates" as [{"quest_id", "action": "start"|"progress"|"complete", "note"}], ` +
	`"npc_relations" as {"npc_id": -2..2} relationship shifts for NPCs present, ` +
	`"set_vars" as {"name": "value"} for story flags, "game_ended" true only when the story is over. ` +
	`Never invent room ids. Movement is only possible through listed exits. ` +
	`Items can only be taken if present in the current room.`

// narratorResponse - ожидаемая схема ответа генератора в режиме narrator.
type narratorResponse struct {
	Narrative string             `json:"narrative"`
	Delta     *models.StateDelta `json:"delta,omitempty"`
}

// промптовый контекст: все, что генератору нужно знать о текущем ходе.
type narratorContext struct {
	WorldTitle  string                  `json:"world_title"`
	Setting     string                  `json:"setting"`
	Room        *models.Room            `json:"room"`
	Inventory   []string                `json:"inventory"`
	Health      int                     `json:"health"`
	Score       int                     `json:"score"`
	Turn        int                     `json:"turn"`
	Active      []models.QuestProgress  `json:"active_quests,omitempty"`
	NPCsPresent []models.NPC            `json:"npcs_present,omitempty"`
	Relations   map[string]int          `json:"npc_relations,omitempty"`
	Vars        map[string]string       `json:"vars,omitempty"`
	Quests      []models.Quest          `json:"quests,omitempty"`
	Command     string                  `json:"command"`
}

// GeneratorStrategy - режим, в котором каждый ход ведет генератор:
// полный контекст мира/комнаты/состояния сериализуется в промпт,
// генератор возвращает нарратив и структурированную дельту, движок
// применяет ее теми же правилами, что и детерминированный режим.
type GeneratorStrategy struct {
	gateway *ai.Gateway
	logger  *zap.Logger
}

// NewGeneratorStrategy создает генераторную стратегию.
func NewGeneratorStrategy(gateway *ai.Gateway, logger *zap.Logger) *GeneratorStrategy {
	return &GeneratorStrategy{
		gateway: gateway,
		logger:  logger.Named("NarratorStrategy"),
	}
}

func (s *GeneratorStrategy) Name() string { return "generator" }

func (s *GeneratorStrategy) Process(ctx context.Context, sess *session.Session, rawCommand string) (*Result, error) {
	w := sess.World
	state := sess.State

	room, err := world.FindRoom(w, state.CurrentRoomID)
	if err != nil {
		return nil, fmt.Errorf("%w: current room %q", ErrInvariantViolation, state.CurrentRoomID)
	}

	promptCtx := narratorContext{
		WorldTitle: w.Title,
		Setting:    w.Setting,
		Room:       room,
		Inventory:  state.Inventory,
		Health:     state.Health,
		Score:      state.Score,
		Turn:       state.Turn,
		Active:     state.ActiveQuests,
		Relations:  state.NPCRelations,
		Vars:       state.Vars,
		Quests:     w.Quests,
		Command:    rawCommand,
	}
	for _, npc := range w.NPCs {
		if npc.Location == room.ID {
			promptCtx.NPCsPresent = append(promptCtx.NPCsPresent, npc)
		}
	}
	userPrompt, _ := json.Marshal(promptCtx)

	history := make([]ai.Message, 0, len(state.Conversation))
	for _, turn := range state.Conversation {
		history = append(history, ai.Message{Role: turn.Role, Content: turn.Content})
	}

	seed := sess.Seed
	res, err := s.gateway.GenerateStructured(ctx, ai.StructuredRequest{
		Kind:               "narrative",
		SystemPrompt:       narratorSystemPrompt,
		UserPrompt:         string(userPrompt),
		History:            history,
		PreviousResponseID: state.ContinuationToken,
		Params:             ai.GenerationParams{Seed: &seed},
	})
	if err != nil {
		return nil, err
	}

	var parsed narratorResponse
	if err := res.DecodeStructured(&parsed); err != nil {
		return nil, err
	}
	if parsed.Narrative == "" {
		return nil, &ai.SchemaError{Field: "narrative", Reason: "missing required field"}
	}

	stateChanged := false
	if parsed.Delta != nil && !parsed.Delta.Empty() {
		if err := ApplyDelta(w, state, parsed.Delta); err != nil {
			// Дельта ссылается на несуществующие сущности: отклоняем ход,
			// состояние не трогаем.
			s.logger.Warn("Rejecting generator delta",
				zap.String("sessionID", sess.ID), zap.Error(err))
			return nil, err
		}
		stateChanged = true
	}

	// Нарратив попадает в окно диалога даже без изменений состояния.
	state.PushTurn("user", rawCommand)
	state.PushTurn("assistant", parsed.Narrative)
	state.ContinuationToken = res.ResponseID

	result := &Result{Narrative: parsed.Narrative, StateChanged: stateChanged}
	if parsed.Delta != nil {
		result.RoomUpdates = parsed.Delta.RoomItems
	}
	return result, nil
}
