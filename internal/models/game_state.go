package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus определяет фазу жизненного цикла сессии.
type SessionStatus string

const (
	SessionStatusUninitialized SessionStatus = "uninitialized" // Сессия создана, мир еще не привязан.
	SessionStatusGenerating    SessionStatus = "generating"    // Идет генерация мира для сессии.
	SessionStatusReady         SessionStatus = "ready"         // Сессия готова принимать команды.
	SessionStatusProcessing    SessionStatus = "processing"    // Обрабатывается команда игрока.
	SessionStatusEnded         SessionStatus = "ended"         // Игра завершена.
)

// ConversationTurn - одна реплика диалога (роль + текст), используется
// только как контекст генератора, не как полный транскрипт.
type ConversationTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// QuestProgress - состояние одного квеста внутри сессии.
type QuestProgress struct {
	QuestID     string    `json:"quest_id"`
	Progress    int       `json:"progress"`
	Notes       []string  `json:"notes,omitempty"`
	StartedTurn int       `json:"started_turn"`
	DoneTurn    *int      `json:"done_turn,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GameState - живое, изменяемое состояние игры одного игрока,
// привязанное к конкретному миру.
type GameState struct {
	UserID            string             `json:"user_id"`
	WorldID           uuid.UUID          `json:"world_id"`
	CurrentRoomID     string             `json:"current_room"`
	Inventory         []string           `json:"inventory"`
	Health            int                `json:"health"`
	Score             int                `json:"score"`
	Turn              int                `json:"turn"`
	Status            SessionStatus      `json:"status"`
	ActiveQuests      []QuestProgress    `json:"active_quests,omitempty"`
	CompletedQuests   []QuestProgress    `json:"completed_quests,omitempty"`
	NPCRelations      map[string]int     `json:"npc_relations,omitempty"`
	Vars              map[string]string  `json:"vars,omitempty"`
	Conversation      []ConversationTurn `json:"conversation_history,omitempty"`
	ContinuationToken string             `json:"continuation_token,omitempty"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

const (
	// HealthMin и HealthMax - границы, к которым прижимается здоровье.
	HealthMin = 0
	HealthMax = 100

	// ConversationWindow - сколько последних реплик диалога храним
	// как контекст генератора. Старые реплики вытесняются по FIFO.
	ConversationWindow = 10
)

// ClampHealth прижимает значение здоровья к допустимому диапазону.
func ClampHealth(h int) int {
	if h < HealthMin {
		return HealthMin
	}
	if h > HealthMax {
		return HealthMax
	}
	return h
}

// PushTurn добавляет реплику в окно диалога, вытесняя самую старую
// при переполнении (строго FIFO, без LRU).
func (gs *GameState) PushTurn(role, content string) {
	gs.Conversation = append(gs.Conversation, ConversationTurn{Role: role, Content: content})
	if len(gs.Conversation) > ConversationWindow {
		gs.Conversation = gs.Conversation[len(gs.Conversation)-ConversationWindow:]
	}
}

// Clone возвращает глубокую копию состояния. Слайсы и мапы не делят
// память с оригиналом: копию можно читать из другой горутины, пока
// оригинал мутируется следующей командой.
func (gs *GameState) Clone() *GameState {
	cp := *gs
	cp.Inventory = append([]string(nil), gs.Inventory...)
	cp.ActiveQuests = cloneQuestList(gs.ActiveQuests)
	cp.CompletedQuests = cloneQuestList(gs.CompletedQuests)
	cp.Conversation = append([]ConversationTurn(nil), gs.Conversation...)
	if gs.NPCRelations != nil {
		cp.NPCRelations = make(map[string]int, len(gs.NPCRelations))
		for k, v := range gs.NPCRelations {
			cp.NPCRelations[k] = v
		}
	}
	if gs.Vars != nil {
		cp.Vars = make(map[string]string, len(gs.Vars))
		for k, v := range gs.Vars {
			cp.Vars[k] = v
		}
	}
	return &cp
}

func cloneQuestList(src []QuestProgress) []QuestProgress {
	if src == nil {
		return nil
	}
	out := make([]QuestProgress, len(src))
	copy(out, src)
	for i := range out {
		out[i].Notes = append([]string(nil), src[i].Notes...)
		if src[i].DoneTurn != nil {
			turn := *src[i].DoneTurn
			out[i].DoneTurn = &turn
		}
	}
	return out
}

// ActiveQuest возвращает прогресс активного квеста или nil.
func (gs *GameState) ActiveQuest(questID string) *QuestProgress {
	for i := range gs.ActiveQuests {
		if gs.ActiveQuests[i].QuestID == questID {
			return &gs.ActiveQuests[i]
		}
	}
	return nil
}
