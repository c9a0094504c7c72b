package models

import (
	"time"

	"github.com/google/uuid"
)

// Direction - каноническое направление выхода из комнаты.
type Direction = string

// Room представляет одну комнату мира во время игры.
// Exits хранит каноническое направление -> room_id целевой комнаты.
// Значение nil означает, что выход заявлен, но никуда не ведет (тупик).
type Room struct {
	ID          string             `json:"room_id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Exits       map[string]*string `json:"exits"`
	Items       []string           `json:"items"`
	NPCs        []string           `json:"npcs,omitempty"`
}

// ItemDef - определение предмета в каталоге мира.
type ItemDef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Usable      bool   `json:"usable"`
}

// NPC - персонаж мира, привязанный к комнате.
type NPC struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Location    string `json:"location"`
	Personality string `json:"personality,omitempty"`
	Dialogue    string `json:"dialogue,omitempty"`
}

// QuestStep - один шаг квеста.
type QuestStep struct {
	Description string `json:"description"`
	Done        bool   `json:"done"`
}

// Quest - квест мира с набором шагов.
type Quest struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Steps       []QuestStep `json:"steps,omitempty"`
	Reward      int         `json:"reward,omitempty"`
}

// World - статичная карта одного прохождения: комнаты, предметы,
// персонажи и квесты. Создается генератором мира один раз и далее
// принадлежит ровно одной сессии (или шарится только на чтение).
type World struct {
	ID          uuid.UUID `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Setting     string    `json:"setting"`
	StartRoomID string    `json:"start_room_id"`
	Rooms       []Room    `json:"rooms"`
	Items       []ItemDef `json:"items,omitempty"`
	NPCs        []NPC     `json:"npcs,omitempty"`
	Quests      []Quest   `json:"quests,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// GeneratedExit - выход комнаты в том виде, в котором его возвращает
// генератор (до построения навигационной карты).
type GeneratedExit struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Keywords []string `json:"keywords"`
}

// GeneratedRoom - структурированный объект комнаты из ответа генератора.
// Валидируется duck-проверкой полей перед включением в мир.
type GeneratedRoom struct {
	RoomID      string          `json:"room_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Exits       []GeneratedExit `json:"exits"`
	Items       []string        `json:"items,omitempty"`
	NPCs        []string        `json:"npcs,omitempty"`
}
