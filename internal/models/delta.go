package models

// QuestAction - вид изменения квеста в дельте.
type QuestAction string

const (
	QuestActionStart    QuestAction = "start"
	QuestActionProgress QuestAction = "progress"
	QuestActionComplete QuestAction = "complete"
)

// QuestUpdate - одно изменение квеста внутри дельты состояния.
type QuestUpdate struct {
	QuestID string      `json:"quest_id"`
	Action  QuestAction `json:"action"`
	Note    string      `json:"note,omitempty"`
}

// RoomItemUpdate описывает изменение списка предметов конкретной комнаты.
type RoomItemUpdate struct {
	RoomID string   `json:"room_id"`
	Add    []string `json:"add,omitempty"`
	Remove []string `json:"remove,omitempty"`
}

// StateDelta - компактное структурированное описание изменений состояния
// после одной команды. Намеренно меньше и строже полного состояния:
// движок применяет его пополево, без слепого слияния.
type StateDelta struct {
	NewRoomID       *string           `json:"new_room_id,omitempty"`
	InventoryAdd    []string          `json:"inventory_add,omitempty"`
	InventoryRemove []string          `json:"inventory_remove,omitempty"`
	RoomItems       []RoomItemUpdate  `json:"room_items,omitempty"`
	HealthDelta     *int              `json:"health_delta,omitempty"`
	ScoreDelta      *int              `json:"score_delta,omitempty"`
	QuestUpdates    []QuestUpdate     `json:"quest_updates,omitempty"`
	NPCRelations    map[string]int    `json:"npc_relations,omitempty"`
	SetVars         map[string]string `json:"set_vars,omitempty"`
	GameEnded       *bool             `json:"game_ended,omitempty"`
}

// Empty сообщает, что дельта не содержит ни одного изменения.
func (d *StateDelta) Empty() bool {
	return d == nil || (d.NewRoomID == nil &&
		len(d.InventoryAdd) == 0 &&
		len(d.InventoryRemove) == 0 &&
		len(d.RoomItems) == 0 &&
		d.HealthDelta == nil &&
		d.ScoreDelta == nil &&
		len(d.QuestUpdates) == 0 &&
		len(d.NPCRelations) == 0 &&
		len(d.SetVars) == 0 &&
		d.GameEnded == nil)
}
