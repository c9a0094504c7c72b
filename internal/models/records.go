package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WorldRecord - строка таблицы worlds. Полные данные мира хранятся
// одним JSON-блобом в world_data.
type WorldRecord struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	UserID      string          `json:"user_id" db:"user_id"`
	Title       string          `json:"title" db:"title"`
	Description string          `json:"description" db:"description"`
	Setting     string          `json:"setting" db:"setting"`
	WorldData   json.RawMessage `json:"world_data" db:"world_data"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// GameStateRecord - строка таблицы game_states, уникальная по паре
// (user_id, world_id). Записи всегда делаются upsert-ом.
type GameStateRecord struct {
	UserID            string          `json:"user_id" db:"user_id"`
	WorldID           uuid.UUID       `json:"world_id" db:"world_id"`
	CurrentRoom       string          `json:"current_room" db:"current_room"`
	Inventory         json.RawMessage `json:"inventory" db:"inventory"`
	Health            int             `json:"health" db:"health"`
	Score             int             `json:"score" db:"score"`
	GameState         json.RawMessage `json:"game_state" db:"game_state"`
	ContinuationToken *string         `json:"continuation_token,omitempty" db:"continuation_token"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// ActionRecord - строка append-only журнала действий. Ядро никогда
// не обновляет и не удаляет эти записи.
type ActionRecord struct {
	ID        int64           `json:"id" db:"id"`
	UserID    string          `json:"user_id" db:"user_id"`
	WorldID   uuid.UUID       `json:"world_id" db:"world_id"`
	Action    string          `json:"action" db:"action"`
	Details   json.RawMessage `json:"details" db:"details"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}
