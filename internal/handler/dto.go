package handler

import (
	"github.com/lrspeiser/Grue.is-sub000/internal/models"
)

// commandRequest - команда игрока. SessionID и UserID взаимозаменяемы:
// сессия живет под идентификатором игрока.
type commandRequest struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Command   string `json:"command"`
}

func (r *commandRequest) sessionKey() string {
	if r.SessionID != "" {
		return r.SessionID
	}
	return r.UserID
}

// commandResponse - результат обработки команды. Success=false с кодом 200
// означает восстановимую бизнес-ошибку, а не сбой сервера.
type commandResponse struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	GameState *models.GameState `json:"gameState,omitempty"`
	WorldData *models.World     `json:"worldData,omitempty"`
}

// newGameRequest - запрос на создание нового мира и привязку его к сессии.
type newGameRequest struct {
	UserID     string `json:"userId"`
	Name       string `json:"name"`
	Theme      string `json:"theme"`
	Difficulty string `json:"difficulty,omitempty"`
	// Async запускает генерацию в фоне: клиент начинает слать команды,
	// движок дожидается мира сам.
	Async bool `json:"async,omitempty"`
}

// newGameResponse - ответ на создание мира.
type newGameResponse struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message,omitempty"`
	WorldID   string            `json:"worldId,omitempty"`
	WorldData *models.World     `json:"worldData,omitempty"`
	GameState *models.GameState `json:"gameState,omitempty"`
}

// APIError - стандартизированный ответ об ошибке протокольного уровня.
type APIError struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// streamEvent - одно SSE-событие потокового нарратива.
type streamEvent struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Message string `json:"message,omitempty"`
}
