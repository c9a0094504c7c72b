package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lrspeiser/Grue.is-sub000/internal/ai"
	"github.com/lrspeiser/Grue.is-sub000/internal/engine"
	"github.com/lrspeiser/Grue.is-sub000/internal/models"
	"github.com/lrspeiser/Grue.is-sub000/internal/repository"
	"github.com/lrspeiser/Grue.is-sub000/internal/session"
	"github.com/lrspeiser/Grue.is-sub000/internal/worldgen"
)

// GameHandler обрабатывает HTTP запросы игрового сервера.
type GameHandler struct {
	store     *session.Store
	engine    *engine.Engine
	generator *worldgen.Generator
	gateway   *ai.Gateway
	worlds    repository.WorldRepository
	persister *repository.Persister
	logger    *zap.Logger
}

// NewGameHandler создает новый GameHandler. worlds и persister опциональны:
// без них сервер работает чисто in-memory (режим разработки).
func NewGameHandler(store *session.Store, eng *engine.Engine, generator *worldgen.Generator, gateway *ai.Gateway, worlds repository.WorldRepository, persister *repository.Persister, logger *zap.Logger) *GameHandler {
	return &GameHandler{
		store:     store,
		engine:    eng,
		generator: generator,
		gateway:   gateway,
		worlds:    worlds,
		persister: persister,
		logger:    logger.Named("GameHandler"),
	}
}

// RegisterRoutes регистрирует маршруты игрового API.
func (h *GameHandler) RegisterRoutes(router *gin.Engine) {
	// Запрос с неверным методом должен получать 405, а не 404.
	router.HandleMethodNotAllowed = true
	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, APIError{Message: "method not allowed"})
	})

	router.GET("/health", h.health)

	api := router.Group("/api")
	{
		api.POST("/command", h.processCommand)
		api.POST("/command/stream", h.streamCommand)
		api.POST("/new-game", h.newGame)
		api.POST("/resume", h.resumeGame)
		api.GET("/worlds/:id", h.getWorld)
		api.GET("/sessions/:id/log", h.sessionLog)
		api.DELETE("/sessions/:id", h.deleteSession)
	}
}

func (h *GameHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": h.store.Len()})
}

// processCommand обрабатывает одну команду игрока.
func (h *GameHandler) processCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid request body: " + err.Error()})
		return
	}
	if req.sessionKey() == "" || req.Command == "" {
		c.JSON(http.StatusBadRequest, APIError{Message: "sessionId (or userId) and command are required"})
		return
	}

	sess, err := h.store.Get(req.sessionKey())
	if err != nil {
		c.JSON(http.StatusNotFound, APIError{Message: "session not found, start a new game first"})
		return
	}

	result, err := h.engine.ProcessCommand(c.Request.Context(), sess, req.Command)
	if err != nil {
		h.respondCommandError(c, sess, err)
		return
	}

	c.JSON(http.StatusOK, commandResponse{
		Success:   true,
		Message:   result.Narrative,
		GameState: sess.State,
	})
}

// respondCommandError отображает ошибку движка на статус-код протокола:
// сбои генератора идут как 502, восстановимые бизнес-условия как 200 с
// success=false, неизвестное как 500.
func (h *GameHandler) respondCommandError(c *gin.Context, sess *session.Session, err error) {
	var genErr *ai.GeneratorError
	var parseErr *ai.ParseError
	var schemaErr *ai.SchemaError

	switch {
	case errors.As(err, &genErr), errors.As(err, &parseErr), errors.As(err, &schemaErr),
		errors.Is(err, ai.ErrUnrecognizedFormat):
		c.JSON(http.StatusBadGateway, APIError{Message: "the narrator is unavailable: " + err.Error()})
	case errors.Is(err, engine.ErrNoWorld), errors.Is(err, session.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, APIError{Message: err.Error()})
	case errors.Is(err, session.ErrCommandInFlight):
		c.JSON(http.StatusOK, commandResponse{
			Success: false,
			Message: "Hold on, your previous command is still being resolved.",
		})
	case errors.Is(err, engine.ErrGameEnded):
		c.JSON(http.StatusOK, commandResponse{
			Success:   false,
			Message:   "This story has already ended. Start a new game to play again.",
			GameState: sess.State,
		})
	case errors.Is(err, session.ErrWorldNotReady):
		c.JSON(http.StatusOK, commandResponse{
			Success: false,
			Message: "Your world is still taking shape. Try again in a moment.",
		})
	case errors.Is(err, engine.ErrInvariantViolation):
		c.JSON(http.StatusOK, commandResponse{
			Success:   false,
			Message:   "The world shimmers strangely and your action fizzles. Try something else.",
			GameState: sess.State,
		})
	default:
		h.logger.Error("Unhandled command processing error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, APIError{Message: "unexpected internal error"})
	}
}

// newGame генерирует мир и привязывает его к сессии игрока.
func (h *GameHandler) newGame(c *gin.Context) {
	var req newGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid request body: " + err.Error()})
		return
	}
	if req.UserID == "" {
		c.JSON(http.StatusBadRequest, APIError{Message: "userId is required"})
		return
	}

	seed := time.Now().UnixNano()
	sess := h.store.GetOrCreate(req.UserID, seed)
	profile := worldgen.Profile{
		UserID:     req.UserID,
		Name:       req.Name,
		Theme:      req.Theme,
		Difficulty: req.Difficulty,
	}

	if req.Async {
		sess.State.Status = models.SessionStatusGenerating
		sess.MarkWorldPending()
		go h.generateInBackground(sess, profile)
		c.JSON(http.StatusOK, newGameResponse{
			Success: true,
			Message: "World generation started. Send your first command when ready.",
		})
		return
	}

	sess.State.Status = models.SessionStatusGenerating
	w, err := h.generator.GenerateWorld(c.Request.Context(), profile, sess.Seed)
	if err != nil {
		sess.State.Status = models.SessionStatusUninitialized
		c.JSON(http.StatusBadGateway, APIError{Message: "world generation failed: " + err.Error()})
		return
	}
	if err := h.bindAndStore(c, sess, w); err != nil {
		return
	}

	c.JSON(http.StatusOK, newGameResponse{
		Success:   true,
		WorldID:   w.ID.String(),
		WorldData: w,
		GameState: sess.State,
	})
}

// generationTimeout ограничивает фоновую генерацию мира целиком.
const generationTimeout = 3 * time.Minute

// generateInBackground выполняет отложенную генерацию мира. Результат
// наблюдается последующими командами через ожидание сессии.
func (h *GameHandler) generateInBackground(sess *session.Session, profile worldgen.Profile) {
	ctx, cancel := context.WithTimeout(context.Background(), generationTimeout)
	defer cancel()

	w, err := h.generator.GenerateWorld(ctx, profile, sess.Seed)
	if err == nil {
		if bindErr := engine.BindWorld(sess, w); bindErr != nil {
			err = bindErr
		} else {
			h.storeWorld(ctx, w)
		}
	}
	if err != nil {
		h.logger.Error("Background world generation failed",
			zap.String("sessionID", sess.ID), zap.Error(err))
	}
	sess.ResolveWorld(w, err)
}

// bindAndStore привязывает мир к сессии и сохраняет его. Сбой записи
// мира не блокирует игру: in-memory мир остается играбельным.
func (h *GameHandler) bindAndStore(c *gin.Context, sess *session.Session, w *models.World) error {
	if err := engine.BindWorld(sess, w); err != nil {
		h.logger.Error("Generated world failed validation", zap.Error(err))
		c.JSON(http.StatusBadGateway, APIError{Message: "generated world is not playable: " + err.Error()})
		return err
	}
	h.storeWorld(c.Request.Context(), w)
	return nil
}

func (h *GameHandler) storeWorld(ctx context.Context, w *models.World) {
	if h.worlds == nil {
		return
	}
	if err := h.worlds.Create(ctx, w); err != nil {
		h.logger.Error("Failed to store generated world",
			zap.String("worldID", w.ID.String()), zap.Error(err))
	}
}

// resumeGame восстанавливает сессию из сохраненного снапшота: мир из
// таблицы worlds, состояние из кэша либо Postgres.
func (h *GameHandler) resumeGame(c *gin.Context) {
	var req struct {
		UserID  string `json:"userId"`
		WorldID string `json:"worldId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid request body: " + err.Error()})
		return
	}
	if req.UserID == "" || req.WorldID == "" {
		c.JSON(http.StatusBadRequest, APIError{Message: "userId and worldId are required"})
		return
	}
	if h.worlds == nil || h.persister == nil {
		c.JSON(http.StatusOK, commandResponse{Success: false, Message: "persistence is disabled on this server"})
		return
	}
	worldID, err := uuid.Parse(req.WorldID)
	if err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "worldId must be a valid UUID"})
		return
	}

	w, err := h.worlds.GetByID(c.Request.Context(), worldID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, APIError{Message: "world not found"})
			return
		}
		h.logger.Error("Failed to load world", zap.Error(err))
		c.JSON(http.StatusInternalServerError, APIError{Message: "failed to load world"})
		return
	}

	state, err := h.persister.LoadState(c.Request.Context(), req.UserID, worldID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, APIError{Message: "no saved game for this user and world"})
			return
		}
		h.logger.Error("Failed to load game state", zap.Error(err))
		c.JSON(http.StatusInternalServerError, APIError{Message: "failed to load game state"})
		return
	}

	sess := h.store.GetOrCreate(req.UserID, time.Now().UnixNano())
	sess.World = w
	sess.State = state
	if sess.State.Status == models.SessionStatusProcessing {
		sess.State.Status = models.SessionStatusReady
	}

	c.JSON(http.StatusOK, commandResponse{
		Success:   true,
		Message:   "Game restored. You are in " + state.CurrentRoomID + ".",
		GameState: sess.State,
		WorldData: w,
	})
}

// getWorld возвращает сохраненный мир по его идентификатору.
func (h *GameHandler) getWorld(c *gin.Context) {
	if h.worlds == nil {
		c.JSON(http.StatusNotFound, APIError{Message: "persistence is disabled on this server"})
		return
	}
	worldID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "world id must be a valid UUID"})
		return
	}
	w, err := h.worlds.GetByID(c.Request.Context(), worldID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, APIError{Message: "world not found"})
			return
		}
		h.logger.Error("Failed to load world", zap.Error(err))
		c.JSON(http.StatusInternalServerError, APIError{Message: "failed to load world"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "worldId": w.ID.String(), "worldData": w})
}

// sessionLog отдает кольцевой буфер логов сессии (наблюдаемость).
func (h *GameHandler) sessionLog(c *gin.Context) {
	sess, err := h.store.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, APIError{Message: "session not found"})
		return
	}
	entries := sess.LogEntries()
	out := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		out = append(out, gin.H{"at": e.At, "message": e.Message})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "entries": out})
}

// deleteSession завершает сессию (явный "quit") и убирает ее из памяти.
func (h *GameHandler) deleteSession(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := h.store.Get(sessionID); err != nil {
		c.JSON(http.StatusNotFound, APIError{Message: "session not found"})
		return
	}
	h.store.Delete(sessionID)
	c.JSON(http.StatusOK, gin.H{"success": true})
}
