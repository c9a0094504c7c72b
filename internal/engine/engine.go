package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lrspeiser/Grue.is-sub000/internal/models"
	"github.com/lrspeiser/Grue.is-sub000/internal/session"
	"github.com/lrspeiser/Grue.is-sub000/internal/world"
)

// Result - исход обработки одной команды: нарратив для игрока, признак
// изменения состояния и затронутые комнаты.
type Result struct {
	Narrative    string
	StateChanged bool
	RoomUpdates  []models.RoomItemUpdate
}

// Persister - контракт асинхронной записи снапшотов и журнала действий.
// Сбои записи логируются и не блокируют ответ игроку.
type Persister interface {
	SaveSnapshot(ctx context.Context, w *models.World, state *models.GameState) error
	AppendAction(ctx context.Context, userID string, w *models.World, action string, details interface{}) error
}

// Strategy - один из двух режимов обработки команд: детерминированный
// парсер или генератор. Оба применяют одинаковые правила мутации.
type Strategy interface {
	Name() string
	Process(ctx context.Context, sess *session.Session, rawCommand string) (*Result, error)
}

// persistTimeout ограничивает фоновую запись, чтобы не копить горутины
// на нездоровом сторадже.
const persistTimeout = 10 * time.Second

// Engine - центральная машина состояний. Сериализует команды в рамках
// сессии, делегирует обработку стратегии и асинхронно персистит результат.
type Engine struct {
	strategy  Strategy
	persister Persister
	logger    *zap.Logger
}

// New создает движок с выбранной стратегией обработки.
func New(strategy Strategy, persister Persister, logger *zap.Logger) *Engine {
	return &Engine{
		strategy:  strategy,
		persister: persister,
		logger:    logger.Named("GameEngine"),
	}
}

// BindWorld привязывает сгенерированный мир к сессии и переводит ее в ready.
func BindWorld(sess *session.Session, w *models.World) error {
	if err := world.Validate(w); err != nil {
		return err
	}
	sess.World = w
	sess.State.WorldID = w.ID
	sess.State.CurrentRoomID = w.StartRoomID
	sess.State.Status = models.SessionStatusReady
	sess.State.UpdatedAt = time.Now().UTC()
	return nil
}

// ProcessCommand обрабатывает одну команду игрока. Вторая команда той же
// сессии до завершения первой получает session.ErrCommandInFlight: гонки
// внутри сессии запрещены явно. Успешная команда с изменением состояния
// запускает асинхронную запись; ее сбой не влияет на ответ.
func (e *Engine) ProcessCommand(ctx context.Context, sess *session.Session, rawCommand string) (*Result, error) {
	if err := sess.BeginCommand(); err != nil {
		return nil, err
	}
	defer sess.EndCommand()

	if sess.World == nil {
		// Возможно, мир еще генерируется в фоне: даем ему шанс доехать.
		if err := sess.AwaitWorld(ctx, 5*time.Second); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoWorld, err)
		}
		if sess.World == nil {
			return nil, ErrNoWorld
		}
		if sess.State.Status == models.SessionStatusGenerating {
			sess.State.Status = models.SessionStatusReady
			sess.State.CurrentRoomID = sess.World.StartRoomID
			sess.State.WorldID = sess.World.ID
		}
	}
	if sess.State.Status == models.SessionStatusEnded {
		return nil, ErrGameEnded
	}

	sess.State.Status = models.SessionStatusProcessing
	sess.Log(fmt.Sprintf("command(%s): %s", e.strategy.Name(), rawCommand))

	result, err := e.strategy.Process(ctx, sess, rawCommand)

	if sess.State.Status == models.SessionStatusProcessing {
		sess.State.Status = models.SessionStatusReady
	}
	if err != nil {
		return nil, err
	}

	sess.State.Turn++
	sess.State.UpdatedAt = time.Now().UTC()

	if result.StateChanged {
		e.persistAsync(sess, rawCommand, result)
	}
	return result, nil
}

// persistAsync пишет снапшот и запись журнала в фоне. Ход игрока не ждет
// здоровья стораджа: ошибки только логируются.
func (e *Engine) persistAsync(sess *session.Session, rawCommand string, result *Result) {
	if e.persister == nil {
		return
	}
	w := sess.World
	// Глубокая копия: следующая команда этой же сессии мутирует слайсы
	// состояния на месте, снапшот не должен видеть эти изменения.
	stateCopy := sess.State.Clone()
	userID := sess.ID

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		if err := e.persister.SaveSnapshot(ctx, w, stateCopy); err != nil {
			e.logger.Error("Failed to persist game state snapshot",
				zap.String("userID", userID), zap.Error(err))
		}
		details := map[string]interface{}{
			"command":      rawCommand,
			"narrative":    result.Narrative,
			"current_room": stateCopy.CurrentRoomID,
			"turn":         stateCopy.Turn,
		}
		if err := e.persister.AppendAction(ctx, userID, w, "command", details); err != nil {
			e.logger.Error("Failed to append action log record",
				zap.String("userID", userID), zap.Error(err))
		}
	}()
}
