package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lrspeiser/Grue.is-sub000/internal/models"
)

var (
	// ErrSessionNotFound - сессия отсутствует в сторе. Это бизнес-условие
	// (эквивалент HTTP 404), а не системный сбой.
	ErrSessionNotFound = errors.New("session not found")
	// ErrCommandInFlight - для сессии уже обрабатывается команда.
	ErrCommandInFlight = errors.New("another command is already in flight for this session")
	// ErrWorldNotReady - фоновая генерация мира не завершилась за отведенное время.
	ErrWorldNotReady = errors.New("world generation is not finished yet")
)

// logBufferCap - размер кольцевого буфера логов сессии. Старые записи
// вытесняются строго в порядке поступления (FIFO, не LRU).
const logBufferCap = 200

// LogEntry - одна запись наблюдаемости в буфере сессии.
type LogEntry struct {
	At      time.Time
	Message string
}

// Session - живое состояние одного игрока: указатель на мир, игровое
// состояние и служебные поля сериализации команд. Доступ к полям
// сессии дисциплинарно однописательный: команда захватывает сессию
// через BeginCommand и отпускает через EndCommand.
type Session struct {
	ID    string
	Seed  int64
	World *models.World
	State *models.GameState

	mu       sync.Mutex
	inFlight bool
	logBuf   []LogEntry

	pendingMu  sync.Mutex
	pendingCh  chan struct{}
	pendingErr error
}

// BeginCommand помечает сессию как обрабатывающую команду. Вторая команда,
// пришедшая до завершения первой, получает ErrCommandInFlight.
func (s *Session) BeginCommand() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return ErrCommandInFlight
	}
	s.inFlight = true
	return nil
}

// EndCommand снимает флаг обработки команды.
func (s *Session) EndCommand() {
	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()
}

// Log добавляет запись в кольцевой буфер сессии, вытесняя самую старую
// при переполнении.
func (s *Session) Log(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logBuf = append(s.logBuf, LogEntry{At: time.Now(), Message: message})
	if len(s.logBuf) > logBufferCap {
		s.logBuf = s.logBuf[len(s.logBuf)-logBufferCap:]
	}
}

// LogEntries возвращает копию буфера логов (от старых к новым).
func (s *Session) LogEntries() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LogEntry, len(s.logBuf))
	copy(out, s.logBuf)
	return out
}

// MarkWorldPending отмечает, что для сессии запущена фоновая генерация мира.
func (s *Session) MarkWorldPending() {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	s.pendingCh = make(chan struct{})
	s.pendingErr = nil
}

// ResolveWorld завершает фоновую генерацию: привязывает мир (или ошибку)
// и будит всех ожидающих.
func (s *Session) ResolveWorld(w *models.World, err error) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if err == nil {
		s.World = w
	}
	s.pendingErr = err
	if s.pendingCh != nil {
		close(s.pendingCh)
		s.pendingCh = nil
	}
}

// AwaitWorld ждет завершения фоновой генерации мира не дольше wait.
// Если генерация не запускалась, возвращает текущее состояние сразу.
func (s *Session) AwaitWorld(ctx context.Context, wait time.Duration) error {
	s.pendingMu.Lock()
	ch := s.pendingCh
	err := s.pendingErr
	s.pendingMu.Unlock()

	if ch == nil {
		return err
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ch:
		s.pendingMu.Lock()
		defer s.pendingMu.Unlock()
		return s.pendingErr
	case <-timer.C:
		return ErrWorldNotReady
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Store - процессная (in-memory) карта session_id -> Session.
// Стор создается явно и внедряется конструктором; никаких пакетных
// синглтонов. Время жизни записей - аптайм процесса.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *zap.Logger
}

// NewStore создает пустой стор сессий.
func NewStore(logger *zap.Logger) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		logger:   logger.Named("SessionStore"),
	}
}

// Get возвращает сессию или ErrSessionNotFound. Никогда не паникует.
func (st *Store) Get(sessionID string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// GetOrCreate возвращает существующую сессию либо создает новую с заданным
// seed (seed делает вывод генератора воспроизводимым в рамках сессии).
func (st *Store) GetOrCreate(sessionID string, seed int64) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[sessionID]; ok {
		return s
	}
	s := &Session{
		ID:   sessionID,
		Seed: seed,
		State: &models.GameState{
			UserID: sessionID,
			Health: models.HealthMax,
			Status: models.SessionStatusUninitialized,
		},
	}
	st.sessions[sessionID] = s
	st.logger.Debug("Session created", zap.String("sessionID", sessionID), zap.Int64("seed", seed))
	return s
}

// Delete удаляет сессию из памяти (явный "quit").
func (st *Store) Delete(sessionID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, sessionID)
	st.logger.Debug("Session deleted", zap.String("sessionID", sessionID))
}

// Len возвращает число живых сессий (для health/метрик).
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
