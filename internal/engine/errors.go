package engine

import "errors"

var (
	// ErrNoWorld - у сессии нет привязанного мира; команда не может быть обработана.
	ErrNoWorld = errors.New("session has no world bound")
	// ErrGameEnded - игра завершена, новые команды не принимаются.
	ErrGameEnded = errors.New("the game has ended")
	// ErrInvariantViolation - дельта или состояние ссылаются на несуществующие
	// сущности мира. Команда отклоняется, состояние не меняется.
	ErrInvariantViolation = errors.New("state delta violates world invariants")
)
