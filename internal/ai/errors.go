package ai

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrGenerationFailed - общий признак сбоя генерации текста AI.
	ErrGenerationFailed = errors.New("ai text generation failed")
	// ErrEmptyResponse - API вернул ответ без вариантов.
	ErrEmptyResponse = errors.New("ai returned empty response")
	// ErrUnrecognizedFormat - ответ не совпал ни с одной известной версией схемы.
	ErrUnrecognizedFormat = errors.New("ai response matches no known schema version")

	errNoJSONObject = errors.New("no JSON object found in response text")
)

// GeneratorError - транспортный сбой при обращении к генератору
// (сеть, таймаут, HTTP-ошибка провайдера). Несет причину и время,
// прошедшее до сбоя. Для клиента это 502-эквивалент.
type GeneratorError struct {
	Cause   error
	Elapsed time.Duration
}

func (e *GeneratorError) Error() string {
	return fmt.Sprintf("generator transport failure after %v: %v", e.Elapsed, e.Cause)
}

func (e *GeneratorError) Unwrap() error { return e.Cause }

// ParseError - генератор ответил, но текст не удалось разобрать как JSON.
// Это восстановимая ошибка: вызывающий может повторить запрос или
// откатиться на заготовленный контент. Никогда не принимается молча.
type ParseError struct {
	Cause error
	Raw   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("generator output is not valid JSON: %v", e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// SchemaError - JSON разобран, но обязательное поле отсутствует или имеет
// неверный тип. Называет первое нарушившее поле.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("generator output schema violation at %s: %s", e.Field, e.Reason)
}
