package ai

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// continuationCap - сколько цепочек контекста держим в памяти.
// Старые вытесняются в порядке создания.
const continuationCap = 256

// continuationHistoryLimit - сколько последних реплик сохраняется в одной
// цепочке. Без предела промпт продолжаемого диалога растет с каждым ходом.
const continuationHistoryLimit = 24

// StructuredRequest - запрос на структурированную генерацию.
// PreviousResponseID позволяет продолжить диалог, не пересылая полную
// историю: шлюз сам восстановит контекст по токену.
type StructuredRequest struct {
	Kind               string
	SystemPrompt       string
	UserPrompt         string
	History            []Message
	PreviousResponseID string
	Params             GenerationParams
}

// StructuredResult - результат структурированной генерации.
// Text - извлеченный JSON-объект, Raw - сырой ответ генератора.
// ResponseID нужно сохранить и передать в следующем запросе.
type StructuredResult struct {
	Text       string
	Raw        string
	Usage      UsageInfo
	Duration   time.Duration
	ResponseID string
}

// StreamChunk - один фрагмент потоковой генерации. Конец потока
// обозначается закрытием канала; ошибка приходит последним элементом.
type StreamChunk struct {
	Text string
	Err  error
}

// Gateway оборачивает низкоуровневый Client: ретраи транспортных сбоев,
// извлечение JSON из прозы, цепочки контекста по continuation-токену и
// канальная абстракция стриминга.
type Gateway struct {
	client     Client
	maxRetries int

	mu            sync.Mutex
	continuations map[string][]Message
	tokenOrder    []string
}

// NewGateway создает шлюз поверх клиента. maxRetries < 1 трактуется как 1.
func NewGateway(client Client, maxRetries int) *Gateway {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Gateway{
		client:        client,
		maxRetries:    maxRetries,
		continuations: make(map[string][]Message),
	}
}

// resolveContext восстанавливает историю диалога: по токену из прошлого
// ответа либо из явно переданной истории.
func (g *Gateway) resolveContext(req StructuredRequest) []Message {
	if req.PreviousResponseID != "" {
		g.mu.Lock()
		stored, ok := g.continuations[req.PreviousResponseID]
		g.mu.Unlock()
		if ok {
			history := make([]Message, len(stored))
			copy(history, stored)
			return history
		}
		log.Warn().Str("token", req.PreviousResponseID).Msg("Unknown continuation token, falling back to explicit history")
	}
	return req.History
}

// storeContinuation запоминает хвост контекста под новым токеном, вытесняя
// самые старые цепочки при переполнении.
func (g *Gateway) storeContinuation(history []Message) string {
	if len(history) > continuationHistoryLimit {
		history = history[len(history)-continuationHistoryLimit:]
	}
	token := uuid.NewString()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.continuations[token] = history
	g.tokenOrder = append(g.tokenOrder, token)
	for len(g.tokenOrder) > continuationCap {
		oldest := g.tokenOrder[0]
		g.tokenOrder = g.tokenOrder[1:]
		delete(g.continuations, oldest)
	}
	return token
}

// GenerateStructured выполняет один структурированный вызов генератора.
// Транспортные сбои ретраятся до maxRetries и затем возвращаются как
// *GeneratorError с причиной и временем. Непарсибельный ответ - отдельная
// восстановимая ошибка *ParseError: вызывающий может повторить запрос
// или откатиться на заготовленный контент.
func (g *Gateway) GenerateStructured(ctx context.Context, req StructuredRequest) (*StructuredResult, error) {
	history := g.resolveContext(req)
	messages := append(append([]Message{}, history...), Message{Role: "user", Content: req.UserPrompt})

	start := time.Now()
	var (
		rawText string
		usage   UsageInfo
		lastErr error
	)
	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		rawText, usage, lastErr = g.client.GenerateText(ctx, req.Kind, req.SystemPrompt, messages, req.Params)
		if lastErr == nil {
			break
		}
		log.Warn().Err(lastErr).Int("attempt", attempt).Str("kind", req.Kind).Msg("AI call failed")
		if ctx.Err() != nil {
			break
		}
	}
	elapsed := time.Since(start)
	if lastErr != nil {
		return nil, &GeneratorError{Cause: lastErr, Elapsed: elapsed}
	}

	extracted := ExtractJSONContent(rawText)
	if extracted == "" {
		return nil, &ParseError{Cause: errNoJSONObject, Raw: rawText}
	}

	newHistory := append(messages, Message{Role: "assistant", Content: rawText})
	token := g.storeContinuation(newHistory)

	return &StructuredResult{
		Text:       extracted,
		Raw:        rawText,
		Usage:      usage,
		Duration:   elapsed,
		ResponseID: token,
	}, nil
}

// StreamNarrative запускает потоковую генерацию и возвращает канал
// фрагментов. Продюсер пишет чанки по мере поступления и закрывает канал
// по окончании; ошибка (включая отмену контекста) приходит последним
// элементом. Отмена ctx останавливает продюсера.
func (g *Gateway) StreamNarrative(ctx context.Context, req StructuredRequest) <-chan StreamChunk {
	history := g.resolveContext(req)
	messages := append(append([]Message{}, history...), Message{Role: "user", Content: req.UserPrompt})

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		_, err := g.client.GenerateTextStream(ctx, req.Kind, req.SystemPrompt, messages, req.Params, func(chunk string) error {
			select {
			case out <- StreamChunk{Text: chunk}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil && ctx.Err() == nil {
			out <- StreamChunk{Err: err}
		}
	}()
	return out
}

// DecodeStructured декодирует извлеченный JSON результата в out.
// Нарушение схемы оборачивается в *ParseError.
func (r *StructuredResult) DecodeStructured(out interface{}) error {
	if err := json.Unmarshal([]byte(r.Text), out); err != nil {
		return &ParseError{Cause: err, Raw: r.Raw}
	}
	return nil
}
