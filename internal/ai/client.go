package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog"
	openaigo "github.com/sashabaranov/go-openai"
)

var log = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Str("component", "ai").Logger()

// GenerationParams - параметры генерации. Указатели, чтобы отличать
// 0/0.0 от отсутствия значения.
type GenerationParams struct {
	Temperature *float64
	MaxTokens   *int
	TopP        *float64
	Seed        *int64
}

// UsageInfo содержит информацию об использовании токенов и стоимости.
type UsageInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	EstimatedCostUSD float64
}

// Message - одна реплика диалога для передачи генератору.
type Message struct {
	Role    string
	Content string
}

// Client - интерфейс низкоуровневого взаимодействия с AI API.
// Реализации: OpenAI-совместимый клиент и Ollama, выбираются конфигом.
type Client interface {
	// GenerateText генерирует текст по системному промту и истории реплик.
	GenerateText(ctx context.Context, kind string, systemPrompt string, messages []Message, params GenerationParams) (string, UsageInfo, error)
	// GenerateTextStream генерирует текст потоково, вызывая chunkHandler
	// для каждого фрагмента. Ошибка chunkHandler прерывает стрим.
	GenerateTextStream(ctx context.Context, kind string, systemPrompt string, messages []Message, params GenerationParams, chunkHandler func(string) error) (UsageInfo, error)
}

// Config содержит конфигурацию AI-клиента. Ретраи живут уровнем выше,
// в Gateway: клиент выполняет ровно один вызов.
type Config struct {
	Provider string // "openai" или "ollama"
	APIKey   string
	BaseURL  string
	Model    string
	Timeout  time.Duration
}

// NewClient создает реализацию Client по типу провайдера из конфига.
func NewClient(cfg Config) (Client, error) {
	if cfg.Model == "" {
		return nil, errors.New("ai model is not configured")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		if cfg.APIKey == "" {
			return nil, errors.New("ai api key is not configured")
		}
		openaiConfig := openaigo.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			openaiConfig.BaseURL = cfg.BaseURL
		}
		openaiConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
		client := openaigo.NewClientWithConfig(openaiConfig)
		log.Info().Str("baseURL", openaiConfig.BaseURL).Str("model", cfg.Model).Dur("timeout", cfg.Timeout).Msg("OpenAI client created")
		return &openAIClient{client: client, model: cfg.Model}, nil
	case "ollama":
		return newOllamaClient(cfg)
	default:
		return nil, fmt.Errorf("unknown ai provider: %q", cfg.Provider)
	}
}

// --- OpenAI-совместимая реализация ---

type openAIClient struct {
	client *openaigo.Client
	model  string
}

func toOpenAIMessages(systemPrompt string, messages []Message) []openaigo.ChatCompletionMessage {
	out := make([]openaigo.ChatCompletionMessage, 0, len(messages)+1)
	out = append(out, openaigo.ChatCompletionMessage{
		Role:    openaigo.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, m := range messages {
		role := m.Role
		if role == "" {
			role = openaigo.ChatMessageRoleUser
		}
		out = append(out, openaigo.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

func (c *openAIClient) GenerateText(ctx context.Context, kind string, systemPrompt string, messages []Message, params GenerationParams) (string, UsageInfo, error) {
	usageInfo := UsageInfo{}
	if strings.TrimSpace(systemPrompt) == "" {
		aiRequestsTotal.With(statusLabels(c.model, "error", kind)).Inc()
		return "", usageInfo, fmt.Errorf("%w: empty system prompt", ErrGenerationFailed)
	}

	req := openaigo.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toOpenAIMessages(systemPrompt, messages),
		Temperature: float32Val(params.Temperature),
		MaxTokens:   intVal(params.MaxTokens),
		TopP:        float32Val(params.TopP),
	}
	if params.Seed != nil {
		seed := int(*params.Seed)
		req.Seed = &seed
	}

	startTime := time.Now()
	log.Debug().Str("model", c.model).Str("kind", kind).Int("promptTokens", c.countTokens(systemPrompt, messages)).Msg("Sending AI request")

	resp, err := c.client.CreateChatCompletion(ctx, req)
	duration := time.Since(startTime)

	if err != nil {
		log.Error().Err(err).Dur("elapsed", duration).Str("kind", kind).Msg("AI API error")
		aiRequestsTotal.With(statusLabels(c.model, "error", kind)).Inc()
		return "", usageInfo, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		aiRequestsTotal.With(statusLabels(c.model, "error_empty_response", kind)).Inc()
		return "", usageInfo, fmt.Errorf("%w: %s", ErrGenerationFailed, ErrEmptyResponse)
	}

	aiRequestsTotal.With(statusLabels(c.model, "success", kind)).Inc()
	aiRequestDuration.With(kindLabels(c.model, kind)).Observe(duration.Seconds())

	if resp.Usage.TotalTokens > 0 {
		usageInfo.PromptTokens = resp.Usage.PromptTokens
		usageInfo.CompletionTokens = resp.Usage.CompletionTokens
		usageInfo.TotalTokens = resp.Usage.TotalTokens
		usageInfo.EstimatedCostUSD = calculateCost(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		aiPromptTokens.With(kindLabels(c.model, kind)).Observe(float64(resp.Usage.PromptTokens))
		aiCompletionTokens.With(kindLabels(c.model, kind)).Observe(float64(resp.Usage.CompletionTokens))
		if usageInfo.EstimatedCostUSD > 0 {
			aiEstimatedCostUSD.With(kindLabels(c.model, kind)).Add(usageInfo.EstimatedCostUSD)
		}
	}

	log.Debug().Dur("elapsed", duration).Str("kind", kind).Int("chars", len(resp.Choices[0].Message.Content)).Msg("AI response received")
	return resp.Choices[0].Message.Content, usageInfo, nil
}

func (c *openAIClient) GenerateTextStream(ctx context.Context, kind string, systemPrompt string, messages []Message, params GenerationParams, chunkHandler func(string) error) (UsageInfo, error) {
	usageInfo := UsageInfo{}
	if strings.TrimSpace(systemPrompt) == "" {
		return usageInfo, fmt.Errorf("%w: empty system prompt for streaming", ErrGenerationFailed)
	}

	req := openaigo.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toOpenAIMessages(systemPrompt, messages),
		Stream:      true,
		Temperature: float32Val(params.Temperature),
		MaxTokens:   intVal(params.MaxTokens),
		TopP:        float32Val(params.TopP),
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		aiRequestsTotal.With(statusLabels(c.model, "error_stream_init", kind)).Inc()
		return usageInfo, fmt.Errorf("%w: stream init: %v", ErrGenerationFailed, err)
	}
	defer stream.Close()

	startTime := time.Now()
	completionTokensCount := 0
	var finalUsage openaigo.Usage

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			aiRequestsTotal.With(statusLabels(c.model, "error_stream_read", kind)).Inc()
			return usageInfo, fmt.Errorf("%w: stream read: %v", ErrGenerationFailed, err)
		}

		// OpenAI присылает Usage последним блоком стрима.
		if response.Usage != nil && response.Usage.TotalTokens > 0 {
			finalUsage = *response.Usage
		}

		if len(response.Choices) > 0 {
			chunk := response.Choices[0].Delta.Content
			if chunk == "" {
				continue
			}
			if tke, tkeErr := tiktoken.EncodingForModel(c.model); tkeErr == nil {
				completionTokensCount += len(tke.Encode(chunk, nil, nil))
			}
			if chunkHandler != nil {
				if err := chunkHandler(chunk); err != nil {
					// Клиент отвалился или отказался от стрима: прекращаем
					// чтение, но это не сбой генератора.
					log.Warn().Err(err).Str("kind", kind).Msg("Stream chunk handler aborted")
					return usageInfo, err
				}
			}
		}
	}

	duration := time.Since(startTime)
	if finalUsage.TotalTokens > 0 {
		usageInfo.PromptTokens = finalUsage.PromptTokens
		usageInfo.CompletionTokens = finalUsage.CompletionTokens
		usageInfo.TotalTokens = finalUsage.TotalTokens
	} else {
		usageInfo.CompletionTokens = completionTokensCount
	}
	usageInfo.EstimatedCostUSD = calculateCost(usageInfo.PromptTokens, usageInfo.CompletionTokens)
	aiRequestsTotal.With(statusLabels(c.model, "success_stream", kind)).Inc()
	aiRequestDuration.With(kindLabels(c.model, kind)).Observe(duration.Seconds())
	return usageInfo, nil
}

// countTokens оценивает размер промта в токенах через tiktoken.
// При неизвестной модели возвращает 0 (оценка опциональна).
func (c *openAIClient) countTokens(systemPrompt string, messages []Message) int {
	tke, err := tiktoken.EncodingForModel(c.model)
	if err != nil {
		return 0
	}
	total := len(tke.Encode(systemPrompt, nil, nil))
	for _, m := range messages {
		total += len(tke.Encode(m.Content, nil, nil))
	}
	return total
}

func float32Val(v *float64) float32 {
	if v == nil {
		return 0
	}
	return float32(*v)
}

func intVal(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
