package ai

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

// ollamaClient реализует Client поверх нативного API Ollama для локальных
// моделей. Выбирается конфигом Provider="ollama".
type ollamaClient struct {
	client  *api.Client
	model   string
	timeout time.Duration
}

func newOllamaClient(cfg Config) (*ollamaClient, error) {
	// api.NewClient требует URL без суффикса /v1.
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/v1")
	baseURL = strings.TrimSuffix(baseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base url %q: %w", cfg.BaseURL, err)
	}

	client := api.NewClient(parsedURL, &http.Client{Timeout: cfg.Timeout})
	log.Info().Str("baseURL", baseURL).Str("model", cfg.Model).Dur("timeout", cfg.Timeout).Msg("Ollama client created")
	return &ollamaClient{client: client, model: cfg.Model, timeout: cfg.Timeout}, nil
}

func toOllamaMessages(systemPrompt string, messages []Message) []api.Message {
	out := make([]api.Message, 0, len(messages)+1)
	out = append(out, api.Message{Role: "system", Content: systemPrompt})
	for _, m := range messages {
		role := m.Role
		if role == "" {
			role = "user"
		}
		out = append(out, api.Message{Role: role, Content: m.Content})
	}
	return out
}

func (c *ollamaClient) options(params GenerationParams) map[string]any {
	opts := map[string]any{}
	if params.Temperature != nil {
		opts["temperature"] = *params.Temperature
	}
	if params.TopP != nil {
		opts["top_p"] = *params.TopP
	}
	if params.MaxTokens != nil {
		// Нативный API Ollama называет лимит ответа num_predict.
		opts["num_predict"] = *params.MaxTokens
	}
	if params.Seed != nil {
		opts["seed"] = *params.Seed
	}
	return opts
}

func (c *ollamaClient) GenerateText(ctx context.Context, kind string, systemPrompt string, messages []Message, params GenerationParams) (string, UsageInfo, error) {
	usageInfo := UsageInfo{}
	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	stream := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: toOllamaMessages(systemPrompt, messages),
		Stream:   &stream,
		Options:  c.options(params),
	}

	startTime := time.Now()
	var content strings.Builder
	err := c.client.Chat(requestCtx, req, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		if resp.Done {
			usageInfo.PromptTokens = resp.PromptEvalCount
			usageInfo.CompletionTokens = resp.EvalCount
			usageInfo.TotalTokens = resp.PromptEvalCount + resp.EvalCount
		}
		return nil
	})
	duration := time.Since(startTime)

	if err != nil {
		aiRequestsTotal.With(statusLabels(c.model, "error", kind)).Inc()
		return "", usageInfo, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if content.Len() == 0 {
		aiRequestsTotal.With(statusLabels(c.model, "error_empty_response", kind)).Inc()
		return "", usageInfo, fmt.Errorf("%w: %s", ErrGenerationFailed, ErrEmptyResponse)
	}

	aiRequestsTotal.With(statusLabels(c.model, "success", kind)).Inc()
	aiRequestDuration.With(kindLabels(c.model, kind)).Observe(duration.Seconds())
	return content.String(), usageInfo, nil
}

func (c *ollamaClient) GenerateTextStream(ctx context.Context, kind string, systemPrompt string, messages []Message, params GenerationParams, chunkHandler func(string) error) (UsageInfo, error) {
	usageInfo := UsageInfo{}
	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	stream := true
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: toOllamaMessages(systemPrompt, messages),
		Stream:   &stream,
		Options:  c.options(params),
	}

	startTime := time.Now()
	err := c.client.Chat(requestCtx, req, func(resp api.ChatResponse) error {
		if resp.Done {
			usageInfo.PromptTokens = resp.PromptEvalCount
			usageInfo.CompletionTokens = resp.EvalCount
			usageInfo.TotalTokens = resp.PromptEvalCount + resp.EvalCount
		}
		if resp.Message.Content == "" || chunkHandler == nil {
			return nil
		}
		return chunkHandler(resp.Message.Content)
	})
	duration := time.Since(startTime)

	if err != nil {
		aiRequestsTotal.With(statusLabels(c.model, "error_stream_read", kind)).Inc()
		return usageInfo, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	aiRequestsTotal.With(statusLabels(c.model, "success_stream", kind)).Inc()
	aiRequestDuration.With(kindLabels(c.model, kind)).Observe(duration.Seconds())
	return usageInfo, nil
}
