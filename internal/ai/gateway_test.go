package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient - ручная заглушка Client для тестов шлюза.
type fakeClient struct {
	responses []string
	errs      []error
	calls     int
	lastMsgs  []Message

	streamChunks []string
	streamErr    error
}

func (f *fakeClient) GenerateText(ctx context.Context, kind, systemPrompt string, messages []Message, params GenerationParams) (string, UsageInfo, error) {
	idx := f.calls
	f.calls++
	f.lastMsgs = messages
	if idx < len(f.errs) && f.errs[idx] != nil {
		return "", UsageInfo{}, f.errs[idx]
	}
	if idx < len(f.responses) {
		return f.responses[idx], UsageInfo{TotalTokens: 10}, nil
	}
	return f.responses[len(f.responses)-1], UsageInfo{TotalTokens: 10}, nil
}

func (f *fakeClient) GenerateTextStream(ctx context.Context, kind, systemPrompt string, messages []Message, params GenerationParams, chunkHandler func(string) error) (UsageInfo, error) {
	for _, chunk := range f.streamChunks {
		if err := chunkHandler(chunk); err != nil {
			return UsageInfo{}, err
		}
	}
	return UsageInfo{}, f.streamErr
}

func TestGenerateStructured(t *testing.T) {
	ctx := context.Background()

	t.Run("success extracts json and issues token", func(t *testing.T) {
		client := &fakeClient{responses: []string{`Sure! {"narrative": "Ok"} Bye.`}}
		gw := NewGateway(client, 1)

		res, err := gw.GenerateStructured(ctx, StructuredRequest{Kind: "narrative", SystemPrompt: "sys", UserPrompt: "look"})
		require.NoError(t, err)
		assert.Equal(t, `{"narrative": "Ok"}`, res.Text)
		assert.Contains(t, res.Raw, "Sure!")
		assert.NotEmpty(t, res.ResponseID)
		assert.Equal(t, 10, res.Usage.TotalTokens)
	})

	t.Run("transport failure retried then surfaced with elapsed", func(t *testing.T) {
		boom := errors.New("connection refused")
		client := &fakeClient{errs: []error{boom, boom, boom}, responses: []string{""}}
		gw := NewGateway(client, 3)

		_, err := gw.GenerateStructured(ctx, StructuredRequest{Kind: "plan", SystemPrompt: "sys", UserPrompt: "go"})
		require.Error(t, err)
		var genErr *GeneratorError
		require.ErrorAs(t, err, &genErr)
		assert.ErrorIs(t, genErr.Cause, boom)
		assert.GreaterOrEqual(t, genErr.Elapsed, time.Duration(0))
		assert.Equal(t, 3, client.calls)
	})

	t.Run("transient failure recovered by retry", func(t *testing.T) {
		client := &fakeClient{
			errs:      []error{errors.New("timeout"), nil},
			responses: []string{"", `{"ok":true}`},
		}
		gw := NewGateway(client, 2)

		res, err := gw.GenerateStructured(ctx, StructuredRequest{Kind: "plan", SystemPrompt: "sys", UserPrompt: "go"})
		require.NoError(t, err)
		assert.Equal(t, `{"ok":true}`, res.Text)
	})

	t.Run("non-json output is a distinct recoverable parse error", func(t *testing.T) {
		client := &fakeClient{responses: []string{"The grue eats your request."}}
		gw := NewGateway(client, 1)

		_, err := gw.GenerateStructured(ctx, StructuredRequest{Kind: "room", SystemPrompt: "sys", UserPrompt: "gen"})
		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr)
		assert.Contains(t, parseErr.Raw, "grue")

		var genErr *GeneratorError
		assert.False(t, errors.As(err, &genErr), "parse error must not be a transport error")
	})

	t.Run("continuation token restores context without resending history", func(t *testing.T) {
		client := &fakeClient{responses: []string{`{"a":1}`, `{"b":2}`}}
		gw := NewGateway(client, 1)

		first, err := gw.GenerateStructured(ctx, StructuredRequest{Kind: "narrative", SystemPrompt: "sys", UserPrompt: "hello"})
		require.NoError(t, err)

		_, err = gw.GenerateStructured(ctx, StructuredRequest{
			Kind:               "narrative",
			SystemPrompt:       "sys",
			UserPrompt:         "again",
			PreviousResponseID: first.ResponseID,
		})
		require.NoError(t, err)

		// Второй вызов получил контекст первого: user+assistant+user.
		require.Len(t, client.lastMsgs, 3)
		assert.Equal(t, "hello", client.lastMsgs[0].Content)
		assert.Equal(t, "assistant", client.lastMsgs[1].Role)
		assert.Equal(t, "again", client.lastMsgs[2].Content)
	})

	t.Run("chained history stays bounded over a long session", func(t *testing.T) {
		client := &fakeClient{responses: []string{`{"x":1}`}}
		gw := NewGateway(client, 1)

		// Каждый ход добавляет две реплики; без усечения цепочка выросла бы
		// до двойного предела.
		token := ""
		for i := 0; i < continuationHistoryLimit; i++ {
			res, err := gw.GenerateStructured(ctx, StructuredRequest{
				Kind:               "narrative",
				SystemPrompt:       "sys",
				UserPrompt:         "again",
				PreviousResponseID: token,
			})
			require.NoError(t, err)
			token = res.ResponseID
		}

		assert.LessOrEqual(t, len(client.lastMsgs), continuationHistoryLimit+1)
		// Хвост цепочки сохранен: последней идет свежая реплика игрока.
		assert.Equal(t, "user", client.lastMsgs[len(client.lastMsgs)-1].Role)
	})
}

func TestStreamNarrative(t *testing.T) {
	t.Run("chunks arrive in order and channel closes", func(t *testing.T) {
		client := &fakeClient{streamChunks: []string{"You ", "wake ", "up."}}
		gw := NewGateway(client, 1)

		ch := gw.StreamNarrative(context.Background(), StructuredRequest{Kind: "narrative", SystemPrompt: "sys", UserPrompt: "start"})

		var got string
		for chunk := range ch {
			require.NoError(t, chunk.Err)
			got += chunk.Text
		}
		assert.Equal(t, "You wake up.", got)
	})

	t.Run("stream error delivered as final chunk", func(t *testing.T) {
		client := &fakeClient{streamChunks: []string{"partial"}, streamErr: errors.New("stream died")}
		gw := NewGateway(client, 1)

		ch := gw.StreamNarrative(context.Background(), StructuredRequest{Kind: "narrative", SystemPrompt: "sys", UserPrompt: "start"})

		var lastErr error
		for chunk := range ch {
			if chunk.Err != nil {
				lastErr = chunk.Err
			}
		}
		assert.EqualError(t, lastErr, "stream died")
	})

	t.Run("cancellation stops producer without error chunk", func(t *testing.T) {
		client := &fakeClient{streamChunks: []string{"a", "b", "c"}}
		gw := NewGateway(client, 1)

		ctx, cancel := context.WithCancel(context.Background())
		ch := gw.StreamNarrative(ctx, StructuredRequest{Kind: "narrative", SystemPrompt: "sys", UserPrompt: "start"})

		<-ch // Прочитали один чанк и отвалились.
		cancel()

		for range ch {
			// Дочитываем до закрытия; паник и зависаний быть не должно.
		}
	})
}
