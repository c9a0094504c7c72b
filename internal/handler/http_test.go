package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lrspeiser/Grue.is-sub000/internal/ai"
	"github.com/lrspeiser/Grue.is-sub000/internal/engine"
	"github.com/lrspeiser/Grue.is-sub000/internal/handler"
	"github.com/lrspeiser/Grue.is-sub000/internal/models"
	"github.com/lrspeiser/Grue.is-sub000/internal/session"
	"github.com/lrspeiser/Grue.is-sub000/internal/worldgen"
)

// fakeAIClient отдает фиксированный текст либо ошибку; стрим нарезает
// текст пословно.
type fakeAIClient struct {
	response string
	err      error
}

func (c *fakeAIClient) GenerateText(ctx context.Context, kind, systemPrompt string, messages []ai.Message, params ai.GenerationParams) (string, ai.UsageInfo, error) {
	if c.err != nil {
		return "", ai.UsageInfo{}, c.err
	}
	return c.response, ai.UsageInfo{}, nil
}

func (c *fakeAIClient) GenerateTextStream(ctx context.Context, kind, systemPrompt string, messages []ai.Message, params ai.GenerationParams, chunkHandler func(string) error) (ai.UsageInfo, error) {
	if c.err != nil {
		return ai.UsageInfo{}, c.err
	}
	for _, word := range strings.SplitAfter(c.response, " ") {
		if err := chunkHandler(word); err != nil {
			return ai.UsageInfo{}, err
		}
	}
	return ai.UsageInfo{}, nil
}

type testServer struct {
	router *gin.Engine
	store  *session.Store
}

// newTestServer собирает роутер с парсерной стратегией и генератором
// миров поверх фейкового AI-клиента (сбой клиента включает canned-миры).
func newTestServer(t *testing.T, client ai.Client, strategy engine.Strategy) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	gateway := ai.NewGateway(client, 1)
	store := session.NewStore(logger)
	eng := engine.New(strategy, nil, logger)
	generator := worldgen.NewGenerator(gateway, logger)

	h := handler.NewGameHandler(store, eng, generator, gateway, nil, nil, logger)
	router := gin.New()
	h.RegisterRoutes(router)
	return &testServer{router: router, store: store}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

// startGame создает сессию через new-game. Фейковый клиент роняет
// планирование, поэтому мир приходит из canned-наборов.
func (ts *testServer) startGame(t *testing.T, userID string) map[string]interface{} {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/new-game", map[string]interface{}{
		"userId": userID,
		"theme":  "fantasy",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, true, resp["success"])
	return resp
}

func TestNewGame(t *testing.T) {
	ts := newTestServer(t, &fakeAIClient{err: errors.New("generator down")}, engine.NewParserStrategy())

	t.Run("missing userId returns 400", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/new-game", map[string]interface{}{"theme": "fantasy"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("falls back to canned world when generator is down", func(t *testing.T) {
		resp := ts.startGame(t, "player-1")
		assert.NotEmpty(t, resp["worldId"])
		require.NotNil(t, resp["worldData"])
		state := resp["gameState"].(map[string]interface{})
		assert.Equal(t, string(models.SessionStatusReady), state["status"])
	})
}

func TestProcessCommand(t *testing.T) {
	ts := newTestServer(t, &fakeAIClient{err: errors.New("generator down")}, engine.NewParserStrategy())
	ts.startGame(t, "player-2")

	t.Run("missing command returns 400", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/command", map[string]interface{}{"userId": "player-2"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown session returns 404", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/command", map[string]interface{}{
			"userId": "ghost", "command": "look",
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("wrong verb returns 405", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/command", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("look succeeds with narrative", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/command", map[string]interface{}{
			"userId": "player-2", "command": "look",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, true, resp["success"])
		assert.NotEmpty(t, resp["message"])
	})

	t.Run("missing exit lists exits without mutation", func(t *testing.T) {
		sess, err := ts.store.Get("player-2")
		require.NoError(t, err)
		before := sess.State.CurrentRoomID

		rec := ts.do(t, http.MethodPost, "/api/command", map[string]interface{}{
			"userId": "player-2", "command": "go down",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, true, resp["success"])
		assert.Contains(t, resp["message"], "can't go")
		assert.Equal(t, before, sess.State.CurrentRoomID)
	})
}

func TestGeneratorFailuresAreBadGateway(t *testing.T) {
	t.Run("non-JSON narrator output yields 502", func(t *testing.T) {
		client := &fakeAIClient{response: "The narrator mumbles something unintelligible."}
		gateway := ai.NewGateway(client, 1)
		ts := newTestServer(t, client, engine.NewGeneratorStrategy(gateway, zap.NewNop()))
		ts.startGame(t, "player-3")

		rec := ts.do(t, http.MethodPost, "/api/command", map[string]interface{}{
			"userId": "player-3", "command": "look around",
		})
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("transport failure yields 502", func(t *testing.T) {
		client := &fakeAIClient{err: errors.New("connection refused")}
		gateway := ai.NewGateway(client, 1)
		ts := newTestServer(t, client, engine.NewGeneratorStrategy(gateway, zap.NewNop()))
		ts.startGame(t, "player-4")

		rec := ts.do(t, http.MethodPost, "/api/command", map[string]interface{}{
			"userId": "player-4", "command": "look",
		})
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t, &fakeAIClient{err: errors.New("down")}, engine.NewParserStrategy())
	ts.startGame(t, "player-5")

	t.Run("session log is exposed", func(t *testing.T) {
		ts.do(t, http.MethodPost, "/api/command", map[string]interface{}{
			"userId": "player-5", "command": "look",
		})
		rec := ts.do(t, http.MethodGet, "/api/sessions/player-5/log", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "look")
	})

	t.Run("delete then 404", func(t *testing.T) {
		rec := ts.do(t, http.MethodDelete, "/api/sessions/player-5", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = ts.do(t, http.MethodDelete, "/api/sessions/player-5", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &fakeAIClient{err: errors.New("down")}, engine.NewParserStrategy())
	rec := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestStreamCommand(t *testing.T) {
	client := &fakeAIClient{response: "The torch gutters in the dark."}
	ts := newTestServer(t, client, engine.NewParserStrategy())
	ts.startGame(t, "player-6")

	rec := ts.do(t, http.MethodPost, "/api/command/stream", map[string]interface{}{
		"userId": "player-6", "command": "listen",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	assert.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")
	assert.Contains(t, body, `"type":"chunk"`)
	assert.Contains(t, body, "data: [DONE]")
	// Все события оформлены как data-строки.
	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		if line == "" {
			continue
		}
		assert.True(t, strings.HasPrefix(line, "data: ") || strings.HasPrefix(line, ": "), line)
	}

	// Накопленный нарратив попал в окно диалога.
	sess, err := ts.store.Get("player-6")
	require.NoError(t, err)
	require.NotEmpty(t, sess.State.Conversation)
	last := sess.State.Conversation[len(sess.State.Conversation)-1]
	assert.Equal(t, "assistant", last.Role)
	assert.Contains(t, last.Content, "torch gutters")
}
