package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lrspeiser/Grue.is-sub000/internal/ai"
	"github.com/lrspeiser/Grue.is-sub000/internal/session"
	"github.com/lrspeiser/Grue.is-sub000/internal/world"
)

const streamNarratorPrompt = `You are the narrator of a text adventure game. ` +
	`Narrate the outcome of the player's command in 2-5 atmospheric sentences ` +
	`of plain prose in second person. Do not output JSON. Do not move the player ` +
	`to rooms that are not listed as exits and do not invent items.`

// pingInterval - период keep-alive комментариев в SSE-потоке.
const pingInterval = 15 * time.Second

// streamCommand отдает нарратив команды потоково через SSE. Каждое
// событие - строка "data: <JSON>\n\n", окончание потока помечается
// {type:"done"} и литералом [DONE]. Отключение клиента отменяет
// генерацию через контекст запроса.
func (h *GameHandler) streamCommand(c *gin.Context) {
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
	if sess.World == nil {
		c.JSON(http.StatusNotFound, APIError{Message: "no world bound to this session yet"})
		return
	}
	if err := sess.BeginCommand(); err != nil {
		c.JSON(http.StatusOK, commandResponse{Success: false, Message: "Hold on, your previous command is still being resolved."})
		return
	}
	defer sess.EndCommand()

	room, err := world.FindRoom(sess.World, sess.State.CurrentRoomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, APIError{Message: "current room is missing from the world"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, APIError{Message: "streaming is not supported"})
		return
	}

	history := make([]ai.Message, 0, len(sess.State.Conversation))
	for _, turn := range sess.State.Conversation {
		history = append(history, ai.Message{Role: turn.Role, Content: turn.Content})
	}

	promptCtx := map[string]interface{}{
		"room":      room,
		"exits":     world.AvailableExits(room),
		"inventory": sess.State.Inventory,
		"command":   req.Command,
	}
	userPrompt, _ := json.Marshal(promptCtx)

	ctx := c.Request.Context()
	seed := sess.Seed
	chunks := h.gateway.StreamNarrative(ctx, ai.StructuredRequest{
		Kind:         "narrative_stream",
		SystemPrompt: streamNarratorPrompt,
		UserPrompt:   string(userPrompt),
		History:      history,
		Params:       ai.GenerationParams{Seed: &seed},
	})

	writeEvent := func(ev streamEvent) {
		payload, _ := json.Marshal(ev)
		fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
		flusher.Flush()
	}

	// Пинг-таймер обязан останавливаться вместе с потоком, иначе он
	// продолжит тикать после ухода клиента.
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	var narrative strings.Builder
	for {
		select {
		case <-ctx.Done():
			// Клиент отключился: генерация уже отменена контекстом,
			// накопленный нарратив все равно попадает в историю диалога.
			h.finishStreamTurn(sess, req.Command, narrative.String())
			return
		case <-ping.C:
			fmt.Fprint(c.Writer, ": ping\n\n")
			flusher.Flush()
		case chunk, open := <-chunks:
			if !open {
				h.finishStreamTurn(sess, req.Command, narrative.String())
				writeEvent(streamEvent{Type: "done"})
				fmt.Fprint(c.Writer, "data: [DONE]\n\n")
				flusher.Flush()
				return
			}
			if chunk.Err != nil {
				h.logger.Warn("Narrative stream failed",
					zap.String("sessionID", sess.ID), zap.Error(chunk.Err))
				writeEvent(streamEvent{Type: "error", Message: "the narrator trails off mid-sentence"})
				continue
			}
			narrative.WriteString(chunk.Text)
			writeEvent(streamEvent{Type: "chunk", Content: chunk.Text})
		}
	}
}

// finishStreamTurn дописывает произнесенный нарратив в окно диалога.
// Состояние мира потоковый режим не мутирует.
func (h *GameHandler) finishStreamTurn(sess *session.Session, command, narrative string) {
	if narrative == "" {
		return
	}
	sess.State.PushTurn("user", command)
	sess.State.PushTurn("assistant", narrative)
	sess.State.Turn++
}
