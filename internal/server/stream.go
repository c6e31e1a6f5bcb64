package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"discussion-agent/internal/conversation"
	"discussion-agent/internal/logging"
)

// SSE event names.
const (
	eventChunk   = "chunk"
	eventMessage = "message"
	eventError   = "error"
	eventDone    = "done"
)

// sseStream adapts a gin response to conversation.Stream. Headers are written on the first
// event so validation errors can still be answered with a plain JSON status.
type sseStream struct {
	c        *gin.Context
	started  bool
	messages int
}

func (s *sseStream) start() {
	if s.started {
		return
	}
	s.started = true
	h := s.c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.c.Status(http.StatusOK)
}

func (s *sseStream) emit(event string, data any) {
	s.start()
	s.c.SSEvent(event, data)
	s.c.Writer.Flush()
}

func (s *sseStream) SendChunk(ctx context.Context, chunk conversation.ChatChunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if chunk.Done && chunk.Message != nil {
		s.messages++
		s.emit(eventMessage, chunk.Message)
		return nil
	}
	s.emit(eventChunk, chunkView{AgentID: chunk.AgentID, MessageID: chunk.MessageID, Text: chunk.Text})
	return nil
}

var _ conversation.Stream = (*sseStream)(nil)

func (h *Handler) postMessage(c *gin.Context) {
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorView{Error: "invalid request body: " + err.Error()})
		return
	}

	stream := &sseStream{c: c}
	err := h.discussions.HandleMessage(c.Request.Context(), conversation.TurnRequest{
		Key:      discussionKey(c),
		Content:  req.Content,
		AgentIDs: req.AgentIDs,
	}, stream)

	if err != nil && !stream.started {
		h.fail(c, err)
		return
	}
	if err != nil {
		if c.Request.Context().Err() != nil {
			h.logger.With(logging.F("err", err)).Info("client disconnected mid-stream")
			return
		}
		h.logger.With(logging.F("err", err)).Error("discussion turn failed mid-stream")
		stream.emit(eventError, errorView{Error: err.Error()})
	}
	stream.emit(eventDone, doneView{Messages: stream.messages})
}
