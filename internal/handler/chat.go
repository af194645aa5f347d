package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/aman-churiwal/storyforge/internal/completion"
	"github.com/aman-churiwal/storyforge/internal/config"
	"github.com/aman-churiwal/storyforge/internal/logger"
	"github.com/aman-churiwal/storyforge/internal/metrics"
	"github.com/aman-churiwal/storyforge/internal/middleware"
	"github.com/aman-churiwal/storyforge/internal/prompt"
	"github.com/gin-gonic/gin"
)

type chatRequest struct {
	Messages []completion.Message `json:"messages"`
	Model    string               `json:"model"`
}

const (
	msgChatFailed      = "AI gateway error"
	msgMessagesMissing = "messages must contain at least one message"
)

var chatRoles = map[string]bool{"user": true, "assistant": true}

// Handles POST /functions/v1/chat. The upstream SSE body is forwarded unbuffered.
func (h *FunctionsHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidBody})
		return
	}
	if len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgMessagesMissing})
		return
	}
	for _, m := range req.Messages {
		if !chatRoles[m.Role] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "message role must be user or assistant"})
			return
		}
	}

	user := userID(c)
	if !middleware.CheckRateLimit(c, h.limiter, user, config.FunctionChat) {
		return
	}

	model := h.textModel(req.Model)
	messages := make([]completion.Message, 0, len(req.Messages)+1)
	messages = append(messages, completion.Message{Role: "system", Content: prompt.ChatSystem})
	messages = append(messages, req.Messages...)
	h.observePrompt(config.FunctionChat, messages)

	ctx := c.Request.Context()
	start := time.Now()
	body, err := h.gateway.Stream(ctx, completion.ChatRequest{Model: model, Messages: messages})
	observeUpstream(config.FunctionChat, start, err)
	if err != nil {
		upstreamFailure(c, config.FunctionChat, user, model, msgChatFailed, err)
		return
	}
	defer body.Close()

	h.recorder.Record(ctx, user, config.FunctionChat, model)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	forwarded, err := forward(c.Writer, body)
	metrics.StreamedBytes.Add(float64(forwarded))
	if err != nil && !errors.Is(err, io.EOF) && ctx.Err() == nil {
		logger.Error("chat stream interrupted",
			"error", err,
			"user_id", user,
			"model", model,
			"bytes", forwarded,
		)
	}
}

// forward copies src to w chunk by chunk, flushing after every write.
func forward(w gin.ResponseWriter, src io.Reader) (int64, error) {
	buf := make([]byte, 4096)
	var total int64

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			written, err := w.Write(buf[:n])
			total += int64(written)
			if err != nil {
				return total, err
			}
			w.Flush()
		}
		if readErr != nil {
			return total, readErr
		}
	}
}
