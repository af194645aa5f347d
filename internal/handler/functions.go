package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aman-churiwal/storyforge/internal/completion"
	"github.com/aman-churiwal/storyforge/internal/config"
	"github.com/aman-churiwal/storyforge/internal/logger"
	"github.com/aman-churiwal/storyforge/internal/metrics"
	"github.com/aman-churiwal/storyforge/internal/middleware"
	"github.com/aman-churiwal/storyforge/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

// Gateway is the completion gateway as seen by the handlers.
type Gateway interface {
	Complete(ctx context.Context, req completion.ChatRequest) (*completion.ChatResponse, error)
	Stream(ctx context.Context, req completion.ChatRequest) (io.ReadCloser, error)
}

// UsageRecorder appends a usage row. It must not fail the request.
type UsageRecorder interface {
	Record(ctx context.Context, userID, function, model string)
}

// TokenCounter feeds the prompt token histogram. Optional.
type TokenCounter interface {
	CountMessages(messages []completion.Message) int
}

// FunctionsHandler serves the three AI-backed functions.
type FunctionsHandler struct {
	limiter  ratelimit.Limiter
	gateway  Gateway
	recorder UsageRecorder
	config   *config.Store
	tokens   TokenCounter
}

func NewFunctionsHandler(limiter ratelimit.Limiter, gateway Gateway, recorder UsageRecorder, cfg *config.Store) *FunctionsHandler {
	return &FunctionsHandler{
		limiter:  limiter,
		gateway:  gateway,
		recorder: recorder,
		config:   cfg,
	}
}

// WithTokenCounter enables the prompt token histogram.
func (h *FunctionsHandler) WithTokenCounter(counter TokenCounter) *FunctionsHandler {
	h.tokens = counter
	return h
}

const (
	msgInvalidBody     = "Invalid request body"
	msgUpstreamLimited = "Rate limits exceeded, please try again later."
	msgUpstreamCredits = "Payment required: AI credits exhausted. Your workspace has reached its usage limit, please add credits to continue."
)

func (h *FunctionsHandler) textModel(requested string) string {
	if m := strings.TrimSpace(requested); m != "" {
		return m
	}
	return h.config.Get().Gateway.DefaultModel
}

func (h *FunctionsHandler) imageModel() string {
	return h.config.Get().Gateway.ImageModel
}

func userID(c *gin.Context) string {
	return c.GetString(middleware.UserIDKey)
}

func (h *FunctionsHandler) observePrompt(function string, messages []completion.Message) {
	if h.tokens == nil {
		return
	}
	metrics.PromptTokens.WithLabelValues(function).Observe(float64(h.tokens.CountMessages(messages)))
}

func observeUpstream(function string, start time.Time, err error) {
	metrics.UpstreamLatency.WithLabelValues(function).Observe(time.Since(start).Seconds())

	status := strconv.Itoa(http.StatusOK)
	var upstream *completion.UpstreamError
	switch {
	case err == nil:
	case errors.As(err, &upstream):
		status = strconv.Itoa(upstream.Status)
	case errors.Is(err, completion.ErrCircuitOpen):
		status = "circuit_open"
	default:
		status = "error"
	}
	metrics.UpstreamRequests.WithLabelValues(function, status).Inc()
}

// upstreamFailure maps a gateway failure onto the client response.
// Upstream detail is logged here and never echoed to the caller.
func upstreamFailure(c *gin.Context, function, user, model, generic string, err error) {
	var upstream *completion.UpstreamError
	if errors.As(err, &upstream) {
		switch upstream.Status {
		case http.StatusTooManyRequests:
			logger.Warn("completion gateway rate limited", "user_id", user, "function", function, "model", model)
			c.JSON(http.StatusTooManyRequests, gin.H{"error": msgUpstreamLimited})
			return
		case http.StatusPaymentRequired:
			logger.Warn("completion gateway credits exhausted", "user_id", user, "function", function, "model", model)
			c.JSON(http.StatusPaymentRequired, gin.H{"error": msgUpstreamCredits})
			return
		}

		logger.Error("completion gateway error",
			"user_id", user,
			"function", function,
			"model", model,
			"status", upstream.Status,
			"body", upstream.Body,
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": generic})
		return
	}

	logger.Error("completion gateway request failed",
		"error", err,
		"user_id", user,
		"function", function,
		"model", model,
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": generic})
}
