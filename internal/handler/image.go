package handler

import (
	"net/http"
	"time"

	"github.com/aman-churiwal/storyforge/internal/completion"
	"github.com/aman-churiwal/storyforge/internal/config"
	"github.com/aman-churiwal/storyforge/internal/logger"
	"github.com/aman-churiwal/storyforge/internal/middleware"
	"github.com/aman-churiwal/storyforge/internal/prompt"
	"github.com/gin-gonic/gin"
)

type imageRequest struct {
	Title      string        `json:"title"`
	Characters characterList `json:"characters"`
	Setting    string        `json:"setting"`
	AgeGroup   string        `json:"ageGroup"`
}

const msgImageFailed = "Failed to generate image"

// Handles POST /functions/v1/generate-image
func (h *FunctionsHandler) GenerateImage(c *gin.Context) {
	var req imageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidBody})
		return
	}

	user := userID(c)
	if !middleware.CheckRateLimit(c, h.limiter, user, config.FunctionImage) {
		return
	}

	model := h.imageModel()
	messages := []completion.Message{{
		Role: "user",
		Content: prompt.Image(prompt.ImageParams{
			Title:      req.Title,
			Characters: string(req.Characters),
			Setting:    req.Setting,
			AgeGroup:   req.AgeGroup,
		}),
	}}
	h.observePrompt(config.FunctionImage, messages)

	ctx := c.Request.Context()
	start := time.Now()
	resp, err := h.gateway.Complete(ctx, completion.ChatRequest{
		Model:      model,
		Messages:   messages,
		Modalities: []string{"image", "text"},
	})
	observeUpstream(config.FunctionImage, start, err)
	if err != nil {
		upstreamFailure(c, config.FunctionImage, user, model, msgImageFailed, err)
		return
	}

	// The call itself succeeded, so it is metered even without an image.
	h.recorder.Record(ctx, user, config.FunctionImage, model)

	var imageURL *string
	if url := resp.ImageURL(); url != "" {
		imageURL = &url
	} else {
		logger.Warn("completion gateway returned no image", "user_id", user, "model", model)
	}

	c.JSON(http.StatusOK, gin.H{"imageUrl": imageURL})
}
