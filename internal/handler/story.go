package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aman-churiwal/storyforge/internal/completion"
	"github.com/aman-churiwal/storyforge/internal/config"
	"github.com/aman-churiwal/storyforge/internal/logger"
	"github.com/aman-churiwal/storyforge/internal/middleware"
	"github.com/aman-churiwal/storyforge/internal/prompt"
	"github.com/gin-gonic/gin"
)

// characterList accepts either "Ana, Bo" or ["Ana", "Bo"].
type characterList string

func (l *characterList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = characterList(s)
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return errors.New("characters must be a string or a list of strings")
	}
	*l = characterList(strings.Join(list, ", "))
	return nil
}

type storyRequest struct {
	Characters            characterList `json:"characters"`
	Setting               string        `json:"setting"`
	Theme                 string        `json:"theme"`
	AgeGroup              string        `json:"ageGroup"`
	Pronouns              string        `json:"pronouns"`
	WordCount             int           `json:"wordCount"`
	ExistingStory         string        `json:"existingStory"`
	RefinementInstruction string        `json:"refinementInstruction"`
	Model                 string        `json:"model"`
	Genre                 string        `json:"genre"`
}

func (r storyRequest) params() prompt.StoryParams {
	return prompt.StoryParams{
		Characters:            string(r.Characters),
		Setting:               r.Setting,
		Theme:                 r.Theme,
		AgeGroup:              r.AgeGroup,
		Pronouns:              r.Pronouns,
		Genre:                 r.Genre,
		WordCount:             r.WordCount,
		ExistingStory:         r.ExistingStory,
		RefinementInstruction: r.RefinementInstruction,
	}
}

const msgStoryFailed = "Failed to generate story"

// Handles POST /functions/v1/generate-story
func (h *FunctionsHandler) GenerateStory(c *gin.Context) {
	var req storyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidBody})
		return
	}

	user := userID(c)
	if !middleware.CheckRateLimit(c, h.limiter, user, config.FunctionStory) {
		return
	}

	p, mode := prompt.Story(req.params())
	model := h.textModel(req.Model)
	messages := []completion.Message{
		{Role: "system", Content: p.System},
		{Role: "user", Content: p.User},
	}
	h.observePrompt(config.FunctionStory, messages)

	ctx := c.Request.Context()
	start := time.Now()
	resp, err := h.gateway.Complete(ctx, completion.ChatRequest{Model: model, Messages: messages})
	observeUpstream(config.FunctionStory, start, err)
	if err != nil {
		upstreamFailure(c, config.FunctionStory, user, model, msgStoryFailed, err)
		return
	}

	content := resp.Content()
	if strings.TrimSpace(content) == "" {
		logger.Error("completion gateway returned no story", "user_id", user, "model", model, "mode", mode.String())
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgStoryFailed})
		return
	}

	h.recorder.Record(ctx, user, config.FunctionStory, model)

	title, story := prompt.ParseTitle(content)
	c.JSON(http.StatusOK, gin.H{
		"title": title,
		"story": story,
	})
}
