// Package prompt builds the messages sent to the completion gateway.
package prompt

import (
	"fmt"
	"strings"
)

// GenerationMode selects the story prompt template.
type GenerationMode int

const (
	ModeStory GenerationMode = iota
	ModePoem
	ModeRefinement
)

func (m GenerationMode) String() string {
	switch m {
	case ModePoem:
		return "poem"
	case ModeRefinement:
		return "refinement"
	default:
		return "story"
	}
}

// Prompt is a system/user message pair.
type Prompt struct {
	System string
	User   string
}

type StoryParams struct {
	Characters            string
	Setting               string
	Theme                 string
	AgeGroup              string
	Pronouns              string
	Genre                 string
	WordCount             int
	ExistingStory         string
	RefinementInstruction string
}

var defaultWordCounts = map[string]int{
	"children": 300,
	"teens":    500,
	"adults":   700,
}

const fallbackWordCount = 500

// ModeFor picks the template once per request. Refinement wins over genre.
func ModeFor(p StoryParams) GenerationMode {
	if strings.TrimSpace(p.RefinementInstruction) != "" && strings.TrimSpace(p.ExistingStory) != "" {
		return ModeRefinement
	}
	if strings.EqualFold(strings.TrimSpace(p.Genre), "poem") {
		return ModePoem
	}
	return ModeStory
}

// TargetWordCount applies the age group default and halves it for poems.
func TargetWordCount(p StoryParams, mode GenerationMode) int {
	target := p.WordCount
	if target <= 0 {
		var ok bool
		if target, ok = defaultWordCounts[strings.ToLower(p.AgeGroup)]; !ok {
			target = fallbackWordCount
		}
	}
	if mode == ModePoem {
		target /= 2
	}
	return target
}

var storyBuilders = map[GenerationMode]func(StoryParams, int) Prompt{
	ModeStory:      buildStory,
	ModePoem:       buildPoem,
	ModeRefinement: buildRefinement,
}

// Story builds the prompt for the given parameters and reports the chosen mode.
func Story(p StoryParams) (Prompt, GenerationMode) {
	mode := ModeFor(p)
	return storyBuilders[mode](p, TargetWordCount(p, mode)), mode
}

func audience(ageGroup string) string {
	switch strings.ToLower(ageGroup) {
	case "children":
		return "young children aged 4 to 10. Use simple words, short sentences, gentle conflict and a warm, reassuring ending"
	case "teens":
		return "teenagers aged 13 to 17. Use vivid language, relatable emotions and real stakes while keeping content age-appropriate"
	case "adults":
		return "adult readers. Use rich, literary prose with layered characters and nuanced themes"
	default:
		return "a general audience. Keep the content family-friendly"
	}
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

func pronounLine(pronouns string) string {
	if strings.TrimSpace(pronouns) == "" {
		return ""
	}
	return fmt.Sprintf("\nRefer to the main character using %s pronouns.", strings.TrimSpace(pronouns))
}

const titleInstruction = `Begin your response with a single line in the exact form "TITLE: <story title>", then a blank line, then the text. Do not add any other headings.`

func buildStory(p StoryParams, words int) Prompt {
	genre := orDefault(p.Genre, "adventure")

	system := fmt.Sprintf(
		"You are a skilled storyteller who writes original %s stories for %s.\n"+
			"Aim for about %d words. Give the story a clear beginning, middle and end.\n%s",
		genre, audience(p.AgeGroup), words, titleInstruction,
	)

	user := fmt.Sprintf(
		"Write a %s story.\nCharacters: %s\nSetting: %s\nTheme: %s\nTarget length: about %d words.%s",
		genre,
		orDefault(p.Characters, "characters of your choosing"),
		orDefault(p.Setting, "a setting of your choosing"),
		orDefault(p.Theme, "friendship"),
		words,
		pronounLine(p.Pronouns),
	)

	return Prompt{System: system, User: user}
}

func buildPoem(p StoryParams, words int) Prompt {
	system := fmt.Sprintf(
		"You are a poet who writes original narrative poems for %s.\n"+
			"Use vivid imagery, rhythm and line breaks. Aim for about %d words.\n%s",
		audience(p.AgeGroup), words, titleInstruction,
	)

	user := fmt.Sprintf(
		"Write a narrative poem.\nCharacters: %s\nSetting: %s\nTheme: %s\nTarget length: about %d words.%s",
		orDefault(p.Characters, "characters of your choosing"),
		orDefault(p.Setting, "a setting of your choosing"),
		orDefault(p.Theme, "wonder"),
		words,
		pronounLine(p.Pronouns),
	)

	return Prompt{System: system, User: user}
}

func buildRefinement(p StoryParams, words int) Prompt {
	system := fmt.Sprintf(
		"You are an editor revising a story written for %s.\n"+
			"Apply the requested change and keep everything else consistent with the original: characters, tone and plot. "+
			"Keep the length close to %d words unless the change asks otherwise.\n%s",
		audience(p.AgeGroup), words, titleInstruction,
	)

	user := fmt.Sprintf(
		"Here is the current story:\n\n%s\n\nRevise it as follows: %s%s",
		strings.TrimSpace(p.ExistingStory),
		strings.TrimSpace(p.RefinementInstruction),
		pronounLine(p.Pronouns),
	)

	return Prompt{System: system, User: user}
}

// FallbackTitle is used when the model output carries no title line.
const FallbackTitle = "Untitled Story"

const titlePrefix = "TITLE:"

// ParseTitle splits "TITLE: ..." off the first line. The prefix is case-sensitive.
// Without it the whole output is the story.
func ParseTitle(raw string) (title, story string) {
	if !strings.HasPrefix(raw, titlePrefix) {
		return FallbackTitle, raw
	}

	first, rest, _ := strings.Cut(raw, "\n")
	title = strings.TrimSpace(strings.TrimPrefix(first, titlePrefix))
	if title == "" {
		title = FallbackTitle
	}
	return title, strings.TrimSpace(rest)
}
