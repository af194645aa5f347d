package prompt

import (
	"fmt"
	"strings"
)

type ImageParams struct {
	Title      string
	Characters string
	Setting    string
	AgeGroup   string
}

func artStyle(ageGroup string) string {
	switch strings.ToLower(ageGroup) {
	case "children":
		return "a bright, whimsical children's picture-book illustration with soft shapes and friendly faces"
	case "teens":
		return "a vibrant, dynamic graphic-novel style illustration with bold colours"
	case "adults":
		return "a sophisticated, atmospheric painterly illustration with rich detail and moody lighting"
	default:
		return "a detailed, colourful storybook illustration"
	}
}

// Image builds the single prompt used for cover art.
func Image(p ImageParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create %s", artStyle(p.AgeGroup))
	if t := strings.TrimSpace(p.Title); t != "" {
		fmt.Fprintf(&b, " for a story titled %q", t)
	}
	b.WriteString(".")
	if c := strings.TrimSpace(p.Characters); c != "" {
		fmt.Fprintf(&b, " Show %s.", c)
	}
	if s := strings.TrimSpace(p.Setting); s != "" {
		fmt.Fprintf(&b, " The scene takes place in %s.", s)
	}
	b.WriteString(" Do not include any text, letters, words or captions in the image.")
	return b.String()
}
