// Package tokens estimates prompt sizes for the prompt token histogram.
package tokens

import (
	"fmt"

	"github.com/aman-churiwal/storyforge/internal/completion"
	"github.com/pkoukk/tiktoken-go"
)

// perMessageOverhead approximates the role and separator tokens of the chat format.
const perMessageOverhead = 4

type Counter struct {
	enc *tiktoken.Tiktoken
}

// NewCounter loads cl100k_base. The first call may download the BPE ranks.
func NewCounter() (*Counter, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to load token encoding: %w", err)
	}
	return &Counter{enc: enc}, nil
}

func (c *Counter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

func (c *Counter) CountMessages(messages []completion.Message) int {
	total := 0
	for _, m := range messages {
		total += perMessageOverhead + c.Count(m.Content)
	}
	return total
}
