package chatstream

// Conversation is an ordered chat history. While a response streams, only the
// last assistant message changes.
type Conversation struct {
	Messages  []Message
	streaming bool
}

func (c *Conversation) AddUser(content string) {
	c.streaming = false
	c.Messages = append(c.Messages, Message{Role: "user", Content: content})
}

// ApplyDelta appends content to the in-progress assistant message, creating it
// on the first delta of a response.
func (c *Conversation) ApplyDelta(content string) {
	if !c.streaming {
		c.Messages = append(c.Messages, Message{Role: "assistant"})
		c.streaming = true
	}
	c.Messages[len(c.Messages)-1].Content += content
}

// Finish closes the in-progress assistant message. A response that carried no
// content still gets an empty assistant message so user turns never sit back to back.
func (c *Conversation) Finish() {
	if n := len(c.Messages); !c.streaming && n > 0 && c.Messages[n-1].Role == "user" {
		c.Messages = append(c.Messages, Message{Role: "assistant"})
	}
	c.streaming = false
}

// History returns a copy safe to send while the conversation keeps changing.
func (c *Conversation) History() []Message {
	return append([]Message(nil), c.Messages...)
}
