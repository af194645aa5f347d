package completion

import (
	"fmt"
	"strings"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the OpenAI-compatible body accepted by the gateway.
type ChatRequest struct {
	Model      string    `json:"model"`
	Messages   []Message `json:"messages"`
	Stream     bool      `json:"stream,omitempty"`
	Modalities []string  `json:"modalities,omitempty"`
}

type ChatResponse struct {
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Message ResponseMessage `json:"message"`
}

type ResponseMessage struct {
	Role    string  `json:"role"`
	Content string  `json:"content"`
	Images  []Image `json:"images,omitempty"`
}

type Image struct {
	Type     string   `json:"type"`
	ImageURL ImageURL `json:"image_url"`
}

type ImageURL struct {
	URL string `json:"url"`
}

// Content returns choices[0].message.content, or "" when absent.
func (r *ChatResponse) Content() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// ImageURL returns choices[0].message.images[0].image_url.url, or "" when absent.
func (r *ChatResponse) ImageURL() string {
	if r == nil || len(r.Choices) == 0 || len(r.Choices[0].Message.Images) == 0 {
		return ""
	}
	return r.Choices[0].Message.Images[0].ImageURL.URL
}

// UpstreamError is a non-2xx answer from the gateway. Body is kept for server-side logs only.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("completion gateway returned %d: %s", e.Status, body)
}
