package chatstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Options struct {
	// URL of the chat function, e.g. http://localhost:8080/functions/v1/chat.
	URL      string
	Messages []Message
	// Model is optional; the server falls back to its default.
	Model string
	// UserID is sent as x-user-id.
	UserID string
	// Token is sent as a bearer token when set.
	Token      string
	HTTPClient *http.Client
}

// Handlers receive the stream. OnDelta fires in server order. Exactly one of
// OnDone or OnError fires, unless ctx is cancelled first, in which case neither does.
type Handlers struct {
	OnDelta func(content string)
	OnDone  func()
	OnError func(err error)
}

// StatusError is a non-2xx answer from the chat function.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("chat request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("chat request failed with status %d: %s", e.StatusCode, e.Message)
}

const readSize = 4096

// StreamChat posts the conversation and feeds the SSE response through a Decoder.
// It blocks until the stream ends. The returned error is the one handed to
// OnError, or ctx.Err() after a cancel.
func StreamChat(ctx context.Context, opts Options, h Handlers) error {
	err := streamChat(ctx, opts, h)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if h.OnError != nil {
		h.OnError(err)
	}
	return err
}

func streamChat(ctx context.Context, opts Options, h Handlers) error {
	body, err := json.Marshal(struct {
		Messages []Message `json:"messages"`
		Model    string    `json:"model,omitempty"`
	}{opts.Messages, opts.Model})
	if err != nil {
		return fmt.Errorf("encoding chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if opts.UserID != "" {
		req.Header.Set("x-user-id", opts.UserID)
	}
	if opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.Token)
	}

	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("chat request failed: %w", err)
	}
	if resp.Body == nil {
		return errors.New("chat response has no body")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}

	var dec Decoder
	buf := make([]byte, readSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 && dispatch(dec.Feed(buf[:n]), h) {
			return nil
		}

		if errors.Is(readErr, io.EOF) {
			dispatch(dec.Flush(), h)
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("reading chat stream: %w", readErr)
		}
	}
}

// dispatch delivers events in order and reports whether the stream is done.
func dispatch(events []Event, h Handlers) bool {
	for _, ev := range events {
		switch ev.Type {
		case EventDelta:
			if h.OnDelta != nil {
				h.OnDelta(ev.Content)
			}
		case EventDone:
			if h.OnDone != nil {
				h.OnDone()
			}
			return true
		}
	}
	return false
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}

	return &StatusError{StatusCode: resp.StatusCode, Message: msg}
}
