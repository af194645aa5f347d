package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aman-churiwal/storyforge/internal/completion"
)

// A stand-in for the completion gateway on :3001. MOCK_GATEWAY_STATUS forces
// every request to fail with that status (e.g. 429 or 402).
func main() {
	forced, _ := strconv.Atoi(os.Getenv("MOCK_GATEWAY_STATUS"))

	http.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("Received request: %s %s", r.Method, r.URL.Path)
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if forced != 0 {
			http.Error(w, fmt.Sprintf(`{"error":"forced status %d"}`, forced), forced)
			return
		}

		var req completion.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
			return
		}

		switch {
		case req.Stream:
			streamReply(w, lastUser(req.Messages))
		case len(req.Modalities) > 0:
			writeJSON(w, completion.ChatResponse{Choices: []completion.Choice{{
				Message: completion.ResponseMessage{
					Role: "assistant",
					Images: []completion.Image{{
						Type:     "image_url",
						ImageURL: completion.ImageURL{URL: "data:image/png;base64,iVBORw0KGgo="},
					}},
				},
			}}})
		default:
			writeJSON(w, completion.ChatResponse{Choices: []completion.Choice{{
				Message: completion.ResponseMessage{
					Role:    "assistant",
					Content: "TITLE: The Lantern Fox\n\nOnce upon a time a small fox carried a lantern through the woods.",
				},
			}}})
		}
	})

	log.Println("Mock gateway starting on :3001")
	if err := http.ListenAndServe(":3001", nil); err != nil {
		log.Fatal(err)
	}
}

func lastUser(msgs []completion.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return msgs[i].Content
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode failed: %v", err)
	}
}

func streamReply(w http.ResponseWriter, prompt string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, _ := w.(http.Flusher)

	words := strings.Fields("You said: " + prompt)
	for i, word := range words {
		if i < len(words)-1 {
			word += " "
		}
		chunk, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{{"delta": map[string]string{"content": word}}},
		})
		fmt.Fprintf(w, "data: %s\n\n", chunk)
		if flusher != nil {
			flusher.Flush()
		}
		time.Sleep(50 * time.Millisecond)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}
