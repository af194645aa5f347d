package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aman-churiwal/storyforge/pkg/chatstream"
)

func main() {
	url := flag.String("url", "http://localhost:8080/functions/v1/chat", "chat function URL")
	user := flag.String("user", "", "user id sent as x-user-id")
	model := flag.String("model", "", "model override")
	token := flag.String("token", "", "bearer token")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var conv chatstream.Conversation
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("storychat: type a message, empty line or Ctrl-D to quit")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			break
		}

		conv.AddUser(text)
		err := chatstream.StreamChat(ctx, chatstream.Options{
			URL:      *url,
			Messages: conv.History(),
			Model:    *model,
			UserID:   *user,
			Token:    *token,
		}, chatstream.Handlers{
			OnDelta: func(content string) {
				fmt.Print(content)
				conv.ApplyDelta(content)
			},
			OnDone: func() {
				fmt.Println()
				conv.Finish()
			},
			OnError: func(err error) {
				fmt.Fprintf(os.Stderr, "\nerror: %v\n", err)
			},
		})
		if errors.Is(err, context.Canceled) {
			fmt.Println()
			return
		}
		if err != nil {
			// Drop the unanswered turn so the next one is not sent twice.
			conv.Messages = dropTrailingUser(conv.Messages)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "read failed: %v\n", err)
		os.Exit(1)
	}
}

func dropTrailingUser(msgs []chatstream.Message) []chatstream.Message {
	if n := len(msgs); n > 0 && msgs[n-1].Role == "user" {
		return msgs[:n-1]
	}
	return msgs
}
