package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCreateChatCompletionStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, text := range []string{"Hel", "lo"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":\"%s\"}}]}\n\n", text)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 5*time.Second)

	var fragments []string
	err := client.CreateChatCompletionStream(context.Background(), &ChatCompletionRequest{Model: "m"}, func(chunk *StreamChunk) error {
		for _, choice := range chunk.Choices {
			if choice.Delta != nil && choice.Delta.Content != "" {
				fragments = append(fragments, choice.Delta.Content)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if got := strings.Join(fragments, ""); got != "Hello" {
		t.Fatalf("expected \"Hello\", got %q", got)
	}
}

func TestParseStreamIgnoresCommentsAndBlankLines(t *testing.T) {
	input := ": keep-alive\n\ndata: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\ndata: [DONE]\n"

	var got string
	err := parseStream(strings.NewReader(input), func(chunk *StreamChunk) error {
		got += chunk.Choices[0].Delta.Content
		return nil
	})
	if err != nil {
		t.Fatalf("parseStream failed: %v", err)
	}
	if got != "x" {
		t.Fatalf("expected \"x\", got %q", got)
	}
}

func TestParseStreamCallbackError(t *testing.T) {
	input := "data: {\"choices\":[]}\n\n"
	wantErr := fmt.Errorf("stop")
	err := parseStream(strings.NewReader(input), func(chunk *StreamChunk) error {
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("expected callback error to propagate, got %v", err)
	}
}
