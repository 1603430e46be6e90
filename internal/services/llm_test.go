package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"support-chat-backend/internal/config"
	"support-chat-backend/internal/models"
)

const okCompletion = `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"llama-3.1-8b-instant",
"choices":[{"index":0,"message":{"role":"assistant","content":"We offer free shipping over $50."},"finish_reason":"stop"}]}`

type capturedRequest struct {
	Model       string               `json:"model"`
	Messages    []models.ChatMessage `json:"messages"`
	MaxTokens   int                  `json:"max_tokens"`
	Temperature float64              `json:"temperature"`
}

func testLLMConfig(baseURL string) config.LLMConfig {
	return config.LLMConfig{
		Provider:           config.ProviderGroq,
		APIKey:             "test-key",
		Model:              "llama-3.1-8b-instant",
		BaseURL:            baseURL,
		MaxTokens:          500,
		Temperature:        0.7,
		MaxHistory:         10,
		MaxInputChars:      2000,
		Timeout:            2 * time.Second,
		ConcurrentRequests: 2,
	}
}

func newTestLLM(t *testing.T, handler http.HandlerFunc, mutate func(*config.LLMConfig)) (*LLMService, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := testLLMConfig(srv.URL)
	if mutate != nil {
		mutate(&cfg)
	}
	provider, err := NewProvider(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return NewLLMService(provider, cfg), &hits
}

func jsonReply(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

func TestGenerate_Success(t *testing.T) {
	var got capturedRequest
	var authHeader, path string
	llm, hits := newTestLLM(t, func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&got)
		jsonReply(http.StatusOK, okCompletion)(w, r)
	}, nil)

	history := []models.ChatMessage{
		{Role: models.RoleUser, Content: "Hi"},
		{Role: models.RoleAssistant, Content: "Hello! How can I help?"},
	}
	reply, err := llm.Generate(context.Background(), history, "Do you ship for free?")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply != "We offer free shipping over $50." {
		t.Fatalf("unexpected reply %q", reply)
	}
	if atomic.LoadInt32(hits) != 1 {
		t.Fatalf("expected one provider call, got %d", *hits)
	}
	if authHeader != "Bearer test-key" {
		t.Errorf("unexpected Authorization header %q", authHeader)
	}
	if path != "/chat/completions" {
		t.Errorf("unexpected path %q", path)
	}
	if got.Model != "llama-3.1-8b-instant" || got.MaxTokens != 500 {
		t.Errorf("unexpected model/max_tokens: %q %d", got.Model, got.MaxTokens)
	}
	if math.Abs(got.Temperature-0.7) > 1e-6 {
		t.Errorf("unexpected temperature %v", got.Temperature)
	}

	if len(got.Messages) != 4 {
		t.Fatalf("expected system + 2 history + user, got %d messages", len(got.Messages))
	}
	if got.Messages[0].Role != "system" || !strings.Contains(got.Messages[0].Content, "TechStyle Store") {
		t.Errorf("first message is not the system prompt: %+v", got.Messages[0])
	}
	if got.Messages[1].Content != "Hi" || got.Messages[2].Role != "assistant" {
		t.Errorf("history not forwarded in order: %+v", got.Messages[1:3])
	}
	if last := got.Messages[3]; last.Role != "user" || last.Content != "Do you ship for free?" {
		t.Errorf("unexpected final message %+v", last)
	}
}

func TestGenerate_BlankInputSkipsProvider(t *testing.T) {
	llm, hits := newTestLLM(t, jsonReply(http.StatusOK, okCompletion), nil)

	for _, input := range []string{"", "   ", "\n\t"} {
		reply, err := llm.Generate(context.Background(), nil, input)
		if err != nil {
			t.Fatalf("Generate(%q): %v", input, err)
		}
		if reply != "I didn't receive a message. Could you please try again?" {
			t.Fatalf("unexpected reply %q", reply)
		}
	}
	if n := atomic.LoadInt32(hits); n != 0 {
		t.Fatalf("expected no provider calls, got %d", n)
	}
}

func TestGenerate_TruncatesLongInput(t *testing.T) {
	var got capturedRequest
	llm, _ := newTestLLM(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		jsonReply(http.StatusOK, okCompletion)(w, r)
	}, nil)

	input := strings.Repeat("a", 2500)
	if _, err := llm.Generate(context.Background(), nil, input); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	last := got.Messages[len(got.Messages)-1].Content
	want := strings.Repeat("a", 2000) + "... [message truncated]"
	if last != want {
		t.Fatalf("expected truncated input of %d chars, got %d", len(want), len(last))
	}
}

func TestGenerate_FailureReplies(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name:    "rate limited",
			handler: jsonReply(http.StatusTooManyRequests, `{"error":{"message":"Rate limit reached","type":"requests"}}`),
			want:    "I'm receiving too many requests right now. Please wait a moment and try again.",
		},
		{
			name:    "bad key",
			handler: jsonReply(http.StatusUnauthorized, `{"error":{"message":"Invalid API Key","type":"invalid_request_error","code":"invalid_api_key"}}`),
			want:    "I'm having trouble connecting to the AI service. Please contact support.",
		},
		{
			name:    "forbidden",
			handler: jsonReply(http.StatusForbidden, `{"error":{"message":"Forbidden","type":"permission_error"}}`),
			want:    "I'm having trouble connecting to the AI service. Please contact support.",
		},
		{
			name: "server error with text body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "upstream exploded", http.StatusInternalServerError)
			},
			want: "I apologize, but I'm having trouble processing your request. Please try again later.",
		},
		{
			name:    "malformed json",
			handler: jsonReply(http.StatusOK, `{"choices": [`),
			want:    "I apologize, but I'm having trouble processing your request. Please try again later.",
		},
		{
			name:    "no choices",
			handler: jsonReply(http.StatusOK, `{"id":"x","choices":[]}`),
			want:    "I apologize, but I'm having trouble processing your request. Please try again later.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm, hits := newTestLLM(t, tt.handler, nil)
			reply, err := llm.Generate(context.Background(), nil, "Where is my order?")
			if err != nil {
				t.Fatalf("expected provider failure to be absorbed, got %v", err)
			}
			if reply != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, reply)
			}
			if atomic.LoadInt32(hits) != 1 {
				t.Fatalf("expected exactly one attempt, got %d", *hits)
			}
		})
	}
}

func TestGenerate_Timeout(t *testing.T) {
	llm, _ := newTestLLM(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, func(cfg *config.LLMConfig) {
		cfg.Timeout = 50 * time.Millisecond
	})

	reply, err := llm.Generate(context.Background(), nil, "Hello?")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply != "The AI service is taking too long to respond. Please try again." {
		t.Fatalf("unexpected reply %q", reply)
	}
}

func TestGenerate_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	cfg := testLLMConfig(baseURL)
	provider, err := NewProvider(cfg)
	if err != nil {
		t.Fatal(err)
	}
	llm := NewLLMService(provider, cfg)

	reply, err := llm.Generate(context.Background(), nil, "Hello?")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply != "I'm having trouble reaching the AI service. Please check your connection and try again." {
		t.Fatalf("unexpected reply %q", reply)
	}
}

func TestGenerate_GeminiUnsupported(t *testing.T) {
	cfg := testLLMConfig("")
	cfg.Provider = config.ProviderGemini
	provider, err := NewProvider(cfg)
	if err != nil {
		t.Fatal(err)
	}
	llm := NewLLMService(provider, cfg)

	reply, err := llm.Generate(context.Background(), nil, "Hello")
	var unsupported *UnsupportedProviderError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedProviderError, got %v", err)
	}
	if unsupported.Provider != "gemini" {
		t.Fatalf("unexpected provider %q", unsupported.Provider)
	}
	if reply != "I apologize, but I'm having trouble processing your request. Please try again later." {
		t.Fatalf("unexpected fallback %q", reply)
	}
}

func TestGenerate_FailureLogCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(prev) })

	llm := NewLLMService(&stubProvider{err: &TransportError{StatusCode: 500, Err: errors.New("upstream down")}}, testLLMConfig(""))
	ctx := context.WithValue(context.Background(), chimiddleware.RequestIDKey, "req-42")

	reply, err := llm.Generate(ctx, nil, "Where is my order?")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply != genericFailureReply {
		t.Fatalf("unexpected reply %q", reply)
	}
	if !strings.Contains(buf.String(), "req-42") {
		t.Fatalf("expected request id in failure log, got %q", buf.String())
	}
}

func TestNewProvider_Unknown(t *testing.T) {
	cfg := testLLMConfig("")
	cfg.Provider = "claude"
	if _, err := NewProvider(cfg); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestGenerate_BoundsConcurrentCalls(t *testing.T) {
	var inFlight, maxInFlight int32
	llm, hits := newTestLLM(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			seen := atomic.LoadInt32(&maxInFlight)
			if n <= seen || atomic.CompareAndSwapInt32(&maxInFlight, seen, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		jsonReply(http.StatusOK, okCompletion)(w, r)
	}, func(cfg *config.LLMConfig) {
		cfg.ConcurrentRequests = 1
	})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			llm.Generate(context.Background(), nil, "Hello")
		}()
	}
	wg.Wait()

	if atomic.LoadInt32(hits) != 4 {
		t.Fatalf("expected 4 calls, got %d", *hits)
	}
	if seen := atomic.LoadInt32(&maxInFlight); seen != 1 {
		t.Fatalf("expected at most 1 call in flight, saw %d", seen)
	}
}

func TestFailureReply(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"429", &TransportError{StatusCode: 429}, rateLimitedReply},
		{"401", &TransportError{StatusCode: 401}, authFailureReply},
		{"403", &TransportError{StatusCode: 403}, authFailureReply},
		{"503", &TransportError{StatusCode: 503}, genericFailureReply},
		{"timeout", &TransportError{Timeout: true}, timeoutReply},
		{"no response", &TransportError{Err: errors.New("connection refused")}, unreachableReply},
		{"parse", &ParseError{Err: errors.New("bad json")}, genericFailureReply},
		{"deadline", context.DeadlineExceeded, timeoutReply},
		{"other", errors.New("boom"), genericFailureReply},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := failureReply(tt.err); got != tt.want {
				t.Fatalf("failureReply(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}
