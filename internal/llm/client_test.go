package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/constellation/internal/config"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LLMConfig
		want any
	}{
		{"claude-cli", config.LLMConfig{Provider: "claude-cli"}, &ClaudeCLI{}},
		{"anthropic", config.LLMConfig{Provider: "anthropic", APIKey: "k"}, &Anthropic{}},
		{"openai", config.LLMConfig{Provider: "openai", APIKey: "k"}, &OpenAI{}},
		{"ollama", config.LLMConfig{Provider: "ollama"}, &Ollama{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(tt.cfg)
			require.NoError(t, err)
			assert.IsType(t, tt.want, c)
		})
	}
}

func TestNewClientErrors(t *testing.T) {
	for _, cfg := range []config.LLMConfig{
		{Provider: "anthropic"},
		{Provider: "openai"},
		{Provider: "gpt"},
	} {
		_, err := NewClient(cfg)
		assert.Error(t, err, cfg.Provider)
	}
}

func TestFilterEnv(t *testing.T) {
	env := []string{
		"HOME=/home/user",
		"CLAUDE_SESSION_ID=abc123",
		"PATH=/usr/bin",
	}
	assert.Equal(t, []string{"HOME=/home/user", "PATH=/usr/bin"}, filterEnv(env))
}

func TestAnthropicRequestShape(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"content":[{"type":"text","text":"{\"ok\":true}"}],"usage":{"input_tokens":3,"output_tokens":4}}`))
	}))
	defer srv.Close()

	a := NewAnthropic("k", "claude-test", 512)
	a.endpoint = srv.URL
	resp, err := a.Complete(context.Background(), UserRequest("be terse", "hello"))
	require.NoError(t, err)

	assert.Equal(t, `{"ok":true}`, resp.Content)
	assert.Equal(t, 7, resp.TokensUsed)
	assert.Equal(t, "claude-test", got["model"])
	assert.Equal(t, "be terse", got["system"])
	assert.EqualValues(t, 512, got["max_tokens"])
}

func TestAnthropicNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := NewAnthropic("k", "m", 16)
	a.endpoint = srv.URL
	_, err := a.Complete(context.Background(), UserRequest("", "hi"))
	assert.ErrorContains(t, err, "503")
}

func TestOllamaComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		w.Write([]byte(`{"response":"[1,2]","prompt_eval_count":2,"eval_count":1}`))
	}))
	defer srv.Close()

	resp, err := NewOllama(srv.URL, "llama3.2", 64).Complete(context.Background(), UserRequest("", "count"))
	require.NoError(t, err)
	assert.Equal(t, "[1,2]", resp.Content)
	assert.Equal(t, 3, resp.TokensUsed)
}

func TestOpenAICompatibleServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"hi there"}}],"usage":{"total_tokens":9}}`))
	}))
	defer srv.Close()

	resp, err := NewOpenAI("k", srv.URL+"/v1", "gpt-test", 64).Complete(context.Background(), UserRequest("sys", "hi"))
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Content)
	assert.Equal(t, 9, resp.TokensUsed)
}

type slowClient struct{}

func (slowClient) Complete(ctx context.Context, req Request) (*Response, error) {
	time.Sleep(2 * time.Second)
	return &Response{Content: "late"}, nil
}

func TestTryComplete(t *testing.T) {
	ctx := context.Background()

	out, err := TryComplete(ctx, Text(`{"a":1}`), UserRequest("", "x"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out)

	_, err = TryComplete(ctx, Text("   "), UserRequest("", "x"), time.Second)
	assert.ErrorIs(t, err, ErrNoResult)
	assert.Equal(t, "empty", Outcome(err))

	_, err = TryComplete(ctx, &MockClient{Err: errors.New("boom")}, UserRequest("", "x"), time.Second)
	assert.Error(t, err)
	assert.Equal(t, "error", Outcome(err))

	_, err = TryComplete(ctx, nil, UserRequest("", "x"), time.Second)
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestTryCompleteTimesOutUncooperativeClient(t *testing.T) {
	start := time.Now()
	_, err := TryComplete(context.Background(), slowClient{}, UserRequest("", "x"), 50*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "timeout", Outcome(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	mock := &MockClient{Err: errors.New("down")}
	b := NewBreaker(mock, time.Minute, nil)

	for i := 0; i < 3; i++ {
		_, err := b.Complete(context.Background(), UserRequest("", "x"))
		require.Error(t, err)
	}
	assert.Equal(t, "open", b.State())

	_, err := b.Complete(context.Background(), UserRequest("", "x"))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, mock.CallCount(), "open breaker does not reach the client")
	assert.Equal(t, "breaker_open", Outcome(err))
}

func TestExtractObject(t *testing.T) {
	var v struct {
		Entities []struct {
			Label string `json:"label"`
		} `json:"entities"`
	}
	reply := "Sure! Here you go:\n```json\n{\"entities\":[{\"label\":\"Ben\"}]}\n```\nAnything else?"
	require.NoError(t, ExtractObject(reply, &v))
	require.Len(t, v.Entities, 1)
	assert.Equal(t, "Ben", v.Entities[0].Label)

	assert.ErrorIs(t, ExtractObject("no json here", &v), ErrNoResult)
	assert.Error(t, ExtractObject("{broken", &v))
}

func TestExtractArray(t *testing.T) {
	var v []map[string]string
	require.NoError(t, ExtractArray(`prefix [{"label":"Go"}] suffix`, &v))
	assert.Equal(t, "Go", v[0]["label"])

	assert.ErrorIs(t, ExtractArray("]oops[", &v), ErrNoResult)
}

func TestPrompts(t *testing.T) {
	p := ExtractionPrompt(ExtractionInput{Titles: []string{"Inbox - Gmail"}, Clipboard: []string{"ssh host"}})
	assert.Contains(t, p, "WINDOW TITLES:\n- Inbox - Gmail")
	assert.Contains(t, p, "CLIPBOARD:")
	assert.NotContains(t, p, "SCREEN TEXT")
	assert.True(t, ExtractionInput{}.Empty())

	c := CleanupPrompt([]CleanupItem{{ID: "topic:x", Label: "X", Type: "topic", Weight: 4, Contexts: []string{"a", "b", "c", "d"}}})
	assert.Contains(t, c, "topic:x | X | topic | 4 | b, c, d")
}

func TestMockClientRecordsRequests(t *testing.T) {
	mock := Text("test response")
	resp, err := mock.Complete(context.Background(), UserRequest("sys", "test prompt"))
	require.NoError(t, err)
	assert.Equal(t, "test response", resp.Content)
	require.Equal(t, 1, mock.CallCount())
	assert.Equal(t, "test prompt", mock.Calls[0].Messages[0].Content)
}
