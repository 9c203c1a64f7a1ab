package llm

import (
	"context"
	"sync"
)

// MockClient is a test double for the LLM Client interface.
// It can also be used for dry-run mode.
type MockClient struct {
	Response *Response
	Err      error
	// Reply, when set, computes the response from the request.
	Reply func(Request) (*Response, error)

	mu    sync.Mutex
	Calls []Request // records requests sent
}

// Complete records the call and returns the mock response.
func (m *MockClient) Complete(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	m.mu.Unlock()

	if m.Reply != nil {
		return m.Reply(req)
	}
	return m.Response, m.Err
}

// CallCount returns how many requests were made.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Text returns a MockClient that always replies with s.
func Text(s string) *MockClient {
	return &MockClient{Response: &Response{Content: s, Provider: "mock"}}
}
