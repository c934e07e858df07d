// Package ai is the LLM/agent collaborator: the runtime asks for generated
// text or an agent run and treats the answer as an ordinary value. Model
// reasoning, tool execution and retries all live behind this interface.
package ai

import (
	"context"
	"fmt"
	"sync"
)

// Config selects a model and its generation settings.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// AgentResult is the outcome of one agent run.
type AgentResult struct {
	Result     string
	Actions    []string
	Iterations int
}

// Client generates text and runs agent loops.
type Client interface {
	Generate(ctx context.Context, prompt string, cfg Config) (string, error)
	RunAgent(ctx context.Context, instruction string, tools []string, task string) (*AgentResult, error)
}

// Static is a canned-response Client for tests and offline development.
type Static struct {
	Response string
	Agent    *AgentResult
	Err      error

	mu      sync.Mutex
	prompts []string
}

// Generate implements Client.
func (s *Static) Generate(_ context.Context, prompt string, _ Config) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	return s.Response, nil
}

// RunAgent implements Client.
func (s *Static) RunAgent(_ context.Context, instruction string, _ []string, task string) (*AgentResult, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, fmt.Sprintf("%s: %s", instruction, task))
	s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Agent != nil {
		return s.Agent, nil
	}
	return &AgentResult{Result: s.Response, Iterations: 1}, nil
}

// Prompts returns every prompt seen, oldest first.
func (s *Static) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.prompts))
	copy(out, s.prompts)
	return out
}
