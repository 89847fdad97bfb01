// Package llm turns a chat message plus recent history into generated text.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one prior conversational turn sent as context.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Responder is a stateless text generator.
type Responder interface {
	Generate(ctx context.Context, message string, history []Message) (string, error)
}

// Config controls responder construction.
type Config struct {
	Mode         string
	APIKey       string
	BaseURL      string
	HTTPURL      string
	Model        string
	MaxTokens    int
	Temperature  float64
	SystemPrompt string
	Timeout      time.Duration
	HistoryTurns int
}

// NewResponder picks an implementation from cfg.Mode. In auto mode an API key
// selects Anthropic, then an HTTP URL selects the generic endpoint, otherwise
// the mock is used.
func NewResponder(cfg Config) (Responder, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.APIKey) != "" {
			return NewAnthropicResponder(cfg), nil
		}
		if strings.TrimSpace(cfg.HTTPURL) != "" {
			return NewHTTPResponder(cfg.HTTPURL, cfg.Timeout), nil
		}
		return NewMockResponder(), nil
	case "anthropic":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, errors.New("anthropic API key is required for anthropic mode")
		}
		return NewAnthropicResponder(cfg), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("LLM HTTP url is required for http mode")
		}
		return NewHTTPResponder(cfg.HTTPURL, cfg.Timeout), nil
	case "mock":
		return NewMockResponder(), nil
	default:
		return nil, fmt.Errorf("unsupported llm mode %q", cfg.Mode)
	}
}

// ModeOf names the backend behind r for health output.
func ModeOf(r Responder) string {
	switch r.(type) {
	case *AnthropicResponder:
		return "anthropic"
	case *HTTPResponder:
		return "http"
	case *MockResponder:
		return "mock"
	default:
		return "custom"
	}
}

// NormalizeHistory maps legacy "bot" roles to assistant, drops empty or
// unknown entries, keeps at most maxTurns user/assistant pairs and makes sure
// the result starts with a user message.
func NormalizeHistory(history []Message, maxTurns int) []Message {
	out := make([]Message, 0, len(history))
	for _, m := range history {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		if role == "bot" {
			role = RoleAssistant
		}
		content := strings.TrimSpace(m.Content)
		if content == "" || (role != RoleUser && role != RoleAssistant) {
			continue
		}
		out = append(out, Message{Role: role, Content: content})
	}
	if maxTurns > 0 && len(out) > maxTurns*2 {
		out = out[len(out)-maxTurns*2:]
	}
	for len(out) > 0 && out[0].Role != RoleUser {
		out = out[1:]
	}
	return out
}
