package llm

import (
	"context"
	"fmt"
	"strings"
)

// MockResponder provides deterministic local replies when no model is configured.
type MockResponder struct{}

func NewMockResponder() *MockResponder { return &MockResponder{} }

func (a *MockResponder) Generate(ctx context.Context, message string, history []Message) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	base := strings.TrimSpace(message)
	if base == "" {
		base = "..."
	}

	var last string
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleAssistant && strings.TrimSpace(history[i].Content) != "" {
			last = strings.TrimSpace(history[i].Content)
			break
		}
	}
	if last == "" {
		return fmt.Sprintf("I heard you: %s", base), nil
	}
	return fmt.Sprintf("I heard you: %s\nEarlier I said: %s", base, last), nil
}
