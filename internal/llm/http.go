package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPResponder forwards requests to a generic JSON chat endpoint. The
// endpoint may answer with a JSON object, plain text, SSE or NDJSON.
type HTTPResponder struct {
	url    string
	client *http.Client
}

func NewHTTPResponder(url string, timeout time.Duration) *HTTPResponder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPResponder{
		url:    strings.TrimSpace(url),
		client: &http.Client{Timeout: timeout},
	}
}

type httpRequest struct {
	Message string    `json:"message"`
	History []Message `json:"history,omitempty"`
}

func (a *HTTPResponder) Generate(ctx context.Context, message string, history []Message) (string, error) {
	payload, err := json.Marshal(httpRequest{Message: message, History: history})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", &UpstreamError{Provider: "http", StatusCode: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var text string
	ct := strings.ToLower(res.Header.Get("Content-Type"))
	if strings.Contains(ct, "text/event-stream") || strings.Contains(ct, "application/x-ndjson") {
		text, err = consumeStreaming(res.Body)
	} else {
		text, err = consumeBody(res.Body, ct)
	}
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// consumeBody reads a single-shot answer. A JSON content type must carry a
// decodable object; any other type is taken as the answer text.
func consumeBody(r io.Reader, contentType string) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if !strings.Contains(contentType, "json") {
		return string(body), nil
	}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return extractText(obj), nil
}

func consumeStreaming(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var out strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, "data:") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
		if line == "[DONE]" {
			break
		}

		delta := line
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err == nil {
			delta = extractText(obj)
		}
		out.WriteString(delta)
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("stream read: %w", err)
	}
	return out.String(), nil
}

func extractText(obj map[string]any) string {
	for _, k := range []string{"text", "response", "delta", "output", "message"} {
		if v, ok := obj[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}
