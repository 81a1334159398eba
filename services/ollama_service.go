package services

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/go-resty/resty/v2"
)

// OllamaGenerator streams replies from Ollama's native /api/chat endpoint,
// which answers with one JSON object per line.
type OllamaGenerator struct {
	client *resty.Client
	host   string
}

func NewOllamaGenerator(host string) *OllamaGenerator {
	return &OllamaGenerator{
		client: resty.New(),
		host:   strings.TrimRight(host, "/"),
	}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChunk struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error"`
}

func (g *OllamaGenerator) Generate(ctx context.Context, model, payload string) (FragmentStream, error) {
	requestBody := map[string]interface{}{
		"model": model,
		"messages": []ollamaMessage{
			{Role: "user", Content: payload},
		},
		"stream": true,
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(requestBody).
		SetDoNotParseResponse(true).
		Post(g.host + "/api/chat")
	if err != nil {
		return nil, fmt.Errorf("%w: ollama request: %v", ErrGeneratorFailed, err)
	}

	body := resp.RawBody()
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		defer body.Close()
		msg, _ := io.ReadAll(io.LimitReader(body, 400))
		return nil, fmt.Errorf("%w: ollama status=%d body=%s", ErrGeneratorFailed, resp.StatusCode(), strings.TrimSpace(string(msg)))
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &ollamaStream{body: body, scanner: scanner}, nil
}

type ollamaStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func (s *ollamaStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}

		var chunk ollamaChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			return "", fmt.Errorf("%w: decode ollama chunk: %v", ErrGeneratorFailed, err)
		}
		if chunk.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrGeneratorFailed, chunk.Error)
		}
		if chunk.Done {
			s.done = true
			if chunk.Message.Content == "" {
				return "", io.EOF
			}
		}
		if chunk.Message.Content != "" {
			return chunk.Message.Content, nil
		}
	}
	if err := s.scanner.Err(); err != nil {
		return "", fmt.Errorf("%w: read ollama stream: %v", ErrGeneratorFailed, err)
	}
	return "", fmt.Errorf("%w: ollama stream ended before done", ErrGeneratorFailed)
}

func (s *ollamaStream) Close() error {
	return s.body.Close()
}
