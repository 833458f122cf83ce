// Package signal implements the LLM signal stage: for every symbol an
// EntityEvent names, it asks an LLM (or falls back to a keyword
// heuristic) for a directional call and emits a SignalEvent.
package signal

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
)

// positiveKeywords and negativeKeywords drive the heuristic fallback used
// when no OpenAI-compatible API key is configured, or when the LLM call
// fails after retries.
var (
	positiveKeywords = []string{"approval", "surge", "adoption", "partnership", "listing", "inflow", "upgrade"}
	negativeKeywords = []string{"hack", "exploit", "lawsuit", "ban", "outflow", "delist", "investigation"}
)

// Inference is the provider's verdict for one symbol.
type Inference struct {
	Side       int     `json:"side"`
	Strength   float64 `json:"strength"`
	Confidence float64 `json:"confidence"`
	HorizonMin int     `json:"horizon_min"`
	Rationale  string  `json:"rationale"`
}

// Provider infers a directional signal for a symbol given its source
// article text. A nil client means every call falls through to the
// heuristic, matching the Python source's "LLMProvider with no API key
// configured" behavior.
type Provider struct {
	client *openai.Client
	model  string
}

// NewProvider builds a Provider. When apiKey is empty, the returned
// Provider always uses the keyword heuristic.
func NewProvider(apiKey, baseURL, model string) *Provider {
	if apiKey == "" {
		return &Provider{model: model}
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Provider{client: openai.NewClientWithConfig(cfg), model: model}
}

// Infer returns a directional inference for symbol given title/content.
// It makes up to 3 attempts at the LLM call (the first call plus 2
// retries) with exponential backoff before falling back to the
// heuristic, matching the Python source's tenacity retry policy.
func (p *Provider) Infer(ctx context.Context, title, content, symbol string) Inference {
	if p.client == nil {
		return p.heuristic(title, content)
	}

	var result Inference
	var lastErr error

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 4 * time.Second
	bo.MaxElapsedTime = 10 * time.Second

	err := backoff.Retry(func() error {
		res, err := p.callOnce(ctx, title, content, symbol)
		if err != nil {
			lastErr = err
			return err
		}
		result = res
		return nil
	}, backoff.WithMaxRetries(bo, 2))

	if err != nil {
		slog.Error("signal: llm inference failed, falling back to heuristic", "symbol", symbol, "error", lastErr)
		return p.heuristic(title, content)
	}
	return result
}

func (p *Provider) callOnce(ctx context.Context, title, content, symbol string) (Inference, error) {
	truncated := content
	if len(truncated) > 1500 {
		truncated = truncated[:1500]
	}
	prompt := "You are a crypto event analyst. Return strict JSON with keys: " +
		"side (-1,0,1), strength (0..1), confidence (0..1), horizon_min (int), rationale (short)." +
		"\nSymbol: " + symbol + "\nTitle: " + title + "\nContent: " + truncated

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: 0.1,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return Inference{}, err
	}
	if len(resp.Choices) == 0 {
		return Inference{}, errEmptyResponse
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	parsed, ok := parseJSONText(text)
	if !ok {
		return Inference{}, errNotJSON
	}
	return parsed, nil
}

// parseJSONText mirrors the Python provider's two-stage parse: first a
// strict json.loads, then extraction of the span from the first '{' to
// the last '}' in mixed or fenced content.
func parseJSONText(text string) (Inference, bool) {
	if text == "" {
		return Inference{}, false
	}
	var inf Inference
	if err := json.Unmarshal([]byte(text), &inf); err == nil {
		return inf, true
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return Inference{}, false
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &inf); err != nil {
		return Inference{}, false
	}
	return inf, true
}

func (p *Provider) heuristic(title, content string) Inference {
	text := strings.ToLower(title + " " + content)
	pos := countMatches(text, positiveKeywords)
	neg := countMatches(text, negativeKeywords)

	side := 0
	switch {
	case pos > neg:
		side = 1
	case neg > pos:
		side = -1
	}

	edge := pos - neg
	if edge < 0 {
		edge = -edge
	}

	strength := 0.4 + float64(edge)*0.15
	if strength > 1.0 {
		strength = 1.0
	}
	confidence := 0.55 + float64(edge)*0.1
	if confidence > 0.95 {
		confidence = 0.95
	}
	horizon := 60
	if edge >= 2 {
		horizon = 180
	}

	return Inference{
		Side:       side,
		Strength:   strength,
		Confidence: confidence,
		HorizonMin: horizon,
		Rationale:  "heuristic pos=" + strconv.Itoa(pos) + " neg=" + strconv.Itoa(neg),
	}
}

func countMatches(text string, keywords []string) int {
	n := 0
	for _, k := range keywords {
		if strings.Contains(text, k) {
			n++
		}
	}
	return n
}

var (
	errEmptyResponse = &providerError{"empty completion response"}
	errNotJSON       = &providerError{"model output is not valid json"}
)

type providerError struct{ msg string }

func (e *providerError) Error() string { return e.msg }
