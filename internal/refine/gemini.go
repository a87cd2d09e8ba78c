// internal/refine/gemini.go
package refine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/mferraretto/chatshopee22/internal/decide"
	"github.com/mferraretto/chatshopee22/internal/types"
)

// Interface compliance check.
var (
	_ decide.Refiner    = (*Gemini)(nil)
	_ decide.Classifier = (*Gemini)(nil)
)

const (
	defaultModel         = "gemini-1.5-flash"
	defaultMaxTokens     = 256
	defaultHistoryTokens = 1024
)

// Options configures the Gemini-backed classify/refine service.
type Options struct {
	APIKey          string
	Model           string
	Temperature     float32
	MaxOutputTokens int32
	HistoryTokens   int
}

// Gemini rewrites drafted replies and classifies buyer intent through the
// Gemini API. Both calls are advisory: callers treat any error as "service
// unavailable" and continue with their own output.
type Gemini struct {
	client *genai.Client
	opts   Options
	budget *historyBudget
	log    *slog.Logger
}

func NewGemini(ctx context.Context, opts Options, log *slog.Logger) (*Gemini, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("gemini: missing API key")
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.MaxOutputTokens == 0 {
		opts.MaxOutputTokens = defaultMaxTokens
	}
	if opts.HistoryTokens == 0 {
		opts.HistoryTokens = defaultHistoryTokens
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	budget, err := newHistoryBudget(opts.HistoryTokens)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return &Gemini{client: client, opts: opts, budget: budget, log: log}, nil
}

// Refine rewrites the draft under the fixed policy. The caller sanitizes the
// result and falls back to the draft on error.
func (g *Gemini) Refine(ctx context.Context, draft string, recent []string, info types.OrderInfo) (string, error) {
	prompt := refinePrompt(draft, g.budget.block(recent), info)

	resp, err := g.generate(ctx, systemPrompt, prompt)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", fmt.Errorf("gemini: empty refinement")
	}
	g.log.Debug("reply refined", "draft_len", len(draft), "refined_len", len(text))
	return text, nil
}

// Classify maps recent buyer messages to an intent verdict.
func (g *Gemini) Classify(ctx context.Context, recent []string) (decide.Classification, error) {
	resp, err := g.generate(ctx, classifyPrompt, g.budget.block(recent))
	if err != nil {
		return decide.Classification{}, err
	}

	var out struct {
		Intent     string `json:"intent"`
		NeedsReply bool   `json:"needs_reply"`
	}
	if err := json.Unmarshal([]byte(stripFences(resp)), &out); err != nil {
		return decide.Classification{}, fmt.Errorf("gemini: parse classification: %w", err)
	}
	return decide.Classification{Intent: out.Intent, NeedsReply: out.NeedsReply}, nil
}

func (g *Gemini) generate(ctx context.Context, system, user string) (string, error) {
	temp := g.opts.Temperature
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: g.opts.MaxOutputTokens,
		Temperature:     &temp,
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.opts.Model, genai.Text(user), config)
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	return resp.Text(), nil
}

// stripFences trims a markdown code fence the model sometimes wraps JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
