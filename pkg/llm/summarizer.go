// Package llm wraps the external LLM HTTPS API behind a structured
// summarisation contract: prompt in, schema-validated JSON out.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/engagic/engagic/pkg/config"
	"github.com/engagic/engagic/pkg/models"
	"github.com/engagic/engagic/pkg/topics"
)

// largeModelThreshold is the text length at which the summariser switches
// from the small/cheap model to the large one.
const largeModelThreshold = 200_000

// ProcessingError reports LLM output that failed schema validation after the
// repair retry. Not retried within the job; the affected item keeps a null
// summary.
type ProcessingError struct {
	Reason string
	Err    error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("llm processing failed: %s: %v", e.Reason, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// Request is one summarisation unit.
type Request struct {
	// Title gives the model document context (meeting or item title).
	Title string
	// Text is the extracted document text.
	Text string
}

// Result is a schema-validated summarisation.
type Result struct {
	SummaryMarkdown string
	Topics          []string
	Confidence      models.Confidence
	ThinkingTrace   string
	CostCents       int
}

// Summarizer calls the LLM over HTTPS. Safe for concurrent use; the
// underlying HTTP client is shared across all workers.
type Summarizer struct {
	client     *openai.Client
	modelSmall string
	modelLarge string
	timeout    time.Duration
	normalizer *topics.Normalizer
	log        *slog.Logger
}

// New creates a Summarizer from configuration.
func New(cfg *config.Config, normalizer *topics.Normalizer) *Summarizer {
	clientCfg := openai.DefaultConfig(cfg.LLMAPIKey)
	if cfg.LLMBaseURL != "" {
		clientCfg.BaseURL = cfg.LLMBaseURL
	}
	return &Summarizer{
		client:     openai.NewClientWithConfig(clientCfg),
		modelSmall: cfg.LLMModelSmall,
		modelLarge: cfg.LLMModelLarge,
		timeout:    cfg.LLMTimeout,
		normalizer: normalizer,
		log:        slog.With("component", "summarizer"),
	}
}

// wireResult is the schema the model must produce.
type wireResult struct {
	Summary    string   `json:"summary"`
	Topics     []string `json:"topics"`
	Confidence string   `json:"confidence"`
	Thinking   string   `json:"thinking,omitempty"`
}

// Summarize runs one request through the LLM with schema validation and a
// single repair retry.
func (s *Summarizer) Summarize(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, &ProcessingError{Reason: "empty input", Err: fmt.Errorf("nothing to summarise")}
	}

	model := s.pickModel(len(req.Text))
	prompt := buildPrompt(req, s.normalizer.Tags())

	raw, cost, err := s.complete(ctx, model, prompt)
	if err != nil {
		return nil, err
	}

	result, valErr := s.validate(raw)
	if valErr != nil {
		s.log.Warn("schema violation, issuing repair retry", "model", model, "error", valErr)
		repairPrompt := prompt + "\n\nYour previous response was invalid: " + valErr.Error() +
			"\nRespond again with ONLY the JSON object, exactly matching the schema."
		raw, cost2, err := s.complete(ctx, model, repairPrompt)
		if err != nil {
			return nil, err
		}
		cost += cost2
		result, valErr = s.validate(raw)
		if valErr != nil {
			return nil, &ProcessingError{Reason: "schema violation after repair retry", Err: valErr}
		}
	}

	result.CostCents = cost
	return result, nil
}

// SummarizeBatch issues several same-meeting items as one call. The batch
// must come back in input order and length; anything else fails the whole
// batch so the caller can fall back to per-item calls.
func (s *Summarizer) SummarizeBatch(ctx context.Context, reqs []Request) ([]Result, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	total := 0
	for _, r := range reqs {
		total += len(r.Text)
	}
	model := s.pickModel(total)
	prompt := buildBatchPrompt(reqs, s.normalizer.Tags())

	raw, cost, err := s.complete(ctx, model, prompt)
	if err != nil {
		return nil, err
	}

	var wire struct {
		Items []wireResult `json:"items"`
	}
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, &ProcessingError{Reason: "batch response is not valid JSON", Err: err}
	}
	if len(wire.Items) != len(reqs) {
		return nil, &ProcessingError{
			Reason: "batch length mismatch",
			Err:    fmt.Errorf("sent %d items, got %d back", len(reqs), len(wire.Items)),
		}
	}

	results := make([]Result, len(wire.Items))
	perItemCost := cost / len(reqs)
	for i, w := range wire.Items {
		r, err := s.validateWire(w)
		if err != nil {
			// partial success is all-failure for batches
			return nil, &ProcessingError{
				Reason: fmt.Sprintf("batch item %d failed validation", i),
				Err:    err,
			}
		}
		r.CostCents = perItemCost
		results[i] = *r
	}
	return results, nil
}

func (s *Summarizer) pickModel(textLen int) string {
	if textLen >= largeModelThreshold {
		return s.modelLarge
	}
	return s.modelSmall
}

// complete issues one chat completion in JSON-object response mode. No schema
// is sent with the request; the expected shape is described in the prompt and
// checked afterwards by validate/validateWire.
func (s *Summarizer) complete(ctx context.Context, model, prompt string) (string, int, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", 0, &ProcessingError{Reason: "llm call failed", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", 0, &ProcessingError{Reason: "llm returned no choices", Err: fmt.Errorf("empty response")}
	}
	return resp.Choices[0].Message.Content, estimateCostCents(resp.Usage), nil
}

// validate parses and checks one response against the schema.
func (s *Summarizer) validate(raw string) (*Result, error) {
	var w wireResult
	if err := json.Unmarshal([]byte(extractJSON(raw)), &w); err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w", err)
	}
	return s.validateWire(w)
}

func (s *Summarizer) validateWire(w wireResult) (*Result, error) {
	if strings.TrimSpace(w.Summary) == "" {
		return nil, fmt.Errorf("summary is empty")
	}
	conf := models.Confidence(w.Confidence)
	switch conf {
	case models.ConfidenceLow, models.ConfidenceMedium, models.ConfidenceHigh:
	default:
		return nil, fmt.Errorf("confidence %q is not one of low/medium/high", w.Confidence)
	}

	normalized := s.normalizer.Normalize(w.Topics)
	return &Result{
		SummaryMarkdown: strings.TrimSpace(w.Summary),
		Topics:          normalized,
		Confidence:      conf,
		ThinkingTrace:   w.Thinking,
	}, nil
}

// extractJSON tolerates models that wrap JSON in a markdown fence.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSuffix(raw, "```")
		return strings.TrimSpace(raw)
	}
	return raw
}

// estimateCostCents is a coarse cost model for cache bookkeeping, not
// billing.
func estimateCostCents(usage openai.Usage) int {
	// ~$2.50/M input, $10/M output, in hundredths of a dollar
	cents := (usage.PromptTokens*250 + usage.CompletionTokens*1000) / 1_000_000
	if cents < 1 {
		return 1
	}
	return cents
}
