// Package extraction turns scraped page text into merge candidates via the
// LLM, with per-field confidence scores attached by the model itself.
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/edinburgh-finds/backend/internal/record"
	"github.com/edinburgh-finds/backend/internal/registry"
	"github.com/edinburgh-finds/backend/pkg/circuitbreaker"
	"github.com/edinburgh-finds/backend/pkg/logger"
	"github.com/edinburgh-finds/backend/pkg/retry"
)

type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func NewClient(apiKey, model string, temperature float32, maxTokens int) *Client {
	client := openai.NewClient(apiKey)

	cb := circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Extraction client initialized", zap.String("model", model))

	return &Client{
		client:      client,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: req.UserPrompt,
		},
	}

	var result *CompletionResponse

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       c.model,
					Messages:    messages,
					Temperature: temperature,
					MaxTokens:   maxTokens,
					ResponseFormat: &openai.ChatCompletionResponseFormat{
						Type: openai.ChatCompletionResponseFormatTypeJSONObject,
					},
				},
			)

			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}

			logger.Debug("LLM completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			result = &CompletionResponse{
				Content: resp.Choices[0].Message.Content,
				Usage: Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				},
			}

			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return result, nil
}

// ExtractFacts runs one extraction pass over the page text of a single source
// and returns the parsed candidate with its provenance attached. A malformed
// model response is the caller's cue to skip this source, not abort the run.
func (c *Client) ExtractFacts(ctx context.Context, entityName, entityType, sourceURL, pageText string) (*record.Candidate, error) {
	systemPrompt, err := buildSystemPrompt(entityName, entityType)
	if err != nil {
		return nil, err
	}

	userPrompt := fmt.Sprintf("SOURCE URL: %s\n\nPAGE TEXT:\n%s", sourceURL, pageText)

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to extract facts: %w", err)
	}

	cand, err := ParseResponse(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse extraction for %s: %w", sourceURL, err)
	}

	attachSource(cand, sourceURL)

	logger.Info("Facts extracted",
		zap.String("entity_name", entityName),
		zap.String("source_url", sourceURL),
		zap.Int("fields", len(cand.Fields)),
	)

	return cand, nil
}

// buildSystemPrompt lists the extractable fields for the entity type and the
// grading rules the model must score against.
func buildSystemPrompt(entityName, entityType string) (string, error) {
	fields, err := registry.ExtractableFields(entityType)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Extract structured data for: %s (%s)\n\n", entityName, entityType)

	b.WriteString(`INPUT STRUCTURE
The input is the text of one web page about this entity, preceded by its URL.

CONFIDENCE SCORING (required for every populated field)
- Stated on the entity's own website or an official directory entry: 0.9-1.0
- Stated on a reputable third-party page (news, council, federation): 0.7-0.8
- Inferred from indirect or dated wording: 0.4-0.6
- Guesswork: do not populate the field at all

RULES
1. Only extract explicitly stated facts - no hallucination
2. Missing data -> null (never "N/A", "Unknown", "TBC")
3. URLs (website_url, facebook_url, etc.) must start with http:// or https:// - if just a name or unavailable, set to null
4. opening_hours: extract the most commonly stated hours; note variations in other_attributes
5. categories: include the exact raw string for every sport, activity, facility or amenity mentioned
6. other_attributes: a list of {"key": ..., "value": ...} pairs for any factual detail not covered by a schema field
7. Email must be an actual address - if unavailable or descriptive text, set to null
8. street_address contains only building number, street name, area, town/city and postcode - never the country
9. Court and table counts are integers; omit a count the page does not state

FIELDS (populate only these)
`)
	for _, field := range fields {
		fmt.Fprintf(&b, "- %s\n", field)
	}

	b.WriteString(`
Return ONLY a JSON object with the populated fields plus a "field_confidence" object scoring every populated field in [0, 1].`)

	return b.String(), nil
}

// ParseResponse decodes a model response into a candidate, tolerating a
// markdown code fence around the JSON object.
func ParseResponse(content string) (*record.Candidate, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var raw map[string]any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}

	return record.ParseCandidate(raw)
}

// attachSource guarantees the candidate's provenance names the page it came
// from even when the model omitted source_info.
func attachSource(cand *record.Candidate, sourceURL string) {
	if cand.SourceInfo == nil {
		cand.SourceInfo = map[string]any{}
	}

	sources, _ := cand.SourceInfo["sources"].([]any)
	for _, existing := range sources {
		if existing == sourceURL {
			return
		}
	}
	cand.SourceInfo["sources"] = append(sources, sourceURL)
}
