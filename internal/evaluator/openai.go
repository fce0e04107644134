package evaluator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// #region client-struct
// OpenAIClient queries an OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	client      *openai.Client
	temperature float32
	now         func() time.Time
}

// OpenAIConfig configures NewOpenAIClient. BaseURL is optional and must
// include the /v1 suffix when set.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Temperature float32
}

// #endregion client-struct

// #region constructor
// NewOpenAIClient builds a client. An empty API key is rejected.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai client: api key not set")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	log.Printf("[EVAL] openai client ready base_url=%s temperature=%.2f", oc.BaseURL, cfg.Temperature)
	return &OpenAIClient{
		client:      openai.NewClientWithConfig(oc),
		temperature: cfg.Temperature,
		now:         time.Now,
	}, nil
}

// #endregion constructor

// #region query
// Query sends the composed prompt for t and parses prob_true from the reply.
func (c *OpenAIClient) Query(ctx context.Context, claim string, t Template, model string) (Sample, error) {
	prompt := ComposePrompt(t, claim)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a careful, calibrated fact assessor."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return Sample{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Sample{}, fmt.Errorf("chat completion: no choices returned")
	}

	p, err := ParseProbability(resp.Choices[0].Message.Content)
	if err != nil {
		return Sample{}, err
	}

	modelID := resp.Model
	if modelID == "" {
		modelID = model
	}
	return Sample{
		TemplateID:  t.ID,
		Fingerprint: Fingerprint(prompt),
		ProbTrue:    p,
		ModelID:     modelID,
		Timestamp:   c.now().UTC(),
	}, nil
}

// #endregion query
