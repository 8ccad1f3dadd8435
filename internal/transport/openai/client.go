package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/emsal/internal/domain"
	"github.com/kailas-cloud/emsal/internal/domain/decision"
	"github.com/kailas-cloud/emsal/internal/metrics"
	"github.com/kailas-cloud/emsal/internal/transport/inference"
)

// Defaults.
const (
	DefaultModel             = openai.GPT4oMini
	DefaultMaxTokens         = 1024
	DefaultDocumentMaxTokens = 4096
)

// Client is an inference provider using the OpenAI-compatible chat API.
type Client struct {
	client            *openai.Client
	model             string
	maxTokens         int
	documentMaxTokens int
	user              string
	provider          string
	logger            *zap.Logger
}

// Config holds the inference provider settings.
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	MaxTokens         int
	DocumentMaxTokens int
	User              string
	Provider          string
	Logger            *zap.Logger
}

// NewClient creates an OpenAI-compatible inference client.
func NewClient(cfg *Config) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	c := &Client{
		client:            openai.NewClientWithConfig(clientCfg),
		model:             cfg.Model,
		maxTokens:         cfg.MaxTokens,
		documentMaxTokens: cfg.DocumentMaxTokens,
		user:              cfg.User,
		provider:          cfg.Provider,
		logger:            cfg.Logger,
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.maxTokens <= 0 {
		c.maxTokens = DefaultMaxTokens
	}
	if c.documentMaxTokens <= 0 {
		c.documentMaxTokens = DefaultDocumentMaxTokens
	}
	if c.provider == "" {
		c.provider = "openai"
	}
	return c
}

// ExtractKeywords asks the model for search keywords.
func (c *Client) ExtractKeywords(ctx context.Context, text string) (domain.Extraction, error) {
	out, err := c.complete(ctx, inference.CapabilityKeywords, inference.KeywordsPrompt(text), c.maxTokens)
	if err != nil {
		return domain.Extraction{}, err
	}
	kws := inference.ParseKeywords(out)
	if len(kws) == 0 {
		return domain.Extraction{}, fmt.Errorf("no keywords in answer: %w", inference.ErrMalformedResponse)
	}
	return domain.Extraction{Keywords: kws, Confidence: 1}, nil
}

// ScoreRelevance asks the model how relevant decisionText is to caseText.
func (c *Client) ScoreRelevance(ctx context.Context, caseText, decisionText string) (decision.Relevance, error) {
	out, err := c.complete(ctx, inference.CapabilityRelevance,
		inference.RelevancePrompt(caseText, decisionText), c.maxTokens)
	if err != nil {
		return decision.Relevance{}, err
	}
	return inference.ParseRelevance(out)
}

// GenerateDocument asks the model for a petition draft.
func (c *Client) GenerateDocument(ctx context.Context, caseText string, decisions []decision.Scored) (string, error) {
	return c.complete(ctx, inference.CapabilityDocument,
		inference.DocumentPrompt(caseText, decisions), c.documentMaxTokens)
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// complete runs one chat completion and records transport-level metrics.
func (c *Client) complete(ctx context.Context, capability, prompt string, maxTokens int) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: inference.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: maxTokens,
		User:      c.user,
	}

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, req)

	duration := time.Since(start)

	if err != nil {
		err = parseAPIError(err)
		c.count(capability, err)
		c.logger.Debug("Inference request failed",
			zap.String("provider", c.provider),
			zap.String("capability", capability),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return "", err
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		err := fmt.Errorf("empty completion: %w", inference.ErrMalformedResponse)
		c.count(capability, err)
		return "", err
	}

	c.count(capability, nil)
	metrics.InferenceRequestDuration.WithLabelValues(c.provider, capability).Observe(duration.Seconds())
	if resp.Usage.TotalTokens > 0 {
		metrics.InferenceTokensTotal.WithLabelValues(c.provider, capability, "prompt").
			Add(float64(resp.Usage.PromptTokens))
		metrics.InferenceTokensTotal.WithLabelValues(c.provider, capability, "completion").
			Add(float64(resp.Usage.CompletionTokens))
	}

	return resp.Choices[0].Message.Content, nil
}

func (c *Client) count(capability string, err error) {
	metrics.InferenceRequestsTotal.WithLabelValues(c.provider, capability, inference.StatusLabel(err)).Inc()
}

// parseAPIError extracts a human-readable error from the API response and
// classifies it into a domain error.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return inference.Classify(reqErr.HTTPStatusCode,
			fmt.Errorf("inference API error %d: %s: %w", reqErr.HTTPStatusCode, detail, err))
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return inference.Classify(apiErr.HTTPStatusCode,
			fmt.Errorf("inference API error %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, err))
	}

	return inference.Classify(0, fmt.Errorf("inference request failed: %w", err))
}

// extractDetail extracts the "detail" field from a JSON error body (Nebius error format).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
