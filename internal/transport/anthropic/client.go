// Package anthropic is an inference provider backed by the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/kailas-cloud/emsal/internal/domain"
	"github.com/kailas-cloud/emsal/internal/domain/decision"
	"github.com/kailas-cloud/emsal/internal/metrics"
	"github.com/kailas-cloud/emsal/internal/transport/inference"
)

// Defaults.
const (
	DefaultModel             = "claude-sonnet-4-5"
	DefaultMaxTokens         = 1024
	DefaultDocumentMaxTokens = 4096
	provider                 = "anthropic"
)

// Messager is the subset of the Messages API the client uses.
type Messager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Config holds the provider settings.
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	MaxTokens         int
	DocumentMaxTokens int
	Logger            *zap.Logger
}

// Client implements keyword extraction, relevance scoring and document drafting.
type Client struct {
	messages          Messager
	model             string
	maxTokens         int64
	documentMaxTokens int64
	logger            *zap.Logger
}

// NewClient creates a client over the official SDK. SDK-level retries are
// disabled; the pipeline applies its own retry policy.
func NewClient(cfg *Config) *Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	c := anthropic.NewClient(opts...)
	return NewWithMessager(&c.Messages, cfg)
}

// NewWithMessager creates a client over an arbitrary Messager.
func NewWithMessager(m Messager, cfg *Config) *Client {
	c := &Client{
		messages:          m,
		model:             cfg.Model,
		maxTokens:         int64(cfg.MaxTokens),
		documentMaxTokens: int64(cfg.DocumentMaxTokens),
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
	return c
}

// ExtractKeywords asks the model for search keywords.
func (c *Client) ExtractKeywords(ctx context.Context, text string) (domain.Extraction, error) {
	out, err := c.generate(ctx, inference.CapabilityKeywords, inference.KeywordsPrompt(text), c.maxTokens)
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
	out, err := c.generate(ctx, inference.CapabilityRelevance,
		inference.RelevancePrompt(caseText, decisionText), c.maxTokens)
	if err != nil {
		return decision.Relevance{}, err
	}
	return inference.ParseRelevance(out)
}

// GenerateDocument asks the model for a petition draft.
func (c *Client) GenerateDocument(ctx context.Context, caseText string, decisions []decision.Scored) (string, error) {
	return c.generate(ctx, inference.CapabilityDocument,
		inference.DocumentPrompt(caseText, decisions), c.documentMaxTokens)
}

// HealthCheck reports whether a client is configured. The Messages API has no free probe endpoint.
func (c *Client) HealthCheck(_ context.Context) error {
	if c.messages == nil {
		return errors.New("anthropic client not configured")
	}
	return nil
}

func (c *Client) generate(ctx context.Context, capability, prompt string, maxTokens int64) (string, error) {
	start := time.Now()
	resp, err := c.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   maxTokens,
		System:      []anthropic.TextBlockParam{{Text: inference.SystemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(0),
	})
	duration := time.Since(start)

	if err != nil {
		err = classify(err)
		c.count(capability, err)
		c.logger.Debug("Inference request failed",
			zap.String("provider", provider),
			zap.String("capability", capability),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return "", err
	}

	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		err := fmt.Errorf("empty message: %w", inference.ErrMalformedResponse)
		c.count(capability, err)
		return "", err
	}

	c.count(capability, nil)
	metrics.InferenceRequestDuration.WithLabelValues(provider, capability).Observe(duration.Seconds())
	metrics.InferenceTokensTotal.WithLabelValues(provider, capability, "prompt").Add(float64(resp.Usage.InputTokens))
	metrics.InferenceTokensTotal.WithLabelValues(provider, capability, "completion").Add(float64(resp.Usage.OutputTokens))
	return text, nil
}

func (c *Client) count(capability string, err error) {
	metrics.InferenceRequestsTotal.WithLabelValues(provider, capability, inference.StatusLabel(err)).Inc()
}

func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return inference.Classify(apiErr.StatusCode, fmt.Errorf("anthropic API error %d: %w", apiErr.StatusCode, err))
	}
	return inference.Classify(0, fmt.Errorf("anthropic request failed: %w", err))
}
