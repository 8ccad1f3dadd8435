// Package retrieval is a client for the Yargıtay decision scraper API.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/emsal/internal/domain/decision"
	"github.com/kailas-cloud/emsal/internal/metrics"
	"github.com/kailas-cloud/emsal/internal/transport/inference"
)

// DefaultTimeout bounds one HTTP round trip when the caller sets no deadline.
const DefaultTimeout = 30 * time.Second

const maxErrorBody = 512

// Config holds the scraper API settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client searches decisions one keyword at a time.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a scraper API client.
func NewClient(cfg *Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    hc,
		logger:  cfg.Logger,
	}
}

type searchRequest struct {
	Keywords []string `json:"keywords"`
}

type resultItem struct {
	Daire       string `json:"daire"`
	EsasNo      string `json:"esas_no"`
	KararNo     string `json:"karar_no"`
	KararTarihi string `json:"karar_tarihi"`
	KararMetni  string `json:"karar_metni"`
	Keyword     string `json:"keyword"`
}

type keywordDetail struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Message string `json:"message"`
}

type searchResponse struct {
	Results       []resultItem             `json:"results"`
	Success       bool                     `json:"success"`
	Message       string                   `json:"message"`
	SearchDetails map[string]keywordDetail `json:"search_details"`
}

// Search returns the decisions the scraper finds for keyword, ranked in response order.
func (c *Client) Search(ctx context.Context, keyword string) ([]decision.Hit, error) {
	start := time.Now()
	hits, err := c.search(ctx, keyword)
	metrics.RetrievalRequestsTotal.WithLabelValues(inference.StatusLabel(err)).Inc()
	if err == nil {
		metrics.RetrievalRequestDuration.Observe(time.Since(start).Seconds())
	}
	return hits, err
}

func (c *Client) search(ctx context.Context, keyword string) ([]decision.Hit, error) {
	body, err := json.Marshal(searchRequest{Keywords: []string{keyword}})
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-KEY", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, inference.Classify(0, fmt.Errorf("search %q: %w", keyword, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, inference.Classify(resp.StatusCode,
			fmt.Errorf("search %q: status %d: %s", keyword, resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, inference.Classify(0, fmt.Errorf("decode search response: %w", err))
	}
	if d, ok := out.SearchDetails[keyword]; ok && !d.Success {
		return nil, inference.Classify(0, fmt.Errorf("search %q: %w", keyword, errors.New(d.Message)))
	}

	hits := make([]decision.Hit, 0, len(out.Results))
	for _, r := range out.Results {
		id := DecisionID(r.EsasNo, r.KararNo)
		if id == "" {
			c.logger.Debug("Skipping decision without case numbers", zap.String("keyword", keyword))
			continue
		}
		hits = append(hits, decision.Hit{
			ID:      id,
			Title:   title(r),
			Court:   strings.TrimSpace(r.Daire),
			Date:    strings.TrimSpace(r.KararTarihi),
			Content: r.KararMetni,
			Rank:    len(hits) + 1,
		})
	}
	return hits, nil
}

// HealthCheck probes the scraper's OpenAPI document, which needs no API key.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/openapi.json", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("retrieval unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 500 {
		return fmt.Errorf("retrieval unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// DecisionID builds the stable id "esas_no-karar_no". Empty when both are missing.
func DecisionID(esasNo, kararNo string) string {
	esasNo, kararNo = strings.TrimSpace(esasNo), strings.TrimSpace(kararNo)
	if esasNo == "" && kararNo == "" {
		return ""
	}
	return esasNo + "-" + kararNo
}

func title(r resultItem) string {
	parts := make([]string, 0, 3)
	if d := strings.TrimSpace(r.Daire); d != "" {
		parts = append(parts, d)
	}
	if e := strings.TrimSpace(r.EsasNo); e != "" {
		parts = append(parts, "E. "+e)
	}
	if k := strings.TrimSpace(r.KararNo); k != "" {
		parts = append(parts, "K. "+k)
	}
	return strings.Join(parts, ", ")
}
