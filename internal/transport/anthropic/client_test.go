package anthropic

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/kailas-cloud/emsal/internal/domain"
	"github.com/kailas-cloud/emsal/internal/domain/decision"
	"github.com/kailas-cloud/emsal/internal/metrics"
	"github.com/kailas-cloud/emsal/internal/transport/inference"
)

func TestMain(m *testing.M) {
	metrics.RegisterPipelineMetrics()
	os.Exit(m.Run())
}

// mockMessager implements Messager for testing.
type mockMessager struct {
	response *anthropic.Message
	err      error
	params   anthropic.MessageNewParams
	calls    int
}

func (m *mockMessager) New(
	_ context.Context, p anthropic.MessageNewParams, _ ...option.RequestOption,
) (*anthropic.Message, error) {
	m.calls++
	m.params = p
	return m.response, m.err
}

func newMockMessage(text string) *anthropic.Message {
	return &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: text},
		},
	}
}

func newTestClient(m Messager) *Client {
	return NewWithMessager(m, &Config{Model: "test-model", Logger: zap.NewNop()})
}

func userPrompt(t *testing.T, p anthropic.MessageNewParams) string {
	t.Helper()
	if len(p.Messages) != 1 || len(p.Messages[0].Content) != 1 || p.Messages[0].Content[0].OfText == nil {
		t.Fatalf("expected one user text block, got %+v", p.Messages)
	}
	return p.Messages[0].Content[0].OfText.Text
}

func TestClient_ExtractKeywords(t *testing.T) {
	m := &mockMessager{response: newMockMessage("kira, tahliye, temerrüt")}
	c := newTestClient(m)

	ext, err := c.ExtractKeywords(context.Background(), "kiracı kirayı ödemedi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(ext.Keywords, "|") != "kira|tahliye|temerrüt" {
		t.Errorf("got %v", ext.Keywords)
	}
	if string(m.params.Model) != "test-model" {
		t.Errorf("model = %s", m.params.Model)
	}
	if m.params.MaxTokens != DefaultMaxTokens {
		t.Errorf("max tokens = %d", m.params.MaxTokens)
	}
	if len(m.params.System) != 1 || m.params.System[0].Text != inference.SystemPrompt {
		t.Error("expected system prompt")
	}
	if !strings.Contains(userPrompt(t, m.params), "kiracı kirayı ödemedi") {
		t.Error("case text missing from prompt")
	}
}

func TestClient_ScoreRelevance(t *testing.T) {
	m := &mockMessager{response: newMockMessage("PUAN: 64\nAÇIKLAMA: kısmen benzer\nBENZERLIK: kira")}
	r, err := newTestClient(m).ScoreRelevance(context.Background(), "olay", "karar")
	if err != nil {
		t.Fatal(err)
	}
	if r != (decision.Relevance{Score: 64, Explanation: "kısmen benzer", Similarity: "kira"}) {
		t.Errorf("got %+v", r)
	}
}

func TestClient_EmptyAnswer(t *testing.T) {
	m := &mockMessager{response: &anthropic.Message{}}
	_, err := newTestClient(m).GenerateDocument(context.Background(), "olay", nil)
	if !inference.IsMalformed(err) {
		t.Fatalf("expected malformed response, got %v", err)
	}
}

func TestClient_GenerateDocumentBudget(t *testing.T) {
	m := &mockMessager{response: newMockMessage("DİLEKÇE")}
	if _, err := newTestClient(m).GenerateDocument(context.Background(), "olay", nil); err != nil {
		t.Fatal(err)
	}
	if m.params.MaxTokens != DefaultDocumentMaxTokens {
		t.Errorf("expected document budget, got %d", m.params.MaxTokens)
	}
}

func TestClient_TransportErrorClassified(t *testing.T) {
	m := &mockMessager{err: context.DeadlineExceeded}
	_, err := newTestClient(m).ExtractKeywords(context.Background(), "olay")
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestClient_APIErrorClassified(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, domain.ErrUnavailable},
		{529, domain.ErrUnavailable},
		{http.StatusBadRequest, domain.ErrInvalidInput},
	}
	for _, tc := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/messages" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(tc.status)
			w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"nope"}}`))
		}))

		c := NewClient(&Config{APIKey: "test-key", BaseURL: server.URL, Logger: zap.NewNop()})
		_, err := c.ExtractKeywords(context.Background(), "olay")
		server.Close()

		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
	}
}
