package keywords

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/emsal/internal/domain"
)

func TestExtract_Success(t *testing.T) {
	ext := &mockExtractor{results: []domain.Extraction{{Keywords: []string{"sözleşme", "teslim gecikmesi", "tazminat"}}}}
	cache := newMapCache()
	svc := newTestService(ext, cache)

	out, err := svc.Extract(context.Background(), "Contract delivery delay damages")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Keywords) != 3 || out.CacheHit {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if cache.puts != 1 {
		t.Errorf("expected result cached once, got %d", cache.puts)
	}
}

func TestExtract_CacheHitSkipsInference(t *testing.T) {
	ext := &mockExtractor{results: []domain.Extraction{{Keywords: []string{"a"}}}}
	svc := newTestService(ext, newMapCache())
	ctx := context.Background()

	if _, err := svc.Extract(ctx, "kira alacağı"); err != nil {
		t.Fatal(err)
	}
	out, err := svc.Extract(ctx, "  KİRA   alacağı ")
	if err != nil {
		t.Fatal(err)
	}
	if !out.CacheHit {
		t.Error("expected canonical-equal text to hit cache")
	}
	if ext.calls.Load() != 1 {
		t.Errorf("expected 1 inference call, got %d", ext.calls.Load())
	}
}

func TestExtract_EmptyTextMakesNoCalls(t *testing.T) {
	ext := &mockExtractor{}
	svc := newTestService(ext, newMapCache())

	for _, text := range []string{"", "   \n\t"} {
		_, err := svc.Extract(context.Background(), text)
		if !errors.Is(err, domain.ErrKeywordExtractionFailed) {
			t.Errorf("expected ErrKeywordExtractionFailed, got %v", err)
		}
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	}
	if ext.calls.Load() != 0 {
		t.Errorf("expected zero inference calls, got %d", ext.calls.Load())
	}
}

func TestExtract_OversizedTextRejected(t *testing.T) {
	ext := &mockExtractor{}
	svc := newTestService(ext, newMapCache()).WithLimits(0, 20)

	_, err := svc.Extract(context.Background(), strings.Repeat("ş", 21))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if ext.calls.Load() != 0 {
		t.Errorf("expected zero inference calls, got %d", ext.calls.Load())
	}

	if _, err := svc.Extract(context.Background(), strings.Repeat("ş", 20)); errors.Is(err, domain.ErrInvalidInput) {
		t.Error("text at the limit counted in runes must be accepted")
	}
}

func TestExtract_RetriesOnceOnTransient(t *testing.T) {
	ext := &mockExtractor{
		errs:    []error{domain.ErrUnavailable},
		results: []domain.Extraction{{}, {Keywords: []string{"tazminat"}}},
	}
	svc := newTestService(ext, newMapCache())

	out, err := svc.Extract(context.Background(), "olay")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Keywords) != 1 || ext.calls.Load() != 2 {
		t.Errorf("expected success on retry, got %+v after %d calls", out, ext.calls.Load())
	}
}

func TestExtract_ExhaustedRetries(t *testing.T) {
	ext := &mockExtractor{errs: []error{domain.ErrTimeout, domain.ErrTimeout, domain.ErrTimeout}}
	cache := newMapCache()
	svc := newTestService(ext, cache)

	_, err := svc.Extract(context.Background(), "olay")
	if !errors.Is(err, domain.ErrKeywordExtractionFailed) {
		t.Fatalf("expected ErrKeywordExtractionFailed, got %v", err)
	}
	if !errors.Is(err, domain.ErrTimeout) {
		t.Errorf("expected cause preserved, got %v", err)
	}
	if ext.calls.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", ext.calls.Load())
	}
	if cache.puts != 0 {
		t.Error("failures must not be cached")
	}
}

func TestExtract_NonTransientNotRetried(t *testing.T) {
	ext := &mockExtractor{errs: []error{domain.ErrInvalidInput}}
	svc := newTestService(ext, newMapCache())

	_, err := svc.Extract(context.Background(), "olay")
	if !errors.Is(err, domain.ErrKeywordExtractionFailed) || !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("unexpected error: %v", err)
	}
	if ext.calls.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", ext.calls.Load())
	}
}

func TestExtract_EmptyExtractionFails(t *testing.T) {
	ext := &mockExtractor{results: []domain.Extraction{{Keywords: []string{" ", ""}}}}
	cache := newMapCache()
	svc := newTestService(ext, cache)

	_, err := svc.Extract(context.Background(), "olay")
	if !errors.Is(err, domain.ErrKeywordExtractionFailed) {
		t.Fatalf("expected ErrKeywordExtractionFailed, got %v", err)
	}
	if cache.puts != 0 {
		t.Error("empty extraction must not be cached")
	}
}

func TestExtract_DeadlineMapsToDeadlineExceeded(t *testing.T) {
	ext := &mockExtractor{delay: time.Second, results: []domain.Extraction{{Keywords: []string{"a"}}}}
	svc := newTestService(ext, newMapCache())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := svc.Extract(ctx, "olay")
	if !errors.Is(err, domain.ErrKeywordExtractionFailed) || !errors.Is(err, domain.ErrDeadlineExceeded) {
		t.Fatalf("expected extraction failure with deadline, got %v", err)
	}
}

func TestExtract_ConcurrentIdenticalRequestsCollapse(t *testing.T) {
	ext := &mockExtractor{delay: 50 * time.Millisecond, results: []domain.Extraction{{Keywords: []string{"a"}}}}
	svc := newTestService(ext, newMapCache())

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Extract(context.Background(), "aynı olay"); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ext.calls.Load() != 1 {
		t.Errorf("expected 1 inference call, got %d", ext.calls.Load())
	}
}

func TestExtract_CancelledCallerDoesNotFailCollapsedCaller(t *testing.T) {
	ext := &mockExtractor{delay: 100 * time.Millisecond, results: []domain.Extraction{{Keywords: []string{"teslim"}}}}
	svc := newTestService(ext, newMapCache())

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Extract(first, "geç teslim")
		firstErr <- err
	}()

	time.Sleep(10 * time.Millisecond)
	secondDone := make(chan struct{})
	var out Outcome
	var err error
	go func() {
		defer close(secondDone)
		out, err = svc.Extract(context.Background(), "geç teslim")
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	if e := <-firstErr; !errors.Is(e, domain.ErrDeadlineExceeded) {
		t.Errorf("cancelled caller: expected ErrDeadlineExceeded, got %v", e)
	}
	<-secondDone
	if err != nil {
		t.Fatalf("live caller failed: %v", err)
	}
	if len(out.Keywords) != 1 || out.Keywords[0] != "teslim" {
		t.Errorf("unexpected keywords %v", out.Keywords)
	}
	if ext.calls.Load() != 1 {
		t.Errorf("expected 1 inference call, got %d", ext.calls.Load())
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize([]string{" Tazminat ", "tazminat", "", "teslim  gecikmesi", "TAZMİNAT", "ayıplı mal"}, 2)
	want := []string{"Tazminat", "teslim gecikmesi"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
