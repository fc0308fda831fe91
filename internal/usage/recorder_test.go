package usage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nmhq/claude-bridge/internal/anthropic"
	"github.com/nmhq/claude-bridge/sdk/provider"
)

func TestRecorder_ObserveAndTotals(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.db")
	recorder, err := NewRecorder(path)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	recorder.ObserveGeneration(ctx, anthropic.GenerationRecord{
		RequestID:    "req-1",
		Model:        "claude-sonnet-4-20250514",
		Usage:        provider.Usage{PromptTokens: 10, CompletionTokens: 5},
		FinishReason: provider.FinishReasonStop,
	})
	recorder.ObserveGeneration(ctx, anthropic.GenerationRecord{
		RequestID: "req-2",
		Model:     "claude-sonnet-4-20250514",
		Usage:     provider.Usage{PromptTokens: 20, CompletionTokens: 15},
		Streamed:  true,
	})

	// Close drains the queue; reopen to query.
	if err := recorder.Close(); err != nil {
		t.Fatal(err)
	}
	recorder, err = NewRecorder(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = recorder.Close() }()

	totals, err := recorder.TotalsSince(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if totals.Generations != 2 {
		t.Errorf("generations: got %d", totals.Generations)
	}
	if totals.PromptTokens != 30 || totals.CompletionTokens != 20 {
		t.Errorf("totals: got %+v", totals)
	}
}

func TestRecorder_EstimatesCompletionFromText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.db")
	recorder, err := NewRecorder(path)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	recorder.ObserveGeneration(ctx, anthropic.GenerationRecord{
		RequestID: "req-1",
		Model:     "m",
		Usage:     provider.Usage{PromptTokens: 8},
		Streamed:  true,
		Estimated: true,
		Text:      "The quick brown fox jumps over the lazy dog.",
	})

	if err := recorder.Close(); err != nil {
		t.Fatal(err)
	}
	recorder, err = NewRecorder(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = recorder.Close() }()

	totals, err := recorder.TotalsSince(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if totals.CompletionTokens <= 0 {
		t.Fatalf("completion tokens should be estimated from text, got %d", totals.CompletionTokens)
	}
}

func TestRecorder_TotalsSinceCutoff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.db")
	recorder, err := NewRecorder(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = recorder.Close() }()

	totals, err := recorder.TotalsSince(context.Background(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if totals.Generations != 0 {
		t.Errorf("future cutoff should match nothing, got %d", totals.Generations)
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("empty text: got %d", got)
	}
	got := EstimateTokens("The quick brown fox jumps over the lazy dog.")
	if got <= 0 || got > 20 {
		t.Errorf("estimate out of plausible range: %d", got)
	}
}
