package domain

import (
	"encoding/json"
	"testing"
)

func TestMatchStepSubstring(t *testing.T) {
	cases := []struct {
		step string
		want int
	}{
		{"search", 0},
		{"Search Phase", 0},
		{"profiling_phase", 1},
		{"SELECTION", 2},
		{"running synthesis now", 3},
		{"editing-agent", 4},
		{"warmup", -1},
		{"", -1},
	}
	for _, c := range cases {
		event := ProgressEvent{Step: c.step}
		if got := event.MatchStep(); got != c.want {
			t.Fatalf("MatchStep(%q) = %d, want %d", c.step, got, c.want)
		}
	}
}

func TestMatchStepFirstMatchWins(t *testing.T) {
	// A step naming two phases resolves to the earlier pipeline position.
	event := ProgressEvent{Step: "search and selection"}
	if got := event.MatchStep(); got != StepIndexSearch {
		t.Fatalf("expected index %d, got %d", StepIndexSearch, got)
	}
}

func TestDisplayMessageFallback(t *testing.T) {
	event := ProgressEvent{Step: "profiling", Status: EventStatusInProgress}
	if got := event.DisplayMessage(); got != "Step: profiling, Status: in_progress" {
		t.Fatalf("unexpected fallback message: %q", got)
	}

	event.Message = "Profiling sources..."
	if got := event.DisplayMessage(); got != "Profiling sources..." {
		t.Fatalf("expected explicit message, got %q", got)
	}
}

func TestArticleCount(t *testing.T) {
	event := ProgressEvent{Data: json.RawMessage(`[{"t":"a"},{"t":"b"},{"t":"c"}]`)}
	if got := event.ArticleCount(); got != 3 {
		t.Fatalf("expected 3 articles, got %d", got)
	}

	event.Data = json.RawMessage(`{"not":"an array"}`)
	if got := event.ArticleCount(); got != 0 {
		t.Fatalf("expected 0 for object payload, got %d", got)
	}

	event.Data = nil
	if got := event.ArticleCount(); got != 0 {
		t.Fatalf("expected 0 for missing payload, got %d", got)
	}
}
