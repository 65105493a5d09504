package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

type EventStatus string

const (
	EventStatusInProgress EventStatus = "in_progress"
	EventStatusCompleted  EventStatus = "completed"
	EventStatusError      EventStatus = "error"
)

// PipelineSteps is the fixed ordered pipeline the upstream gateway walks
// through for every job. Progress percent is derived from positions in
// this list.
var PipelineSteps = []string{
	"search",
	"profiling",
	"selection",
	"synthesis",
	"editing",
}

const (
	StepIndexSearch = iota
	StepIndexProfiling
	StepIndexSelection
	StepIndexSynthesis
	StepIndexEditing
)

// ProgressEvent is one status message on a job's streaming channel.
// Step is free text from the upstream contract; MatchStep resolves it
// against PipelineSteps.
type ProgressEvent struct {
	Step         string          `json:"step"`
	Status       EventStatus     `json:"status"`
	Message      string          `json:"message,omitempty"`
	RefinedTopic string          `json:"refined_topic,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// MatchStep maps the event's free-text step onto PipelineSteps by
// case-insensitive substring containment. The first matching known step
// wins. Returns -1 when nothing matches.
func (e ProgressEvent) MatchStep() int {
	lowered := strings.ToLower(e.Step)
	for index, step := range PipelineSteps {
		if strings.Contains(lowered, step) {
			return index
		}
	}
	return -1
}

// DisplayMessage returns the event message, synthesizing a fallback when
// the upstream omitted one.
func (e ProgressEvent) DisplayMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("Step: %s, Status: %s", e.Step, e.Status)
}

// ArticleCount interprets the search phase payload, which carries the
// retrieved articles as a JSON array. Returns 0 when the payload has
// another shape.
func (e ProgressEvent) ArticleCount() int {
	var items []json.RawMessage
	if err := json.Unmarshal(e.Data, &items); err != nil {
		return 0
	}
	return len(items)
}
