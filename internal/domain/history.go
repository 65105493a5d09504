package domain

import (
	"encoding/json"
	"sort"
	"time"
)

// FinalReportData is the sub-document produced by the five pipeline
// phases. The editing field holds the final report markdown.
type FinalReportData struct {
	Search    []json.RawMessage `json:"search"`
	Profiling []json.RawMessage `json:"profiling"`
	Selection []json.RawMessage `json:"selection"`
	Synthesis string            `json:"synthesis"`
	Editing   string            `json:"editing"`
}

// HistoryRecord is the persisted summary of one completed job. It is
// created exactly once, when the job reaches completed status, and its
// timestamp is never mutated afterwards.
type HistoryRecord struct {
	JobID           string          `json:"job_id"`
	Topic           string          `json:"topic"`
	RefinedTopic    string          `json:"refined_topic,omitempty"`
	UserPreferences Preferences     `json:"user_preferences"`
	Timestamp       time.Time       `json:"timestamp"`
	FinalReportData FinalReportData `json:"final_report_data"`
}

// NewHistoryRecord builds the record written when a job completes.
func NewHistoryRecord(job Job, report FinalReportData, now time.Time) HistoryRecord {
	return HistoryRecord{
		JobID:           job.ID,
		Topic:           job.Topic,
		RefinedTopic:    job.RefinedTopic,
		UserPreferences: job.Preferences,
		Timestamp:       now.UTC(),
		FinalReportData: report,
	}
}

// SortHistoryNewestFirst orders records by timestamp descending. The
// history stores do not guarantee order, so display paths sort here.
func SortHistoryNewestFirst(records []HistoryRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
}
