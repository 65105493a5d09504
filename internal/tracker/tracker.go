// Package tracker drives UI-facing progress state from a job's ordered
// event stream and resolves each run to a final report or an error.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/signalnews/pulse-gateway/internal/domain"
	"github.com/signalnews/pulse-gateway/internal/gateway"
)

type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateStreaming  State = "streaming"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

var (
	ErrCancelled = errors.New("generation cancelled")

	errStreamClosed = errors.New("connection to the backend closed unexpectedly")
)

// Snapshot is the externally visible progress state.
type Snapshot struct {
	State            State   `json:"state"`
	CurrentStepIndex int     `json:"current_step_index"`
	ProgressPercent  float64 `json:"progress_percent"`
	StatusMessage    string  `json:"status_message"`
	RefinedTopic     string  `json:"refined_topic,omitempty"`
	ErrorMessage     string  `json:"error_message,omitempty"`
}

// HistorySaver persists the record written when a job completes. Save
// failures must never block report delivery; the tracker only logs them.
type HistorySaver interface {
	Save(ctx context.Context, record domain.HistoryRecord) error
}

// Tracker consumes one job's progress events. Not reusable across jobs.
type Tracker struct {
	job    domain.Job
	saver  HistorySaver
	logger *log.Logger

	mu        sync.Mutex
	snapshot  Snapshot
	cancelled bool

	cancelCh  chan struct{}
	broadcast *Broadcaster
}

func New(job domain.Job, saver HistorySaver, logger *log.Logger) *Tracker {
	return &Tracker{
		job:       job,
		saver:     saver,
		logger:    logger,
		snapshot:  Snapshot{State: StateSubmitting},
		cancelCh:  make(chan struct{}),
		broadcast: NewBroadcaster(),
	}
}

// Snapshot returns a copy of the current progress state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot
}

// Subscribe attaches a progress listener. The current snapshot is
// delivered first so late subscribers do not start blank; once the run
// has ended they receive the terminal snapshot and an immediate close.
func (t *Tracker) Subscribe() (<-chan Snapshot, func()) {
	return t.broadcast.Subscribe(t.Snapshot)
}

// Cancel resets the tracker to idle-equivalent state and stops it from
// reacting to any further events. Advisory: tearing down the stream and
// the backend job is the caller's best-effort follow-up.
func (t *Tracker) Cancel() {
	t.mu.Lock()
	if t.cancelled || terminal(t.snapshot.State) {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	t.snapshot = Snapshot{State: StateCancelled}
	snapshot := t.snapshot
	t.mu.Unlock()

	close(t.cancelCh)
	t.broadcast.Publish(snapshot)
}

// Run consumes the stream until a terminal transition. A silent stream
// fails the job once idleTimeout elapses without an event.
func (t *Tracker) Run(
	ctx context.Context,
	stream *gateway.Stream,
	idleTimeout time.Duration,
) (domain.FinalReportData, error) {
	defer stream.Close()
	defer t.broadcast.Close()

	t.setStreaming()

	if idleTimeout <= 0 {
		idleTimeout = 5 * time.Minute
	}
	idle := time.NewTimer(idleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			t.fail("Generation aborted.")
			return domain.FinalReportData{}, ctx.Err()

		case <-t.cancelCh:
			return domain.FinalReportData{}, ErrCancelled

		case <-idle.C:
			t.fail(errStreamClosed.Error())
			return domain.FinalReportData{}, errStreamClosed

		case event, open := <-stream.Events:
			if !open {
				if err := stream.Err(); err != nil {
					t.fail(err.Error())
					return domain.FinalReportData{}, err
				}
				// Closure not preceded by a terminal event.
				t.fail(errStreamClosed.Error())
				return domain.FinalReportData{}, errStreamClosed
			}

			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(idleTimeout)

			report, done, err := t.apply(event)
			if err != nil {
				return domain.FinalReportData{}, err
			}
			if done {
				t.saveHistory(report)
				return report, nil
			}
		}
	}
}

// apply folds one event into the snapshot. Returns the final report when
// the event is the terminal editing completion.
func (t *Tracker) apply(event domain.ProgressEvent) (domain.FinalReportData, bool, error) {
	t.mu.Lock()
	if t.cancelled || terminal(t.snapshot.State) {
		t.mu.Unlock()
		return domain.FinalReportData{}, false, ErrCancelled
	}

	if event.Status == domain.EventStatusError {
		message := event.Message
		if message == "" {
			message = "An unknown error occurred during processing."
		}
		t.snapshot.State = StateFailed
		t.snapshot.ErrorMessage = message
		t.snapshot.StatusMessage = message
		snapshot := t.snapshot
		t.mu.Unlock()
		t.broadcast.Publish(snapshot)
		return domain.FinalReportData{}, false, errors.New(message)
	}

	t.snapshot.StatusMessage = event.DisplayMessage()

	matched := event.MatchStep()
	if matched >= 0 {
		// The step indicator moves on any matched event; the percent only
		// advances on completions, in discrete fifths.
		t.snapshot.CurrentStepIndex = matched

		if event.RefinedTopic != "" {
			t.job.RefinedTopic = event.RefinedTopic
			t.snapshot.RefinedTopic = event.RefinedTopic
		}

		if event.Status == domain.EventStatusCompleted {
			t.snapshot.ProgressPercent = float64(matched+1) / float64(len(domain.PipelineSteps)) * 100

			if matched == domain.StepIndexSearch {
				t.snapshot.StatusMessage = fmt.Sprintf("Found %d articles.", event.ArticleCount())
			}

			if matched == domain.StepIndexEditing {
				report, err := decodeFinalReport(event.Data)
				if err != nil {
					t.snapshot.State = StateFailed
					t.snapshot.ErrorMessage = err.Error()
					snapshot := t.snapshot
					t.mu.Unlock()
					t.broadcast.Publish(snapshot)
					return domain.FinalReportData{}, false, err
				}
				t.snapshot.State = StateCompleted
				snapshot := t.snapshot
				t.mu.Unlock()
				t.broadcast.Publish(snapshot)
				return report, true, nil
			}
		}
	}

	snapshot := t.snapshot
	t.mu.Unlock()
	t.broadcast.Publish(snapshot)
	return domain.FinalReportData{}, false, nil
}

func (t *Tracker) setStreaming() {
	t.mu.Lock()
	if !t.cancelled {
		t.snapshot.State = StateStreaming
		t.snapshot.StatusMessage = "Connected. Waiting for updates..."
	}
	snapshot := t.snapshot
	t.mu.Unlock()
	t.broadcast.Publish(snapshot)
}

func (t *Tracker) fail(message string) {
	t.mu.Lock()
	if t.cancelled || terminal(t.snapshot.State) {
		t.mu.Unlock()
		return
	}
	t.snapshot.State = StateFailed
	t.snapshot.ErrorMessage = message
	t.snapshot.StatusMessage = message
	snapshot := t.snapshot
	t.mu.Unlock()
	t.broadcast.Publish(snapshot)
}

// saveHistory writes the completed record. Fire and forget: the report
// was already delivered, so persistence failures are only logged.
func (t *Tracker) saveHistory(report domain.FinalReportData) {
	if t.saver == nil {
		return
	}

	t.mu.Lock()
	job := t.job
	t.mu.Unlock()

	record := domain.NewHistoryRecord(job, report, time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := t.saver.Save(ctx, record); err != nil && t.logger != nil {
		t.logger.Printf("history save failed job_id=%s err=%v", job.ID, err)
	}
}

type finalReportEnvelope struct {
	Topic        string                 `json:"topic"`
	AgentDetails domain.FinalReportData `json:"agent_details"`
}

func decodeFinalReport(data json.RawMessage) (domain.FinalReportData, error) {
	var envelope finalReportEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return domain.FinalReportData{}, fmt.Errorf("decode final report: %w", err)
	}
	return envelope.AgentDetails, nil
}

func terminal(state State) bool {
	switch state {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}
