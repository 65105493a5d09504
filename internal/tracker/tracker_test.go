package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/signalnews/pulse-gateway/internal/domain"
	"github.com/signalnews/pulse-gateway/internal/gateway"
)

type captureSaver struct {
	mu      sync.Mutex
	records []domain.HistoryRecord
}

func (s *captureSaver) Save(_ context.Context, record domain.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *captureSaver) saved() []domain.HistoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.HistoryRecord(nil), s.records...)
}

func newTestLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// openSSEStream spins an upstream that emits the given data payloads as
// server-sent events, then returns the client-side stream.
func openSSEStream(t *testing.T, payloads ...string) *gateway.Stream {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, payload := range payloads {
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}))
	t.Cleanup(server.Close)

	client := gateway.NewClient(gateway.ClientConfig{BaseURL: server.URL, Timeout: 2 * time.Second})
	stream, err := client.OpenStream(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	return stream
}

func testJob() domain.Job {
	return domain.Job{
		ID:          "abc123",
		Topic:       "quantum computing",
		Preferences: domain.DefaultPreferences(),
		Status:      domain.JobStatusInProgress,
		CreatedAt:   time.Now(),
	}
}

const editingPayload = `{"step":"editing","status":"completed","message":"Done.","data":{"topic":"quantum computing","agent_details":{"search":[],"profiling":[],"selection":[],"synthesis":"draft","editing":"# Quantum Computing\n\nFinal report."}}}`

func TestRunCompletesThroughFullPipeline(t *testing.T) {
	stream := openSSEStream(t,
		`{"step":"search","status":"in_progress","message":"Searching the web..."}`,
		`{"step":"search","status":"completed","refined_topic":"Quantum Computing Advances","data":[{"u":"a"},{"u":"b"},{"u":"c"}]}`,
		`{"step":"profiling_phase","status":"completed","message":"Profiled sources."}`,
		`{"step":"selection","status":"completed","message":"Selected articles."}`,
		`{"step":"synthesis","status":"completed","message":"Draft ready."}`,
		editingPayload,
	)

	saver := &captureSaver{}
	tracker := New(testJob(), saver, newTestLogger())

	snapshots, unsubscribe := tracker.Subscribe()
	defer unsubscribe()

	report, err := tracker.Run(context.Background(), stream, time.Second)
	if err != nil {
		t.Fatalf("expected completion, got err=%v", err)
	}
	if report.Editing != "# Quantum Computing\n\nFinal report." {
		t.Fatalf("unexpected final markdown: %q", report.Editing)
	}

	var seen []Snapshot
	for snapshot := range snapshots {
		seen = append(seen, snapshot)
	}

	wantPercents := []float64{20, 40, 60, 80, 100}
	var gotPercents []float64
	for _, snapshot := range seen {
		if len(gotPercents) == 0 || snapshot.ProgressPercent != gotPercents[len(gotPercents)-1] {
			if snapshot.ProgressPercent > 0 {
				gotPercents = append(gotPercents, snapshot.ProgressPercent)
			}
		}
	}
	if len(gotPercents) != len(wantPercents) {
		t.Fatalf("expected percent ladder %v, got %v", wantPercents, gotPercents)
	}
	for i := range wantPercents {
		if gotPercents[i] != wantPercents[i] {
			t.Fatalf("percent step %d: expected %v, got %v", i, wantPercents[i], gotPercents[i])
		}
	}

	final := seen[len(seen)-1]
	if final.State != StateCompleted {
		t.Fatalf("expected completed state, got %s", final.State)
	}
	if final.RefinedTopic != "Quantum Computing Advances" {
		t.Fatalf("refined topic not adopted: %q", final.RefinedTopic)
	}

	foundArticles := false
	profilingIndexSeen := false
	for _, snapshot := range seen {
		if snapshot.StatusMessage == "Found 3 articles." {
			foundArticles = true
		}
		if snapshot.CurrentStepIndex == domain.StepIndexProfiling && snapshot.ProgressPercent == 40 {
			profilingIndexSeen = true
		}
	}
	if !foundArticles {
		t.Fatalf("search completion did not surface the article count")
	}
	if !profilingIndexSeen {
		t.Fatalf("profiling_phase did not map onto the second pipeline step")
	}
}

func TestRunSavesHistoryExactlyOnce(t *testing.T) {
	stream := openSSEStream(t, editingPayload)

	saver := &captureSaver{}
	tracker := New(testJob(), saver, newTestLogger())

	if _, err := tracker.Run(context.Background(), stream, time.Second); err != nil {
		t.Fatalf("expected completion, got err=%v", err)
	}

	records := saver.saved()
	if len(records) != 1 {
		t.Fatalf("expected exactly one history record, got %d", len(records))
	}
	record := records[0]
	if record.JobID != "abc123" {
		t.Fatalf("expected record for job abc123, got %q", record.JobID)
	}
	if record.Topic != "quantum computing" {
		t.Fatalf("unexpected topic %q", record.Topic)
	}
	if record.FinalReportData.Editing == "" {
		t.Fatalf("record is missing the final markdown")
	}
	if record.Timestamp.IsZero() {
		t.Fatalf("record timestamp not set")
	}
}

func TestRunErrorEvent(t *testing.T) {
	stream := openSSEStream(t,
		`{"step":"search","status":"in_progress"}`,
		`{"step":"synthesis","status":"error","message":"Model refused the request."}`,
	)

	saver := &captureSaver{}
	tracker := New(testJob(), saver, newTestLogger())

	_, err := tracker.Run(context.Background(), stream, time.Second)
	if err == nil || err.Error() != "Model refused the request." {
		t.Fatalf("expected upstream error message, got %v", err)
	}

	snapshot := tracker.Snapshot()
	if snapshot.State != StateFailed {
		t.Fatalf("expected failed state, got %s", snapshot.State)
	}
	if snapshot.ErrorMessage != "Model refused the request." {
		t.Fatalf("unexpected error message %q", snapshot.ErrorMessage)
	}
	if len(saver.saved()) != 0 {
		t.Fatalf("failed run must not write history")
	}
}

func TestRunErrorEventWithoutMessage(t *testing.T) {
	stream := openSSEStream(t, `{"step":"search","status":"error"}`)

	tracker := New(testJob(), nil, newTestLogger())
	_, err := tracker.Run(context.Background(), stream, time.Second)
	if err == nil || err.Error() != "An unknown error occurred during processing." {
		t.Fatalf("expected generic error message, got %v", err)
	}
}

func TestRunUnexpectedClosure(t *testing.T) {
	stream := openSSEStream(t, `{"step":"search","status":"in_progress"}`)

	saver := &captureSaver{}
	tracker := New(testJob(), saver, newTestLogger())

	_, err := tracker.Run(context.Background(), stream, time.Second)
	if err == nil || err.Error() != "connection to the backend closed unexpectedly" {
		t.Fatalf("expected closure failure, got %v", err)
	}
	if snapshot := tracker.Snapshot(); snapshot.State != StateFailed {
		t.Fatalf("expected failed state, got %s", snapshot.State)
	}
	if len(saver.saved()) != 0 {
		t.Fatalf("aborted run must not write history")
	}
}

func TestRunIdleTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	client := gateway.NewClient(gateway.ClientConfig{BaseURL: server.URL, Timeout: 2 * time.Second})
	stream, err := client.OpenStream(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}

	tracker := New(testJob(), nil, newTestLogger())
	_, err = tracker.Run(context.Background(), stream, 50*time.Millisecond)
	if err == nil || err.Error() != "connection to the backend closed unexpectedly" {
		t.Fatalf("expected idle timeout failure, got %v", err)
	}
}

func TestRunUnknownStepKeepsIndex(t *testing.T) {
	stream := openSSEStream(t,
		`{"step":"profiling","status":"completed"}`,
		`{"step":"warmup","status":"in_progress","message":"Preparing."}`,
		editingPayload,
	)

	tracker := New(testJob(), nil, newTestLogger())
	snapshots, unsubscribe := tracker.Subscribe()
	defer unsubscribe()

	if _, err := tracker.Run(context.Background(), stream, time.Second); err != nil {
		t.Fatalf("expected completion, got err=%v", err)
	}

	for snapshot := range snapshots {
		if snapshot.StatusMessage == "Preparing." && snapshot.CurrentStepIndex != domain.StepIndexProfiling {
			t.Fatalf("unknown step moved the indicator to %d", snapshot.CurrentStepIndex)
		}
	}
}

func TestCancelDiscardsLaterEvents(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"step\":\"search\",\"status\":\"in_progress\"}\n\n")
		flusher.Flush()
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", editingPayload)
		flusher.Flush()
	}))
	defer server.Close()

	client := gateway.NewClient(gateway.ClientConfig{BaseURL: server.URL, Timeout: 2 * time.Second})
	stream, err := client.OpenStream(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}

	saver := &captureSaver{}
	tracker := New(testJob(), saver, newTestLogger())

	done := make(chan error, 1)
	go func() {
		_, runErr := tracker.Run(context.Background(), stream, 5*time.Second)
		done <- runErr
	}()

	deadline := time.After(2 * time.Second)
	for tracker.Snapshot().State != StateStreaming {
		select {
		case <-deadline:
			t.Fatalf("tracker never reached streaming state")
		case <-time.After(5 * time.Millisecond):
		}
	}

	tracker.Cancel()
	close(release)

	if err := <-done; !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}

	snapshot := tracker.Snapshot()
	if snapshot.State != StateCancelled {
		t.Fatalf("expected cancelled state, got %s", snapshot.State)
	}
	if snapshot.ProgressPercent != 0 || snapshot.CurrentStepIndex != 0 {
		t.Fatalf("cancel must reset progress, got %+v", snapshot)
	}
	if len(saver.saved()) != 0 {
		t.Fatalf("cancelled run must not write history")
	}
}

func TestCancelAfterTerminalIsNoOp(t *testing.T) {
	stream := openSSEStream(t, editingPayload)

	tracker := New(testJob(), nil, newTestLogger())
	if _, err := tracker.Run(context.Background(), stream, time.Second); err != nil {
		t.Fatalf("expected completion, got err=%v", err)
	}

	tracker.Cancel()
	if snapshot := tracker.Snapshot(); snapshot.State != StateCompleted {
		t.Fatalf("cancel after completion must keep state, got %s", snapshot.State)
	}
}
