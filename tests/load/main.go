package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/signalnews/pulse-gateway/internal/gateway"
	"github.com/signalnews/pulse-gateway/internal/history"
	httpserver "github.com/signalnews/pulse-gateway/internal/http"
	"github.com/signalnews/pulse-gateway/internal/http/handlers"
	"github.com/signalnews/pulse-gateway/internal/pulse"
	"github.com/signalnews/pulse-gateway/internal/service"
	"github.com/signalnews/pulse-gateway/internal/session"
)

type scenarioResult struct {
	Name          string   `json:"name"`
	Total         int      `json:"total"`
	Success       int      `json:"success"`
	Errors        int      `json:"errors"`
	P50MS         float64  `json:"p50_ms"`
	P95MS         float64  `json:"p95_ms"`
	P99MS         float64  `json:"p99_ms"`
	MaxMS         float64  `json:"max_ms"`
	ThroughputRPS float64  `json:"throughput_rps"`
	ErrorSamples  []string `json:"error_samples,omitempty"`
}

type runResult struct {
	GeneratedAtUTC string           `json:"generated_at_utc"`
	Environment    string           `json:"environment"`
	Results        []scenarioResult `json:"results"`
	SLOEvaluation  map[string]bool  `json:"slo_evaluation"`
}

type benchmarkEnv struct {
	server  *httptest.Server
	backend *httptest.Server
}

func (e *benchmarkEnv) close() {
	e.server.Close()
	e.backend.Close()
}

func main() {
	submitTotal := flag.Int("submit-total", 200, "total report submissions")
	submitConcurrency := flag.Int("submit-concurrency", 24, "concurrency for report submissions")
	pulseTotal := flag.Int("pulse-total", 400, "total dashboard fetches")
	pulseConcurrency := flag.Int("pulse-concurrency", 32, "concurrency for dashboard fetches")
	historyTotal := flag.Int("history-total", 300, "total history list requests")
	historyConcurrency := flag.Int("history-concurrency", 24, "concurrency for history list requests")
	outputPath := flag.String("output", "", "optional path to persist benchmark results JSON")
	flag.Parse()

	env := startBenchmarkEnvironment()
	defer env.close()

	client := &http.Client{Timeout: 10 * time.Second}

	submitScenario := runScenario("reports_submit", *submitTotal, *submitConcurrency, func(index int) error {
		payload := map[string]any{
			"topic": fmt.Sprintf("benchmark topic %d", index),
			"preferences": map[string]any{
				"focus": "Just the Facts",
				"depth": 1 + (index % 3),
				"tone":  "Express Mode",
			},
		}
		headers := map[string]string{
			"X-Session-Id": fmt.Sprintf("guest-bench-%d", index%32),
		}
		return postJSON(client, env.server.URL+"/v1/reports", payload, headers, http.StatusAccepted)
	})

	pulseScenario := runScenario("pulse_latest", *pulseTotal, *pulseConcurrency, func(index int) error {
		return getJSON(client, env.server.URL+"/v1/pulse/latest", nil, http.StatusOK)
	})

	historyScenario := runScenario("history_list", *historyTotal, *historyConcurrency, func(index int) error {
		headers := map[string]string{
			"X-Session-Id": fmt.Sprintf("guest-bench-%d", index%32),
		}
		return getJSON(client, env.server.URL+"/v1/history", headers, http.StatusOK)
	})

	results := []scenarioResult{submitScenario, pulseScenario, historyScenario}

	slo := map[string]bool{
		"report_submit_p95_le_2000ms": submitScenario.P95MS <= 2000,
		"pulse_latest_p95_le_500ms":   pulseScenario.P95MS <= 500,
		"history_list_p95_le_500ms":   historyScenario.P95MS <= 500,
	}

	report := runResult{
		GeneratedAtUTC: time.Now().UTC().Format(time.RFC3339Nano),
		Environment:    "local-httptest",
		Results:        results,
		SLOEvaluation:  slo,
	}

	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("failed to marshal benchmark report: %v", err)
	}

	if *outputPath != "" {
		if err := os.WriteFile(*outputPath, encoded, 0o644); err != nil {
			log.Fatalf("failed to write output file: %v", err)
		}
	}

	_, _ = fmt.Fprintln(os.Stdout, string(encoded))
}

// startBenchmarkEnvironment boots the gateway against a scripted
// in-process backend so the benchmark measures this service, not the
// network or a real generation pipeline.
func startBenchmarkEnvironment() *benchmarkEnv {
	var jobCounter int64
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/process_news":
			jobID := atomic.AddInt64(&jobCounter, 1)
			w.WriteHeader(http.StatusAccepted)
			fmt.Fprintf(w, `{"message":"started","job_id":"bench-%d"}`, jobID)

		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/status/"):
			w.Header().Set("Content-Type", "text/event-stream")
			flusher := w.(http.Flusher)
			events := []string{
				`{"step":"search","status":"completed","data":[{"u":"a"}]}`,
				`{"step":"profiling","status":"completed"}`,
				`{"step":"selection","status":"completed"}`,
				`{"step":"synthesis","status":"completed"}`,
				`{"step":"editing","status":"completed","data":{"topic":"benchmark","agent_details":{"editing":"# Benchmark report"}}}`,
			}
			for _, event := range events {
				fmt.Fprintf(w, "data: %s\n\n", event)
				flusher.Flush()
			}

		case r.Method == http.MethodGet && r.URL.Path == "/api/tech-pulse/latest":
			_, _ = w.Write([]byte(`{
				"pulse_data": {
					"news_word_cloud": {
						"keywords": [{"text": "AI", "value": 50}],
						"hot_topics": [{"topic": "AI benchmark", "summary": "Synthetic load data."}]
					}
				},
				"created_at": "2025-08-04 07:29:31.201333+00"
			}`))

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	logger := log.New(io.Discard, "", 0)
	adapter := history.NewAdapter(history.NewMemoryStore(), history.NewMemoryStore(), logger)
	client := gateway.NewClient(gateway.ClientConfig{BaseURL: backend.URL, Timeout: 5 * time.Second})

	reportsService := service.NewReportsService(client, adapter, 5*time.Second, logger)
	pulseService := service.NewPulseService(client, pulse.NewCache(time.Minute), logger)
	notifier := session.NewNotifier()
	api := handlers.NewAPI(reportsService, pulseService, adapter, notifier, logger)

	router := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		Verifier:       session.NewJWTVerifier("benchmark-secret"),
		Notifier:       notifier,
		CORSOrigins:    []string{"*"},
		RateLimitRPS:   20000,
		RateLimitBurst: 20000,
	})

	return &benchmarkEnv{server: httptest.NewServer(router), backend: backend}
}

func runScenario(
	name string,
	total int,
	concurrency int,
	requestFn func(index int) error,
) scenarioResult {
	if total <= 0 {
		return scenarioResult{Name: name}
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	startedAt := time.Now()
	type sample struct {
		durationMS float64
		err        string
	}

	jobs := make(chan int, total)
	results := make(chan sample, total)
	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				requestStart := time.Now()
				err := requestFn(index)
				s := sample{
					durationMS: float64(time.Since(requestStart).Microseconds()) / 1000.0,
				}
				if err != nil {
					s.err = err.Error()
				}
				results <- s
			}
		}()
	}
	wg.Wait()
	close(results)

	durations := make([]float64, 0, total)
	errorSamples := make([]string, 0, 5)
	success := 0
	errorsCount := 0
	for item := range results {
		durations = append(durations, item.durationMS)
		if item.err == "" {
			success++
			continue
		}
		errorsCount++
		if len(errorSamples) < 5 {
			errorSamples = append(errorSamples, item.err)
		}
	}

	sort.Float64s(durations)
	elapsedSeconds := time.Since(startedAt).Seconds()
	throughput := 0.0
	if elapsedSeconds > 0 {
		throughput = float64(total) / elapsedSeconds
	}

	return scenarioResult{
		Name:          name,
		Total:         total,
		Success:       success,
		Errors:        errorsCount,
		P50MS:         percentile(durations, 0.50),
		P95MS:         percentile(durations, 0.95),
		P99MS:         percentile(durations, 0.99),
		MaxMS:         percentile(durations, 1.00),
		ThroughputRPS: round2(throughput),
		ErrorSamples:  errorSamples,
	}
}

func postJSON(
	client *http.Client,
	url string,
	payload any,
	headers map[string]string,
	expectedStatus int,
) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	request, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	for key, value := range headers {
		request.Header.Set(key, value)
	}

	response, err := client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != expectedStatus {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return fmt.Errorf("unexpected status %d (expected %d): %s", response.StatusCode, expectedStatus, string(body))
	}
	_, _ = io.Copy(io.Discard, response.Body)
	return nil
}

func getJSON(client *http.Client, url string, headers map[string]string, expectedStatus int) error {
	request, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	for key, value := range headers {
		request.Header.Set(key, value)
	}

	response, err := client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != expectedStatus {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return fmt.Errorf("unexpected status %d (expected %d): %s", response.StatusCode, expectedStatus, string(body))
	}
	_, _ = io.Copy(io.Discard, response.Body)
	return nil
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return round2(values[0])
	}
	if p >= 1 {
		return round2(values[len(values)-1])
	}
	rank := int(math.Ceil(float64(len(values))*p)) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(values) {
		rank = len(values) - 1
	}
	return round2(values[rank])
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
