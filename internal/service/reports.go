package service

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
	"github.com/signalnews/pulse-gateway/internal/history"
	"github.com/signalnews/pulse-gateway/internal/session"
	"github.com/signalnews/pulse-gateway/internal/tracker"
)

var ErrJobNotFound = errors.New("job not found")

// ReportsService orchestrates one generation flow: validate, initiate
// upstream, track the progress stream to a terminal state, and persist
// the completed record through the history adapter.
type ReportsService struct {
	gateway     *gateway.Client
	history     *history.Adapter
	logger      *log.Logger
	idleTimeout time.Duration

	mu     sync.Mutex
	active map[string]*tracker.Tracker
}

func NewReportsService(
	gatewayClient *gateway.Client,
	historyAdapter *history.Adapter,
	idleTimeout time.Duration,
	logger *log.Logger,
) *ReportsService {
	return &ReportsService{
		gateway:     gatewayClient,
		history:     historyAdapter,
		logger:      logger,
		idleTimeout: idleTimeout,
		active:      make(map[string]*tracker.Tracker),
	}
}

// Generate validates the request, initiates the upstream job and starts
// tracking its progress stream. Validation failures return before any
// network activity. The returned job carries the upstream-assigned id.
func (s *ReportsService) Generate(
	ctx context.Context,
	topic string,
	preferences domain.Preferences,
) (domain.Job, error) {
	if err := domain.ValidateTopic(topic); err != nil {
		return domain.Job{}, err
	}
	if err := preferences.Validate(); err != nil {
		return domain.Job{}, err
	}

	jobID, err := s.gateway.StartGeneration(ctx, topic, preferences)
	if err != nil {
		return domain.Job{}, fmt.Errorf("initiate generation: %w", err)
	}

	job := domain.Job{
		ID:          jobID,
		Topic:       topic,
		Preferences: preferences,
		Status:      domain.JobStatusInProgress,
		CreatedAt:   time.Now().UTC(),
	}

	// The save decision is owned by the session that submitted the job,
	// not by whatever request happens to be in flight when it completes.
	saver := boundSaver{adapter: s.history, identity: session.FromContext(ctx)}
	jobTracker := tracker.New(job, saver, s.logger)

	// The stream outlives the submitting request.
	streamCtx, stopStream := context.WithCancel(context.Background())
	stream, err := s.gateway.OpenStream(streamCtx, jobID)
	if err != nil {
		stopStream()
		return domain.Job{}, fmt.Errorf("open progress stream: %w", err)
	}

	s.mu.Lock()
	s.active[jobID] = jobTracker
	s.mu.Unlock()

	go func() {
		defer stopStream()
		if _, runErr := jobTracker.Run(streamCtx, stream, s.idleTimeout); runErr != nil {
			if !errors.Is(runErr, tracker.ErrCancelled) && s.logger != nil {
				s.logger.Printf("generation failed job_id=%s err=%v", jobID, runErr)
			}
		} else if s.logger != nil {
			s.logger.Printf("generation completed job_id=%s", jobID)
		}

		// Keep the terminal snapshot around briefly so late SSE
		// subscribers still observe the outcome.
		time.AfterFunc(time.Minute, func() {
			s.mu.Lock()
			delete(s.active, jobID)
			s.mu.Unlock()
		})
	}()

	return job, nil
}

// Tracker returns the live tracker for an in-flight or recently
// finished job.
func (s *ReportsService) Tracker(jobID string) (*tracker.Tracker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobTracker, ok := s.active[jobID]
	return jobTracker, ok
}

// Cancel resets the client-side tracker immediately and relays a best
// effort cancellation upstream so backend spend stops too.
func (s *ReportsService) Cancel(ctx context.Context, jobID string) error {
	jobTracker, ok := s.Tracker(jobID)
	if !ok {
		return ErrJobNotFound
	}
	jobTracker.Cancel()

	if err := s.gateway.CancelGeneration(ctx, jobID); err != nil && s.logger != nil {
		s.logger.Printf("upstream cancel failed job_id=%s err=%v", jobID, err)
	}
	return nil
}

// FetchReport relays a report fetch for direct-link access, forwarding
// the session's bearer credential.
func (s *ReportsService) FetchReport(ctx context.Context, jobID string) (json.RawMessage, error) {
	identity := session.FromContext(ctx)
	return s.gateway.FetchReport(ctx, jobID, identity.BearerToken)
}

// boundSaver pins the submitting session's identity to the deferred
// history save.
type boundSaver struct {
	adapter  *history.Adapter
	identity session.Identity
}

func (b boundSaver) Save(ctx context.Context, record domain.HistoryRecord) error {
	return b.adapter.Save(session.WithIdentity(ctx, b.identity), record)
}
