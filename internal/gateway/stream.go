package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/signalnews/pulse-gateway/internal/domain"
)

// Stream is the per-job progress channel. Events arrive in the order the
// backend sent them; the channel closes when the backend closes the
// stream, the payload turns malformed, or the stream is closed locally.
// Err reports why the channel closed, nil meaning a clean closure.
type Stream struct {
	Events <-chan domain.ProgressEvent

	cancel func()

	mu  sync.Mutex
	err error
}

// Err is valid once Events is closed.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close tears the stream down. Safe to call more than once.
func (s *Stream) Close() {
	s.cancel()
}

func (s *Stream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// OpenStream subscribes to the job's status channel. The stream carries
// one JSON ProgressEvent per server-sent event.
func (c *Client) OpenStream(ctx context.Context, jobID string) (*Stream, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	request, err := http.NewRequestWithContext(
		streamCtx,
		http.MethodGet,
		c.baseURL+"/status/"+jobID,
		nil,
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	request.Header.Set("Accept", "text/event-stream")

	response, err := c.httpClient.Do(request)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open status stream: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 1<<20))
		response.Body.Close()
		cancel()
		return nil, fmt.Errorf("status stream status %d: %s", response.StatusCode, errorDetail(body))
	}

	events := make(chan domain.ProgressEvent)
	stream := &Stream{Events: events, cancel: cancel}

	go func() {
		defer close(events)
		defer response.Body.Close()

		scanner := bufio.NewScanner(response.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 8<<20)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, ":") {
				continue
			}
			data, ok := strings.CutPrefix(line, "data:")
			if !ok {
				continue
			}

			var event domain.ProgressEvent
			if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &event); err != nil {
				stream.setErr(fmt.Errorf("malformed progress event: %w", err))
				return
			}

			select {
			case events <- event:
			case <-streamCtx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && streamCtx.Err() == nil {
			stream.setErr(fmt.Errorf("read status stream: %w", err))
		}
	}()

	return stream, nil
}
