package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/signalnews/pulse-gateway/internal/gateway"
	"github.com/signalnews/pulse-gateway/internal/pulse"
)

const pulseCacheKey = "latest"

// PulseService serves the transformed dashboard snapshot, caching it for
// a short TTL in front of the upstream aggregate endpoint.
type PulseService struct {
	gateway *gateway.Client
	cache   *pulse.Cache
	logger  *log.Logger
}

func NewPulseService(gatewayClient *gateway.Client, cache *pulse.Cache, logger *log.Logger) *PulseService {
	return &PulseService{
		gateway: gatewayClient,
		cache:   cache,
		logger:  logger,
	}
}

func (s *PulseService) Latest(ctx context.Context) (pulse.Snapshot, error) {
	if snapshot, ok := s.cache.Get(pulseCacheKey); ok {
		return snapshot, nil
	}

	raw, err := s.gateway.FetchPulse(ctx)
	if err != nil {
		return pulse.Snapshot{}, fmt.Errorf("fetch tech pulse: %w", err)
	}

	snapshot := pulse.Transform(raw, time.Now())
	s.cache.Set(pulseCacheKey, snapshot)
	return snapshot, nil
}
