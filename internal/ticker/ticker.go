package ticker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/monti/ctmbridge/internal/cache"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/metrics"
)

// Queue is a broker whose backlog is sampled
type Queue interface {
	Name() string
	Len() int
}

// Sampler periodically copies directory and broker gauges into metrics
type Sampler struct {
	dir      *cache.Directory
	queues   []Queue
	metrics  *metrics.Metrics
	interval time.Duration
	logger   zerolog.Logger
}

// NewSampler creates a new Sampler
func NewSampler(dir *cache.Directory, queues []Queue, m *metrics.Metrics, interval time.Duration, logger zerolog.Logger) *Sampler {
	return &Sampler{
		dir:      dir,
		queues:   queues,
		metrics:  m,
		interval: interval,
		logger:   logger.With().Str("component", "sampler").Logger(),
	}
}

// Start samples once immediately and then on every interval until ctx is done
func (s *Sampler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("sampler started")
	s.sample()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sampler stopped")
			return

		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *Sampler) sample() {
	byState := s.dir.CountByState()
	s.metrics.UpdateAgentStats(byState)
	for _, q := range s.queues {
		s.metrics.SetQueueDepth(q.Name(), q.Len())
	}
	s.logger.Debug().
		Int("agents", s.dir.Count()).
		Int64("clients", s.metrics.GetActiveClients()).
		Msg("sampled gauges")
}
