// Package supervisor keeps exactly one CTI session alive and fails over
// between the active and standby gateway sides when it breaks.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/monti/ctmbridge/internal/broker"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/cti"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/metrics"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/types"
)

// Session is the part of cti.Session the supervisor drives.
type Session interface {
	ID() uint64
	Connect(ctx context.Context) error
	Close() error
	State() cti.State
	Host() string
}

// Factory builds the session with the given id. The session reads the side
// to dial from the shared cti.Side at Connect time.
type Factory func(id uint64) Session

// Config controls retry pacing.
type Config struct {
	// SettleDelay is waited before the first two consecutive retries.
	SettleDelay time.Duration
	// MaxBackoff caps the doubling delay used after that.
	MaxBackoff time.Duration
}

// DefaultConfig returns a 500ms settle delay with a 30s backoff cap.
func DefaultConfig() Config {
	return Config{SettleDelay: 500 * time.Millisecond, MaxBackoff: 30 * time.Second}
}

// Status is a point-in-time view of the gateway connection.
type Status struct {
	Side      string `json:"side"`
	SessionID uint64 `json:"sessionId"`
	State     string `json:"state"`
	Host      string `json:"host"`
	Retries   int    `json:"retries"`
}

type Supervisor struct {
	side    *cti.Side
	factory Factory
	errors  *broker.Broker[types.ErrorEvent]
	cfg     Config
	metrics *metrics.Metrics
	logger  zerolog.Logger
	sub     *broker.Func[types.ErrorEvent]

	// trigger carries the id of a session that reported a gateway error
	trigger chan uint64

	mu      sync.Mutex
	current Session
	nextID  uint64
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(side *cti.Side, factory Factory, errors *broker.Broker[types.ErrorEvent], cfg Config, m *metrics.Metrics, logger zerolog.Logger) *Supervisor {
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultConfig().SettleDelay
	}
	if cfg.MaxBackoff < cfg.SettleDelay {
		cfg.MaxBackoff = cfg.SettleDelay
	}
	s := &Supervisor{
		side:    side,
		factory: factory,
		errors:  errors,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With().Str("component", "supervisor").Logger(),
		trigger: make(chan uint64, 1),
	}
	s.sub = broker.NewFunc(s.handleError)
	return s
}

// Start subscribes to gateway errors and connects the first session. A
// failed first attempt is retried like any later failure.
func (s *Supervisor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		cancel()
		return
	}
	s.cancel = cancel
	s.mu.Unlock()

	s.errors.Subscribe(s.sub)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()

	s.connectNext(ctx)
}

// Stop ends supervision and closes the current session.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}

	s.errors.Unsubscribe(s.sub)
	cancel()
	s.wg.Wait()

	s.mu.Lock()
	cur := s.current
	s.current = nil
	s.mu.Unlock()
	if cur != nil {
		_ = cur.Close()
	}
	s.logger.Info().Msg("supervisor stopped")
}

// Status reports the selected side and the current session.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()

	st := Status{Side: s.side.Current().String(), Retries: s.side.Retries(), State: "none"}
	if cur != nil {
		st.SessionID = cur.ID()
		st.State = cur.State().String()
		st.Host = cur.Host()
	}
	return st
}

// handleError runs on the error broker and only forwards gateway errors
// raised by the session currently in charge.
func (s *Supervisor) handleError(ev types.ErrorEvent) {
	if !ev.Kind.IsGateway() {
		return
	}

	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()
	if cur == nil || cur.ID() != ev.SessionID {
		s.logger.Debug().Uint64("session_id", ev.SessionID).Str("kind", ev.Kind.String()).Msg("ignoring error from stale session")
		return
	}

	select {
	case s.trigger <- ev.SessionID:
	default:
	}
}

func (s *Supervisor) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.trigger:
			s.failover(ctx, id)
		}
	}
}

func (s *Supervisor) failover(ctx context.Context, id uint64) {
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()
	if cur == nil || cur.ID() != id {
		return
	}

	_ = cur.Close()
	side := s.side.Toggle()
	retries := s.side.AddRetry()
	delay := s.backoff(retries)
	s.metrics.RecordFailover()

	s.logger.Warn().
		Uint64("session_id", id).
		Str("next_side", side.String()).
		Int("retries", retries).
		Dur("delay", delay).
		Msg("gateway session failed, switching side")

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	s.connectNext(ctx)
}

// backoff returns the delay before the given consecutive retry.
func (s *Supervisor) backoff(retries int) time.Duration {
	delay := s.cfg.SettleDelay
	for i := 2; i < retries; i++ {
		delay *= 2
		if delay >= s.cfg.MaxBackoff {
			return s.cfg.MaxBackoff
		}
	}
	return delay
}

func (s *Supervisor) connectNext(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	s.nextID++
	sess := s.factory(s.nextID)
	s.current = sess
	s.mu.Unlock()

	if err := sess.Connect(ctx); err != nil {
		// The session already published the failure; handleError picks it up.
		s.logger.Debug().Err(err).Uint64("session_id", sess.ID()).Msg("connect attempt failed")
		return
	}
	if sess.State() == cti.StateConnected {
		s.side.ResetRetries()
	}
}
