package storage

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/monti/ctmbridge/internal/broker"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/metrics"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/types"
)

const saveTimeout = 5 * time.Second

// Journal writes every state change published on its broker to a Store.
// Write failures are counted and logged; they never stop the bridge.
type Journal struct {
	store   Store
	broker  *broker.Broker[types.StateChange]
	metrics *metrics.Metrics
	logger  zerolog.Logger
	sub     *broker.Func[types.StateChange]
}

func NewJournal(store Store, b *broker.Broker[types.StateChange], m *metrics.Metrics, logger zerolog.Logger) *Journal {
	j := &Journal{
		store:   store,
		broker:  b,
		metrics: m,
		logger:  logger.With().Str("component", "journal").Logger(),
	}
	j.sub = broker.NewFunc(j.Handle)
	return j
}

func (j *Journal) Start() { j.broker.Subscribe(j.sub) }
func (j *Journal) Stop()  { j.broker.Unsubscribe(j.sub) }

// Handle persists one change.
func (j *Journal) Handle(c types.StateChange) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := j.store.SaveStateChange(ctx, c); err != nil {
		j.metrics.RecordJournalError()
		j.logger.Error().Err(err).
			Str("agent_id", c.AgentID).
			Uint16("agent_state", c.AgentState).
			Msg("failed to journal state change")
	}
}
