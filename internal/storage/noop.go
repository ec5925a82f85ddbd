package storage

import (
	"context"

	"github.com/dennisdiepolder/monti/ctmbridge/internal/types"
)

// Store persists agent state transitions
type Store interface {
	SaveStateChange(ctx context.Context, change types.StateChange) error
	// GetAgentHistory returns up to limit changes for one agent, newest first
	GetAgentHistory(ctx context.Context, agentID string, limit int) ([]types.StateChange, error)
	TruncateAll(ctx context.Context) error
	Close() error
}

// NoopStore is a no-op implementation when no journal is configured
type NoopStore struct{}

func NewNoopStore() *NoopStore { return &NoopStore{} }

func (s *NoopStore) SaveStateChange(context.Context, types.StateChange) error { return nil }

func (s *NoopStore) GetAgentHistory(context.Context, string, int) ([]types.StateChange, error) {
	return nil, nil
}

func (s *NoopStore) TruncateAll(context.Context) error { return nil }
func (s *NoopStore) Close() error                      { return nil }
