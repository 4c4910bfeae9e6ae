package cursor

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNotFound is returned when no checkpoint exists for a stream.
	ErrNotFound = errors.New("cursor not found")
)

// Repository persists checkpoints keyed by stream id.
//
// Implementations live in internal/infra/storage (postgres, memory) and
// internal/infra/redis.
type Repository interface {
	// Get retrieves the checkpoint for a stream, ErrNotFound if absent.
	Get(ctx context.Context, streamID string) (*State, error)

	// Save upserts the checkpoint for a stream.
	Save(ctx context.Context, streamID string, state *State) error

	// Delete removes the checkpoint for a stream.
	Delete(ctx context.Context, streamID string) error

	// List returns all known checkpoints keyed by stream id.
	List(ctx context.Context) (map[string]*State, error)
}

// Manager guards checkpoint writes with the monotonic-progress invariant
// and notifies observers on every advance.
type Manager struct {
	repo Repository

	mu        sync.RWMutex
	onAdvance func(streamID string, state *State)
}

// NewManager creates a checkpoint manager over the given repository.
func NewManager(repo Repository) *Manager {
	return &Manager{repo: repo}
}

// Load retrieves the resume point for a stream. A missing checkpoint is a
// normal first-run condition and returns (nil, nil).
func (m *Manager) Load(ctx context.Context, streamID string) (*State, error) {
	state, err := m.repo.Get(ctx, streamID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cursor for %s: %w", streamID, err)
	}
	return state, nil
}

// Checkpoint persists the next resume point. The write is rejected when it
// would move TotalFetched backwards relative to the stored checkpoint.
func (m *Manager) Checkpoint(ctx context.Context, streamID string, next *State) error {
	if next == nil {
		return fmt.Errorf("checkpoint for %s: nil state", streamID)
	}

	stored, err := m.repo.Get(ctx, streamID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("checkpoint for %s: %w", streamID, err)
	}
	if stored != nil && next.TotalFetched < stored.TotalFetched {
		return fmt.Errorf("checkpoint for %s: %w (stored %d, next %d)",
			streamID, ErrTotalFetchedDecreased, stored.TotalFetched, next.TotalFetched)
	}

	if err := m.repo.Save(ctx, streamID, next); err != nil {
		return fmt.Errorf("checkpoint for %s: %w", streamID, err)
	}

	m.mu.RLock()
	cb := m.onAdvance
	m.mu.RUnlock()
	if cb != nil {
		cb(streamID, next)
	}
	return nil
}

// Reset drops the checkpoint so the next run starts from the beginning.
func (m *Manager) Reset(ctx context.Context, streamID string) error {
	if err := m.repo.Delete(ctx, streamID); err != nil {
		return fmt.Errorf("reset cursor for %s: %w", streamID, err)
	}
	return nil
}

// SetAdvanceCallback registers an observer invoked after every successful
// checkpoint write.
func (m *Manager) SetAdvanceCallback(fn func(streamID string, state *State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAdvance = fn
}
