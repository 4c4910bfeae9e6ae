package cursor

import (
	"context"
	"errors"
	"testing"
	"time"
)

// mockRepo is an in-memory Repository for manager tests.
type mockRepo struct {
	states map[string]*State
	getErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{states: make(map[string]*State)}
}

func (m *mockRepo) Get(ctx context.Context, streamID string) (*State, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	state, ok := m.states[streamID]
	if !ok {
		return nil, ErrNotFound
	}
	return state, nil
}

func (m *mockRepo) Save(ctx context.Context, streamID string, state *State) error {
	m.states[streamID] = state
	return nil
}

func (m *mockRepo) Delete(ctx context.Context, streamID string) error {
	delete(m.states, streamID)
	return nil
}

func (m *mockRepo) List(ctx context.Context) (map[string]*State, error) {
	return m.states, nil
}

func testState(total uint64) *State {
	return &State{
		Primary:      Cursor{Kind: KindBlockNumber, BlockNumber: 100 + total},
		TotalFetched: total,
		Metadata:     Metadata{ProviderName: "alchemy", UpdatedAt: time.Now()},
	}
}

func TestManager_LoadMissingIsNotAnError(t *testing.T) {
	m := NewManager(newMockRepo())

	state, err := m.Load(context.Background(), "ethereum/normal_transactions/0xabc")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if state != nil {
		t.Errorf("Expected nil state for fresh stream, got %+v", state)
	}
}

func TestManager_CheckpointRoundTrip(t *testing.T) {
	repo := newMockRepo()
	m := NewManager(repo)
	ctx := context.Background()
	stream := "ethereum/normal_transactions/0xabc"

	if err := m.Checkpoint(ctx, stream, testState(5)); err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}

	state, err := m.Load(ctx, stream)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if state.TotalFetched != 5 {
		t.Errorf("Expected TotalFetched 5, got %d", state.TotalFetched)
	}
}

func TestManager_RejectsRegression(t *testing.T) {
	m := NewManager(newMockRepo())
	ctx := context.Background()
	stream := "ethereum/normal_transactions/0xabc"

	if err := m.Checkpoint(ctx, stream, testState(10)); err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}

	err := m.Checkpoint(ctx, stream, testState(7))
	if !errors.Is(err, ErrTotalFetchedDecreased) {
		t.Fatalf("Expected ErrTotalFetchedDecreased, got %v", err)
	}

	// The stored checkpoint is untouched.
	state, _ := m.Load(ctx, stream)
	if state.TotalFetched != 10 {
		t.Errorf("Expected stored checkpoint preserved, got %d", state.TotalFetched)
	}
}

func TestManager_EqualTotalAllowed(t *testing.T) {
	m := NewManager(newMockRepo())
	ctx := context.Background()
	stream := "ethereum/normal_transactions/0xabc"

	if err := m.Checkpoint(ctx, stream, testState(10)); err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}
	// Empty pages legitimately re-save the same total.
	if err := m.Checkpoint(ctx, stream, testState(10)); err != nil {
		t.Errorf("Expected equal total accepted, got %v", err)
	}
}

func TestManager_NilStateRejected(t *testing.T) {
	m := NewManager(newMockRepo())
	if err := m.Checkpoint(context.Background(), "s", nil); err == nil {
		t.Error("Expected nil checkpoint rejected")
	}
}

func TestManager_Reset(t *testing.T) {
	m := NewManager(newMockRepo())
	ctx := context.Background()
	stream := "ethereum/normal_transactions/0xabc"

	_ = m.Checkpoint(ctx, stream, testState(5))
	if err := m.Reset(ctx, stream); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	state, err := m.Load(ctx, stream)
	if err != nil || state != nil {
		t.Errorf("Expected stream reset to fresh, got %+v, %v", state, err)
	}
}

func TestManager_AdvanceCallback(t *testing.T) {
	m := NewManager(newMockRepo())
	ctx := context.Background()

	var gotStream string
	var gotTotal uint64
	m.SetAdvanceCallback(func(streamID string, state *State) {
		gotStream = streamID
		gotTotal = state.TotalFetched
	})

	if err := m.Checkpoint(ctx, "s1", testState(3)); err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}
	if gotStream != "s1" || gotTotal != 3 {
		t.Errorf("Expected callback with (s1, 3), got (%s, %d)", gotStream, gotTotal)
	}

	// Rejected writes must not fire the callback.
	gotStream = ""
	_ = m.Checkpoint(ctx, "s1", testState(1))
	if gotStream != "" {
		t.Error("Expected no callback on rejected checkpoint")
	}
}
