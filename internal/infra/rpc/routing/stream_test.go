package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/mkral/importer/internal/core/cursor"
	"github.com/mkral/importer/internal/core/domain"
	"github.com/mkral/importer/internal/infra/rpc/provider"
)

// pagedProvider serves a fixed token-paginated dataset.
func pagedProvider(name string) *fakeProvider {
	p := newFakeProvider(name)
	pages := map[string]cursor.Batch{
		"": {
			Items:     []domain.Transaction{tx("tx1", 100, 1000), tx("tx2", 101, 1010)},
			PageToken: "t1",
		},
		"t1": {
			Items:     []domain.Transaction{tx("tx3", 102, 1020), tx("tx4", 103, 1030)},
			PageToken: "t2",
		},
		"t2": {
			Items:      []domain.Transaction{tx("tx5", 104, 1040)},
			IsComplete: true,
		},
	}
	p.execute = func(ctx context.Context, req provider.Request) (cursor.Batch, error) {
		batch, ok := pages[req.Resume.PageToken]
		if !ok {
			return cursor.Batch{}, errors.New("unknown page token")
		}
		return batch, nil
	}
	return p
}

func collectIDs(batches [][]domain.Transaction) []string {
	var ids []string
	for _, items := range batches {
		for _, item := range items {
			ids = append(ids, item.ExternalID)
		}
	}
	return ids
}

func TestRunStream_DrivesAllPages(t *testing.T) {
	e, _, _ := newTestExecutor()
	p := pagedProvider("alchemy")

	var yielded [][]domain.Transaction
	state, err := e.RunStream(context.Background(), []provider.Provider{p},
		StreamRequest{Kind: domain.OpNormalTransactions, Address: "0xabc"},
		Options{},
		func(batch cursor.Batch, state *cursor.State) error {
			yielded = append(yielded, batch.Items)
			return nil
		})
	if err != nil {
		t.Fatalf("RunStream failed: %v", err)
	}

	ids := collectIDs(yielded)
	want := []string{"tx1", "tx2", "tx3", "tx4", "tx5"}
	if len(ids) != len(want) {
		t.Fatalf("Expected %d items, got %d: %v", len(want), len(ids), ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("Item %d: expected %s, got %s", i, want[i], ids[i])
		}
	}

	if state.TotalFetched != 5 {
		t.Errorf("Expected TotalFetched 5, got %d", state.TotalFetched)
	}
	if state.LastTransactionID != "tx5" {
		t.Errorf("Expected last id tx5, got %s", state.LastTransactionID)
	}
}

func TestRunStream_ResumesFromCheckpoint(t *testing.T) {
	e, _, _ := newTestExecutor()
	p := pagedProvider("alchemy")

	// Checkpoint as if the first page was already delivered.
	resume := &cursor.State{
		Primary: cursor.Cursor{
			Kind:         cursor.KindPageToken,
			PageToken:    "t1",
			ProviderName: "alchemy",
		},
		LastTransactionID: "tx2",
		TotalFetched:      2,
	}

	var yielded [][]domain.Transaction
	state, err := e.RunStream(context.Background(), []provider.Provider{p},
		StreamRequest{Kind: domain.OpNormalTransactions, Address: "0xabc", Resume: resume},
		Options{},
		func(batch cursor.Batch, state *cursor.State) error {
			yielded = append(yielded, batch.Items)
			return nil
		})
	if err != nil {
		t.Fatalf("RunStream failed: %v", err)
	}

	ids := collectIDs(yielded)
	want := []string{"tx3", "tx4", "tx5"}
	if len(ids) != len(want) {
		t.Fatalf("Expected resume to skip delivered pages, got %v", ids)
	}
	if state.TotalFetched != 5 {
		t.Errorf("Expected TotalFetched to accumulate to 5, got %d", state.TotalFetched)
	}
}

func TestRunStream_FailsOverMidStream(t *testing.T) {
	e, _, _ := newTestExecutor()

	// alchemy delivers the first page, then goes down.
	a := newFakeProvider("alchemy")
	a.execute = func(ctx context.Context, req provider.Request) (cursor.Batch, error) {
		if req.Resume.PageToken == "" && a.calls == 1 {
			return cursor.Batch{
				Items:     []domain.Transaction{tx("tx1", 100, 1000), tx("tx2", 101, 1010)},
				PageToken: "a-t1",
			}, nil
		}
		return cursor.Batch{}, errors.New("503 unavailable")
	}

	// backup paginates by block height and replays the boundary record.
	b := newFakeProvider("backup")
	b.caps.CursorKinds = []cursor.Kind{cursor.KindBlockNumber}
	b.execute = func(ctx context.Context, req provider.Request) (cursor.Batch, error) {
		if req.Resume.Kind != cursor.KindBlockNumber || req.Resume.BlockNumber != 101 {
			return cursor.Batch{}, errors.New("unexpected resume point")
		}
		return cursor.Batch{
			Items: []domain.Transaction{
				tx("tx2", 101, 1010), // replayed boundary
				tx("tx3", 102, 1020),
			},
			IsComplete: true,
		}, nil
	}

	var yielded [][]domain.Transaction
	state, err := e.RunStream(context.Background(), []provider.Provider{a, b},
		StreamRequest{Kind: domain.OpNormalTransactions, Address: "0xabc"},
		Options{},
		func(batch cursor.Batch, state *cursor.State) error {
			yielded = append(yielded, batch.Items)
			return nil
		})
	if err != nil {
		t.Fatalf("RunStream failed: %v", err)
	}

	ids := collectIDs(yielded)
	want := []string{"tx1", "tx2", "tx3"}
	if len(ids) != len(want) {
		t.Fatalf("Expected replay trimmed, got %v", ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("Item %d: expected %s, got %s", i, want[i], ids[i])
		}
	}

	if state.TotalFetched != 3 {
		t.Errorf("Expected TotalFetched 3 without counting the replay, got %d", state.TotalFetched)
	}
	if state.Metadata.ProviderName != "backup" {
		t.Errorf("Expected checkpoint attributed to backup, got %s", state.Metadata.ProviderName)
	}
}

func TestRunStream_MaxPagesBounds(t *testing.T) {
	e, _, _ := newTestExecutor()
	p := pagedProvider("alchemy")

	pages := 0
	_, err := e.RunStream(context.Background(), []provider.Provider{p},
		StreamRequest{Kind: domain.OpNormalTransactions, Address: "0xabc", MaxPages: 2},
		Options{},
		func(batch cursor.Batch, state *cursor.State) error {
			pages++
			return nil
		})
	if err != nil {
		t.Fatalf("RunStream failed: %v", err)
	}
	if pages != 2 {
		t.Errorf("Expected exactly 2 pages, got %d", pages)
	}
}

func TestRunStream_YieldErrorStops(t *testing.T) {
	e, _, _ := newTestExecutor()
	p := pagedProvider("alchemy")

	sinkErr := errors.New("sink full")
	state, err := e.RunStream(context.Background(), []provider.Provider{p},
		StreamRequest{Kind: domain.OpNormalTransactions, Address: "0xabc"},
		Options{},
		func(batch cursor.Batch, state *cursor.State) error {
			return sinkErr
		})
	if !errors.Is(err, sinkErr) {
		t.Fatalf("Expected sink error surfaced, got %v", err)
	}
	// The returned state reflects only what was yielded before the error.
	if state != nil {
		t.Errorf("Expected nil state when the first yield failed, got %+v", state)
	}
}

func TestRunStream_EmptyStreamIsNotAnError(t *testing.T) {
	e, _, _ := newTestExecutor()

	// An address with no activity: zero items, complete on the first page.
	p := newFakeProvider("alchemy")
	p.execute = func(ctx context.Context, req provider.Request) (cursor.Batch, error) {
		return cursor.Batch{IsComplete: true}, nil
	}

	yields := 0
	state, err := e.RunStream(context.Background(), []provider.Provider{p},
		StreamRequest{Kind: domain.OpNormalTransactions, Address: "0xabc"},
		Options{},
		func(batch cursor.Batch, state *cursor.State) error {
			yields++
			return nil
		})
	if err != nil {
		t.Fatalf("Expected a valid empty stream, got %v", err)
	}
	if state != nil {
		t.Errorf("Expected no checkpoint for an empty stream, got %+v", state)
	}
	if yields != 0 {
		t.Errorf("Expected nothing yielded, got %d batches", yields)
	}
	if p.calls != 1 {
		t.Errorf("Expected a single page fetch, got %d", p.calls)
	}
}

func TestRunStream_StallsWithoutProgress(t *testing.T) {
	e, _, _ := newTestExecutor()

	// The provider delivers one item and then keeps replaying it with
	// IsComplete=false, so trimming leaves every later page empty.
	p := newFakeProvider("alchemy")
	p.execute = func(ctx context.Context, req provider.Request) (cursor.Batch, error) {
		return cursor.Batch{
			Items:     []domain.Transaction{tx("tx1", 100, 1000)},
			PageToken: "t1",
		}, nil
	}

	state, err := e.RunStream(context.Background(), []provider.Provider{p},
		StreamRequest{Kind: domain.OpNormalTransactions, Address: "0xabc"},
		Options{},
		func(batch cursor.Batch, state *cursor.State) error { return nil })
	if !errors.Is(err, ErrStreamStalled) {
		t.Fatalf("Expected ErrStreamStalled, got %v", err)
	}
	if state == nil || state.TotalFetched != 1 {
		t.Errorf("Expected checkpoint to keep the delivered item, got %+v", state)
	}
}

func TestRunStream_EmptyPagesNeverCompleteStall(t *testing.T) {
	e, _, _ := newTestExecutor()

	p := newFakeProvider("alchemy")
	p.execute = func(ctx context.Context, req provider.Request) (cursor.Batch, error) {
		return cursor.Batch{}, nil
	}

	state, err := e.RunStream(context.Background(), []provider.Provider{p},
		StreamRequest{Kind: domain.OpNormalTransactions, Address: "0xabc"},
		Options{},
		func(batch cursor.Batch, state *cursor.State) error { return nil })
	if !errors.Is(err, ErrStreamStalled) {
		t.Fatalf("Expected ErrStreamStalled, got %v", err)
	}
	if state != nil {
		t.Errorf("Expected no checkpoint, got %+v", state)
	}
}

func TestRunStream_NoResumableProvider(t *testing.T) {
	e, _, _ := newTestExecutor()

	p := newFakeProvider("backup")
	p.caps.CursorKinds = []cursor.Kind{cursor.KindPageToken}

	// The checkpoint's page token belongs to someone else and there are
	// no alternatives the provider understands.
	resume := &cursor.State{
		Primary: cursor.Cursor{
			Kind:         cursor.KindPageToken,
			PageToken:    "foreign",
			ProviderName: "alchemy",
		},
		TotalFetched: 10,
	}

	_, err := e.RunStream(context.Background(), []provider.Provider{p},
		StreamRequest{Kind: domain.OpNormalTransactions, Address: "0xabc", Resume: resume},
		Options{},
		func(batch cursor.Batch, state *cursor.State) error { return nil })
	if !errors.Is(err, ErrNoProviders) {
		t.Errorf("Expected ErrNoProviders, got %v", err)
	}
}
