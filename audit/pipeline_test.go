package audit_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/idphub/identity-gateway/audit"
)

// gatedStore blocks the first Save until released, letting a test hold a
// worker busy while it saturates the queue. Later saves pass straight through.
type gatedStore struct {
	started chan struct{}
	release chan struct{}
	blocked atomic.Bool
	saved   atomic.Int64
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (s *gatedStore) Save(_ context.Context, _ *audit.Record) error {
	if s.blocked.CompareAndSwap(false, true) {
		close(s.started)
		<-s.release
	}
	s.saved.Add(1)
	return nil
}

func (s *gatedStore) Query(context.Context, audit.Filter) (*audit.Page, error) {
	return nil, errors.New("not implemented")
}

func newRecord(i int) *audit.Record {
	return &audit.Record{
		ID:         fmt.Sprintf("rec-%d", i),
		Action:     audit.ActionUserUpdate,
		Resource:   audit.ResourceUser,
		Status:     audit.StatusSuccess,
		ActorEmail: "worker@example.com",
	}
}

func TestPipeline(t *testing.T) {
	t.Run("persists submitted records and drains on close", func(t *testing.T) {
		store := audit.NewInMemoryStore()
		p := audit.NewPipeline(store, audit.PipelineConfig{Workers: 2, QueueCapacity: 16})

		const total = 50
		for i := range total {
			p.Submit(newRecord(i))
		}
		p.Close()

		require.Equal(t, total, store.Len())
	})

	t.Run("overflow runs inline and nothing is dropped", func(t *testing.T) {
		store := newGatedStore()
		p := audit.NewPipeline(store, audit.PipelineConfig{
			Workers:       1,
			QueueCapacity: 2,
			Policy:        audit.OverloadRunInline,
		})

		// Occupy the single worker, then fill the queue.
		p.Submit(newRecord(0))
		<-store.started
		p.Submit(newRecord(1))
		p.Submit(newRecord(2))

		// The queue is full now: these must persist on the caller.
		p.Submit(newRecord(3))
		p.Submit(newRecord(4))
		require.Equal(t, uint64(2), p.InlineCount())
		require.Equal(t, int64(2), store.saved.Load())

		close(store.release)
		p.Close()
		require.Equal(t, int64(5), store.saved.Load())
	})

	t.Run("reject policy drops and counts overflow", func(t *testing.T) {
		store := newGatedStore()
		p := audit.NewPipeline(store, audit.PipelineConfig{
			Workers:       1,
			QueueCapacity: 1,
			Policy:        audit.OverloadReject,
		})

		p.Submit(newRecord(0))
		<-store.started
		p.Submit(newRecord(1))

		p.Submit(newRecord(2))
		require.Equal(t, uint64(1), p.RejectedCount())

		close(store.release)
		p.Close()
		require.Equal(t, int64(2), store.saved.Load())
	})

	t.Run("block-with-timeout falls back to inline persistence", func(t *testing.T) {
		store := newGatedStore()
		p := audit.NewPipeline(store, audit.PipelineConfig{
			Workers:       1,
			QueueCapacity: 1,
			Policy:        audit.OverloadBlockWithTimeout,
			BlockTimeout:  20 * time.Millisecond,
		})

		p.Submit(newRecord(0))
		<-store.started
		p.Submit(newRecord(1))

		start := time.Now()
		p.Submit(newRecord(2))
		require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
		require.Equal(t, uint64(1), p.InlineCount())

		close(store.release)
		p.Close()
		require.Equal(t, int64(3), store.saved.Load())
	})

	t.Run("store failures never surface to the submitter", func(t *testing.T) {
		p := audit.NewPipeline(failingStore{}, audit.PipelineConfig{Workers: 1, QueueCapacity: 1})

		require.NotPanics(t, func() {
			for i := range 5 {
				p.Submit(newRecord(i))
			}
			p.Close()
		})
	})

	t.Run("submit after close is a no-op", func(t *testing.T) {
		store := audit.NewInMemoryStore()
		p := audit.NewPipeline(store, audit.PipelineConfig{Workers: 1, QueueCapacity: 4})
		p.Close()

		require.NotPanics(t, func() { p.Submit(newRecord(0)) })
		require.Zero(t, store.Len())
	})

	t.Run("close is idempotent", func(t *testing.T) {
		p := audit.NewPipeline(audit.NewInMemoryStore(), audit.PipelineConfig{})
		p.Close()
		require.NotPanics(t, p.Close)
	})
}
