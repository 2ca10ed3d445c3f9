package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/idphub/identity-gateway/internal/errors"
)

// OverloadPolicy governs what happens when the pipeline's queue is full.
type OverloadPolicy string

const (
	// OverloadRunInline persists the record synchronously on the submitting
	// goroutine. No record is ever dropped. This is the default.
	OverloadRunInline OverloadPolicy = "run-inline"
	// OverloadReject drops the record and counts it.
	OverloadReject OverloadPolicy = "reject"
	// OverloadBlockWithTimeout blocks the submitter until queue space frees
	// up or the timeout elapses, then falls back to inline persistence.
	OverloadBlockWithTimeout OverloadPolicy = "block-with-timeout"
)

const (
	defaultWorkers       = 2
	defaultQueueCapacity = 64
	defaultBlockTimeout  = 2 * time.Second
	persistTimeout       = 10 * time.Second
)

// PipelineConfig configures the audit worker pool.
type PipelineConfig struct {
	Workers       int
	QueueCapacity int
	Policy        OverloadPolicy
	BlockTimeout  time.Duration
}

// Pipeline persists audit records on a bounded worker pool. Persistence runs
// in a unit of work independent from whatever transaction the triggering
// operation used: a store failure is logged and never surfaces to the
// submitter.
type Pipeline struct {
	store        Store
	ch           chan *Record
	done         chan struct{}
	wg           sync.WaitGroup
	policy       OverloadPolicy
	blockTimeout time.Duration

	inline   atomic.Uint64
	rejected atomic.Uint64

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewPipeline creates a Pipeline and starts its workers.
func NewPipeline(store Store, cfg PipelineConfig) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = defaultQueueCapacity
	}
	if cfg.Policy == "" {
		cfg.Policy = OverloadRunInline
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = defaultBlockTimeout
	}

	p := &Pipeline{
		store:        store,
		ch:           make(chan *Record, cfg.QueueCapacity),
		done:         make(chan struct{}),
		policy:       cfg.Policy,
		blockTimeout: cfg.BlockTimeout,
	}

	p.wg.Add(cfg.Workers)
	for range cfg.Workers {
		go p.run()
	}
	return p
}

func (p *Pipeline) run() {
	defer p.wg.Done()

	for {
		select {
		case rec := <-p.ch:
			p.persist(rec)
		case <-p.done:
			// Drain whatever is still queued before exiting.
			for {
				select {
				case rec := <-p.ch:
					p.persist(rec)
				default:
					return
				}
			}
		}
	}
}

// Submit enqueues the record for asynchronous persistence, applying the
// configured overload policy when the queue is saturated. It is fire-and-forget
// from the caller's perspective and never returns an error.
func (p *Pipeline) Submit(rec *Record) {
	if p == nil || rec == nil || p.closed.Load() {
		return
	}
	rec.normalize()

	select {
	case p.ch <- rec:
		return
	default:
	}

	switch p.policy {
	case OverloadReject:
		p.rejected.Add(1)
		log.Warn().Str("record_id", rec.ID).Msg("Audit queue saturated, record rejected")
	case OverloadBlockWithTimeout:
		select {
		case p.ch <- rec:
		case <-time.After(p.blockTimeout):
			p.inline.Add(1)
			p.persist(rec)
		case <-p.done:
			p.persist(rec)
		}
	default: // OverloadRunInline
		p.inline.Add(1)
		p.persist(rec)
	}
}

// persist writes one record in its own unit of work. Failures are converted
// to AuditPersistenceError and logged; they never propagate.
func (p *Pipeline) persist(rec *Record) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("record_id", rec.ID).Interface("panic", r).Msg("Audit persistence panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := p.store.Save(ctx, rec); err != nil {
		persistErr := &errors.AuditPersistenceError{RecordID: rec.ID, Err: err}
		log.Error().Err(persistErr).Msg("Failed to persist audit record")
	}
}

// InlineCount reports how many records were persisted synchronously on the
// submitter because the queue was saturated.
func (p *Pipeline) InlineCount() uint64 { return p.inline.Load() }

// RejectedCount reports how many records were dropped under the reject policy.
func (p *Pipeline) RejectedCount() uint64 { return p.rejected.Load() }

// Close stops intake and drains the queue before returning.
func (p *Pipeline) Close() {
	if p == nil {
		return
	}
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.done)
		p.wg.Wait()
	})
}
