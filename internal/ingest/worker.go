package ingest

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

var (
	// ErrQueueFull is returned by Submit when the job queue has no room.
	ErrQueueFull = errors.New("ingest: job queue is full")
	// ErrStopped is returned by Submit after Drain has begun.
	ErrStopped = errors.New("ingest: worker pool is stopped")
)

// Processor handles one queued document. Satisfied by *Pipeline.
type Processor interface {
	Process(ctx context.Context, docID string) error
}

// Pool runs document ingestion on a bounded number of background workers
// with an explicit lifecycle: Start launches the workers, Submit enqueues a
// document, Drain stops intake and waits for in-flight work to finish.
type Pool struct {
	proc    Processor
	workers int
	jobs    chan string
	log     zerolog.Logger

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewPool sizes the pool. workers and queueSize fall back to sane minimums.
func NewPool(proc Processor, workers, queueSize int, log zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Pool{
		proc:    proc,
		workers: workers,
		jobs:    make(chan string, queueSize),
		log:     log.With().Str("component", "ingest_pool").Logger(),
	}
}

// Start launches the workers. ctx cancellation aborts in-flight processing;
// use Drain for a graceful stop that lets queued work finish.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.log.Info().Int("workers", p.workers).Int("queue", cap(p.jobs)).Msg("ingest pool started")
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case docID, ok := <-p.jobs:
			if !ok {
				return
			}
			// Process logs and records failures itself; the error here only
			// feeds the worker-level log line.
			if err := p.proc.Process(ctx, docID); err != nil {
				p.log.Debug().Int("worker", id).Str("document_id", docID).Err(err).Msg("job failed")
			}
		}
	}
}

// Submit enqueues a document for processing without blocking. The caller
// must handle ErrQueueFull (backpressure) and ErrStopped (shutdown).
func (p *Pool) Submit(docID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.jobs <- docID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Drain stops intake and blocks until queued and in-flight jobs complete.
// Safe to call more than once.
func (p *Pool) Drain() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
	p.log.Info().Msg("ingest pool drained")
}
