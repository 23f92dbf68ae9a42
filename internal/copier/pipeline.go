package copier

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/withObsrvr/telemetry-copier/internal/logging"
)

// Pipeline implements the dispatcher → workers → sequencer flow for the
// files of one track. Workers parse, convert and encode files in parallel,
// but the sequencer writes them in discovery order so the outputs match a
// sequential run.
type Pipeline struct {
	copier    *Copier
	run       *trackRun
	workers   int
	queueSize int
	log       *slog.Logger

	workQueue  chan FileTask
	resultChan chan FileResult
	wg         sync.WaitGroup
}

// NewPipeline creates a new worker pipeline.
func NewPipeline(c *Copier, run *trackRun, workers int) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	queueSize := workers * 2

	return &Pipeline{
		copier:     c,
		run:        run,
		workers:    workers,
		queueSize:  queueSize,
		log:        run.log.With("component", "pipeline"),
		workQueue:  make(chan FileTask, queueSize),
		resultChan: make(chan FileResult, queueSize),
	}
}

// Run converts tasks and commits them in index order. Tasks must be indexed
// 0..len(tasks)-1. Only cancellation is returned as an error.
func (p *Pipeline) Run(ctx context.Context, tasks []FileTask) error {
	if len(tasks) == 0 {
		return nil
	}

	p.log.Info("starting file pipeline", "files", len(tasks), "workers", p.workers)

	// Start worker pool
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.workerLoop(ctx, i)
	}

	// Start dispatcher
	errChan := make(chan error, 1)
	go func() {
		errChan <- p.dispatcherLoop(ctx, tasks)
	}()

	// Close results when workers finish
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(p.resultChan)
		close(done)
	}()

	// Sequencer: commit in order
	err := p.sequencerLoop(ctx, len(tasks))

	// Workers stop on cancellation; wait so nothing reads the extracted
	// files after the caller removes them.
	if err != nil {
		go func() {
			for range p.resultChan {
			}
		}()
	}
	<-done

	if err != nil {
		return err
	}
	return <-errChan
}

// dispatcherLoop sends file tasks to workers.
func (p *Pipeline) dispatcherLoop(ctx context.Context, tasks []FileTask) error {
	defer close(p.workQueue)

	for _, task := range tasks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p.workQueue <- task:
			// Task dispatched
		}
	}

	return nil
}

// workerLoop converts file tasks.
func (p *Pipeline) workerLoop(ctx context.Context, workerID int) {
	defer p.wg.Done()

	log := logging.WorkerLogger(p.run.log, workerID)
	for task := range p.workQueue {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result := p.copier.buildTask(ctx, task, log)
		select {
		case p.resultChan <- result:
		case <-ctx.Done():
			return
		}
	}
}

// sequencerLoop commits file results in discovery order.
func (p *Pipeline) sequencerLoop(ctx context.Context, total int) error {
	nextIndex := 0

	// Buffer for out-of-order results
	pending := make(map[int]FileResult)
	startTime := time.Now()

	for nextIndex < total {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case result, ok := <-p.resultChan:
			if !ok {
				if err := ctx.Err(); err != nil {
					return err
				}
				return fmt.Errorf("results closed before all files committed, nextIndex=%d", nextIndex)
			}

			// Buffer the result
			pending[result.Task.Index] = result

			// Flush in-order as far as possible
			for {
				r, ok := pending[nextIndex]
				if !ok {
					break
				}
				p.copier.commitFile(ctx, p.run, r)
				delete(pending, nextIndex)
				nextIndex++
			}

			p.log.Debug("sequencer progress",
				"committed", nextIndex,
				"total", total,
				"pending", len(pending),
				"elapsed", time.Since(startTime).Round(time.Millisecond),
			)
		}
	}

	return nil
}
