package ingest

import (
	"context"
	"runtime"

	"github.com/glmanhtu/PapyrusViz-sub000/internal/core/models"

	log "github.com/sirupsen/logrus"
)

// thumbnailJob is one file handed to the pool. The result is delivered on
// the job's own channel so the dispatcher can collect results in input
// order regardless of completion order.
type thumbnailJob struct {
	ctx        context.Context
	sourcePath string
	thumbPath  string
	resultCh   chan *thumbnailResult
}

type thumbnailResult struct {
	image *models.Image
	err   error
}

// workerPool runs thumbnail generation across a bounded set of goroutines.
type workerPool struct {
	pipeline    *Pipeline
	jobs        chan *thumbnailJob
	workerCount int
	shutdown    chan struct{}
}

// newWorkerPool starts the workers. Uses 75% of the available CPUs, at
// least 2, to leave headroom for the store writer.
func newWorkerPool(pipeline *Pipeline) *workerPool {
	workerCount := max(2, runtime.NumCPU()*3/4)
	log.Debugf("Initializing thumbnail worker pool with %d workers", workerCount)

	pool := &workerPool{
		pipeline:    pipeline,
		jobs:        make(chan *thumbnailJob, workerCount*2),
		workerCount: workerCount,
		shutdown:    make(chan struct{}),
	}
	pool.startWorkers()
	return pool
}

func (wp *workerPool) startWorkers() {
	for i := 0; i < wp.workerCount; i++ {
		go func(workerID int) {
			for {
				select {
				case job, ok := <-wp.jobs:
					if !ok {
						return
					}
					if err := job.ctx.Err(); err != nil {
						job.resultCh <- &thumbnailResult{err: err}
						continue
					}
					image, err := wp.pipeline.processFile(job.sourcePath, job.thumbPath)
					job.resultCh <- &thumbnailResult{image: image, err: err}
				case <-wp.shutdown:
					log.Debugf("Thumbnail worker %d received shutdown signal", workerID)
					return
				}
			}
		}(i)
	}
}

// Submit queues one job. Each job's resultCh must be buffered so a worker
// never blocks on delivery.
func (wp *workerPool) Submit(job *thumbnailJob) {
	wp.jobs <- job
}

// Shutdown stops all workers. Queued jobs that no worker picked up are
// abandoned; their result channels stay empty.
func (wp *workerPool) Shutdown() {
	close(wp.shutdown)
}
