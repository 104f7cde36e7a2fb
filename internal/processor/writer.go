package processor

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

var ErrWriterStopped = errors.New("writer is stopped")

// Job is one deferred persistence call
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Writer executes fire-and-forget writes one at a time in submission order.
// Failures are logged and dropped; nothing is retried.
type Writer struct {
	logger  *logrus.Logger
	jobs    chan Job
	workers sync.WaitGroup

	// pending counts submitted jobs that have not finished
	pendingMu sync.Mutex
	drained   *sync.Cond
	pending   int

	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.RWMutex
	stopped bool
	errMu   sync.Mutex
	onError func(Job, error)
}

// NewWriter creates a writer with room for queueSize pending jobs
func NewWriter(queueSize int, logger *logrus.Logger) *Writer {
	if logger == nil {
		logger = logrus.New()
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Writer{
		logger: logger,
		jobs:   make(chan Job, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	w.drained = sync.NewCond(&w.pendingMu)
	return w
}

// OnError registers a callback invoked after a job fails
func (w *Writer) OnError(fn func(Job, error)) {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	w.onError = fn
}

// Start begins draining the job queue
func (w *Writer) Start() {
	w.workers.Add(1)
	go w.processLoop()
}

// Submit queues a job. It blocks while the queue is full.
func (w *Writer) Submit(job Job) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return ErrWriterStopped
	}

	w.pendingMu.Lock()
	w.pending++
	w.pendingMu.Unlock()

	select {
	case w.jobs <- job:
		return nil
	case <-w.ctx.Done():
		w.finish()
		return ErrWriterStopped
	}
}

// Flush waits until every job submitted so far has run. It is safe to call
// while other goroutines keep submitting.
func (w *Writer) Flush() {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	for w.pending > 0 {
		w.drained.Wait()
	}
}

func (w *Writer) finish() {
	w.pendingMu.Lock()
	w.pending--
	if w.pending == 0 {
		w.drained.Broadcast()
	}
	w.pendingMu.Unlock()
}

// Stop drains what is already queued and shuts the worker down
func (w *Writer) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.jobs)
	w.mu.Unlock()

	w.workers.Wait()
	w.cancel()
}

func (w *Writer) processLoop() {
	defer w.workers.Done()

	for job := range w.jobs {
		w.run(job)
	}
}

func (w *Writer) run(job Job) {
	defer w.finish()

	if err := job.Run(w.ctx); err != nil {
		w.logger.WithError(err).WithField("job", job.Name).Error("Background write failed")
		w.errMu.Lock()
		onError := w.onError
		w.errMu.Unlock()
		if onError != nil {
			onError(job, err)
		}
		return
	}
	w.logger.WithField("job", job.Name).Debug("Background write completed")
}
