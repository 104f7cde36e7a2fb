package queue

import (
	"errors"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var ErrQueueClosed = errors.New("queue is closed")

// Operation describes what happened to a document
type Operation string

const (
	OpSet    Operation = "set"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Change is a single document change notification
type Change struct {
	Path string
	Op   Operation
}

type subscription struct {
	id      uint64
	prefix  string
	handler func([]Change)
}

// ChangeQueue fans document change batches out to the subscribers whose
// path prefix matches. Batches that do not fit in the buffer are kept in
// a backlog, coalesced by path, and delivered once the dispatcher catches
// up, so a committed change is never lost.
type ChangeQueue struct {
	items   chan []Change
	done    chan struct{}
	wake    chan struct{}
	maxSize int
	closed  bool
	mu      sync.RWMutex
	logger  *logrus.Logger
	nextID  uint64
	subs    []subscription

	backlogMu sync.Mutex
	backlog   []Change
	backlogAt map[string]int
}

// NewChangeQueue creates a new change queue with the specified buffer size
func NewChangeQueue(bufferSize int, logger *logrus.Logger) *ChangeQueue {
	if logger == nil {
		logger = logrus.New()
	}
	return &ChangeQueue{
		items:     make(chan []Change, bufferSize),
		done:      make(chan struct{}),
		wake:      make(chan struct{}, 1),
		maxSize:   bufferSize,
		logger:    logger,
		backlogAt: make(map[string]int),
	}
}

// Push adds a batch of changes to the queue without blocking. When the
// buffer is full the changes go to the backlog instead.
func (q *ChangeQueue) Push(changes []Change) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- changes:
		q.logger.WithField("batch_size", len(changes)).Debug("Pushed changes to queue")
	default:
		q.spill(changes)
	}
	return nil
}

// spill records changes in the backlog, keeping one entry per path with
// the latest operation
func (q *ChangeQueue) spill(changes []Change) {
	q.backlogMu.Lock()
	for _, c := range changes {
		if i, ok := q.backlogAt[c.Path]; ok {
			q.backlog[i] = c
			continue
		}
		q.backlogAt[c.Path] = len(q.backlog)
		q.backlog = append(q.backlog, c)
	}
	size := len(q.backlog)
	q.backlogMu.Unlock()

	q.logger.WithField("backlog", size).Warn("Change queue full, deferring changes to backlog")

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *ChangeQueue) takeBacklog() []Change {
	q.backlogMu.Lock()
	defer q.backlogMu.Unlock()
	batch := q.backlog
	q.backlog = nil
	q.backlogAt = make(map[string]int)
	return batch
}

// Subscribe registers handler for changes under prefix. Each batch is
// filtered down to the matching changes; empty batches are not delivered.
// The returned func removes the subscription.
func (q *ChangeQueue) Subscribe(prefix string, handler func([]Change)) func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	id := q.nextID
	q.subs = append(q.subs, subscription{id: id, prefix: prefix, handler: handler})

	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		for i, s := range q.subs {
			if s.id == id {
				q.subs = append(q.subs[:i:i], q.subs[i+1:]...)
				return
			}
		}
	}
}

// Start begins processing items in the queue
func (q *ChangeQueue) Start() {
	go q.process()
}

func (q *ChangeQueue) process() {
	for {
		select {
		case <-q.done:
			return
		case batch, ok := <-q.items:
			if !ok {
				return
			}
			q.dispatch(batch)
		case <-q.wake:
			if batch := q.takeBacklog(); len(batch) > 0 {
				q.dispatch(batch)
			}
		}
	}
}

// dispatch sends the batch to all matching subscribers
func (q *ChangeQueue) dispatch(batch []Change) {
	q.mu.RLock()
	subs := make([]subscription, len(q.subs))
	copy(subs, q.subs)
	q.mu.RUnlock()

	for _, s := range subs {
		var matched []Change
		for _, c := range batch {
			if strings.HasPrefix(c.Path, s.prefix) {
				matched = append(matched, c)
			}
		}
		if len(matched) == 0 {
			continue
		}
		q.safeCall(s, matched)
	}
}

func (q *ChangeQueue) safeCall(s subscription, changes []Change) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.WithFields(logrus.Fields{
				"prefix": s.prefix,
				"panic":  r,
			}).Error("Change handler panicked")
		}
	}()
	s.handler(changes)
}

// Close stops the queue and prevents new items from being added
func (q *ChangeQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	close(q.done)
	return nil
}

// Len returns the buffered batches plus the changes waiting in the backlog
func (q *ChangeQueue) Len() int {
	q.backlogMu.Lock()
	defer q.backlogMu.Unlock()
	return len(q.items) + len(q.backlog)
}

// IsClosed returns whether the queue has been closed
func (q *ChangeQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
