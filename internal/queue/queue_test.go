package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewChangeQueue(t *testing.T) {
	logger := logrus.New()
	q := NewChangeQueue(10, logger)
	assert.NotNil(t, q)
	assert.Equal(t, 10, q.maxSize)
	assert.False(t, q.IsClosed())
}

func TestChangeQueue_Push(t *testing.T) {
	logger := logrus.New()
	q := NewChangeQueue(2, logger)

	changes := []Change{{Path: "users/u1/comparables/a", Op: OpSet}}
	err := q.Push(changes)
	assert.NoError(t, err)
	assert.Equal(t, 1, q.Len())

	// Fill the buffer, the overflow lands in the backlog
	assert.NoError(t, q.Push(changes))
	assert.NoError(t, q.Push(changes))
	assert.Equal(t, 3, q.Len())

	// Same path coalesces into the existing backlog entry
	assert.NoError(t, q.Push([]Change{{Path: "users/u1/comparables/a", Op: OpDelete}}))
	assert.Equal(t, 3, q.Len())

	q.Close()
	err = q.Push(changes)
	assert.Equal(t, ErrQueueClosed, err)
}

func TestChangeQueue_SubscribeFiltersByPrefix(t *testing.T) {
	logger := logrus.New()
	q := NewChangeQueue(10, logger)

	var received []Change
	var mu sync.Mutex
	q.Subscribe("users/u1/comparables", func(changes []Change) {
		mu.Lock()
		received = append(received, changes...)
		mu.Unlock()
	})

	q.Start()
	defer q.Close()

	err := q.Push([]Change{
		{Path: "users/u1/comparables/a", Op: OpSet},
		{Path: "users/u1/data/valuation_active", Op: OpSet},
		{Path: "users/u2/comparables/b", Op: OpDelete},
	})
	assert.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, "users/u1/comparables/a", received[0].Path)
	mu.Unlock()
}

func TestChangeQueue_Unsubscribe(t *testing.T) {
	logger := logrus.New()
	q := NewChangeQueue(10, logger)

	var wg sync.WaitGroup
	calls := 0
	var mu sync.Mutex

	unsubscribe := q.Subscribe("users/", func(changes []Change) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	wg.Add(1)
	q.Subscribe("users/", func(changes []Change) {
		wg.Done()
	})
	unsubscribe()

	q.Start()
	defer q.Close()

	assert.NoError(t, q.Push([]Change{{Path: "users/u1/x", Op: OpUpdate}}))
	wg.Wait()

	mu.Lock()
	assert.Equal(t, 0, calls)
	mu.Unlock()
}

func TestChangeQueue_HandlerPanicDoesNotStopQueue(t *testing.T) {
	logger := logrus.New()
	q := NewChangeQueue(10, logger)

	var wg sync.WaitGroup
	wg.Add(2)
	q.Subscribe("a", func(changes []Change) {
		defer wg.Done()
		panic("boom")
	})
	q.Subscribe("a", func(changes []Change) {
		wg.Done()
	})

	q.Start()
	defer q.Close()

	assert.NoError(t, q.Push([]Change{{Path: "a/1", Op: OpSet}}))
	wg.Wait()
}

func TestChangeQueue_Close(t *testing.T) {
	logger := logrus.New()
	q := NewChangeQueue(10, logger)

	err := q.Close()
	assert.NoError(t, err)
	assert.True(t, q.IsClosed())

	// Second close is a no-op
	err = q.Close()
	assert.NoError(t, err)
}

func TestChangeQueue_OverflowIsDelivered(t *testing.T) {
	logger := logrus.New()
	q := NewChangeQueue(1, logger)

	release := make(chan struct{})
	blocked := make(chan struct{})
	var once sync.Once
	q.Subscribe("hold/", func(changes []Change) {
		once.Do(func() { close(blocked) })
		<-release
	})

	var mu sync.Mutex
	seen := make(map[string]Operation)
	q.Subscribe("users/", func(changes []Change) {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range changes {
			seen[c.Path] = c.Op
		}
	})

	q.Start()
	defer q.Close()

	assert.NoError(t, q.Push([]Change{{Path: "hold/1", Op: OpSet}}))
	<-blocked

	// One batch fits in the buffer, the rest overflows
	assert.NoError(t, q.Push([]Change{{Path: "users/u1/a", Op: OpSet}}))
	assert.NoError(t, q.Push([]Change{{Path: "users/u1/b", Op: OpSet}}))
	assert.NoError(t, q.Push([]Change{{Path: "users/u1/c", Op: OpSet}}))
	assert.NoError(t, q.Push([]Change{{Path: "users/u1/b", Op: OpDelete}}))
	close(release)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, OpDelete, seen["users/u1/b"])
	mu.Unlock()
	assert.Eventually(t, func() bool { return q.Len() == 0 }, time.Second, 10*time.Millisecond)
}
