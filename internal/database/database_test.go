package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasaciones/server/internal/queue"
)

type listing struct {
	Address      string  `json:"address"`
	Price        float64 `json:"price"`
	DaysOnMarket int     `json:"daysOnMarket"`
}

func setupTestDB(t *testing.T) (*Database, *queue.ChangeQueue) {
	feed := queue.NewChangeQueue(32, logrus.New())
	feed.Start()
	t.Cleanup(func() { feed.Close() })

	db, err := NewTestDB(feed)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, feed
}

func TestSetAndGet(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()
	paths := PathsForUser("u1")

	found, err := db.Get(ctx, paths.Comparable("missing"), &listing{})
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, db.Set(ctx, paths.Comparable("a"), listing{Address: "Calle 1", Price: 100}, false))

	var got listing
	found, err = db.Get(ctx, paths.Comparable("a"), &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Calle 1", got.Address)
	assert.Equal(t, 100.0, got.Price)
}

func TestSetMergeKeepsOtherFields(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()
	path := PathsForUser("u1").Target

	require.NoError(t, db.Set(ctx, path, map[string]any{"address": "Calle 1", "extra": true}, false))
	require.NoError(t, db.Set(ctx, path, map[string]any{"address": "Calle 2"}, true))

	var got map[string]any
	_, err := db.Get(ctx, path, &got)
	require.NoError(t, err)
	assert.Equal(t, "Calle 2", got["address"])
	assert.Equal(t, true, got["extra"])

	// Without merge the document is replaced
	require.NoError(t, db.Set(ctx, path, map[string]any{"address": "Calle 3"}, false))
	got = nil
	_, err = db.Get(ctx, path, &got)
	require.NoError(t, err)
	assert.NotContains(t, got, "extra")
}

func TestUpdate(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()
	paths := PathsForUser("u1")

	err := db.Update(ctx, paths.Comparable("missing"), map[string]any{"price": 5})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Set(ctx, paths.Comparable("a"), listing{Address: "Calle 1", Price: 100}, false))
	require.NoError(t, db.Update(ctx, paths.Comparable("a"), map[string]any{"price": 250}))

	var got listing
	_, err = db.Get(ctx, paths.Comparable("a"), &got)
	require.NoError(t, err)
	assert.Equal(t, "Calle 1", got.Address)
	assert.Equal(t, 250.0, got.Price)
}

func TestDelete(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()
	path := PathsForUser("u1").Comparable("a")

	require.NoError(t, db.Set(ctx, path, listing{Address: "x"}, false))
	require.NoError(t, db.Delete(ctx, path))
	require.NoError(t, db.Delete(ctx, path))

	found, err := db.Get(ctx, path, &listing{})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestListOrdering(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()
	paths := PathsForUser("u1")

	require.NoError(t, db.Set(ctx, paths.Comparable("a"), listing{Address: "a", DaysOnMarket: 30}, false))
	require.NoError(t, db.Set(ctx, paths.Comparable("b"), listing{Address: "b", DaysOnMarket: 5}, false))
	require.NoError(t, db.Set(ctx, paths.Comparable("c"), listing{Address: "c", DaysOnMarket: 12}, false))
	require.NoError(t, db.Set(ctx, PathsForUser("u2").Comparable("d"), listing{Address: "d"}, false))

	asc, err := db.List(ctx, paths.Comparables, "daysOnMarket", Ascending)
	require.NoError(t, err)
	require.Len(t, asc, 3)
	assert.Equal(t, []string{"b", "c", "a"}, []string{asc[0].ID, asc[1].ID, asc[2].ID})

	desc, err := db.List(ctx, paths.Comparables, "daysOnMarket", Descending)
	require.NoError(t, err)
	assert.Equal(t, "a", desc[0].ID)

	var first listing
	require.NoError(t, asc[0].Decode(&first))
	assert.Equal(t, 5, first.DaysOnMarket)

	n, err := db.Count(ctx, paths.Comparables)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = db.List(ctx, paths.Comparables, "days; DROP TABLE documents", Ascending)
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestBatchIsAtomic(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()
	paths := PathsForUser("u1")

	require.NoError(t, db.Set(ctx, paths.Comparable("a"), listing{Address: "a"}, false))

	// The update of a missing document aborts the whole batch
	err := db.NewBatch().
		Delete(paths.Comparable("a")).
		Set(paths.Comparable("b"), listing{Address: "b"}, false).
		Update(paths.Comparable("missing"), map[string]any{"price": 1}).
		Commit(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	docs, err := db.List(ctx, paths.Comparables, "", Ascending)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a", docs[0].ID)
}

func TestInvalidPath(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	err := db.Set(ctx, "users/u1/comparables", listing{}, false)
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = db.Get(ctx, "users//x/y", &listing{})
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestWritesArePublished(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()
	paths := PathsForUser("u1")

	var mu sync.Mutex
	var received []queue.Change
	unsubscribe := db.Subscribe(paths.Comparables, func(changes []queue.Change) {
		mu.Lock()
		received = append(received, changes...)
		mu.Unlock()
	})
	defer unsubscribe()

	require.NoError(t, db.NewBatch().
		Set(paths.Comparable("a"), listing{Address: "a"}, false).
		Set(paths.Target, map[string]any{"address": "t"}, true).
		Commit(ctx))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, queue.Change{Path: paths.Comparable("a"), Op: queue.OpSet}, received[0])
	mu.Unlock()
}
