package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"tasaciones/server/internal/queue"
)

type batchOp struct {
	op    queue.Operation
	path  string
	value any
	merge bool
}

// Batch groups writes that are committed atomically in one transaction
type Batch struct {
	d   *Database
	ops []batchOp
}

func (d *Database) NewBatch() *Batch {
	return &Batch{d: d}
}

func (b *Batch) Set(path string, value any, merge bool) *Batch {
	b.ops = append(b.ops, batchOp{op: queue.OpSet, path: path, value: value, merge: merge})
	return b
}

func (b *Batch) Update(path string, fields any) *Batch {
	b.ops = append(b.ops, batchOp{op: queue.OpUpdate, path: path, value: fields})
	return b
}

func (b *Batch) Delete(path string) *Batch {
	b.ops = append(b.ops, batchOp{op: queue.OpDelete, path: path})
	return b
}

// Len returns the number of queued writes
func (b *Batch) Len() int {
	return len(b.ops)
}

// Commit applies every queued write or none of them
func (b *Batch) Commit(ctx context.Context) error {
	if b.Len() == 0 {
		return nil
	}

	changes := make([]queue.Change, 0, b.Len())
	err := b.d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, op := range b.ops {
			if err := applyOp(tx, op); err != nil {
				return err
			}
			changes = append(changes, queue.Change{Path: op.path, Op: op.op})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	b.d.publish(changes)
	return nil
}

func applyOp(tx *gorm.DB, op batchOp) error {
	if _, _, err := splitPath(op.path); err != nil {
		return err
	}

	switch op.op {
	case queue.OpDelete:
		if err := tx.Where("path = ?", op.path).Delete(&Document{}).Error; err != nil {
			return fmt.Errorf("failed to delete %s: %w", op.path, err)
		}
		return nil
	}

	data, err := json.Marshal(op.value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", op.path, err)
	}

	if op.op == queue.OpSet && !op.merge {
		return upsert(tx, op.path, data)
	}

	var existing Document
	err = tx.Where("path = ?", op.path).Take(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if op.op == queue.OpUpdate {
			return fmt.Errorf("%w: %s", ErrNotFound, op.path)
		}
		data, err = mergeJSON(nil, data)
	case err != nil:
		return fmt.Errorf("failed to read %s: %w", op.path, err)
	default:
		data, err = mergeJSON([]byte(existing.Data), data)
	}
	if err != nil {
		return fmt.Errorf("failed to merge %s: %w", op.path, err)
	}
	return upsert(tx, op.path, data)
}
