package store

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"tasaciones/server/internal/database"
	"tasaciones/server/internal/models"
	"tasaciones/server/internal/queue"
)

// Start subscribes to the user's documents and loads their current
// contents. It does nothing in local-only mode.
func (s *Store) Start(ctx context.Context) error {
	if !s.Authenticated() {
		return nil
	}

	s.log().WithFields(logrus.Fields{
		"target_path":      s.paths.Target,
		"comparables_path": s.paths.Comparables,
		"saved_path":       s.paths.Saved,
	}).Debug("Setting up listeners")

	s.subsMu.Lock()
	s.unsubscribes = append(s.unsubscribes,
		s.docs.Subscribe(s.paths.Target, func([]queue.Change) { s.syncTarget(context.Background()) }),
		s.docs.Subscribe(s.paths.Comparables+"/", func([]queue.Change) { s.syncComparables(context.Background()) }),
		s.docs.Subscribe(s.paths.Saved+"/", func([]queue.Change) { s.syncSaved(context.Background()) }),
	)
	s.subsMu.Unlock()

	if err := s.syncTarget(ctx); err != nil {
		return err
	}
	if err := s.syncComparables(ctx); err != nil {
		return err
	}
	return s.syncSaved(ctx)
}

// Close drops the subscriptions and waits for pending writes. Calling it
// again is a no-op.
func (s *Store) Close() {
	if s.closed.Swap(true) {
		return
	}

	s.subsMu.Lock()
	for _, unsubscribe := range s.unsubscribes {
		unsubscribe()
	}
	s.unsubscribes = nil
	s.subsMu.Unlock()

	s.writer.Stop()
}

// Closed reports whether Close has been called
func (s *Store) Closed() bool {
	return s.closed.Load()
}

// syncTarget replaces the local target with the stored document. A missing
// document leaves the local target alone.
func (s *Store) syncTarget(ctx context.Context) error {
	var target models.TargetProperty
	found, err := s.docs.Get(ctx, s.paths.Target, &target)
	if err != nil {
		s.log().WithError(err).Error("Error syncing target")
		return fmt.Errorf("failed to sync target: %w", err)
	}
	if !found {
		return nil
	}
	if target.Images == nil {
		target.Images = []string{}
	}

	s.mu.Lock()
	s.target = target
	s.mu.Unlock()
	return nil
}

// syncComparables replaces the local list, ordered by days on market
func (s *Store) syncComparables(ctx context.Context) error {
	docs, err := s.docs.List(ctx, s.paths.Comparables, "daysOnMarket", database.Ascending)
	if err != nil {
		s.log().WithError(err).Error("Error syncing comparables")
		return fmt.Errorf("failed to sync comparables: %w", err)
	}

	comparables := make([]models.Comparable, 0, len(docs))
	for _, doc := range docs {
		var c models.Comparable
		if err := doc.Decode(&c); err != nil {
			s.log().WithError(err).WithField("path", doc.Path).Warn("Skipping undecodable comparable")
			continue
		}
		c.ID = doc.ID
		if c.Images == nil {
			c.Images = []string{}
		}
		comparables = append(comparables, c)
	}

	s.mu.Lock()
	s.comparables = comparables
	s.mu.Unlock()
	return nil
}

// syncSaved replaces the saved valuation list, newest first
func (s *Store) syncSaved(ctx context.Context) error {
	docs, err := s.docs.List(ctx, s.paths.Saved, "date", database.Descending)
	if err != nil {
		s.log().WithError(err).Error("Error syncing saved valuations")
		return fmt.Errorf("failed to sync saved valuations: %w", err)
	}

	saved := make([]models.SavedValuation, 0, len(docs))
	for _, doc := range docs {
		var v models.SavedValuation
		if err := doc.Decode(&v); err != nil {
			s.log().WithError(err).WithField("path", doc.Path).Warn("Skipping undecodable saved valuation")
			continue
		}
		v.ID = doc.ID
		saved = append(saved, v)
	}

	s.mu.Lock()
	s.saved = saved
	s.mu.Unlock()
	return nil
}
