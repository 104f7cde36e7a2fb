// Package store keeps one session's valuation state: the target property,
// its comparables and the saved snapshots. With a user identity every
// mutation is mirrored to the document store and remote changes flow back
// through subscriptions. Without one the state lives only in memory.
package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tasaciones/server/config"
	"tasaciones/server/internal/database"
	"tasaciones/server/internal/metrics"
	"tasaciones/server/internal/models"
	"tasaciones/server/internal/processor"
	"tasaciones/server/internal/queue"
	"tasaciones/server/internal/valuation"
)

// DocumentStore is the remote persistence the store mirrors to
type DocumentStore interface {
	Get(ctx context.Context, path string, out any) (bool, error)
	Set(ctx context.Context, path string, value any, merge bool) error
	Update(ctx context.Context, path string, fields any) error
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, collection, orderBy string, dir database.Direction) ([]database.RawDocument, error)
	Count(ctx context.Context, collection string) (int, error)
	NewID() string
	NewBatch() *database.Batch
	Subscribe(prefix string, handler func([]queue.Change)) func()
}

// SheetFetcher downloads comparables from a spreadsheet link
type SheetFetcher interface {
	Fetch(ctx context.Context, sheetURL string) ([]models.Comparable, error)
}

type Options struct {
	// UserID is the authenticated identity. Empty means local-only mode.
	UserID string
	Docs   DocumentStore
	Sheets SheetFetcher
	Logger *logrus.Logger

	// WriterQueueSize bounds pending background writes
	WriterQueueSize int
}

// State is a copy of the session state at one point in time
type State struct {
	Target             models.TargetProperty   `json:"target"`
	Comparables        []models.Comparable     `json:"comparables"`
	SavedValuations    []models.SavedValuation `json:"savedValuations"`
	CurrentValuationID string                  `json:"currentValuationId,omitempty"`
	Authenticated      bool                    `json:"authenticated"`
}

type Store struct {
	userID string
	paths  database.UserPaths
	docs   DocumentStore
	sheets SheetFetcher
	writer *processor.Writer
	logger *logrus.Logger

	now        func() time.Time
	newLocalID func() string

	mu          sync.RWMutex
	target      models.TargetProperty
	comparables []models.Comparable
	saved       []models.SavedValuation
	currentID   string

	saveMu       sync.Mutex
	subsMu       sync.Mutex
	unsubscribes []func()
	closed       atomic.Bool
}

func New(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	writer := processor.NewWriter(opts.WriterQueueSize, logger)
	writer.OnError(func(job processor.Job, err error) {
		metrics.BackgroundWriteFailures.Inc()
	})
	writer.Start()

	s := &Store{
		userID:      opts.UserID,
		docs:        opts.Docs,
		sheets:      opts.Sheets,
		writer:      writer,
		logger:      logger,
		now:         time.Now,
		newLocalID:  uuid.NewString,
		target:      DefaultTarget(),
		comparables: []models.Comparable{},
		saved:       []models.SavedValuation{},
	}
	if opts.UserID != "" {
		s.paths = database.PathsForUser(opts.UserID)
	}
	return s
}

// Authenticated reports whether the store mirrors to the document store
func (s *Store) Authenticated() bool {
	return s.userID != "" && s.docs != nil
}

func (s *Store) UserID() string {
	return s.userID
}

func (s *Store) log() *logrus.Entry {
	if s.userID == "" {
		return s.logger.WithField("mode", "local")
	}
	return s.logger.WithField("user_id", s.userID)
}

// Snapshot returns a copy of the current state
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	saved := make([]models.SavedValuation, len(s.saved))
	for i, v := range s.saved {
		saved[i] = copyValuation(v)
	}
	return State{
		Target:             copyTarget(s.target),
		Comparables:        copyComparables(s.comparables),
		SavedValuations:    saved,
		CurrentValuationID: s.currentID,
		Authenticated:      s.Authenticated(),
	}
}

// Summary runs the valuation engine over the current state
func (s *Store) Summary() models.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return valuation.Evaluate(s.target, s.comparables)
}

// Flush waits for every pending background write
func (s *Store) Flush() {
	s.writer.Flush()
}

// persist queues an implicit write. Failures are only logged.
func (s *Store) persist(name string, fn func(ctx context.Context) error) {
	if err := s.writer.Submit(processor.Job{Name: name, Run: fn}); err != nil {
		s.log().WithError(err).WithField("job", name).Error("Failed to queue background write")
	}
}

// UpdateTarget merges patch into the target, applies it locally right away
// and persists the merged document in the background.
func (s *Store) UpdateTarget(patch models.TargetPatch) (models.TargetProperty, error) {
	if err := patch.Validate(); err != nil {
		return models.TargetProperty{}, err
	}

	s.mu.Lock()
	patch.Apply(&s.target, config.DefaultFactor)
	merged := copyTarget(s.target)
	s.mu.Unlock()

	if s.Authenticated() {
		path := s.paths.Target
		s.persist("update_target", func(ctx context.Context) error {
			return s.docs.Set(ctx, path, merged, true)
		})
	}
	return merged, nil
}

// AddComparable creates a comparable with default values. With a user
// identity the new document shows up locally once its change notification
// arrives.
func (s *Store) AddComparable() models.Comparable {
	c := DefaultComparable()

	if !s.Authenticated() {
		c.ID = s.newLocalID()
		s.mu.Lock()
		s.comparables = append(s.comparables, c)
		s.mu.Unlock()
		return c
	}

	c.ID = s.docs.NewID()
	path := s.paths.Comparable(c.ID)
	data := comparableData(c)
	s.persist("add_comparable", func(ctx context.Context) error {
		return s.docs.Set(ctx, path, data, false)
	})
	return c
}

// UpdateComparable merges patch into the comparable with the given id
func (s *Store) UpdateComparable(id string, patch models.ComparablePatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	if patch.SurfaceType != nil && patch.HomogenizationFactor == nil {
		f := config.DefaultFactor(*patch.SurfaceType)
		patch.HomogenizationFactor = &f
	}

	if s.Authenticated() {
		path := s.paths.Comparable(id)
		s.persist("update_comparable", func(ctx context.Context) error {
			return s.docs.Update(ctx, path, patch)
		})
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.comparables {
		if s.comparables[i].ID == id {
			patch.Apply(&s.comparables[i], nil)
			return nil
		}
	}
	return ErrComparableNotFound
}

// DeleteComparable removes the comparable with the given id
func (s *Store) DeleteComparable(id string) error {
	if s.Authenticated() {
		path := s.paths.Comparable(id)
		s.persist("delete_comparable", func(ctx context.Context) error {
			return s.docs.Delete(ctx, path)
		})
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.comparables {
		if c.ID == id {
			s.comparables = append(s.comparables[:i:i], s.comparables[i+1:]...)
			return nil
		}
	}
	return ErrComparableNotFound
}

// NewValuation resets the target and drops every comparable. A non-empty
// session needs confirmation.
func (s *Store) NewValuation(ctx context.Context, confirm Confirmer) error {
	s.mu.RLock()
	dirty := len(s.comparables) > 0 || s.target.Address != ""
	s.mu.RUnlock()

	if dirty && !confirmed(ctx, confirm, promptNewValuation) {
		return ErrNotConfirmed
	}

	empty := DefaultTarget()
	s.mu.Lock()
	s.target = copyTarget(empty)
	s.comparables = []models.Comparable{}
	s.currentID = ""
	s.mu.Unlock()

	if !s.Authenticated() {
		return nil
	}

	existing, err := s.docs.List(ctx, s.paths.Comparables, "", database.Ascending)
	if err != nil {
		return fmt.Errorf("failed to list comparables: %w", err)
	}

	batch := s.docs.NewBatch()
	batch.Set(s.paths.Target, empty, false)
	for _, doc := range existing {
		batch.Delete(doc.Path)
	}
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("failed to reset valuation: %w", err)
	}

	s.log().WithFields(logrus.Fields{
		"deleted_comparables": len(existing),
		"operations":          batch.Len(),
	}).Info("New valuation reset committed")
	return nil
}

// SaveValuation snapshots the current target and comparables. The first
// save creates a document; later saves overwrite it.
func (s *Store) SaveValuation(ctx context.Context) (models.SavedValuation, error) {
	if !s.Authenticated() {
		return models.SavedValuation{}, ErrNotAuthenticated
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	target := copyTarget(s.target)
	comparables := copyComparables(s.comparables)
	currentID := s.currentID
	s.mu.RUnlock()

	if currentID == "" {
		count, err := s.docs.Count(ctx, s.paths.Saved)
		if err != nil {
			return models.SavedValuation{}, fmt.Errorf("failed to count saved valuations: %w", err)
		}
		if count >= models.MaxSavedValuations {
			return models.SavedValuation{}, fmt.Errorf("%w: at most %d", ErrSnapshotLimit, models.MaxSavedValuations)
		}
	}

	address := strings.TrimSpace(target.Address)
	if address == "" {
		return models.SavedValuation{}, ErrEmptyAddress
	}

	now := s.now()
	snapshot := models.SavedValuation{
		Name:        fmt.Sprintf("%s - %s", address, now.Format("02/01/2006")),
		Date:        now.UnixMilli(),
		Target:      target,
		Comparables: comparables,
	}

	id := currentID
	if id == "" {
		id = s.docs.NewID()
	}
	if err := s.docs.Set(ctx, s.paths.SavedValuation(id), snapshot, true); err != nil {
		s.log().WithError(err).Error("Failed to save valuation")
		return models.SavedValuation{}, fmt.Errorf("failed to save valuation: %w", err)
	}

	if currentID == "" {
		s.mu.Lock()
		s.currentID = id
		s.mu.Unlock()
	}
	metrics.ValuationsSaved.Inc()

	s.log().WithFields(logrus.Fields{
		"valuation_id": id,
		"overwrite":    currentID != "",
	}).Info("Valuation saved")

	snapshot.ID = id
	return snapshot, nil
}

// DeleteValuation removes a saved snapshot after confirmation
func (s *Store) DeleteValuation(ctx context.Context, id string, confirm Confirmer) error {
	if !s.Authenticated() {
		return ErrNotAuthenticated
	}
	if !confirmed(ctx, confirm, promptDeleteValuation) {
		return ErrNotConfirmed
	}

	if err := s.docs.Delete(ctx, s.paths.SavedValuation(id)); err != nil {
		s.log().WithError(err).WithField("valuation_id", id).Error("Failed to delete valuation")
		return fmt.Errorf("failed to delete valuation: %w", err)
	}

	s.mu.Lock()
	if s.currentID == id {
		s.currentID = ""
	}
	s.mu.Unlock()
	return nil
}

// LoadValuation replaces the session state with snapshot after
// confirmation. Comparables receive fresh ids.
func (s *Store) LoadValuation(ctx context.Context, snapshot models.SavedValuation, confirm Confirmer) error {
	if !confirmed(ctx, confirm, promptLoadValuation) {
		return ErrNotConfirmed
	}

	loaded := make([]models.Comparable, len(snapshot.Comparables))
	for i, c := range snapshot.Comparables {
		c = copyComparable(c)
		if s.Authenticated() {
			c.ID = s.docs.NewID()
		} else {
			c.ID = s.newLocalID()
		}
		loaded[i] = c
	}
	target := copyTarget(snapshot.Target)

	s.mu.Lock()
	s.target = target
	s.comparables = copyComparables(loaded)
	s.currentID = snapshot.ID
	s.mu.Unlock()

	if !s.Authenticated() {
		return nil
	}

	existing, err := s.docs.List(ctx, s.paths.Comparables, "", database.Ascending)
	if err != nil {
		return fmt.Errorf("failed to list comparables: %w", err)
	}

	batch := s.docs.NewBatch()
	batch.Set(s.paths.Target, target, true)
	for _, doc := range existing {
		batch.Delete(doc.Path)
	}
	for _, c := range loaded {
		batch.Set(s.paths.Comparable(c.ID), comparableData(c), false)
	}
	if err := batch.Commit(ctx); err != nil {
		s.log().WithError(err).WithField("valuation_id", snapshot.ID).Error("Failed to load valuation")
		return fmt.Errorf("failed to load valuation: %w", err)
	}

	s.log().WithFields(logrus.Fields{
		"valuation_id": snapshot.ID,
		"comparables":  len(loaded),
		"operations":   batch.Len(),
	}).Info("Valuation loaded")
	return nil
}

// LoadValuationByID looks up a saved snapshot and loads it
func (s *Store) LoadValuationByID(ctx context.Context, id string, confirm Confirmer) error {
	snapshot, err := s.SavedValuation(ctx, id)
	if err != nil {
		return err
	}
	return s.LoadValuation(ctx, snapshot, confirm)
}

// SavedValuation returns one saved snapshot by id
func (s *Store) SavedValuation(ctx context.Context, id string) (models.SavedValuation, error) {
	s.mu.RLock()
	for _, v := range s.saved {
		if v.ID == id {
			s.mu.RUnlock()
			return copyValuation(v), nil
		}
	}
	s.mu.RUnlock()

	if !s.Authenticated() {
		return models.SavedValuation{}, ErrValuationNotFound
	}

	var snapshot models.SavedValuation
	found, err := s.docs.Get(ctx, s.paths.SavedValuation(id), &snapshot)
	if err != nil {
		return models.SavedValuation{}, err
	}
	if !found {
		return models.SavedValuation{}, ErrValuationNotFound
	}
	snapshot.ID = id
	return snapshot, nil
}

// ImportComparables creates every comparable in one go: one batch when
// authenticated, a local append otherwise.
func (s *Store) ImportComparables(ctx context.Context, comparables []models.Comparable) ([]models.Comparable, error) {
	created := make([]models.Comparable, len(comparables))
	for i, c := range comparables {
		c = copyComparable(c)
		if c.Images == nil {
			c.Images = []string{}
		}
		if s.Authenticated() {
			c.ID = s.docs.NewID()
		} else {
			c.ID = s.newLocalID()
		}
		created[i] = c
	}

	if s.Authenticated() {
		batch := s.docs.NewBatch()
		for _, c := range created {
			batch.Set(s.paths.Comparable(c.ID), comparableData(c), false)
		}
		if err := batch.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to import comparables: %w", err)
		}
	} else {
		s.mu.Lock()
		s.comparables = append(s.comparables, copyComparables(created)...)
		s.mu.Unlock()
	}

	metrics.ComparablesImported.Add(float64(len(created)))
	s.log().WithField("rows", len(created)).Info("Imported comparables")
	return created, nil
}

// ImportFromSpreadsheet fetches a shared spreadsheet and bulk-creates its rows
func (s *Store) ImportFromSpreadsheet(ctx context.Context, sheetURL string) ([]models.Comparable, error) {
	if strings.TrimSpace(sheetURL) == "" {
		return nil, ErrEmptySheetURL
	}
	if s.sheets == nil {
		return nil, ErrImportUnavailable
	}

	comparables, err := s.sheets.Fetch(ctx, sheetURL)
	if err != nil {
		s.log().WithError(err).Error("Spreadsheet import failed")
		return nil, err
	}
	return s.ImportComparables(ctx, comparables)
}

// comparableData strips the id, which lives in the document path
func comparableData(c models.Comparable) models.Comparable {
	c.ID = ""
	return c
}

func copyTarget(t models.TargetProperty) models.TargetProperty {
	if t.Images != nil {
		t.Images = append([]string{}, t.Images...)
	}
	return t
}

func copyComparable(c models.Comparable) models.Comparable {
	c.TargetProperty = copyTarget(c.TargetProperty)
	return c
}

func copyComparables(in []models.Comparable) []models.Comparable {
	out := make([]models.Comparable, len(in))
	for i, c := range in {
		out[i] = copyComparable(c)
	}
	return out
}

func copyValuation(v models.SavedValuation) models.SavedValuation {
	v.Target = copyTarget(v.Target)
	v.Comparables = copyComparables(v.Comparables)
	return v
}
