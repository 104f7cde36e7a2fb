package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"tasaciones/server/internal/queue"
)

var (
	ErrNotFound     = errors.New("document not found")
	ErrInvalidPath  = errors.New("invalid document path")
	ErrInvalidField = errors.New("invalid order field")
)

// Direction is the sort order of a collection query
type Direction string

const (
	Ascending  Direction = "ASC"
	Descending Direction = "DESC"
)

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Document is one JSON document stored under a slash separated path
type Document struct {
	Path       string    `gorm:"primaryKey;type:text"`
	Collection string    `gorm:"type:text;not null;index:idx_documents_collection"`
	DocID      string    `gorm:"column:doc_id;type:text;not null"`
	Data       string    `gorm:"type:text;not null"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"not null;autoUpdateTime"`
}

func (Document) TableName() string {
	return "documents"
}

// RawDocument is a query result with its undecoded payload
type RawDocument struct {
	ID   string
	Path string
	Data json.RawMessage
}

// Decode unmarshals the payload into out
func (r RawDocument) Decode(out any) error {
	return json.Unmarshal(r.Data, out)
}

type Database struct {
	db     *gorm.DB
	feed   *queue.ChangeQueue
	logger *logrus.Logger
}

// NewDatabase opens the sqlite file at dbPath. Every committed write is
// announced on feed.
func NewDatabase(dbPath string, feed *queue.ChangeQueue, logger *logrus.Logger) (*Database, error) {
	if logger == nil {
		logger = logrus.New()
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}
	// sqlite allows a single writer
	sqlDB.SetMaxOpenConns(1)

	return &Database{db: db, feed: feed, logger: logger}, nil
}

// NewTestDB opens a private in-memory database with the schema applied
func NewTestDB(feed *queue.ChangeQueue) (*Database, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	d, err := NewDatabase(dsn, feed, nil)
	if err != nil {
		return nil, err
	}
	if err := d.RunMigrations(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// NewID returns a fresh document id
func (d *Database) NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Subscribe forwards to the change feed
func (d *Database) Subscribe(prefix string, handler func([]queue.Change)) func() {
	if d.feed == nil {
		return func() {}
	}
	return d.feed.Subscribe(prefix, handler)
}

// Get loads the document at path into out. The boolean is false when the
// document does not exist.
func (d *Database) Get(ctx context.Context, path string, out any) (bool, error) {
	if _, _, err := splitPath(path); err != nil {
		return false, err
	}

	var doc Document
	err := d.db.WithContext(ctx).Where("path = ?", path).Take(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get document %s: %w", path, err)
	}

	if err := json.Unmarshal([]byte(doc.Data), out); err != nil {
		return false, fmt.Errorf("failed to decode document %s: %w", path, err)
	}
	return true, nil
}

// Set writes value at path. With merge the top-level fields of value are
// laid over the existing document, otherwise the document is replaced.
func (d *Database) Set(ctx context.Context, path string, value any, merge bool) error {
	b := d.NewBatch()
	b.Set(path, value, merge)
	return b.Commit(ctx)
}

// Update merges fields into an existing document and fails with ErrNotFound
// when there is none.
func (d *Database) Update(ctx context.Context, path string, fields any) error {
	b := d.NewBatch()
	b.Update(path, fields)
	return b.Commit(ctx)
}

// Delete removes the document at path. Deleting a missing document is not
// an error.
func (d *Database) Delete(ctx context.Context, path string) error {
	b := d.NewBatch()
	b.Delete(path)
	return b.Commit(ctx)
}

// List returns every document directly under collection sorted by the
// top-level JSON field orderBy. An empty orderBy sorts by creation time.
func (d *Database) List(ctx context.Context, collection, orderBy string, dir Direction) ([]RawDocument, error) {
	if dir != Descending {
		dir = Ascending
	}

	query := d.db.WithContext(ctx).Where("collection = ?", collection)
	if orderBy != "" {
		if !fieldPattern.MatchString(orderBy) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidField, orderBy)
		}
		query = query.Order(fmt.Sprintf("json_extract(data, '$.%s') %s", orderBy, dir))
	}
	query = query.Order("created_at ASC").Order("path ASC")

	var docs []Document
	if err := query.Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to query collection %s: %w", collection, err)
	}

	result := make([]RawDocument, len(docs))
	for i, doc := range docs {
		result[i] = RawDocument{ID: doc.DocID, Path: doc.Path, Data: json.RawMessage(doc.Data)}
	}
	return result, nil
}

// Count returns the number of documents directly under collection
func (d *Database) Count(ctx context.Context, collection string) (int, error) {
	var n int64
	if err := d.db.WithContext(ctx).Model(&Document{}).Where("collection = ?", collection).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count collection %s: %w", collection, err)
	}
	return int(n), nil
}

func (d *Database) publish(changes []queue.Change) {
	if d.feed == nil || d.feed.IsClosed() || len(changes) == 0 {
		return
	}
	if err := d.feed.Push(changes); err != nil {
		d.logger.WithError(err).WithField("changes", len(changes)).Debug("Change feed closed, changes not published")
	}
}

// upsert writes raw JSON at path inside tx
func upsert(tx *gorm.DB, path string, data []byte) error {
	collection, id, err := splitPath(path)
	if err != nil {
		return err
	}
	doc := Document{Path: path, Collection: collection, DocID: id, Data: string(data)}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&doc).Error
}

// splitPath returns the parent collection and the id of a document path.
// Document paths have an even number of segments.
func splitPath(path string) (string, string, error) {
	segments := strings.Split(path, "/")
	if len(segments) < 2 || len(segments)%2 != 0 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	for _, s := range segments {
		if s == "" {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	i := strings.LastIndex(path, "/")
	return path[:i], path[i+1:], nil
}

// mergeJSON lays the top-level keys of patch over base
func mergeJSON(base, patch []byte) ([]byte, error) {
	merged := map[string]json.RawMessage{}
	if len(base) > 0 {
		if err := json.Unmarshal(base, &merged); err != nil {
			return nil, err
		}
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(patch, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}
