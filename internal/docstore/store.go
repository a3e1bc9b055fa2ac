// Package docstore is a small document database layer: JSON documents grouped
// in collections, equality/range queries, and atomic batches of at most
// MaxBatchSize writes. Every committed write is reported to a ChangeSink,
// which is how document triggers are fed.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxBatchSize is the largest number of writes a single commit accepts.
const MaxBatchSize = 500

var (
	ErrNotFound      = errors.New("document not found")
	ErrBatchTooLarge = errors.New("batch exceeds maximum size")
	ErrInvalidQuery  = errors.New("invalid query")
)

type Document struct {
	Collection string
	ID         string
	Data       map[string]any
}

type ChangeKind string

const (
	KindCreate ChangeKind = "create"
	KindUpdate ChangeKind = "update"
	KindDelete ChangeKind = "delete"
)

// Change describes one committed write. Before is set for deletes, After for
// creates and updates.
type Change struct {
	Kind       ChangeKind
	Collection string
	ID         string
	Before     map[string]any
	After      map[string]any
	At         time.Time
}

// ChangeSink receives the changes of every successful commit, in commit order.
type ChangeSink func(ctx context.Context, changes []Change)

type WriteKind string

const (
	WriteSet    WriteKind = "set"
	WriteUpdate WriteKind = "update"
	WriteDelete WriteKind = "delete"
)

type Write struct {
	Kind       WriteKind
	Collection string
	ID         string
	Data       map[string]any
}

// Backend is the storage engine behind a Client. Commit must apply all writes
// or none of them.
type Backend interface {
	Get(ctx context.Context, collection, id string) (map[string]any, error)
	Find(ctx context.Context, q Query) ([]Document, error)
	Commit(ctx context.Context, writes []Write) ([]Change, error)
}

type Client struct {
	backend Backend
	sink    ChangeSink
}

func New(backend Backend, sink ChangeSink) *Client {
	return &Client{backend: backend, sink: sink}
}

// SetSink replaces the change sink. It must be called before the client is
// shared between goroutines.
func (c *Client) SetSink(sink ChangeSink) {
	c.sink = sink
}

func (c *Client) Get(ctx context.Context, collection, id string) (Document, error) {
	data, err := c.backend.Get(ctx, collection, id)
	if err != nil {
		return Document{}, err
	}
	return Document{Collection: collection, ID: id, Data: data}, nil
}

// Exists reports whether the document is present.
func (c *Client) Exists(ctx context.Context, collection, id string) (bool, error) {
	_, err := c.backend.Get(ctx, collection, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) Find(ctx context.Context, q Query) ([]Document, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	return c.backend.Find(ctx, q)
}

// Set writes the whole document, creating it if needed.
func (c *Client) Set(ctx context.Context, collection, id string, data any) error {
	return c.Batch().Set(collection, id, data).Commit(ctx)
}

// Add creates a document with a generated id.
func (c *Client) Add(ctx context.Context, collection string, data any) (string, error) {
	id := NewID()
	if err := c.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

// Update merges top level fields into an existing document. It fails with
// ErrNotFound when the document does not exist.
func (c *Client) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return c.Batch().Update(collection, id, fields).Commit(ctx)
}

// Delete removes the document. Deleting a missing document is not an error.
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	return c.Batch().Delete(collection, id).Commit(ctx)
}

func (c *Client) Batch() *Batch {
	return &Batch{client: c}
}

// DeleteDocs deletes the given documents in chunks of MaxBatchSize and returns
// how many were committed before the first failure.
func (c *Client) DeleteDocs(ctx context.Context, docs []Document) (int, error) {
	deleted := 0
	for start := 0; start < len(docs); start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > len(docs) {
			end = len(docs)
		}

		b := c.Batch()
		for _, d := range docs[start:end] {
			b.Delete(d.Collection, d.ID)
		}
		if err := b.Commit(ctx); err != nil {
			return deleted, err
		}
		deleted += end - start
	}
	return deleted, nil
}

// DeleteWhere deletes every document matched by the query.
func (c *Client) DeleteWhere(ctx context.Context, q Query) (int, error) {
	docs, err := c.Find(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("find %s: %w", q.Collection, err)
	}
	return c.DeleteDocs(ctx, docs)
}

func (c *Client) commit(ctx context.Context, writes []Write) error {
	if len(writes) == 0 {
		return nil
	}
	if len(writes) > MaxBatchSize {
		return fmt.Errorf("%w: %d writes", ErrBatchTooLarge, len(writes))
	}

	changes, err := c.backend.Commit(ctx, writes)
	if err != nil {
		return err
	}

	if c.sink != nil && len(changes) > 0 {
		c.sink(ctx, changes)
	}
	return nil
}

// NewID returns an id for a new document.
func NewID() string {
	return uuid.NewString()
}
