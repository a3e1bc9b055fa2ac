package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryBackend keeps documents in process. It backs tests and local runs
// without Postgres.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string]map[string]map[string]any
	now  func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		data: make(map[string]map[string]map[string]any),
		now:  time.Now,
	}
}

func (m *MemoryBackend) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.data[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return clone(doc), nil
}

func (m *MemoryBackend) Find(ctx context.Context, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	coll := m.data[q.Collection]
	ids := make([]string, 0, len(coll))
	for id := range coll {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []Document
	for _, id := range ids {
		if !Matches(coll[id], q.Filters) {
			continue
		}
		out = append(out, Document{Collection: q.Collection, ID: id, Data: clone(coll[id])})
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryBackend) Commit(ctx context.Context, writes []Write) ([]Change, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Updates against missing documents fail the whole batch, so check them
	// against the state the batch itself builds up before touching anything.
	present := make(map[string]bool)
	for _, w := range writes {
		key := w.Collection + "/" + w.ID
		_, exists := m.data[w.Collection][w.ID]
		if seen, ok := present[key]; ok {
			exists = seen
		}
		switch w.Kind {
		case WriteSet:
			present[key] = true
		case WriteDelete:
			present[key] = false
		case WriteUpdate:
			if !exists {
				return nil, fmt.Errorf("update %s: %w", key, ErrNotFound)
			}
		default:
			return nil, fmt.Errorf("unknown write kind %q", w.Kind)
		}
	}

	at := m.now().UTC()
	changes := make([]Change, 0, len(writes))
	for _, w := range writes {
		coll, ok := m.data[w.Collection]
		if !ok {
			coll = make(map[string]map[string]any)
			m.data[w.Collection] = coll
		}

		switch w.Kind {
		case WriteSet:
			_, existed := coll[w.ID]
			coll[w.ID] = clone(w.Data)
			kind := KindCreate
			if existed {
				kind = KindUpdate
			}
			changes = append(changes, Change{Kind: kind, Collection: w.Collection, ID: w.ID, After: clone(w.Data), At: at})
		case WriteUpdate:
			doc := coll[w.ID]
			for k, v := range w.Data {
				doc[k] = cloneValue(v)
			}
			changes = append(changes, Change{Kind: KindUpdate, Collection: w.Collection, ID: w.ID, After: clone(doc), At: at})
		case WriteDelete:
			before, existed := coll[w.ID]
			if !existed {
				continue
			}
			delete(coll, w.ID)
			changes = append(changes, Change{Kind: KindDelete, Collection: w.Collection, ID: w.ID, Before: before, At: at})
		}
	}
	return changes, nil
}

// Count returns the number of documents in a collection.
func (m *MemoryBackend) Count(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data[collection])
}
