package docstore

import (
	"context"
	"fmt"
)

// Batch accumulates writes that are committed atomically. The first encoding
// error is kept and returned by Commit.
type Batch struct {
	client *Client
	writes []Write
	err    error
}

func (b *Batch) Set(collection, id string, data any) *Batch {
	m, err := Encode(data)
	if err != nil {
		b.fail(fmt.Errorf("encode %s/%s: %w", collection, id, err))
		return b
	}
	b.writes = append(b.writes, Write{Kind: WriteSet, Collection: collection, ID: id, Data: m})
	return b
}

func (b *Batch) Update(collection, id string, fields map[string]any) *Batch {
	m, err := Encode(fields)
	if err != nil {
		b.fail(fmt.Errorf("encode %s/%s: %w", collection, id, err))
		return b
	}
	b.writes = append(b.writes, Write{Kind: WriteUpdate, Collection: collection, ID: id, Data: m})
	return b
}

func (b *Batch) Delete(collection, id string) *Batch {
	b.writes = append(b.writes, Write{Kind: WriteDelete, Collection: collection, ID: id})
	return b
}

func (b *Batch) Len() int {
	return len(b.writes)
}

func (b *Batch) Commit(ctx context.Context) error {
	if b.err != nil {
		return b.err
	}
	return b.client.commit(ctx, b.writes)
}

func (b *Batch) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}
