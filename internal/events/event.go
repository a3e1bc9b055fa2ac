// Package events carries document changes and auth deletions to trigger
// handlers, either in process or over a Redis stream.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hackgods/clinic-functions/internal/docstore"
)

type Source string

const (
	SourceDocument Source = "document"
	SourceAuth     Source = "auth"
)

// Event is one trigger input. Document events carry the collection, id and
// the data before/after the write. Auth events carry the deleted uid/email.
type Event struct {
	Source     Source              `json:"source"`
	Kind       docstore.ChangeKind `json:"kind"`
	Collection string              `json:"collection,omitempty"`
	DocID      string              `json:"docId,omitempty"`
	Before     map[string]any      `json:"before,omitempty"`
	After      map[string]any      `json:"after,omitempty"`
	UID        string              `json:"uid,omitempty"`
	Email      string              `json:"email,omitempty"`
	At         time.Time           `json:"at"`
}

func FromChange(c docstore.Change) Event {
	return Event{
		Source:     SourceDocument,
		Kind:       c.Kind,
		Collection: c.Collection,
		DocID:      c.ID,
		Before:     c.Before,
		After:      c.After,
		At:         c.At,
	}
}

func AuthDeleted(uid, email string, at time.Time) Event {
	return Event{
		Source: SourceAuth,
		Kind:   docstore.KindDelete,
		UID:    uid,
		Email:  email,
		At:     at.UTC(),
	}
}

func (e Event) String() string {
	if e.Source == SourceAuth {
		return fmt.Sprintf("auth.%s(%s)", e.Kind, e.UID)
	}
	return fmt.Sprintf("%s.%s(%s)", e.Collection, e.Kind, e.DocID)
}

func encode(e Event) (string, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode event %s: %w", e, err)
	}
	return string(raw), nil
}

func decode(raw string) (Event, error) {
	var e Event
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if e.Source != SourceDocument && e.Source != SourceAuth {
		return Event{}, fmt.Errorf("decode event: unknown source %q", e.Source)
	}
	return e, nil
}
