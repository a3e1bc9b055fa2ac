package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection  TEXT        NOT NULL,
	id          TEXT        NOT NULL,
	data        JSONB       NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_data_gin ON documents USING GIN (data jsonb_path_ops);
CREATE OR REPLACE FUNCTION docstore_timestamptz(v text) RETURNS timestamptz AS $$
BEGIN
	IF v !~ '^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})$' THEN
		RETURN NULL;
	END IF;
	RETURN v::timestamptz;
EXCEPTION WHEN others THEN
	RETURN NULL;
END
$$ LANGUAGE plpgsql STABLE;
`

// PgBackend stores every collection in one JSONB table.
type PgBackend struct {
	pool *pgxpool.Pool
}

func NewPgBackend(pool *pgxpool.Pool) *PgBackend {
	return &PgBackend{pool: pool}
}

// EnsureSchema creates the documents table if it does not exist yet.
func (b *PgBackend) EnsureSchema(ctx context.Context) error {
	if _, err := b.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure documents schema: %w", err)
	}
	return nil
}

func (b *PgBackend) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	var raw []byte
	err := b.pool.QueryRow(ctx, `
		SELECT data
		FROM documents
		WHERE collection = $1 AND id = $2
	`, collection, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
		return nil, err
	}
	return unmarshalData(raw)
}

func (b *PgBackend) Find(ctx context.Context, q Query) ([]Document, error) {
	sql, args, err := buildFind(q)
	if err != nil {
		return nil, err
	}

	rows, err := b.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Document
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		data, err := unmarshalData(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", q.Collection, id, err)
		}
		result = append(result, Document{Collection: q.Collection, ID: id, Data: data})
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (b *PgBackend) Commit(ctx context.Context, writes []Write) ([]Change, error) {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback(ctx)

	changes := make([]Change, 0, len(writes))
	for _, w := range writes {
		ch, ok, err := applyWrite(ctx, tx, w)
		if err != nil {
			return nil, err
		}
		if ok {
			changes = append(changes, ch)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit batch: %w", err)
	}

	at := time.Now().UTC()
	for i := range changes {
		changes[i].At = at
	}
	return changes, nil
}

func applyWrite(ctx context.Context, tx pgx.Tx, w Write) (Change, bool, error) {
	key := w.Collection + "/" + w.ID

	switch w.Kind {
	case WriteSet:
		payload, err := json.Marshal(w.Data)
		if err != nil {
			return Change{}, false, fmt.Errorf("encode %s: %w", key, err)
		}
		var inserted bool
		err = tx.QueryRow(ctx, `
			INSERT INTO documents (collection, id, data, created_at, updated_at)
			VALUES ($1, $2, $3::jsonb, now(), now())
			ON CONFLICT (collection, id) DO UPDATE
			SET data = EXCLUDED.data,
			    updated_at = now()
			RETURNING (xmax = 0)
		`, w.Collection, w.ID, string(payload)).Scan(&inserted)
		if err != nil {
			return Change{}, false, fmt.Errorf("set %s: %w", key, err)
		}
		kind := KindUpdate
		if inserted {
			kind = KindCreate
		}
		return Change{Kind: kind, Collection: w.Collection, ID: w.ID, After: clone(w.Data)}, true, nil

	case WriteUpdate:
		payload, err := json.Marshal(w.Data)
		if err != nil {
			return Change{}, false, fmt.Errorf("encode %s: %w", key, err)
		}
		var raw []byte
		err = tx.QueryRow(ctx, `
			UPDATE documents
			SET data = data || $3::jsonb,
			    updated_at = now()
			WHERE collection = $1 AND id = $2
			RETURNING data
		`, w.Collection, w.ID, string(payload)).Scan(&raw)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return Change{}, false, fmt.Errorf("update %s: %w", key, ErrNotFound)
			}
			return Change{}, false, fmt.Errorf("update %s: %w", key, err)
		}
		after, err := unmarshalData(raw)
		if err != nil {
			return Change{}, false, err
		}
		return Change{Kind: KindUpdate, Collection: w.Collection, ID: w.ID, After: after}, true, nil

	case WriteDelete:
		var raw []byte
		err := tx.QueryRow(ctx, `
			DELETE FROM documents
			WHERE collection = $1 AND id = $2
			RETURNING data
		`, w.Collection, w.ID).Scan(&raw)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return Change{}, false, nil
			}
			return Change{}, false, fmt.Errorf("delete %s: %w", key, err)
		}
		before, err := unmarshalData(raw)
		if err != nil {
			return Change{}, false, err
		}
		return Change{Kind: KindDelete, Collection: w.Collection, ID: w.ID, Before: before}, true, nil
	}

	return Change{}, false, fmt.Errorf("unknown write kind %q", w.Kind)
}

// buildFind translates a query into SQL over the documents table. Field
// names are passed as parameters, never spliced into the statement.
func buildFind(q Query) (string, []any, error) {
	var sb strings.Builder
	args := []any{q.Collection}

	sb.WriteString("SELECT id, data FROM documents WHERE collection = $1")

	for _, f := range q.Filters {
		args = append(args, f.Field)
		fieldArg := len(args)

		switch f.Op {
		case OpEq:
			payload, err := json.Marshal(f.Value)
			if err != nil {
				return "", nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
			}
			args = append(args, string(payload))
			fmt.Fprintf(&sb, " AND data -> $%d::text = $%d::jsonb", fieldArg, len(args))

		case OpIn:
			args = append(args, f.Value)
			fmt.Fprintf(&sb, " AND data ->> $%d::text = ANY($%d::text[])", fieldArg, len(args))

		// Range filters only match stored values of the filter's kind, so a
		// malformed document is skipped instead of failing the query.
		case OpLt, OpLte, OpGt, OpGte:
			args = append(args, f.Value)
			switch f.Value.(type) {
			case time.Time:
				fmt.Fprintf(&sb, " AND docstore_timestamptz(data ->> $%d::text) %s $%d", fieldArg, f.Op, len(args))
			case float64:
				fmt.Fprintf(&sb, " AND (CASE WHEN jsonb_typeof(data -> $%d::text) = 'number' THEN (data ->> $%d::text)::numeric END) %s $%d",
					fieldArg, fieldArg, f.Op, len(args))
			case string:
				fmt.Fprintf(&sb, " AND jsonb_typeof(data -> $%d::text) = 'string' AND (data ->> $%d::text) COLLATE \"C\" %s $%d",
					fieldArg, fieldArg, f.Op, len(args))
			default:
				return "", nil, fmt.Errorf("%w: cannot range over %T", ErrInvalidQuery, f.Value)
			}

		default:
			return "", nil, fmt.Errorf("%w: unsupported operator %q", ErrInvalidQuery, f.Op)
		}
	}

	sb.WriteString(" ORDER BY id")
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	return sb.String(), args, nil
}

func unmarshalData(raw []byte) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}
