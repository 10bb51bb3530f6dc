package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/travelmap/ratings-api/internal/adapters/doctree"
	"github.com/travelmap/ratings-api/internal/ports/out/docstore"
)

// Store is a Postgres implementation of docstore.Store.
//
// Documents are flattened into leaf rows of the documents table keyed by their full path.
// Subtree reads reassemble every row under a path prefix.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var errNilPool = errors.New("nil postgres pool")

func (s *Store) Read(ctx context.Context, path docstore.Path) (json.RawMessage, bool, error) {
	if s.pool == nil {
		return nil, false, errNilPool
	}
	if err := path.Validate(); err != nil {
		return nil, false, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT path, value
		FROM documents
		WHERE path = $1 OR path LIKE $2 ESCAPE '\'
	`, string(path), descendantsPattern(path))
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	leaves := map[string]any{}
	for rows.Next() {
		var (
			full string
			raw  []byte
		)
		if err := rows.Scan(&full, &raw); err != nil {
			return nil, false, err
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, false, fmt.Errorf("decode document %s: %w", full, err)
		}
		if rel, ok := doctree.Rel(string(path), full); ok {
			leaves[rel] = v
		}
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	if len(leaves) == 0 {
		return nil, false, nil
	}
	b, err := json.Marshal(doctree.Assemble(leaves))
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *Store) Write(ctx context.Context, path docstore.Path, value any) error {
	if s.pool == nil {
		return errNilPool
	}
	if err := path.Validate(); err != nil {
		return err
	}
	v, err := doctree.Normalize(value)
	if err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := deleteSubtree(ctx, tx, path); err != nil {
			return err
		}
		if v == nil {
			return nil
		}
		if err := deleteAncestorLeaves(ctx, tx, path); err != nil {
			return err
		}
		return insertLeaves(ctx, tx, path, v)
	})
}

func (s *Store) Merge(ctx context.Context, path docstore.Path, fields map[string]any) error {
	if s.pool == nil {
		return errNilPool
	}
	if err := path.Validate(); err != nil {
		return err
	}
	normalized, err := doctree.NormalizeFields(fields)
	if err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var isLeaf bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM documents WHERE path = $1)`, string(path)).Scan(&isLeaf); err != nil {
			return err
		}
		if isLeaf {
			return docstore.ErrNotObject
		}

		ancestorsCleared := false
		for _, k := range doctree.SortedKeys(normalized) {
			child := path.Child(k)
			if err := deleteSubtree(ctx, tx, child); err != nil {
				return err
			}
			fv := normalized[k]
			if fv == nil {
				continue
			}
			if !ancestorsCleared {
				if err := deleteAncestorLeaves(ctx, tx, child); err != nil {
					return err
				}
				ancestorsCleared = true
			}
			if err := insertLeaves(ctx, tx, child, fv); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Delete(ctx context.Context, path docstore.Path) error {
	if s.pool == nil {
		return errNilPool
	}
	if err := path.Validate(); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE path = $1 OR path LIKE $2 ESCAPE '\'`, string(path), descendantsPattern(path))
	return err
}

func deleteSubtree(ctx context.Context, tx pgx.Tx, path docstore.Path) error {
	_, err := tx.Exec(ctx, `DELETE FROM documents WHERE path = $1 OR path LIKE $2 ESCAPE '\'`, string(path), descendantsPattern(path))
	return err
}

func deleteAncestorLeaves(ctx context.Context, tx pgx.Tx, path docstore.Path) error {
	ancestors := doctree.Ancestors(string(path))
	if len(ancestors) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `DELETE FROM documents WHERE path = ANY($1)`, ancestors)
	return err
}

func insertLeaves(ctx context.Context, tx pgx.Tx, base docstore.Path, v any) error {
	b := &pgx.Batch{}
	for rel, leaf := range doctree.Flatten(v) {
		full := string(base)
		if rel != "" {
			full += "/" + rel
		}
		raw, err := json.Marshal(leaf)
		if err != nil {
			return err
		}
		b.Queue(`
			INSERT INTO documents (path, value, updated_at)
			VALUES ($1, $2::jsonb, now())
			ON CONFLICT (path) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
		`, full, string(raw))
	}
	return tx.SendBatch(ctx, b).Close()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// descendantsPattern matches every path strictly below p.
func descendantsPattern(p docstore.Path) string {
	return likeEscaper.Replace(string(p)) + "/%"
}
