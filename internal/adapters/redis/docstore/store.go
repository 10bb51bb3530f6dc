package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/travelmap/ratings-api/internal/adapters/doctree"
	redisadapter "github.com/travelmap/ratings-api/internal/adapters/redis"
	"github.com/travelmap/ratings-api/internal/ports/out/docstore"
)

// rootField holds a scalar stored directly at a shard path. "." can never be a path segment.
const rootField = "."

const maxTxRetries = 16

// Store is a Redis implementation of docstore.Store.
//
// Each two-segment path (for example userCountries/{uid}) is a shard stored as one hash under
// prefix+shard. Hash fields are the leaf paths relative to the shard, values are JSON. Mutations
// inside a shard run as WATCH/MULTI transactions. Single-segment paths span shards and may only
// hold objects.
type Store struct {
	rdb    *goredis.Client
	prefix string
}

func NewStore(rdb *goredis.Client, keyPrefix string) *Store {
	return &Store{rdb: rdb, prefix: keyPrefix}
}

type location struct {
	shard string
	rel   string
}

func locate(p docstore.Path) (location, bool) {
	segs := p.Segments()
	if len(segs) < 2 {
		return location{}, false
	}
	return location{shard: segs[0] + "/" + segs[1], rel: strings.Join(segs[2:], "/")}, true
}

func (s *Store) key(shard string) string { return s.prefix + shard }

func field(rel string) string {
	if rel == "" {
		return rootField
	}
	return rel
}

func relOf(f string) string {
	if f == rootField {
		return ""
	}
	return f
}

func (s *Store) Read(ctx context.Context, path docstore.Path) (json.RawMessage, bool, error) {
	if err := path.Validate(); err != nil {
		return nil, false, err
	}

	leaves := map[string]any{}
	if loc, ok := locate(path); ok {
		vals, err := s.rdb.HGetAll(ctx, s.key(loc.shard)).Result()
		if err != nil {
			return nil, false, err
		}
		if err := collect(vals, loc.rel, "", leaves); err != nil {
			return nil, false, err
		}
	} else {
		keys, err := s.shardKeys(ctx, string(path))
		if err != nil {
			return nil, false, err
		}
		for _, k := range keys {
			vals, err := s.rdb.HGetAll(ctx, k).Result()
			if err != nil {
				return nil, false, err
			}
			child := strings.TrimPrefix(k, s.key(string(path))+"/")
			if err := collect(vals, "", child, leaves); err != nil {
				return nil, false, err
			}
		}
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

// collect decodes the hash fields lying at or below base into leaves, keyed relative to base and
// prefixed with under.
func collect(vals map[string]string, base, under string, leaves map[string]any) error {
	for f, raw := range vals {
		rel, ok := doctree.Rel(base, relOf(f))
		if !ok {
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return fmt.Errorf("decode redis field %q: %w", f, err)
		}
		switch {
		case under == "":
			leaves[rel] = v
		case rel == "":
			leaves[under] = v
		default:
			leaves[under+"/"+rel] = v
		}
	}
	return nil
}

func (s *Store) Write(ctx context.Context, path docstore.Path, value any) error {
	if err := path.Validate(); err != nil {
		return err
	}
	v, err := doctree.Normalize(value)
	if err != nil {
		return err
	}
	loc, ok := locate(path)
	if !ok {
		return s.writeTopLevel(ctx, string(path), v)
	}
	return s.inShard(ctx, loc.shard, func(fields []string) ([]string, map[string]any, error) {
		del := fieldsUnder(fields, loc.rel)
		if v == nil {
			return del, nil, nil
		}
		del = append(del, ancestorFields(fields, loc.rel)...)
		return del, leafFields(loc.rel, v), nil
	})
}

func (s *Store) Merge(ctx context.Context, path docstore.Path, fields map[string]any) error {
	if err := path.Validate(); err != nil {
		return err
	}
	normalized, err := doctree.NormalizeFields(fields)
	if err != nil {
		return err
	}
	loc, ok := locate(path)
	if !ok {
		for _, k := range doctree.SortedKeys(normalized) {
			child := string(path) + "/" + k
			if normalized[k] == nil {
				if err := s.rdb.Del(ctx, s.key(child)).Err(); err != nil {
					return err
				}
				continue
			}
			if err := s.Write(ctx, docstore.Path(child), normalized[k]); err != nil {
				return err
			}
		}
		return nil
	}

	return s.inShard(ctx, loc.shard, func(existing []string) ([]string, map[string]any, error) {
		for _, f := range existing {
			if f == field(loc.rel) {
				return nil, nil, docstore.ErrNotObject
			}
		}
		var del []string
		ins := map[string]any{}
		for _, k := range doctree.SortedKeys(normalized) {
			childRel := k
			if loc.rel != "" {
				childRel = loc.rel + "/" + k
			}
			del = append(del, fieldsUnder(existing, childRel)...)
			if normalized[k] == nil {
				continue
			}
			del = append(del, ancestorFields(existing, childRel)...)
			for f, leaf := range leafFields(childRel, normalized[k]) {
				ins[f] = leaf
			}
		}
		return del, ins, nil
	})
}

func (s *Store) Delete(ctx context.Context, path docstore.Path) error {
	if err := path.Validate(); err != nil {
		return err
	}
	loc, ok := locate(path)
	if !ok {
		keys, err := s.shardKeys(ctx, string(path))
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			return nil
		}
		return s.rdb.Del(ctx, keys...).Err()
	}
	if loc.rel == "" {
		return s.rdb.Del(ctx, s.key(loc.shard)).Err()
	}
	return s.inShard(ctx, loc.shard, func(fields []string) ([]string, map[string]any, error) {
		return fieldsUnder(fields, loc.rel), nil, nil
	})
}

func (s *Store) writeTopLevel(ctx context.Context, top string, v any) error {
	children, isObj := v.(map[string]any)
	if v != nil && !isObj {
		return docstore.ErrNotObject
	}
	keys, err := s.shardKeys(ctx, top)
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
			return err
		}
	}
	for _, k := range doctree.SortedKeys(children) {
		if err := s.Write(ctx, docstore.Path(top+"/"+k), children[k]); err != nil {
			return err
		}
	}
	return nil
}

// shardKeys lists the hash keys of every shard below a single-segment path.
func (s *Store) shardKeys(ctx context.Context, top string) ([]string, error) {
	var out []string
	iter := s.rdb.Scan(ctx, 0, redisadapter.EscapeGlob(s.key(top)+"/")+"*", 100).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	return out, iter.Err()
}

type shardChange func(existing []string) (del []string, ins map[string]any, err error)

// inShard runs change against the current field list of a shard and applies the result
// atomically, retrying when the shard is modified concurrently.
func (s *Store) inShard(ctx context.Context, shard string, change shardChange) error {
	key := s.key(shard)
	txf := func(tx *goredis.Tx) error {
		existing, err := tx.HKeys(ctx, key).Result()
		if err != nil {
			return err
		}
		del, ins, err := change(existing)
		if err != nil {
			return err
		}
		if len(del) == 0 && len(ins) == 0 {
			return nil
		}
		encoded := make(map[string]any, len(ins))
		for f, leaf := range ins {
			b, err := json.Marshal(leaf)
			if err != nil {
				return err
			}
			encoded[f] = string(b)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			if len(del) > 0 {
				pipe.HDel(ctx, key, del...)
			}
			if len(encoded) > 0 {
				pipe.HSet(ctx, key, encoded)
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis shard %s: too much contention", shard)
}

// fieldsUnder lists existing fields at or below rel.
func fieldsUnder(existing []string, rel string) []string {
	var out []string
	for _, f := range existing {
		if _, ok := doctree.Rel(rel, relOf(f)); ok {
			out = append(out, f)
		}
	}
	return out
}

// ancestorFields lists existing scalar fields that would sit above rel.
func ancestorFields(existing []string, rel string) []string {
	if rel == "" {
		return nil
	}
	want := map[string]bool{rootField: true}
	for _, a := range doctree.Ancestors(rel) {
		want[a] = true
	}
	var out []string
	for _, f := range existing {
		if want[f] {
			out = append(out, f)
		}
	}
	return out
}

func leafFields(base string, v any) map[string]any {
	out := map[string]any{}
	for rel, leaf := range doctree.Flatten(v) {
		full := base
		switch {
		case full == "":
			full = rel
		case rel != "":
			full += "/" + rel
		}
		out[field(full)] = leaf
	}
	return out
}
