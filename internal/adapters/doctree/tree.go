// Package doctree holds the JSON tree operations shared by the document store adapters.
//
// Values are kept in their generic decoded form (map[string]any, []any, float64, string, bool).
// Empty objects never survive a mutation: a node whose last child is removed disappears too.
package doctree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/travelmap/ratings-api/internal/ports/out/docstore"
)

// Normalize converts value to its generic JSON form with empty objects stripped.
// A nil result means "no value" and is treated as a delete by every mutation.
func Normalize(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	var raw []byte
	switch v := value.(type) {
	case json.RawMessage:
		raw = v
	default:
		b, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode document: %w", err)
		}
		raw = b
	}
	var out any
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return prune(out), nil
}

func prune(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	for k, c := range m {
		if pc := prune(c); pc == nil {
			delete(m, k)
		} else {
			m[k] = pc
		}
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// Tree is a mutable JSON document. It is not safe for concurrent use.
type Tree struct {
	root any
}

func New() *Tree { return &Tree{} }

// Parse builds a tree from stored JSON. Empty input yields an empty tree.
func Parse(raw []byte) (*Tree, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return New(), nil
	}
	v, err := Normalize(json.RawMessage(raw))
	if err != nil {
		return nil, err
	}
	return &Tree{root: v}, nil
}

func (t *Tree) Empty() bool { return t.root == nil }

// Bytes encodes the whole tree. An empty tree encodes as "null".
func (t *Tree) Bytes() ([]byte, error) {
	return json.Marshal(t.root)
}

// Get returns the node at segs. The returned value aliases the tree.
func (t *Tree) Get(segs []string) (any, bool) {
	node := t.root
	for _, s := range segs {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[s]
		if !ok {
			return nil, false
		}
	}
	if node == nil {
		return nil, false
	}
	return node, true
}

// Read returns the encoded node at segs.
func (t *Tree) Read(segs []string) (json.RawMessage, bool, error) {
	v, ok := t.Get(segs)
	if !ok {
		return nil, false, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Set replaces the node at segs with an already normalized value. nil deletes.
// Scalars in the way are replaced by objects.
func (t *Tree) Set(segs []string, v any) {
	t.root = set(t.root, segs, v)
}

func set(node any, segs []string, v any) any {
	if len(segs) == 0 {
		return v
	}
	m, ok := node.(map[string]any)
	if !ok {
		if v == nil {
			return node
		}
		m = map[string]any{}
	}
	child := set(m[segs[0]], segs[1:], v)
	if child == nil {
		delete(m, segs[0])
	} else {
		m[segs[0]] = child
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// Write normalizes value and stores it at segs.
func (t *Tree) Write(segs []string, value any) error {
	v, err := Normalize(value)
	if err != nil {
		return err
	}
	t.Set(segs, v)
	return nil
}

// Merge applies fields as children of the object at segs, creating it when absent.
// Either every field applies or none does.
func (t *Tree) Merge(segs []string, fields map[string]any) error {
	if cur, ok := t.Get(segs); ok {
		if _, isObj := cur.(map[string]any); !isObj {
			return docstore.ErrNotObject
		}
	}
	normalized, err := NormalizeFields(fields)
	if err != nil {
		return err
	}
	for _, k := range SortedKeys(normalized) {
		t.Set(appendSeg(segs, k), normalized[k])
	}
	return nil
}

func (t *Tree) Delete(segs []string) {
	t.Set(segs, nil)
}

// NormalizeFields validates merge field names as path segments and normalizes their values.
func NormalizeFields(fields map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for k, fv := range fields {
		if err := docstore.Path(k).Validate(); err != nil || strings.Contains(k, "/") {
			return nil, fmt.Errorf("%w: merge field %q", docstore.ErrInvalidPath, k)
		}
		nv, err := Normalize(fv)
		if err != nil {
			return nil, err
		}
		out[k] = nv
	}
	return out, nil
}

func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func appendSeg(segs []string, s string) []string {
	out := make([]string, len(segs), len(segs)+1)
	copy(out, segs)
	return append(out, s)
}
