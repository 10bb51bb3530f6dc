package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/travelmap/ratings-api/internal/adapters/doctree"
	"github.com/travelmap/ratings-api/internal/ports/out/docstore"
)

const (
	objectSuffix = ".json"
	maxAttempts  = 16
)

// Store is a Cloud Storage implementation of docstore.Store.
//
// Every two-segment path (for example userCountries/{uid}) is one JSON object named
// prefix+path+".json" holding that node's subtree. Changes inside an object are read-modify-write
// cycles guarded by generation preconditions. Single-segment paths span objects and may only hold
// objects.
type Store struct {
	bucket *storage.BucketHandle
	prefix string
}

func NewStore(bucket *storage.BucketHandle, objectPrefix string) *Store {
	return &Store{bucket: bucket, prefix: objectPrefix}
}

func (s *Store) object(shard string) *storage.ObjectHandle {
	return s.bucket.Object(s.prefix + shard + objectSuffix)
}

func split(p docstore.Path) (shard string, rel []string, ok bool) {
	segs := p.Segments()
	if len(segs) < 2 {
		return "", nil, false
	}
	return segs[0] + "/" + segs[1], segs[2:], true
}

func (s *Store) Read(ctx context.Context, path docstore.Path) (json.RawMessage, bool, error) {
	if err := path.Validate(); err != nil {
		return nil, false, err
	}
	if shard, rel, ok := split(path); ok {
		t, _, err := s.load(ctx, s.object(shard))
		if err != nil {
			return nil, false, err
		}
		return t.Read(rel)
	}

	names, err := s.children(ctx, string(path))
	if err != nil {
		return nil, false, err
	}
	out := map[string]any{}
	for _, name := range names {
		t, _, err := s.load(ctx, s.object(string(path)+"/"+name))
		if err != nil {
			return nil, false, err
		}
		if v, ok := t.Get(nil); ok {
			out[name] = v
		}
	}
	if len(out) == 0 {
		return nil, false, nil
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *Store) Write(ctx context.Context, path docstore.Path, value any) error {
	if err := path.Validate(); err != nil {
		return err
	}
	v, err := doctree.Normalize(value)
	if err != nil {
		return err
	}
	shard, rel, ok := split(path)
	if !ok {
		return s.writeTopLevel(ctx, string(path), v)
	}
	return s.update(ctx, shard, func(t *doctree.Tree) error {
		t.Set(rel, v)
		return nil
	})
}

func (s *Store) Merge(ctx context.Context, path docstore.Path, fields map[string]any) error {
	if err := path.Validate(); err != nil {
		return err
	}
	shard, rel, ok := split(path)
	if ok {
		return s.update(ctx, shard, func(t *doctree.Tree) error {
			return t.Merge(rel, fields)
		})
	}

	normalized, err := doctree.NormalizeFields(fields)
	if err != nil {
		return err
	}
	for _, k := range doctree.SortedKeys(normalized) {
		child := docstore.Path(string(path) + "/" + k)
		if normalized[k] == nil {
			err = s.Delete(ctx, child)
		} else {
			err = s.Write(ctx, child, normalized[k])
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, path docstore.Path) error {
	if err := path.Validate(); err != nil {
		return err
	}
	shard, rel, ok := split(path)
	switch {
	case !ok:
		names, err := s.children(ctx, string(path))
		if err != nil {
			return err
		}
		for _, name := range names {
			if err := s.deleteObject(ctx, s.object(string(path)+"/"+name)); err != nil {
				return err
			}
		}
		return nil
	case len(rel) == 0:
		return s.deleteObject(ctx, s.object(shard))
	default:
		return s.update(ctx, shard, func(t *doctree.Tree) error {
			t.Delete(rel)
			return nil
		})
	}
}

func (s *Store) writeTopLevel(ctx context.Context, top string, v any) error {
	children, isObj := v.(map[string]any)
	if v != nil && !isObj {
		return docstore.ErrNotObject
	}
	if err := s.Delete(ctx, docstore.Path(top)); err != nil {
		return err
	}
	for _, k := range doctree.SortedKeys(children) {
		if err := s.Write(ctx, docstore.Path(top+"/"+k), children[k]); err != nil {
			return err
		}
	}
	return nil
}

// children lists the second path segment of every object stored below a single-segment path.
func (s *Store) children(ctx context.Context, top string) ([]string, error) {
	prefix := s.prefix + top + "/"
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	var out []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects %s: %w", prefix, err)
		}
		name := strings.TrimPrefix(attrs.Name, prefix)
		if !strings.HasSuffix(name, objectSuffix) {
			continue
		}
		name = strings.TrimSuffix(name, objectSuffix)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

// load reads an object into a tree. A missing object is an empty tree at generation 0.
func (s *Store) load(ctx context.Context, obj *storage.ObjectHandle) (*doctree.Tree, int64, error) {
	r, err := obj.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return doctree.New(), 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read object %s: %w", obj.ObjectName(), err)
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, fmt.Errorf("read object %s: %w", obj.ObjectName(), err)
	}
	t, err := doctree.Parse(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("decode object %s: %w", obj.ObjectName(), err)
	}
	return t, r.Attrs.Generation, nil
}

// update applies change to the object's tree and stores it only if nobody wrote it in between.
func (s *Store) update(ctx context.Context, shard string, change func(*doctree.Tree) error) error {
	obj := s.object(shard)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		t, gen, err := s.load(ctx, obj)
		if err != nil {
			return err
		}
		if err := change(t); err != nil {
			return err
		}
		err = s.save(ctx, obj, t, gen)
		if isConflict(err) {
			continue
		}
		return err
	}
	return fmt.Errorf("object %s: too much contention", obj.ObjectName())
}

func (s *Store) save(ctx context.Context, obj *storage.ObjectHandle, t *doctree.Tree, gen int64) error {
	if t.Empty() {
		if gen == 0 {
			return nil
		}
		err := obj.If(storage.Conditions{GenerationMatch: gen}).Delete(ctx)
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}
		return err
	}

	raw, err := t.Bytes()
	if err != nil {
		return err
	}
	cond := storage.Conditions{GenerationMatch: gen}
	if gen == 0 {
		cond = storage.Conditions{DoesNotExist: true}
	}
	w := obj.If(cond).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (s *Store) deleteObject(ctx context.Context, obj *storage.ObjectHandle) error {
	err := obj.Delete(ctx)
	if err == nil || errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return fmt.Errorf("delete object %s: %w", obj.ObjectName(), err)
}

func isConflict(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
