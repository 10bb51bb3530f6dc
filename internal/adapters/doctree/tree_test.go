package doctree

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/travelmap/ratings-api/internal/ports/out/docstore"
)

func segs(p string) []string { return strings.Split(p, "/") }

func TestTree_WriteReadDelete(t *testing.T) {
	t.Parallel()

	tr := New()
	if err := tr.Write(segs("a/b"), map[string]any{"x": 1, "y": "z"}); err != nil {
		t.Fatalf("Write() err=%v", err)
	}
	got, ok := tr.Get(segs("a"))
	if !ok {
		t.Fatalf("Get(a) ok=false")
	}
	want := map[string]any{"b": map[string]any{"x": float64(1), "y": "z"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Get(a) mismatch (-want +got):\n%s", diff)
	}

	tr.Delete(segs("a/b/x"))
	tr.Delete(segs("a/b/y"))
	if _, ok := tr.Get(segs("a")); ok {
		t.Fatalf("Get(a) ok=true after emptying, want pruned")
	}
	if !tr.Empty() {
		t.Fatalf("Empty()=false, want true")
	}
}

func TestTree_WriteNullAndEmptyObjectDelete(t *testing.T) {
	t.Parallel()

	tr := New()
	_ = tr.Write(segs("a/b"), "v")
	if err := tr.Write(segs("a/b"), nil); err != nil {
		t.Fatalf("Write(nil) err=%v", err)
	}
	if _, ok := tr.Get(segs("a/b")); ok {
		t.Fatalf("null write did not delete")
	}
	_ = tr.Write(segs("a/c"), map[string]any{"empty": map[string]any{}})
	if _, ok := tr.Get(segs("a/c")); ok {
		t.Fatalf("empty object was stored")
	}
}

func TestTree_MergeIsShallow(t *testing.T) {
	t.Parallel()

	tr := New()
	_ = tr.Write(segs("r"), map[string]any{
		"keep":    "k",
		"ratings": map[string]any{"note": 1, "food": 2},
		"drop":    true,
	})
	if err := tr.Merge(segs("r"), map[string]any{
		"ratings": map[string]any{"note": 5},
		"drop":    nil,
		"added":   "a",
	}); err != nil {
		t.Fatalf("Merge() err=%v", err)
	}
	got, _ := tr.Get(segs("r"))
	want := map[string]any{
		"keep":    "k",
		"ratings": map[string]any{"note": float64(5)},
		"added":   "a",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Merge mismatch (-want +got):\n%s", diff)
	}
}

func TestTree_MergeRejectsScalarAndBadField(t *testing.T) {
	t.Parallel()

	tr := New()
	_ = tr.Write(segs("s"), 3)
	if err := tr.Merge(segs("s"), map[string]any{"a": 1}); !errors.Is(err, docstore.ErrNotObject) {
		t.Fatalf("Merge() on scalar err=%v, want ErrNotObject", err)
	}
	if err := tr.Merge(segs("o"), map[string]any{"a/b": 1}); !errors.Is(err, docstore.ErrInvalidPath) {
		t.Fatalf("Merge() bad field err=%v, want ErrInvalidPath", err)
	}
	if _, ok := tr.Get(segs("o")); ok {
		t.Fatalf("failed Merge left state behind")
	}
}

func TestFlattenAssemble_RoundTrip(t *testing.T) {
	t.Parallel()

	v, _ := Normalize(map[string]any{
		"countryCode": "FRA",
		"ratings":     map[string]any{"note": 5, "price": 1},
		"tags":        []any{"a", "b"},
	})
	leaves := Flatten(v)
	if _, ok := leaves["ratings/note"]; !ok {
		t.Fatalf("Flatten() missing ratings/note: %v", leaves)
	}
	if _, ok := leaves["tags"]; !ok {
		t.Fatalf("Flatten() should keep arrays as leaves: %v", leaves)
	}
	if diff := cmp.Diff(v, Assemble(leaves)); diff != "" {
		t.Fatalf("Assemble(Flatten()) mismatch (-want +got):\n%s", diff)
	}
	if got := Assemble(Flatten("scalar")); got != "scalar" {
		t.Fatalf("Assemble() scalar=%v", got)
	}
}

func TestRelAndAncestors(t *testing.T) {
	t.Parallel()

	if rel, ok := Rel("a/b", "a/b/c/d"); !ok || rel != "c/d" {
		t.Fatalf("Rel()=%q,%v", rel, ok)
	}
	if _, ok := Rel("a/b", "a/bc"); ok {
		t.Fatalf("Rel() matched sibling prefix")
	}
	if diff := cmp.Diff([]string{"a", "a/b"}, Ancestors("a/b/c")); diff != "" {
		t.Fatalf("Ancestors() mismatch:\n%s", diff)
	}
}
