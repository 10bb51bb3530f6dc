package docstore

import (
	"context"
	"encoding/json"
)

// Store is a remote key-path document store with JSON values.
//
// Semantics:
//   - Read returns the JSON value at path. For an interior node this is the object of its children.
//     found=false when nothing is stored at or below path.
//   - Write replaces the value at path, descendants included. A nil value (JSON null) deletes the node.
//   - Merge shallow-merges fields into the object at path, creating it when absent. A nil field value
//     removes that child.
//   - Delete removes the node and its descendants. Deleting an absent node is not an error.
//
// Parents left with no children read as absent.
type Store interface {
	Read(ctx context.Context, path Path) (json.RawMessage, bool, error)
	Write(ctx context.Context, path Path, value any) error
	Merge(ctx context.Context, path Path, fields map[string]any) error
	Delete(ctx context.Context, path Path) error
}
