package docstore

import "errors"

var (
	ErrInvalidPath = errors.New("invalid document path")
	// ErrNotObject is returned by Merge when the node at path holds a non-object value.
	ErrNotObject = errors.New("document is not an object")
)
