package model

import (
	"errors"
	"fmt"
)

// Lookup and validation errors.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidHierarchy = errors.New("invalid bone hierarchy")
)

// Kind classifies a LoadError.
type Kind int

const (
	// KindNotFound means the model file does not exist.
	KindNotFound Kind = iota + 1
	// KindFormat means the file is unsupported or corrupt.
	KindFormat
	// KindIntegrity means the file decoded but its data is inconsistent,
	// such as a mesh weighted to an undeclared bone.
	KindIntegrity
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindFormat:
		return "format"
	case KindIntegrity:
		return "integrity"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// LoadError reports why a model could not be loaded.
type LoadError struct {
	Path string
	Kind Kind
	Err  error
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("model: %s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("model %s: %s error: %v", e.Path, e.Kind, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

func integrityError(err error) *LoadError {
	return &LoadError{Kind: KindIntegrity, Err: err}
}
