package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound        = errors.New("requested item not found")
	ErrConflict        = errors.New("item already exists or conflict")
	ErrInvalidPage     = errors.New("invalid page number")
	ErrInvalidPageSize = errors.New("invalid page size")
)

type ValidationKind string

const (
	// Structural problems come from the patch document itself: unknown paths,
	// unsupported operations or ill-typed values.
	Structural ValidationKind = "structural"
	// Semantic problems are declared field constraints violated by the merged result.
	Semantic ValidationKind = "semantic"
)

// Problem is a single offending operation or violated constraint.
type Problem struct {
	Op      int    `json:"op,omitempty"` // 1-based index into the patch document, 0 if not op-bound
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (p Problem) String() string {
	switch {
	case p.Op > 0 && p.Field != "":
		return fmt.Sprintf("op %d (%s): %s", p.Op, p.Field, p.Message)
	case p.Op > 0:
		return fmt.Sprintf("op %d: %s", p.Op, p.Message)
	case p.Field != "":
		return p.Field + ": " + p.Message
	}
	return p.Message
}

type ValidationError struct {
	Kind     ValidationKind
	Problems []Problem
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, p.String())
	}
	return fmt.Sprintf("%s validation failed: %s", e.Kind, strings.Join(parts, "; "))
}

// IsValidation reports whether err carries a ValidationError and returns it.
func IsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
