package app

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonpatch "github.com/evanphx/json-patch"

	"cityinfo/internal/domain"
)

// PatchOperation is one field-level instruction of a partial update. The set
// of implementations is closed: only the updatable fields can be targeted.
type PatchOperation interface {
	applyTo(f *domain.PointOfInterestFields)
	String() string
}

type ReplaceName struct{ Value string }

func (op ReplaceName) applyTo(f *domain.PointOfInterestFields) { f.Name = op.Value }
func (op ReplaceName) String() string                           { return fmt.Sprintf("replace /name %q", op.Value) }

// ReplaceDescription with a nil Value clears the description.
type ReplaceDescription struct{ Value *string }

func (op ReplaceDescription) applyTo(f *domain.PointOfInterestFields) {
	if op.Value == nil {
		f.Description = nil
		return
	}
	v := *op.Value
	f.Description = &v
}

func (op ReplaceDescription) String() string {
	if op.Value == nil {
		return "replace /description null"
	}
	return fmt.Sprintf("replace /description %q", *op.Value)
}

// DecodePatch turns an RFC 6902 document into typed operations. Every
// offending operation is reported in a single structural ValidationError.
//
// add and replace both set a field; remove resets it to its zero value, the
// same way a JSON Patch applied to a fixed-shape object would.
func DecodePatch(doc []byte) ([]PatchOperation, error) {
	patch, err := jsonpatch.DecodePatch(doc)
	if err != nil {
		return nil, &domain.ValidationError{
			Kind:     domain.Structural,
			Problems: []domain.Problem{{Message: "malformed patch document: " + err.Error()}},
		}
	}

	ops := make([]PatchOperation, 0, len(patch))
	var problems []domain.Problem
	for i, raw := range patch {
		op, p := decodeOperation(raw)
		if p != nil {
			p.Op = i + 1
			problems = append(problems, *p)
			continue
		}
		ops = append(ops, op)
	}
	if len(problems) > 0 {
		return nil, &domain.ValidationError{Kind: domain.Structural, Problems: problems}
	}
	return ops, nil
}

func decodeOperation(raw jsonpatch.Operation) (PatchOperation, *domain.Problem) {
	path, err := raw.Path()
	if err != nil {
		return nil, &domain.Problem{Message: "missing path"}
	}
	if !strings.HasPrefix(path, "/") {
		return nil, &domain.Problem{Field: path, Message: "path must be a JSON pointer starting with /"}
	}
	field := strings.ToLower(path[1:])
	kind := raw.Kind()

	switch field {
	case "name", "description":
	default:
		return nil, &domain.Problem{Field: path, Message: "path is not an updatable field"}
	}

	switch kind {
	case "remove":
		if field == "name" {
			return ReplaceName{}, nil
		}
		return ReplaceDescription{}, nil
	case "add", "replace":
	default:
		return nil, &domain.Problem{Field: field, Message: fmt.Sprintf("operation %q is not supported", kind)}
	}

	value, present := raw["value"]
	if !present {
		return nil, &domain.Problem{Field: field, Message: "missing value"}
	}
	// Operation maps a JSON null to a nil RawMessage.
	if value == nil {
		if field == "description" {
			return ReplaceDescription{}, nil
		}
		return nil, &domain.Problem{Field: field, Message: "value must be a string"}
	}
	var s string
	if err := json.Unmarshal(*value, &s); err != nil {
		return nil, &domain.Problem{Field: field, Message: "value must be a string"}
	}
	if field == "name" {
		return ReplaceName{Value: s}, nil
	}
	return ReplaceDescription{Value: &s}, nil
}

// PatchMerger applies operations to a detached projection of a point of
// interest and only writes back when the result is valid.
type PatchMerger struct{}

// Merge leaves live untouched unless it returns nil.
func (PatchMerger) Merge(live *domain.PointOfInterest, ops []PatchOperation) error {
	projection := live.Fields()

	var problems []domain.Problem
	for i, op := range ops {
		if op == nil {
			problems = append(problems, domain.Problem{Op: i + 1, Message: "empty operation"})
			continue
		}
		op.applyTo(&projection)
	}
	if len(problems) > 0 {
		return &domain.ValidationError{Kind: domain.Structural, Problems: problems}
	}

	if err := validateFields(projection); err != nil {
		return err
	}
	live.Apply(projection)
	return nil
}
