// Package repo provides typed repositories over the gateway, one per entity
// kind. Repositories normalize raw rows into model structs, validate drafts
// locally before any network round trip, and never retry — retry policy
// belongs to the cache layer.
package repo

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/agentdeck/agentdeck/internal/gateway"
)

var validate = validator.New()

// ValidationError is a local, pre-network validation failure. It is never
// the result of a gateway call.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, field+": "+msg)
	}
	sort.Strings(parts)
	return "validation failed: " + strings.Join(parts, "; ")
}

// checkDraft runs struct validation and converts validator errors into a
// field-keyed ValidationError.
func checkDraft(draft any) error {
	err := validate.Struct(draft)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("validate draft: %w", err)
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = describeFailure(fe)
	}
	return &ValidationError{Fields: fields}
}

func describeFailure(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return "is required for this trigger type"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		if fe.Kind().String() == "slice" {
			return "must not be empty"
		}
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	default:
		return "is invalid"
	}
}

// decodeRows unmarshals raw gateway rows into a typed slice, skipping rows
// that fail to decode rather than failing the whole list.
func decodeRows[T any](rows []json.RawMessage) []T {
	out := make([]T, 0, len(rows))
	for _, raw := range rows {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

func decodeRow[T any](op, collection string, raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, &gateway.GatewayError{Op: op, Collection: collection, Message: "malformed row", Err: err}
	}
	return v, nil
}
