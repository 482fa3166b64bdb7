package mapping

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/qbridge/backend/internal/domain/shared"
	"github.com/qbridge/backend/internal/domain/sync"
)

// Direction selects which way a record is translated
type Direction int

const (
	// DirectionOutbound converts a desktop-books record into an ERP payload
	DirectionOutbound Direction = iota
	// DirectionInbound converts an ERP payload back into desktop fields
	DirectionInbound
)

// ValidationError reports a missing required destination field. It is a
// per-item failure, never session-fatal.
type ValidationError struct {
	Entity sync.EntityType
	Field  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("mapping: entity %s missing required field %q", e.Entity, e.Field)
}

// ErrUnparsableValue is returned when a typed field cannot be parsed
var ErrUnparsableValue = shared.NewDomainError("UNPARSABLE_VALUE", "Field value cannot be parsed for its declared kind")

// Translate converts one record representation into the other, applying the
// table's field rules in order. It is a pure function: no state, no I/O.
// Unmapped source fields are dropped silently; a missing required destination
// field yields a ValidationError.
func Translate(table *Table, entity sync.EntityType, record map[string]string, direction Direction) (map[string]any, error) {
	rules, err := table.Rules(entity)
	if err != nil {
		return nil, err
	}
	if direction == DirectionInbound {
		return translateInbound(entity, rules, record)
	}
	return translateOutbound(entity, rules, record)
}

func translateOutbound(entity sync.EntityType, rules []FieldRule, record map[string]string) (map[string]any, error) {
	out := make(map[string]any, len(rules))
	for _, rule := range rules {
		var raw string
		switch rule.Transform {
		case TransformCombineName:
			raw = CombineName(record[rule.Sources[0]], record[rule.Sources[1]])
		default:
			raw = record[rule.Sources[0]]
		}
		if raw == "" {
			raw = rule.Default
		}
		if raw == "" {
			if rule.Required {
				return nil, &ValidationError{Entity: entity, Field: rule.Dest}
			}
			continue
		}

		value, err := typedValue(rule.Kind, raw)
		if err != nil {
			return nil, err
		}
		out[rule.Dest] = value
	}
	return out, nil
}

func translateInbound(entity sync.EntityType, rules []FieldRule, record map[string]string) (map[string]any, error) {
	out := make(map[string]any, len(rules))
	for _, rule := range rules {
		raw, ok := record[rule.Dest]
		if !ok || raw == "" {
			if rule.Required {
				return nil, &ValidationError{Entity: entity, Field: rule.Sources[0]}
			}
			continue
		}
		switch rule.Transform {
		case TransformCombineName:
			first, last := SplitName(raw)
			out[rule.Sources[0]] = first
			out[rule.Sources[1]] = last
		default:
			value, err := typedValue(rule.Kind, raw)
			if err != nil {
				return nil, err
			}
			out[rule.Sources[0]] = value
		}
	}
	return out, nil
}

func typedValue(kind FieldKind, raw string) (any, error) {
	switch kind {
	case KindAmount:
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, ErrUnparsableValue
		}
		return d, nil
	case KindBool:
		switch strings.ToLower(raw) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		}
		return nil, ErrUnparsableValue
	default:
		return raw, nil
	}
}

// ---------------------------------------------------------------------------
// Name transform
// ---------------------------------------------------------------------------

// CombineName folds a (first, last) pair into the "Last, First" display form.
// The transform is symmetric with SplitName so a round trip yields the
// original pair. The last name may itself contain commas ("Smith, Jr."); the
// first name must not, or the split is ambiguous.
func CombineName(first, last string) string {
	first = strings.TrimSpace(first)
	last = strings.TrimSpace(last)
	switch {
	case first == "" && last == "":
		return ""
	case last == "":
		return first
	case first == "":
		return last + ","
	}
	return last + ", " + first
}

// SplitName is the inverse of CombineName. The first name follows the last
// comma, so comma-bearing last names survive the round trip.
func SplitName(display string) (first, last string) {
	display = strings.TrimSpace(display)
	if display == "" {
		return "", ""
	}
	if idx := strings.LastIndex(display, ","); idx >= 0 {
		return strings.TrimSpace(display[idx+1:]), strings.TrimSpace(display[:idx])
	}
	return display, ""
}
