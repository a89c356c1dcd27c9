// Package filter implements the boolean filter expression tree that a
// subscription holds over cached event attributes: field-equality leaves
// combined with AND/OR nodes, plus the USER_ID shorthand that is resolved
// to an equality test on the subscribing user's id before persistence.
package filter

import (
	"errors"
	"fmt"
)

// Type discriminates the filter union.
type Type string

const (
	// TypeField is a field-equality leaf.
	TypeField Type = "FIELD"

	// TypeAnd combines child filters with a conjunction.
	TypeAnd Type = "AND"

	// TypeOr combines child filters with a disjunction.
	TypeOr Type = "OR"

	// TypeCurrentUser is the "subscribe to my own events" shorthand. It
	// carries no value and must be resolved to a FIELD leaf on USER_ID
	// before a filter is persisted or compiled.
	TypeCurrentUser Type = "USER_ID"
)

// FieldName is a closed enum of event attributes a leaf may test.
type FieldName string

const (
	FieldUserID              FieldName = "USER_ID"
	FieldStreamID            FieldName = "STREAM_ID"
	FieldName_               FieldName = "NAME"
	FieldSessionID           FieldName = "SESSION_ID"
	FieldClientCorrelationID FieldName = "CLIENT_CORRELATION_ID"
)

// Operation is a closed enum of leaf comparison operations.
type Operation string

const (
	// OperationEquals is currently the only supported operation.
	OperationEquals Operation = "EQUALS"
)

var (
	// ErrInvalidFilter is returned for any shape violation detected
	// during parsing or validation.
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrUnresolvedCurrentUser is returned when a USER_ID shorthand node
	// reaches the compiler. This is an internal invariant violation:
	// resolution happens at subscribe time, never during compilation.
	ErrUnresolvedCurrentUser = errors.New("unresolved current-user filter reached the compiler")

	// ErrMissingCallerID is returned when current-user resolution is
	// attempted without an authenticated caller id.
	ErrMissingCallerID = errors.New("caller id is required to resolve a current-user filter")
)

// Filter is one node of the expression tree. It is a tagged union: a FIELD
// node populates Name/Value/Operation, AND/OR nodes populate Children, and
// a USER_ID node carries nothing.
type Filter struct {
	Type      Type
	Name      FieldName
	Value     string
	Operation Operation
	Children  []Filter
}

// FieldEquals builds a field-equality leaf.
func FieldEquals(name FieldName, value string) Filter {
	return Filter{
		Type:      TypeField,
		Name:      name,
		Value:     value,
		Operation: OperationEquals,
	}
}

// And builds a conjunction over the given children.
func And(children ...Filter) Filter {
	return Filter{Type: TypeAnd, Children: children}
}

// Or builds a disjunction over the given children.
func Or(children ...Filter) Filter {
	return Filter{Type: TypeOr, Children: children}
}

// CurrentUser builds the unresolved current-user shorthand.
func CurrentUser() Filter {
	return Filter{Type: TypeCurrentUser}
}

// IsZero reports whether the filter is the zero value (no filter at all).
func (f Filter) IsZero() bool {
	return f.Type == ""
}

var validFields = map[FieldName]bool{
	FieldUserID:              true,
	FieldStreamID:            true,
	FieldName_:               true,
	FieldSessionID:           true,
	FieldClientCorrelationID: true,
}

// Validate checks the structural invariants of the tree: known enum values,
// leaf fields only on leaves, at least one child per combinator.
func (f Filter) Validate() error {
	switch f.Type {
	case TypeField:
		if !validFields[f.Name] {
			return fmt.Errorf("%w: unknown field name %q", ErrInvalidFilter, f.Name)
		}
		if f.Operation != OperationEquals {
			return fmt.Errorf("%w: unknown operation %q", ErrInvalidFilter, f.Operation)
		}
		if f.Value == "" {
			return fmt.Errorf("%w: field filter requires a value", ErrInvalidFilter)
		}
		if len(f.Children) > 0 {
			return fmt.Errorf("%w: field filter must not have children", ErrInvalidFilter)
		}

	case TypeAnd, TypeOr:
		if len(f.Children) == 0 {
			return fmt.Errorf("%w: %s filter requires at least one child", ErrInvalidFilter, f.Type)
		}
		if f.Name != "" || f.Value != "" || f.Operation != "" {
			return fmt.Errorf("%w: %s filter must not carry leaf fields", ErrInvalidFilter, f.Type)
		}
		for _, child := range f.Children {
			if err := child.Validate(); err != nil {
				return err
			}
		}

	case TypeCurrentUser:
		if f.Name != "" || f.Value != "" || f.Operation != "" || len(f.Children) > 0 {
			return fmt.Errorf("%w: current-user filter carries no fields", ErrInvalidFilter)
		}

	default:
		return fmt.Errorf("%w: unknown filter type %q", ErrInvalidFilter, f.Type)
	}

	return nil
}

// ResolveCurrentUser rewrites every USER_ID shorthand node in the tree into
// a field-equality leaf on the caller's user id. The returned tree never
// contains an unresolved shorthand.
func ResolveCurrentUser(f Filter, callerID string) (Filter, error) {
	switch f.Type {
	case TypeCurrentUser:
		if callerID == "" {
			return Filter{}, ErrMissingCallerID
		}
		return FieldEquals(FieldUserID, callerID), nil

	case TypeAnd, TypeOr:
		children := make([]Filter, len(f.Children))
		for i, child := range f.Children {
			resolved, err := ResolveCurrentUser(child, callerID)
			if err != nil {
				return Filter{}, err
			}
			children[i] = resolved
		}
		return Filter{Type: f.Type, Children: children}, nil

	default:
		return f, nil
	}
}
