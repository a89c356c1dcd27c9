package filter

import (
	"fmt"
	"strings"
)

// Predicate is a compiled filter: a parameterized SQL fragment over the
// event cache columns plus its bind arguments. Values are always bound,
// never concatenated into the clause.
type Predicate struct {
	Clause string
	Args   []any
}

// columnByField maps the closed field enum onto event cache columns. Field
// names are fixed identifiers, so interpolating the column is safe.
var columnByField = map[FieldName]string{
	FieldUserID:              "user_id",
	FieldStreamID:            "stream_id",
	FieldName_:               "name",
	FieldSessionID:           "session_id",
	FieldClientCorrelationID: "client_correlation_id",
}

// Compile renders a validated filter into a query predicate by post-order
// recursion. Compiling the same filter twice yields byte-identical clauses.
// An unresolved current-user node is an invariant violation and is rejected
// rather than coerced.
func Compile(f Filter) (Predicate, error) {
	switch f.Type {
	case TypeField:
		column, ok := columnByField[f.Name]
		if !ok {
			return Predicate{}, fmt.Errorf("%w: unknown field name %q", ErrInvalidFilter, f.Name)
		}
		if f.Operation != OperationEquals {
			return Predicate{}, fmt.Errorf("%w: unknown operation %q", ErrInvalidFilter, f.Operation)
		}
		return Predicate{
			Clause: column + " = ?",
			Args:   []any{f.Value},
		}, nil

	case TypeAnd, TypeOr:
		if len(f.Children) == 0 {
			return Predicate{}, fmt.Errorf("%w: %s filter requires at least one child", ErrInvalidFilter, f.Type)
		}

		clauses := make([]string, len(f.Children))
		var args []any
		for i, child := range f.Children {
			compiled, err := Compile(child)
			if err != nil {
				return Predicate{}, err
			}
			clauses[i] = compiled.Clause
			args = append(args, compiled.Args...)
		}

		combinator := " " + string(f.Type) + " "
		return Predicate{
			Clause: "(" + strings.Join(clauses, combinator) + ")",
			Args:   args,
		}, nil

	case TypeCurrentUser:
		return Predicate{}, ErrUnresolvedCurrentUser

	default:
		return Predicate{}, fmt.Errorf("%w: unknown filter type %q", ErrInvalidFilter, f.Type)
	}
}
