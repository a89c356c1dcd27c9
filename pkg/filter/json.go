package filter

import (
	"encoding/json"
	"errors"
	"fmt"
)

// The wire shape matches the stored representation: a FIELD leaf is
// {"type":"FIELD","name":...,"value":...,"operation":...}, a combinator
// keeps its children under the "value" key as an array, and the
// current-user shorthand is just {"type":"USER_ID"}.

type fieldJSON struct {
	Type      Type      `json:"type"`
	Name      FieldName `json:"name"`
	Value     string    `json:"value"`
	Operation Operation `json:"operation"`
}

type groupJSON struct {
	Type  Type     `json:"type"`
	Value []Filter `json:"value"`
}

type typeOnlyJSON struct {
	Type Type `json:"type"`
}

// MarshalJSON renders the filter in its stored wire shape. Output is
// deterministic: equal filters marshal to byte-identical documents.
func (f Filter) MarshalJSON() ([]byte, error) {
	switch f.Type {
	case TypeField:
		return json.Marshal(fieldJSON{
			Type:      f.Type,
			Name:      f.Name,
			Value:     f.Value,
			Operation: f.Operation,
		})
	case TypeAnd, TypeOr:
		children := f.Children
		if children == nil {
			children = []Filter{}
		}
		return json.Marshal(groupJSON{Type: f.Type, Value: children})
	case TypeCurrentUser:
		return json.Marshal(typeOnlyJSON{Type: f.Type})
	default:
		return nil, fmt.Errorf("%w: unknown filter type %q", ErrInvalidFilter, f.Type)
	}
}

// UnmarshalJSON parses the wire shape, rejecting documents whose populated
// fields do not match the declared type (a leaf with an array value, a
// combinator with a string value, and so on).
func (f *Filter) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type      Type            `json:"type"`
		Name      FieldName       `json:"name"`
		Value     json.RawMessage `json:"value"`
		Operation Operation       `json:"operation"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidFilter, err.Error())
	}

	switch raw.Type {
	case TypeField:
		var value string
		if raw.Value == nil {
			return fmt.Errorf("%w: field filter requires a value", ErrInvalidFilter)
		}
		if err := json.Unmarshal(raw.Value, &value); err != nil {
			return fmt.Errorf("%w: field filter value must be a string", ErrInvalidFilter)
		}
		*f = Filter{
			Type:      TypeField,
			Name:      raw.Name,
			Value:     value,
			Operation: raw.Operation,
		}

	case TypeAnd, TypeOr:
		if raw.Name != "" || raw.Operation != "" {
			return fmt.Errorf("%w: %s filter must not carry leaf fields", ErrInvalidFilter, raw.Type)
		}
		var children []Filter
		if raw.Value == nil {
			return fmt.Errorf("%w: %s filter requires children", ErrInvalidFilter, raw.Type)
		}
		if err := json.Unmarshal(raw.Value, &children); err != nil {
			return fmt.Errorf("%w: %s filter value must be an array of filters", ErrInvalidFilter, raw.Type)
		}
		*f = Filter{Type: raw.Type, Children: children}

	case TypeCurrentUser:
		if raw.Name != "" || raw.Operation != "" || raw.Value != nil {
			return fmt.Errorf("%w: current-user filter carries no fields", ErrInvalidFilter)
		}
		*f = Filter{Type: TypeCurrentUser}

	default:
		return fmt.Errorf("%w: unknown filter type %q", ErrInvalidFilter, raw.Type)
	}

	return nil
}

// Parse unmarshals and validates a filter document. This is the single
// entry point for raw filter input at the command boundary.
func Parse(data []byte) (Filter, error) {
	var f Filter
	if err := json.Unmarshal(data, &f); err != nil {
		if errors.Is(err, ErrInvalidFilter) {
			return Filter{}, err
		}
		return Filter{}, fmt.Errorf("%w: %s", ErrInvalidFilter, err.Error())
	}
	if err := f.Validate(); err != nil {
		return Filter{}, err
	}
	return f, nil
}

// Serialize renders a filter to its stored JSON form.
func Serialize(f Filter) (string, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
