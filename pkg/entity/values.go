package entity

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// LookupState tells what a property read produced.
type LookupState int

const (
	// Absent means the property does not exist or holds no value.
	Absent LookupState = iota
	// Found means Value holds the property value.
	Found
	// NeedsLocale means the property is culture sensitive and must be read
	// with an explicit culture.
	NeedsLocale
)

func (s LookupState) String() string {
	switch s {
	case Found:
		return "found"
	case NeedsLocale:
		return "needs-locale"
	default:
		return "absent"
	}
}

// Lookup is the outcome of reading one property. Needing a locale is a
// routine outcome, not an error.
type Lookup struct {
	State LookupState
	Value any
}

// ValueReader gives access to property values. Errors are reserved for
// genuine failures such as a value that cannot be decoded.
type ValueReader interface {
	Value(name string) (Lookup, error)
	CultureValue(name string, culture language.Tag) (Lookup, error)
}

// Value is one stored property value. A non-nil Cultures map makes the
// property culture sensitive; keys are BCP 47 culture names such as "en-US".
type Value struct {
	Invariant any
	Cultures  map[string]any
}

// Plain returns a culture-invariant value.
func Plain(v any) Value { return Value{Invariant: v} }

// Localized returns a culture-sensitive value.
func Localized(cultures map[string]any) Value {
	if cultures == nil {
		cultures = map[string]any{}
	}
	return Value{Cultures: cultures}
}

// Values is the in-memory ValueReader used by the REST adapter and tests.
// Names are matched exactly first, then case-insensitively.
type Values map[string]Value

var _ ValueReader = Values(nil)

func (v Values) find(name string) (Value, bool) {
	if val, ok := v[name]; ok {
		return val, true
	}
	for k, val := range v {
		if strings.EqualFold(k, name) {
			return val, true
		}
	}
	return Value{}, false
}

// Value returns the culture-invariant value of name.
func (v Values) Value(name string) (Lookup, error) {
	val, ok := v.find(name)
	if !ok {
		return Lookup{State: Absent}, nil
	}
	if val.Cultures != nil {
		return Lookup{State: NeedsLocale}, nil
	}
	if val.Invariant == nil {
		return Lookup{State: Absent}, nil
	}
	return Lookup{State: Found, Value: val.Invariant}, nil
}

// CultureValue returns the value of name for culture. Culture-invariant
// properties ignore the culture.
func (v Values) CultureValue(name string, culture language.Tag) (Lookup, error) {
	val, ok := v.find(name)
	if !ok {
		return Lookup{State: Absent}, nil
	}
	if val.Cultures == nil {
		return v.Value(name)
	}
	key, ok := MatchCulture(val.Cultures, culture)
	if !ok {
		return Lookup{State: Absent}, nil
	}
	if val.Cultures[key] == nil {
		return Lookup{State: Absent}, nil
	}
	return Lookup{State: Found, Value: val.Cultures[key]}, nil
}

// MatchCulture returns the key of cultures naming exactly culture. Keys
// are compared case-insensitively and in canonical form, so "en-us" serves
// en-US but "en-GB" and "en" do not.
func MatchCulture(cultures map[string]any, culture language.Tag) (string, bool) {
	want := culture.String()
	for k := range cultures {
		if strings.EqualFold(k, want) {
			return k, true
		}
		if t, err := language.Parse(k); err == nil && t == culture {
			return k, true
		}
	}
	return "", false
}

// Strings converts a multi-value property value into its elements. It
// accepts []string and []any of strings; nil yields nil.
func Strings(v any) ([]string, error) {
	switch vals := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return vals, nil
	case []any:
		out := make([]string, 0, len(vals))
		for i, item := range vals {
			switch s := item.(type) {
			case string:
				out = append(out, s)
			case nil:
				out = append(out, "")
			default:
				return nil, fmt.Errorf("element %d is %T, not a string", i, item)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("value of type %T is not a string array", v)
	}
}
