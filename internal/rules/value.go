package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ValueKind tags which member of Value is set.
type ValueKind int

const (
	KindNone ValueKind = iota
	KindString
	KindList
	KindBool
	KindAge
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindBool:
		return "bool"
	case KindAge:
		return "age"
	default:
		return "none"
	}
}

// Age is a relative duration such as {"amount": 7, "unit": "days"}.
type Age struct {
	Amount int    `json:"amount"`
	Unit   string `json:"unit"`
}

const day = 24 * time.Hour

// Duration converts the age. Units other than minutes, hours, days and weeks
// report false.
func (a Age) Duration() (time.Duration, bool) {
	n := time.Duration(a.Amount)
	switch strings.ToLower(strings.TrimSpace(a.Unit)) {
	case "minute", "minutes", "m":
		return n * time.Minute, true
	case "hour", "hours", "h":
		return n * time.Hour, true
	case "day", "days", "d":
		return n * day, true
	case "week", "weeks", "w":
		return n * 7 * day, true
	default:
		return 0, false
	}
}

// Value is the right-hand side of a condition.
type Value struct {
	Kind ValueKind
	Str  string
	List []string
	Bool bool
	Age  Age
}

// String builds a string value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// List builds a list value.
func List(items ...string) Value { return Value{Kind: KindList, List: items} }

// Bool builds a boolean value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// AgeOf builds an age value.
func AgeOf(amount int, unit string) Value {
	return Value{Kind: KindAge, Age: Age{Amount: amount, Unit: unit}}
}

// MarshalJSON writes the plain JSON shape for the kind.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindList:
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	case KindBool:
		return json.Marshal(v.Bool)
	case KindAge:
		return json.Marshal(v.Age)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON infers the kind from the JSON token.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*v = Value{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	switch data[0] {
	case '"':
		v.Kind = KindString
		return json.Unmarshal(data, &v.Str)
	case '[':
		v.Kind = KindList
		return json.Unmarshal(data, &v.List)
	case '{':
		v.Kind = KindAge
		return json.Unmarshal(data, &v.Age)
	case 't', 'f':
		v.Kind = KindBool
		return json.Unmarshal(data, &v.Bool)
	default:
		return fmt.Errorf("unsupported condition value %s", string(data))
	}
}

// Duration resolves an age value. Strings such as "36h", "7d" and "2w" are
// accepted as well.
func (v Value) Duration() (time.Duration, bool) {
	switch v.Kind {
	case KindAge:
		if v.Age.Amount < 0 {
			return 0, false
		}
		return v.Age.Duration()
	case KindString:
		return parseAge(v.Str)
	default:
		return 0, false
	}
}

func parseAge(raw string) (time.Duration, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return 0, false
	}
	unit := raw[len(raw)-1]
	switch unit {
	case 'd', 'w':
		n, err := strconv.Atoi(strings.TrimSpace(raw[:len(raw)-1]))
		if err != nil || n < 0 {
			return 0, false
		}
		if unit == 'w' {
			return time.Duration(n) * 7 * day, true
		}
		return time.Duration(n) * day, true
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, false
	}
	return d, true
}
