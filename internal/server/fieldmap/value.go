// Package fieldmap describes which columns of each stored entity are
// encrypted, with what semantic type, and converts between typed plaintext
// values and the ciphertext strings handed to repositories.
package fieldmap

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/dmitrijs2005/poikeeper/internal/cryptox"
	"github.com/dmitrijs2005/poikeeper/internal/timex"
)

// SemanticType is the logical type of an encrypted column.
type SemanticType uint8

const (
	Text SemanticType = iota + 1
	Boolean
	Date
	Time
	DateTime
)

func (t SemanticType) String() string {
	switch t {
	case Text:
		return "text"
	case Boolean:
		return "boolean"
	case Date:
		return "date"
	case Time:
		return "time"
	case DateTime:
		return "datetime"
	default:
		return "unknown(" + strconv.Itoa(int(t)) + ")"
	}
}

// NullLiteral is how an absent value is rendered in change logs.
const NullLiteral = "null"

// Value is a typed plaintext value. The zero Value is invalid; use the
// constructors.
type Value struct {
	kind  SemanticType
	valid bool
	text  string
	flag  bool
	at    time.Time
}

func TextValue(s string) Value { return Value{kind: Text, valid: true, text: s} }

func BoolValue(b bool) Value { return Value{kind: Boolean, valid: true, flag: b} }

// DateValue keeps only the calendar date of t.
func DateValue(t time.Time) Value { return Value{kind: Date, valid: true, at: timex.DateOf(t)} }

// TimeValue keeps only the clock and zone of t.
func TimeValue(t time.Time) Value { return Value{kind: Time, valid: true, at: timex.ClockOf(t)} }

func DateTimeValue(t time.Time) Value { return Value{kind: DateTime, valid: true, at: t} }

// Null returns the absent value of the given type.
func Null(kind SemanticType) Value { return Value{kind: kind} }

func (v Value) Kind() SemanticType { return v.kind }

func (v Value) IsNull() bool { return !v.valid }

func (v Value) Text() string { return v.text }

func (v Value) Bool() bool { return v.flag }

func (v Value) Time() time.Time { return v.at }

// Equal compares two values of the same semantic type. Nulls are equal only
// to nulls.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind || v.valid != o.valid {
		return false
	}
	if !v.valid {
		return true
	}
	switch v.kind {
	case Text:
		return v.text == o.text
	case Boolean:
		return v.flag == o.flag
	case Date:
		return timex.SameDate(v.at, o.at)
	case Time:
		return timex.SameClock(v.at, o.at)
	case DateTime:
		return v.at.Equal(o.at)
	}
	return false
}

// String renders the value in its canonical text form. Booleans use the
// same literals the codec stores.
func (v Value) String() string {
	if !v.valid {
		return NullLiteral
	}
	switch v.kind {
	case Text:
		return v.text
	case Boolean:
		if v.flag {
			return cryptox.TrueLiteral
		}
		return cryptox.FalseLiteral
	case Date:
		return v.at.Format(timex.DateLayout)
	case Time:
		return v.at.Format(timex.ClockLayout)
	case DateTime:
		return v.at.Format(timex.DateTimeLayout)
	}
	return ""
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.valid {
		return []byte("null"), nil
	}
	switch v.kind {
	case Boolean:
		return json.Marshal(v.flag)
	default:
		return json.Marshal(v.String())
	}
}

// Values maps field names to plaintext values.
type Values map[string]Value
