package fieldmap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/poikeeper/internal/common"
	"github.com/dmitrijs2005/poikeeper/internal/timex"
)

// Mode selects how ParseInput treats absent fields.
type Mode uint8

const (
	// ModeCreate requires every required input field.
	ModeCreate Mode = iota
	// ModePatch accepts any subset of input fields.
	ModePatch
)

var clockLayouts = []string{timex.ClockLayout, "15:04:05", "15:04"}

// ParseInput converts a decoded JSON object into typed values for e.
// Reference columns are skipped; use ParseRefs for them.
// Every caller error is a common.ErrBadRequest.
func ParseInput(e *Entity, body map[string]json.RawMessage, mode Mode) (Values, error) {
	out := make(Values, len(body))
	for name, raw := range body {
		if e.HasRef(name) {
			continue
		}
		f, ok := e.Field(name)
		if !ok || f.System {
			return nil, badField(name, "unknown field")
		}
		v, err := ParseValue(f.Type, raw)
		if err != nil {
			return nil, badField(name, err.Error())
		}
		if v.IsNull() && f.Required {
			return nil, badField(name, "value is required")
		}
		out[name] = v
	}

	if mode == ModeCreate {
		for _, f := range e.InputFields() {
			if _, ok := out[f.Name]; !ok && f.Required {
				return nil, badField(f.Name, "value is required")
			}
		}
	}
	return out, nil
}

// ParseRefs extracts the plaintext reference columns named in refs.
func ParseRefs(body map[string]json.RawMessage, refs ...string) (map[string]int64, error) {
	out := make(map[string]int64, len(refs))
	for _, name := range refs {
		raw, ok := body[name]
		if !ok {
			return nil, badField(name, "value is required")
		}
		var id int64
		if err := json.Unmarshal(raw, &id); err != nil || id <= 0 {
			return nil, badField(name, "must be a positive integer")
		}
		out[name] = id
	}
	return out, nil
}

// ParseValue decodes one JSON value as the given semantic type.
func ParseValue(kind SemanticType, raw json.RawMessage) (Value, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return Null(kind), nil
	}

	if kind == Boolean {
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return Value{}, fmt.Errorf("expected boolean")
		}
		return BoolValue(b), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return Value{}, fmt.Errorf("expected string")
	}
	return ParseText(kind, s)
}

// ParseText parses the text form of a value, as accepted from callers.
func ParseText(kind SemanticType, s string) (Value, error) {
	switch kind {
	case Text:
		return TextValue(s), nil
	case Boolean:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return Value{}, fmt.Errorf("expected boolean")
		}
		return BoolValue(b), nil
	case Date:
		s = strings.TrimSpace(s)
		if t, err := time.Parse(timex.DateLayout, s); err == nil {
			return DateValue(t), nil
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return DateValue(t), nil
		}
		return Value{}, fmt.Errorf("expected date as YYYY-MM-DD")
	case Time:
		s = strings.TrimSpace(s)
		for _, layout := range clockLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return TimeValue(t), nil
			}
		}
		return Value{}, fmt.Errorf("expected time as HH:MM[:SS]")
	case DateTime:
		s = strings.TrimSpace(s)
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return DateTimeValue(t), nil
		}
		// a bare date means midnight UTC
		if t, err := time.Parse(timex.DateLayout, s); err == nil {
			return DateTimeValue(t), nil
		}
		return Value{}, fmt.Errorf("expected RFC 3339 timestamp")
	}
	return Value{}, fmt.Errorf("unsupported type %s", kind)
}

func badField(name, reason string) error {
	return common.NewError(common.ErrBadRequest, fmt.Sprintf("%s: %s", name, reason))
}
