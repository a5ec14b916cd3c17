package fieldmap

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/poikeeper/internal/cryptox"
)

// ErrTypeMismatch is returned when a value does not match its field's type.
var ErrTypeMismatch = errors.New("value type does not match field type")

type codecFuncs struct {
	encrypt func(c *cryptox.Codec, v Value) string
	decrypt func(c *cryptox.Codec, ciphertext string) (Value, error)
}

var dispatch = map[SemanticType]codecFuncs{
	Text: {
		encrypt: func(c *cryptox.Codec, v Value) string { return c.EncryptText(v.Text()) },
		decrypt: func(c *cryptox.Codec, s string) (Value, error) {
			p, err := c.DecryptText(s)
			return TextValue(p), err
		},
	},
	Boolean: {
		encrypt: func(c *cryptox.Codec, v Value) string { return c.EncryptBoolean(v.Bool()) },
		decrypt: func(c *cryptox.Codec, s string) (Value, error) {
			p, err := c.DecryptBoolean(s)
			return BoolValue(p), err
		},
	},
	Date: {
		encrypt: func(c *cryptox.Codec, v Value) string { return c.EncryptDate(v.Time()) },
		decrypt: temporal((*cryptox.Codec).DecryptDate, DateValue),
	},
	Time: {
		encrypt: func(c *cryptox.Codec, v Value) string { return c.EncryptTime(v.Time()) },
		decrypt: temporal((*cryptox.Codec).DecryptTime, TimeValue),
	},
	DateTime: {
		encrypt: func(c *cryptox.Codec, v Value) string { return c.EncryptDateTime(v.Time()) },
		decrypt: temporal((*cryptox.Codec).DecryptDateTime, DateTimeValue),
	},
}

func temporal(
	dec func(*cryptox.Codec, string) (time.Time, error),
	wrap func(time.Time) Value,
) func(*cryptox.Codec, string) (Value, error) {
	return func(c *cryptox.Codec, s string) (Value, error) {
		t, err := dec(c, s)
		if err != nil {
			return Value{}, err
		}
		return wrap(t), nil
	}
}

// Mapper applies the codec to entity fields.
type Mapper struct {
	codec *cryptox.Codec
}

func NewMapper(codec *cryptox.Codec) *Mapper {
	return &Mapper{codec: codec}
}

// EncryptValue encrypts v for field f. A null value yields a nil column.
func (m *Mapper) EncryptValue(f Field, v Value) (*string, error) {
	if v.Kind() != f.Type {
		return nil, fmt.Errorf("%s: %w", f.Name, ErrTypeMismatch)
	}
	if v.IsNull() {
		return nil, nil
	}
	fn, ok := dispatch[f.Type]
	if !ok {
		return nil, fmt.Errorf("%s: no codec for %s", f.Name, f.Type)
	}
	s := fn.encrypt(m.codec, v)
	return &s, nil
}

// DecryptValue decrypts a stored column for field f. A nil column yields the
// null value of the field's type.
func (m *Mapper) DecryptValue(f Field, stored *string) (Value, error) {
	if stored == nil {
		return Null(f.Type), nil
	}
	fn, ok := dispatch[f.Type]
	if !ok {
		return Value{}, fmt.Errorf("%s: no codec for %s", f.Name, f.Type)
	}
	v, err := fn.decrypt(m.codec, *stored)
	if err != nil {
		return Value{}, fmt.Errorf("%s: %w", f.Name, err)
	}
	return v, nil
}

// Encrypt encrypts every value present in vals. Fields that are absent from
// vals are absent from the result.
func (m *Mapper) Encrypt(e *Entity, vals Values) (map[string]*string, error) {
	out := make(map[string]*string, len(vals))
	for name, v := range vals {
		f, ok := e.Field(name)
		if !ok {
			return nil, fmt.Errorf("%s: unknown field %q", e.Resource, name)
		}
		enc, err := m.EncryptValue(f, v)
		if err != nil {
			return nil, fmt.Errorf("%s.%w", e.Resource, err)
		}
		out[name] = enc
	}
	return out, nil
}

// Decrypt decrypts every field of e from the stored columns. Columns that
// are missing or nil decrypt to null.
func (m *Mapper) Decrypt(e *Entity, columns map[string]*string) (Values, error) {
	out := make(Values, len(e.Fields))
	for _, f := range e.Fields {
		v, err := m.DecryptValue(f, columns[f.Name])
		if err != nil {
			return nil, fmt.Errorf("%s.%w", e.Resource, err)
		}
		out[f.Name] = v
	}
	return out, nil
}
