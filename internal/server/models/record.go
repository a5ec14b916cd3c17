// Package models defines server-side data models persisted in the database.
package models

// Record is a stored row as the repositories see it: plaintext identity and
// reference columns next to opaque ciphertext columns. A nil column is NULL.
type Record struct {
	ID      int64
	Version int64
	Refs    map[string]int64
	Columns map[string]*string
}

// Ref returns the reference column value, or zero when absent.
func (r *Record) Ref(name string) int64 {
	return r.Refs[name]
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	out := &Record{
		ID:      r.ID,
		Version: r.Version,
		Refs:    make(map[string]int64, len(r.Refs)),
		Columns: make(map[string]*string, len(r.Columns)),
	}
	for k, v := range r.Refs {
		out.Refs[k] = v
	}
	for k, v := range r.Columns {
		if v == nil {
			out.Columns[k] = nil
			continue
		}
		s := *v
		out.Columns[k] = &s
	}
	return out
}
