package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/poikeeper/internal/dbx"
	"github.com/dmitrijs2005/poikeeper/internal/server/fieldmap"
	"github.com/dmitrijs2005/poikeeper/internal/server/models"
	"github.com/dmitrijs2005/poikeeper/internal/server/repositories/repomanager"
)

// Change is one field transition.
type Change struct {
	Field string
	Old   fieldmap.Value
	New   fieldmap.Value
}

// Changelog lists the transitions of one edit in field declaration order.
type Changelog []Change

// String renders one "- old -> new" line per change.
func (c Changelog) String() string {
	lines := make([]string, 0, len(c))
	for _, ch := range c {
		lines = append(lines, fmt.Sprintf("- %s -> %s", ch.Old, ch.New))
	}
	return strings.Join(lines, "\n")
}

// Notes returns the changelog as audit notes, nil when nothing changed.
func (c Changelog) Notes() *string {
	if len(c) == 0 {
		return nil
	}
	s := c.String()
	return &s
}

// ChangeWriter applies edits to stored records. Stored ciphertext is
// non-deterministic, so every requested field is decrypted and compared in
// plaintext.
type ChangeWriter struct {
	repomanager repomanager.RepositoryManager
	mapper      *fieldmap.Mapper
	now         func() time.Time
}

func NewChangeWriter(m repomanager.RepositoryManager, mapper *fieldmap.Mapper) *ChangeWriter {
	return &ChangeWriter{repomanager: m, mapper: mapper, now: time.Now}
}

// Apply writes the fields of vals that differ from rec and returns what
// changed. When something changed, edited_at is stamped and the row version
// checked and bumped in one update; rec is refreshed to match. When nothing
// changed no write is issued.
//
// Any codec failure aborts before the update, so no field is written.
func (w *ChangeWriter) Apply(ctx context.Context, tx dbx.DBTX, e *fieldmap.Entity, rec *models.Record, vals fieldmap.Values) (Changelog, error) {
	var log Changelog
	staged := make(map[string]*string, len(vals)+1)

	for _, f := range e.Fields {
		next, ok := vals[f.Name]
		if !ok {
			continue
		}
		if next.Kind() != f.Type {
			return nil, fmt.Errorf("%s.%s: %w", e.Resource, f.Name, fieldmap.ErrTypeMismatch)
		}

		prev, err := w.mapper.DecryptValue(f, rec.Columns[f.Name])
		if err != nil {
			return nil, fmt.Errorf("%s.%w", e.Resource, err)
		}
		if prev.Equal(next) {
			continue
		}

		enc, err := w.mapper.EncryptValue(f, next)
		if err != nil {
			return nil, fmt.Errorf("%s.%w", e.Resource, err)
		}
		staged[f.Name] = enc
		log = append(log, Change{Field: f.Name, Old: prev, New: next})
	}

	if len(log) == 0 {
		return nil, nil
	}

	if e.TracksEdits() {
		f, _ := e.Field(fieldmap.FieldEditedAt)
		enc, err := w.mapper.EncryptValue(f, fieldmap.DateTimeValue(w.now()))
		if err != nil {
			return nil, err
		}
		staged[f.Name] = enc
	}

	if err := w.repomanager.Records(tx).Update(ctx, e, rec.ID, rec.Version, staged); err != nil {
		return nil, err
	}

	for name, v := range staged {
		rec.Columns[name] = v
	}
	rec.Version++

	return log, nil
}
