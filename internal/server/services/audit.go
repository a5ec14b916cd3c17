package services

import (
	"context"
	"slices"
	"strconv"
	"time"

	"github.com/dmitrijs2005/poikeeper/internal/dbx"
	"github.com/dmitrijs2005/poikeeper/internal/server/fieldmap"
	"github.com/dmitrijs2005/poikeeper/internal/server/models"
	"github.com/dmitrijs2005/poikeeper/internal/server/repositories/repomanager"
)

// Audit actions. Edits, deletes and pin toggles carry the target id.
const (
	ActionCreate = "create"
	ActionEdit   = "edit"
	ActionDelete = "delete"
	ActionPin    = "pin"
	ActionUnpin  = "unpin"
)

// Action formats an action verb with its target id.
func Action(verb string, id int64) string {
	return verb + ":" + strconv.FormatInt(id, 10)
}

// AuditEntry is one mutating action to record.
type AuditEntry struct {
	UserID   int64
	Resource string
	Action   string
	Notes    *string
}

// AuditLog writes and reads the encrypted audit trail. Record takes the
// caller's transaction, so the entry commits together with the mutation it
// describes.
type AuditLog struct {
	repomanager repomanager.RepositoryManager
	mapper      *fieldmap.Mapper
	now         func() time.Time
}

func NewAuditLog(m repomanager.RepositoryManager, mapper *fieldmap.Mapper) *AuditLog {
	return &AuditLog{repomanager: m, mapper: mapper, now: time.Now}
}

// Record appends entry. Empty notes are stored as NULL.
func (a *AuditLog) Record(ctx context.Context, tx dbx.DBTX, entry AuditEntry) error {
	notes := fieldmap.Null(fieldmap.Text)
	if entry.Notes != nil && *entry.Notes != "" {
		notes = fieldmap.TextValue(*entry.Notes)
	}

	cols, err := a.mapper.Encrypt(fieldmap.AuditLog, fieldmap.Values{
		"resource":              fieldmap.TextValue(entry.Resource),
		"action":                fieldmap.TextValue(entry.Action),
		"notes":                 notes,
		fieldmap.FieldCreatedAt: fieldmap.DateTimeValue(a.now()),
	})
	if err != nil {
		return err
	}

	_, err = a.repomanager.Records(tx).Create(ctx, fieldmap.AuditLog, &models.Record{
		Refs:    map[string]int64{fieldmap.RefUser: entry.UserID},
		Columns: cols,
	})
	return err
}

// List returns decrypted entries, newest first.
func (a *AuditLog) List(ctx context.Context, db dbx.DBTX, p Page) (PageOf[*Item], error) {
	recs, err := a.repomanager.Records(db).ListAll(ctx, fieldmap.AuditLog)
	if err != nil {
		return PageOf[*Item]{}, err
	}

	items := make([]*Item, 0, len(recs))
	for _, rec := range recs {
		vals, err := a.mapper.Decrypt(fieldmap.AuditLog, rec.Columns)
		if err != nil {
			return PageOf[*Item]{}, err
		}
		items = append(items, newItem(rec, vals))
	}
	slices.Reverse(items)

	return Paginate(items, p), nil
}
