// Package services contains the server-side business logic: encrypted
// record storage with change tracking and auditing, the POI dossier and
// offense catalog on top of it, profile pictures and user authentication.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/poikeeper/internal/common"
	"github.com/dmitrijs2005/poikeeper/internal/cryptox"
	"github.com/dmitrijs2005/poikeeper/internal/dbx"
	"github.com/dmitrijs2005/poikeeper/internal/logging"
	"github.com/dmitrijs2005/poikeeper/internal/server/fieldmap"
	"github.com/dmitrijs2005/poikeeper/internal/server/models"
	"github.com/dmitrijs2005/poikeeper/internal/server/repositories/repomanager"
)

// parents maps a parent reference column to the entity it points at.
var parents = map[string]*fieldmap.Entity{
	fieldmap.RefPOI:     fieldmap.POI,
	fieldmap.RefOffense: fieldmap.Offense,
}

// Scope addresses the records of one entity, optionally under a parent.
// ParentID is zero for top-level entities.
type Scope struct {
	Entity   *fieldmap.Entity
	ParentID int64
}

// RecordService implements create, read, edit and delete for every
// registered entity. Every mutation runs in one transaction together with
// its audit entry.
type RecordService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	mapper      *fieldmap.Mapper
	changes     *ChangeWriter
	audit       *AuditLog
	log         logging.Logger
	now         func() time.Time
}

func NewRecordService(db *sql.DB, m repomanager.RepositoryManager, codec *cryptox.Codec, log logging.Logger) *RecordService {
	mapper := fieldmap.NewMapper(codec)
	return &RecordService{
		db:          db,
		repomanager: m,
		mapper:      mapper,
		changes:     NewChangeWriter(m, mapper),
		audit:       NewAuditLog(m, mapper),
		log:         log,
		now:         time.Now,
	}
}

// Audit exposes the audit trail writer.
func (s *RecordService) Audit() *AuditLog { return s.audit }

// AuditLogs lists the audit trail, newest first.
func (s *RecordService) AuditLogs(ctx context.Context, p Page) (PageOf[*Item], error) {
	return s.audit.List(ctx, s.db, p)
}

// Create stores a new record. refs carries every reference column except
// the scope's parent, which is taken from sc.ParentID.
func (s *RecordService) Create(ctx context.Context, userID int64, sc Scope, refs map[string]int64, vals fieldmap.Values) (*Item, error) {
	return dbx.WithTxValue(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (*Item, error) {
		return s.create(ctx, tx, userID, sc, refs, vals)
	})
}

// Get returns a live record.
func (s *RecordService) Get(ctx context.Context, sc Scope, id int64) (*Item, error) {
	rec, vals, err := s.load(ctx, s.db, sc, id)
	if err != nil {
		return nil, err
	}
	return newItem(rec, vals), nil
}

// List returns the live records of the scope in id order.
func (s *RecordService) List(ctx context.Context, sc Scope) ([]*Item, error) {
	return s.list(ctx, s.db, sc)
}

// Edit applies vals through the change writer and audits the changelog.
// version, when non-zero, must match the stored version.
func (s *RecordService) Edit(ctx context.Context, userID int64, sc Scope, id, version int64, vals fieldmap.Values) (*Item, Changelog, error) {
	var log Changelog
	item, err := dbx.WithTxValue(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (*Item, error) {
		var err error
		var item *Item
		item, log, err = s.edit(ctx, tx, userID, sc, id, version, vals)
		return item, err
	})
	if err != nil {
		return nil, nil, err
	}
	return item, log, nil
}

// Delete soft-deletes the record, or removes the row for entities that are
// not soft-deletable.
func (s *RecordService) Delete(ctx context.Context, userID int64, sc Scope, id, version int64) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.delete(ctx, tx, userID, sc, id, version)
	})
}

func (s *RecordService) create(ctx context.Context, tx dbx.DBTX, userID int64, sc Scope, refs map[string]int64, vals fieldmap.Values) (*Item, error) {
	e := sc.Entity

	allRefs := make(map[string]int64, len(e.Refs))
	for k, v := range refs {
		allRefs[k] = v
	}
	if e.Parent != "" {
		allRefs[e.Parent] = sc.ParentID
	}
	for _, ref := range e.Refs {
		if err := s.checkRef(ctx, tx, ref, allRefs[ref]); err != nil {
			return nil, err
		}
	}

	if e.UniqueParent {
		siblings, err := s.list(ctx, tx, sc)
		if err != nil {
			return nil, err
		}
		if len(siblings) > 0 {
			return nil, common.NewError(common.ErrConflict, fmt.Sprintf("%s already exists", e.Resource))
		}
	}

	full := make(fieldmap.Values, len(e.Fields))
	for _, f := range e.Fields {
		if v, ok := vals[f.Name]; ok {
			full[f.Name] = v
		} else if f.HasDefault() {
			full[f.Name] = f.Default
		}
	}
	full[fieldmap.FieldCreatedAt] = fieldmap.DateTimeValue(s.now())

	cols, err := s.mapper.Encrypt(e, full)
	if err != nil {
		return nil, err
	}

	rec := &models.Record{Refs: allRefs, Columns: cols}
	id, err := s.repomanager.Records(tx).Create(ctx, e, rec)
	if err != nil {
		return nil, err
	}
	rec.ID, rec.Version = id, 1

	var notes *string
	if v, ok := full[e.Display]; ok && !v.IsNull() {
		n := v.String()
		notes = &n
	}
	if err := s.audit.Record(ctx, tx, AuditEntry{UserID: userID, Resource: e.Resource, Action: ActionCreate, Notes: notes}); err != nil {
		return nil, err
	}

	vals, err = s.mapper.Decrypt(e, rec.Columns)
	if err != nil {
		return nil, err
	}
	s.log.Debug(ctx, "record created", "resource", e.Resource, "id", id)
	return newItem(rec, vals), nil
}

func (s *RecordService) edit(ctx context.Context, tx dbx.DBTX, userID int64, sc Scope, id, version int64, vals fieldmap.Values) (*Item, Changelog, error) {
	rec, _, err := s.load(ctx, tx, sc, id)
	if err != nil {
		return nil, nil, err
	}
	if version != 0 && version != rec.Version {
		return nil, nil, common.ErrVersionConflict
	}

	log, err := s.changes.Apply(ctx, tx, sc.Entity, rec, vals)
	if err != nil {
		s.warnCrypto(ctx, sc.Entity, err)
		return nil, nil, err
	}

	if err := s.audit.Record(ctx, tx, AuditEntry{
		UserID:   userID,
		Resource: sc.Entity.Resource,
		Action:   Action(ActionEdit, id),
		Notes:    log.Notes(),
	}); err != nil {
		return nil, nil, err
	}

	out, err := s.mapper.Decrypt(sc.Entity, rec.Columns)
	if err != nil {
		return nil, nil, err
	}
	return newItem(rec, out), log, nil
}

func (s *RecordService) delete(ctx context.Context, tx dbx.DBTX, userID int64, sc Scope, id, version int64) error {
	e := sc.Entity
	rec, _, err := s.load(ctx, tx, sc, id)
	if err != nil {
		return err
	}
	if version != 0 && version != rec.Version {
		return common.ErrVersionConflict
	}

	repo := s.repomanager.Records(tx)
	if e.SoftDeletes() {
		cols, err := s.mapper.Encrypt(e, fieldmap.Values{
			fieldmap.FieldIsDeleted: fieldmap.BoolValue(true),
			fieldmap.FieldDeletedAt: fieldmap.DateTimeValue(s.now()),
		})
		if err != nil {
			return err
		}
		if err := repo.Update(ctx, e, id, rec.Version, cols); err != nil {
			return err
		}
	} else if err := repo.DeleteRow(ctx, e, id); err != nil {
		return err
	}

	return s.audit.Record(ctx, tx, AuditEntry{UserID: userID, Resource: e.Resource, Action: Action(ActionDelete, id)})
}

// load fetches a live record of the scope. Rows that are soft-deleted, that
// belong to another parent or whose parent is not live are not found.
func (s *RecordService) load(ctx context.Context, db dbx.DBTX, sc Scope, id int64) (*models.Record, fieldmap.Values, error) {
	e := sc.Entity
	if e.Parent != "" && sc.ParentID != 0 {
		if err := s.checkRef(ctx, db, e.Parent, sc.ParentID); err != nil {
			return nil, nil, err
		}
	}

	rec, err := s.repomanager.Records(db).GetByID(ctx, e, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, notFound(e)
		}
		return nil, nil, err
	}
	if e.Parent != "" && sc.ParentID != 0 && rec.Ref(e.Parent) != sc.ParentID {
		return nil, nil, notFound(e)
	}

	vals, err := s.mapper.Decrypt(e, rec.Columns)
	if err != nil {
		s.warnCrypto(ctx, e, err)
		return nil, nil, err
	}
	if deleted(vals) {
		return nil, nil, notFound(e)
	}
	return rec, vals, nil
}

func (s *RecordService) list(ctx context.Context, db dbx.DBTX, sc Scope) ([]*Item, error) {
	e := sc.Entity
	repo := s.repomanager.Records(db)

	var recs []*models.Record
	var err error
	if e.Parent != "" && sc.ParentID != 0 {
		if err := s.checkRef(ctx, db, e.Parent, sc.ParentID); err != nil {
			return nil, err
		}
		recs, err = repo.ListByParent(ctx, e, sc.ParentID)
	} else {
		recs, err = repo.ListAll(ctx, e)
	}
	if err != nil {
		return nil, err
	}

	items := make([]*Item, 0, len(recs))
	for _, rec := range recs {
		vals, err := s.mapper.Decrypt(e, rec.Columns)
		if err != nil {
			s.warnCrypto(ctx, e, err)
			return nil, err
		}
		if deleted(vals) {
			continue
		}
		items = append(items, newItem(rec, vals))
	}
	return items, nil
}

// checkRef verifies that a referenced record exists and is live.
func (s *RecordService) checkRef(ctx context.Context, db dbx.DBTX, ref string, id int64) error {
	target, ok := parents[ref]
	if !ok {
		return nil
	}
	if id <= 0 {
		return notFound(target)
	}
	_, _, err := s.load(ctx, db, Scope{Entity: target}, id)
	return err
}

func (s *RecordService) warnCrypto(ctx context.Context, e *fieldmap.Entity, err error) {
	if errors.Is(err, common.ErrForbidden) {
		// err names the field; codec errors never carry plaintext or ciphertext
		s.log.Warn(ctx, "cannot decrypt record", "resource", e.Resource, "error", err.Error())
	}
}

func deleted(vals fieldmap.Values) bool {
	v, ok := vals[fieldmap.FieldIsDeleted]
	return ok && !v.IsNull() && v.Bool()
}

func notFound(e *fieldmap.Entity) error {
	return common.NewError(common.ErrorNotFound, fmt.Sprintf("%s not found", e.Resource))
}
