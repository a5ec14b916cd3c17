package services

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/poikeeper/internal/common"
	"github.com/dmitrijs2005/poikeeper/internal/logging"
	"github.com/dmitrijs2005/poikeeper/internal/server/fieldmap"
	"github.com/dmitrijs2005/poikeeper/internal/server/repositories/records"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordService_CreateFillsSystemFields(t *testing.T) {
	env := newEnv(t)

	poi := env.createPOI(t, "Alice")

	assert.Equal(t, int64(1), poi.ID)
	assert.Equal(t, int64(1), poi.Version)
	assert.Equal(t, "Alice", poi.Values["full_name"].Text())
	assert.False(t, poi.Values["is_pinned"].Bool())
	assert.False(t, poi.Values[fieldmap.FieldIsDeleted].Bool())
	assert.True(t, poi.Values[fieldmap.FieldCreatedAt].Time().Equal(env.now))
	assert.True(t, poi.Values[fieldmap.FieldEditedAt].IsNull())
	assert.True(t, poi.Values[fieldmap.FieldDeletedAt].IsNull())
	assert.True(t, poi.Values["alias"].IsNull())

	rec, _ := env.stored(t, fieldmap.POI, poi.ID)
	assert.Nil(t, rec.Columns["alias"], "absent optional fields stay NULL")
	require.NotNil(t, rec.Columns["full_name"])
	assert.NotEqual(t, "Alice", *rec.Columns["full_name"])

	entry := env.lastAudit(t)
	assert.Equal(t, "poi", entry["resource"].Text())
	assert.Equal(t, "create", entry["action"].Text())
	assert.Equal(t, "Alice", entry["notes"].Text())
}

func TestRecordService_ChildNeedsLiveParent(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	vals := fieldmap.Values{"type": text("passport"), "id_number": text("A123")}

	_, err := env.svc.Create(ctx, 1, Scope{Entity: fieldmap.IDDocument, ParentID: 99}, nil, vals)
	require.ErrorIs(t, err, common.ErrorNotFound)

	poi := env.createPOI(t, "Alice")
	doc, err := env.svc.Create(ctx, 1, Scope{Entity: fieldmap.IDDocument, ParentID: poi.ID}, nil, vals)
	require.NoError(t, err)
	assert.Equal(t, poi.ID, doc.Refs[fieldmap.RefPOI])

	require.NoError(t, env.svc.Delete(ctx, 1, poiScope(), poi.ID, 0))

	_, err = env.svc.Create(ctx, 1, Scope{Entity: fieldmap.IDDocument, ParentID: poi.ID}, nil, vals)
	require.ErrorIs(t, err, common.ErrorNotFound)

	_, err = env.svc.Get(ctx, Scope{Entity: fieldmap.IDDocument, ParentID: poi.ID}, doc.ID)
	require.ErrorIs(t, err, common.ErrorNotFound, "children of a deleted POI are unreachable")

	_, err = env.svc.List(ctx, Scope{Entity: fieldmap.IDDocument, ParentID: poi.ID})
	require.ErrorIs(t, err, common.ErrorNotFound)

	_, vals2 := env.stored(t, fieldmap.IDDocument, doc.ID)
	assert.False(t, vals2[fieldmap.FieldIsDeleted].Bool(), "soft delete does not cascade")
}

func TestRecordService_ChildOfAnotherParent(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	a := env.createPOI(t, "A")
	b := env.createPOI(t, "B")
	gsm, err := env.svc.Create(ctx, 1, Scope{Entity: fieldmap.GSMNumber, ParentID: a.ID}, nil,
		fieldmap.Values{"service_provider": text("MTN"), "number": text("0803")})
	require.NoError(t, err)

	_, err = env.svc.Get(ctx, Scope{Entity: fieldmap.GSMNumber, ParentID: b.ID}, gsm.ID)
	require.ErrorIs(t, err, common.ErrorNotFound)

	got, err := env.svc.Get(ctx, Scope{Entity: fieldmap.GSMNumber, ParentID: a.ID}, gsm.ID)
	require.NoError(t, err)
	assert.Equal(t, "0803", got.Values["number"].Text())
}

func TestRecordService_SoftDelete(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	keep := env.createPOI(t, "Keep")
	gone := env.createPOI(t, "Gone")

	require.NoError(t, env.svc.Delete(ctx, 7, poiScope(), gone.ID, 0))

	_, err := env.svc.Get(ctx, poiScope(), gone.ID)
	require.ErrorIs(t, err, common.ErrorNotFound)
	assert.Equal(t, "poi not found", common.Message(err))

	items, err := env.svc.List(ctx, poiScope())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, keep.ID, items[0].ID)

	assert.Equal(t, 2, env.repo.Len(fieldmap.POI), "row stays in storage")
	_, vals := env.stored(t, fieldmap.POI, gone.ID)
	assert.True(t, vals[fieldmap.FieldIsDeleted].Bool())
	assert.True(t, vals[fieldmap.FieldDeletedAt].Time().Equal(env.now))

	entry := env.lastAudit(t)
	assert.Equal(t, fmt.Sprintf("delete:%d", gone.ID), entry["action"].Text())
	assert.True(t, entry["notes"].IsNull())

	err = env.svc.Delete(ctx, 7, poiScope(), gone.ID, 0)
	require.ErrorIs(t, err, common.ErrorNotFound, "no second delete")

	_, _, err = env.svc.Edit(ctx, 7, poiScope(), gone.ID, 0, fieldmap.Values{"alias": text("x")})
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRecordService_EditAuditsChangelog(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	poi := env.createPOI(t, "Alice")

	item, log, err := env.svc.Edit(ctx, 3, poiScope(), poi.ID, 1, fieldmap.Values{"full_name": text("Alicia")})
	require.NoError(t, err)
	assert.Equal(t, "- Alice -> Alicia", log.String())
	assert.Equal(t, "Alicia", item.Values["full_name"].Text())
	assert.Equal(t, int64(2), item.Version)

	entry := env.lastAudit(t)
	assert.Equal(t, fmt.Sprintf("edit:%d", poi.ID), entry["action"].Text())
	assert.Equal(t, "- Alice -> Alicia", entry["notes"].Text())

	// identical edit: still audited, with null notes
	n := len(env.auditEntries(t))
	_, log, err = env.svc.Edit(ctx, 3, poiScope(), poi.ID, 0, fieldmap.Values{"full_name": text("Alicia")})
	require.NoError(t, err)
	assert.Empty(t, log)
	entries := env.auditEntries(t)
	require.Len(t, entries, n+1)
	assert.True(t, entries[n]["notes"].IsNull())
	assert.Equal(t, fmt.Sprintf("edit:%d", poi.ID), entries[n]["action"].Text())
}

func TestRecordService_EditStaleVersion(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	poi := env.createPOI(t, "Alice")

	_, _, err := env.svc.Edit(ctx, 1, poiScope(), poi.ID, 1, fieldmap.Values{"alias": text("A")})
	require.NoError(t, err)

	_, _, err = env.svc.Edit(ctx, 1, poiScope(), poi.ID, 1, fieldmap.Values{"alias": text("B")})
	require.ErrorIs(t, err, common.ErrVersionConflict)

	err = env.svc.Delete(ctx, 1, poiScope(), poi.ID, 1)
	require.ErrorIs(t, err, common.ErrVersionConflict)
}

func TestRecordService_UniqueParent(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	poi := env.createPOI(t, "Vet")
	sc := Scope{Entity: fieldmap.VeteranStatus, ParentID: poi.ID}
	vals := fieldmap.Values{"is_veteran": fieldmap.BoolValue(true)}

	first, err := env.svc.Create(ctx, 1, sc, nil, vals)
	require.NoError(t, err)

	_, err = env.svc.Create(ctx, 1, sc, nil, vals)
	require.ErrorIs(t, err, common.ErrConflict)

	require.NoError(t, env.svc.Delete(ctx, 1, sc, first.ID, 0))
	_, err = env.svc.Create(ctx, 1, sc, nil, vals)
	require.NoError(t, err, "a deleted status frees the slot")
}

func TestRecordService_ConvictionNeedsOffense(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	poi := env.createPOI(t, "Con")
	sc := Scope{Entity: fieldmap.Conviction, ParentID: poi.ID}
	vals := fieldmap.Values{"date_convicted": fieldmap.DateValue(env.now)}

	_, err := env.svc.Create(ctx, 1, sc, map[string]int64{fieldmap.RefOffense: 5}, vals)
	require.ErrorIs(t, err, common.ErrorNotFound)
	assert.Equal(t, "offense not found", common.Message(err))

	off, err := env.svc.Create(ctx, 1, offenseScope(), nil, fieldmap.Values{"name": text("Theft")})
	require.NoError(t, err)

	conv, err := env.svc.Create(ctx, 1, sc, map[string]int64{fieldmap.RefOffense: off.ID}, vals)
	require.NoError(t, err)
	assert.Equal(t, off.ID, conv.Refs[fieldmap.RefOffense])
	assert.Equal(t, poi.ID, conv.Refs[fieldmap.RefPOI])
}

func TestRecordService_WrongKeyIsForbidden(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	poi := env.createPOI(t, "Alice")

	var logs bytes.Buffer
	other := NewRecordService(env.db, env.rm, newCodec(t, otherKey), logging.NewJSONLogger(&logs, "warn"))

	_, err := other.Get(ctx, poiScope(), poi.ID)
	require.ErrorIs(t, err, common.ErrForbidden)
	assert.NotErrorIs(t, err, common.ErrorNotFound)
	assert.Contains(t, logs.String(), `"msg":"cannot decrypt record"`)
	assert.Contains(t, logs.String(), `"resource":"poi"`)
	assert.NotContains(t, logs.String(), "Alice")

	_, err = other.List(ctx, poiScope())
	require.ErrorIs(t, err, common.ErrForbidden)

	_, err = other.Get(ctx, poiScope(), 404)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRecordService_MutationAndAuditCommitTogether(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	env := newEnvWith(t, db, records.NewMemoryRepository())

	mock.ExpectBegin()
	mock.ExpectCommit()
	env.createPOI(t, "Alice")
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Len(t, env.auditEntries(t), 1)
}

func TestRecordService_AuditFailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	env := newEnvWith(t, db, records.NewMemoryRepository())
	env.rm.records = failingRecords{Repository: env.repo, entity: fieldmap.AuditLog}

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err = env.svc.Create(context.Background(), 1, poiScope(), nil, fieldmap.Values{"full_name": text("Alice")})
	require.ErrorIs(t, err, errRepoDown)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordService_OffenseIsNotSoftDeletable(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	off, err := env.svc.Create(ctx, 1, offenseScope(), nil, fieldmap.Values{"name": text("Fraud")})
	require.NoError(t, err)
	_, hasFlag := off.Values[fieldmap.FieldIsDeleted]
	assert.False(t, hasFlag)

	require.NoError(t, env.svc.Delete(ctx, 1, offenseScope(), off.ID, 0))
	assert.Equal(t, 0, env.repo.Len(fieldmap.Offense), "offenses are removed physically")
}
