package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/poikeeper/internal/cryptox"
	"github.com/dmitrijs2005/poikeeper/internal/dbx"
	"github.com/dmitrijs2005/poikeeper/internal/logging"
	"github.com/dmitrijs2005/poikeeper/internal/server/fieldmap"
	"github.com/dmitrijs2005/poikeeper/internal/server/models"
	"github.com/dmitrijs2005/poikeeper/internal/server/repositories/records"
	"github.com/dmitrijs2005/poikeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/poikeeper/internal/server/repositories/users"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

const (
	testKey  = "AAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8="
	otherKey = "HxwdGhsYGRYXFBUSExAREA8ODQwLCgkIBwYFBAMCAQA="
)

var dbSeq atomic.Int64

// fakeRM hands out the same in-memory repositories for every handle, so
// service code sees its own writes inside and outside transactions.
type fakeRM struct {
	records records.Repository
	users   users.Repository
	refresh refreshtokens.Repository
}

func (m *fakeRM) RunMigrations(context.Context, *sql.DB) error    { return nil }
func (m *fakeRM) Users(dbx.DBTX) users.Repository                 { return m.users }
func (m *fakeRM) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return m.refresh }
func (m *fakeRM) Records(dbx.DBTX) records.Repository             { return m.records }

type testEnv struct {
	db    *sql.DB
	repo  *records.MemoryRepository
	rm    *fakeRM
	codec *cryptox.Codec
	svc   *RecordService
	now   time.Time
}

// newSQLiteDB returns an empty in-memory database used only for its
// transactions.
func newSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", fmt.Sprintf("file:services%d?mode=memory", dbSeq.Add(1)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newCodec(t *testing.T, key string) *cryptox.Codec {
	t.Helper()
	c, err := cryptox.NewCodec(key)
	require.NoError(t, err)
	return c
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	return newEnvWith(t, newSQLiteDB(t), records.NewMemoryRepository())
}

func newEnvWith(t *testing.T, db *sql.DB, repo *records.MemoryRepository) *testEnv {
	t.Helper()
	env := &testEnv{
		db:    db,
		repo:  repo,
		rm:    &fakeRM{records: repo},
		codec: newCodec(t, testKey),
	}
	env.svc = NewRecordService(db, env.rm, env.codec, logging.Nop())
	env.setNow(time.Date(2024, time.March, 15, 10, 30, 0, 0, time.UTC))
	return env
}

func (e *testEnv) setNow(now time.Time) {
	e.now = now
	clock := func() time.Time { return e.now }
	e.svc.now = clock
	e.svc.changes.now = clock
	e.svc.audit.now = clock
}

// auditEntries decrypts every audit row in insertion order.
func (e *testEnv) auditEntries(t *testing.T) []fieldmap.Values {
	t.Helper()
	recs, err := e.repo.ListAll(context.Background(), fieldmap.AuditLog)
	require.NoError(t, err)
	out := make([]fieldmap.Values, 0, len(recs))
	for _, r := range recs {
		vals, err := e.svc.mapper.Decrypt(fieldmap.AuditLog, r.Columns)
		require.NoError(t, err)
		out = append(out, vals)
	}
	return out
}

func (e *testEnv) lastAudit(t *testing.T) fieldmap.Values {
	t.Helper()
	entries := e.auditEntries(t)
	require.NotEmpty(t, entries)
	return entries[len(entries)-1]
}

func (e *testEnv) createPOI(t *testing.T, name string) *Item {
	t.Helper()
	item, err := e.svc.Create(context.Background(), 1, poiScope(), nil, fieldmap.Values{"full_name": fieldmap.TextValue(name)})
	require.NoError(t, err)
	return item
}

func (e *testEnv) stored(t *testing.T, ent *fieldmap.Entity, id int64) (*models.Record, fieldmap.Values) {
	t.Helper()
	rec, err := e.repo.GetByID(context.Background(), ent, id)
	require.NoError(t, err)
	vals, err := e.svc.mapper.Decrypt(ent, rec.Columns)
	require.NoError(t, err)
	return rec, vals
}

// failingRecords fails writes of one entity and delegates everything else.
type failingRecords struct {
	records.Repository
	entity *fieldmap.Entity
}

var errRepoDown = errors.New("repository down")

func (f failingRecords) Create(ctx context.Context, e *fieldmap.Entity, rec *models.Record) (int64, error) {
	if e == f.entity {
		return 0, errRepoDown
	}
	return f.Repository.Create(ctx, e, rec)
}

func text(s string) fieldmap.Value { return fieldmap.TextValue(s) }
