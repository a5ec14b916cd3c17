package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/poikeeper/internal/common"
	"github.com/dmitrijs2005/poikeeper/internal/cryptox"
	"github.com/dmitrijs2005/poikeeper/internal/dbx"
	"github.com/dmitrijs2005/poikeeper/internal/logging"
	"github.com/dmitrijs2005/poikeeper/internal/server/auth"
	"github.com/dmitrijs2005/poikeeper/internal/server/config"
	"github.com/dmitrijs2005/poikeeper/internal/server/models"
	"github.com/dmitrijs2005/poikeeper/internal/server/repositories/records"
	"github.com/dmitrijs2005/poikeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/poikeeper/internal/server/repositories/users"
	"github.com/dmitrijs2005/poikeeper/internal/server/services"
)

const (
	testKey    = "AAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8="
	testSecret = "test-secret"
)

var dbSeq atomic.Int64

type fakeRM struct {
	records records.Repository
	users   *memUsers
	refresh *memRefresh
}

func (m *fakeRM) RunMigrations(context.Context, *sql.DB) error    { return nil }
func (m *fakeRM) Users(dbx.DBTX) users.Repository                 { return m.users }
func (m *fakeRM) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return m.refresh }
func (m *fakeRM) Records(dbx.DBTX) records.Repository             { return m.records }

type memUsers struct {
	mu   sync.Mutex
	rows []models.User
}

func (u *memUsers) Create(_ context.Context, user *models.User) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, r := range u.rows {
		if r.BadgeNum == user.BadgeNum {
			return nil, common.ErrConflict
		}
	}
	c := *user
	c.ID = int64(len(u.rows) + 1)
	u.rows = append(u.rows, c)
	return &c, nil
}

func (u *memUsers) find(match func(models.User) bool) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, r := range u.rows {
		if match(r) {
			c := r
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (u *memUsers) GetUserByBadge(_ context.Context, badge string) (*models.User, error) {
	return u.find(func(r models.User) bool { return r.BadgeNum == badge })
}

func (u *memUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	return u.find(func(r models.User) bool { return r.ID == id })
}

type memRefresh struct {
	mu     sync.Mutex
	tokens map[string]models.RefreshToken
}

func (m *memRefresh) Issue(_ context.Context, t *models.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[t.Token] = *t
	return nil
}

func (m *memRefresh) Consume(_ context.Context, token string) (*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	delete(m.tokens, token)
	return &t, nil
}

func (m *memRefresh) RevokeAll(_ context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, t := range m.tokens {
		if t.UserID == userID {
			delete(m.tokens, k)
			n++
		}
	}
	return n, nil
}

type testAPI struct {
	handler http.Handler
	svc     Services
	metrics *Metrics
	token   string
}

func testConfig() *config.Config {
	return &config.Config{
		EndpointAddrHTTP:             "127.0.0.1:0",
		SecretKey:                    testSecret,
		AccessTokenValidityDuration:  time.Hour,
		RefreshTokenValidityDuration: time.Hour,
		CORSAllowedOrigins:           []string{"http://localhost:3000"},
		MaxPictureBytes:              1 << 20,
		S3Bucket:                     "pictures",
		S3Region:                     "us-east-1",
	}
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	db, err := sql.Open("sqlite", fmt.Sprintf("file:httpapi%d?mode=memory", dbSeq.Add(1)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	codec, err := cryptox.NewCodec(testKey)
	require.NoError(t, err)

	rm := &fakeRM{
		records: records.NewMemoryRepository(),
		users:   &memUsers{},
		refresh: &memRefresh{tokens: map[string]models.RefreshToken{}},
	}
	cfg := testConfig()
	rs := services.NewRecordService(db, rm, codec, logging.Nop())
	svc := Services{
		Users:    services.NewUserService(db, rm, rs, cfg),
		Records:  rs,
		POIs:     services.NewPOIService(rs),
		Offenses: services.NewOffenseService(rs),
		Pictures: services.NewPictureService(rs, cfg),
	}
	m := NewMetrics()
	s := NewHTTPServer(cfg, logging.Nop(), svc, m)

	token, err := auth.GenerateToken(auth.Identity{UserID: 1, BadgeNum: "1001"}, []byte(testSecret), time.Hour)
	require.NoError(t, err)

	return &testAPI{handler: s.Routes(), svc: svc, metrics: m, token: token}
}

type response struct {
	Status  int
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// do sends a request with the test access token, unless token is empty.
func (a *testAPI) do(t *testing.T, method, path string, body any) response {
	t.Helper()
	return a.doAs(t, a.token, method, path, body)
}

func (a *testAPI) doAs(t *testing.T, token, method, path string, body any) response {
	t.Helper()

	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)

	var out response
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	}
	out.Status = rr.Code
	return out
}

func decodeData[T any](t *testing.T, r response) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(r.Data, &v), string(r.Data))
	return v
}

type jsonObject = map[string]any

type pageBody struct {
	Items []jsonObject `json:"items"`
	Total int          `json:"total"`
}
