package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/poikeeper/internal/common"
	"github.com/dmitrijs2005/poikeeper/internal/cryptox"
	"github.com/dmitrijs2005/poikeeper/internal/dbx"
	"github.com/dmitrijs2005/poikeeper/internal/server/auth"
	"github.com/dmitrijs2005/poikeeper/internal/server/config"
	"github.com/dmitrijs2005/poikeeper/internal/server/fieldmap"
	"github.com/dmitrijs2005/poikeeper/internal/server/models"
	"github.com/dmitrijs2005/poikeeper/internal/server/repositories/repomanager"
)

const MsgInvalidCredentials = "Invalid Login Credentials"

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// UserService handles operator accounts and authentication:
// registration, login with recorded attempts, token refresh and logout.
type UserService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	records                      *RecordService
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration

	dummyOnce sync.Once
	dummyHash string
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, records *RecordService, cfg *config.Config) *UserService {
	return &UserService{
		db:                           db,
		repomanager:                  m,
		records:                      records,
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
	}
}

// Register creates an operator account. The password is stored as an
// argon2id hash and created_at is encrypted.
func (s *UserService) Register(ctx context.Context, badgeNum, password string) (*models.User, error) {
	badgeNum = strings.TrimSpace(badgeNum)
	if badgeNum == "" || password == "" {
		return nil, common.NewError(common.ErrBadRequest, "badge number and password are required")
	}

	hash, err := cryptox.HashPassword([]byte(password))
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	createdAt, err := s.records.mapper.EncryptValue(
		fieldmap.Field{Name: fieldmap.FieldCreatedAt, Type: fieldmap.DateTime},
		fieldmap.DateTimeValue(s.records.now()))
	if err != nil {
		return nil, err
	}

	u, err := s.repomanager.Users(s.db).Create(ctx, &models.User{BadgeNum: badgeNum, PasswordHash: hash, CreatedAt: *createdAt})
	if err != nil {
		if errors.Is(err, common.ErrConflict) {
			return nil, common.NewError(common.ErrConflict, "badge number already registered")
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	return u, nil
}

// Login records an attempt, verifies the credentials and, on success, marks
// the attempt successful and returns a new TokenPair. The failed attempt
// stays recorded when verification fails.
func (s *UserService) Login(ctx context.Context, badgeNum, password string) (*TokenPair, error) {
	attempt, err := s.recordAttempt(ctx, badgeNum)
	if err != nil {
		return nil, err
	}

	user, err := s.repomanager.Users(s.db).GetUserByBadge(ctx, badgeNum)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// same cost as a real check
			_, _ = cryptox.VerifyPassword(s.dummy(), []byte(password))
			return nil, common.NewError(common.ErrorUnauthorized, MsgInvalidCredentials)
		}
		return nil, common.ErrorInternal
	}

	ok, err := cryptox.VerifyPassword(user.PasswordHash, []byte(password))
	if err != nil || !ok {
		return nil, common.NewError(common.ErrorUnauthorized, MsgInvalidCredentials)
	}

	return dbx.WithTxValue(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (*TokenPair, error) {
		if _, err := s.records.changes.Apply(ctx, tx, fieldmap.LoginAttempt, attempt,
			fieldmap.Values{"is_success": fieldmap.BoolValue(true)}); err != nil {
			return nil, err
		}
		return s.generateTokenPair(ctx, user, tx)
	})
}

// RefreshToken consumes a refresh token and issues a new pair in the same
// transaction. Expired tokens yield ErrRefreshTokenExpired.
func (s *UserService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	return dbx.WithTxValue(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (*TokenPair, error) {
		token, err := s.repomanager.RefreshTokens(tx).Consume(ctx, refreshToken)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil, common.ErrInvalidToken
			}
			return nil, fmt.Errorf("error consuming refresh token: %w", err)
		}
		if !token.ExpiresAt.After(s.records.now()) {
			return nil, common.ErrRefreshTokenExpired
		}

		user, err := s.repomanager.Users(tx).GetByID(ctx, token.UserID)
		if err != nil {
			return nil, fmt.Errorf("error loading token owner: %w", err)
		}
		return s.generateTokenPair(ctx, user, tx)
	})
}

// Logout revokes every refresh token of the user.
func (s *UserService) Logout(ctx context.Context, userID int64) error {
	_, err := s.repomanager.RefreshTokens(s.db).RevokeAll(ctx, userID)
	return err
}

// LoginAttempts lists recorded login attempts, newest first.
func (s *UserService) LoginAttempts(ctx context.Context, p Page) (PageOf[*Item], error) {
	items, err := s.records.List(ctx, Scope{Entity: fieldmap.LoginAttempt})
	if err != nil {
		return PageOf[*Item]{}, err
	}
	slices.Reverse(items)
	return Paginate(items, p), nil
}

// --- helpers below ---

func (s *UserService) recordAttempt(ctx context.Context, badgeNum string) (*models.Record, error) {
	e := fieldmap.LoginAttempt
	cols, err := s.records.mapper.Encrypt(e, fieldmap.Values{
		"badge_num":             fieldmap.TextValue(badgeNum),
		"is_success":            fieldmap.BoolValue(false),
		fieldmap.FieldCreatedAt: fieldmap.DateTimeValue(s.records.now()),
	})
	if err != nil {
		return nil, err
	}

	rec := &models.Record{Refs: map[string]int64{}, Columns: cols}
	id, err := s.repomanager.Records(s.db).Create(ctx, e, rec)
	if err != nil {
		return nil, fmt.Errorf("error recording login attempt: %w", err)
	}
	rec.ID, rec.Version = id, 1
	return rec, nil
}

func (s *UserService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = cryptox.HashPassword(common.GenerateRandByteArray(16))
	})
	return s.dummyHash
}

func (s *UserService) generateAccessToken(user *models.User) (string, error) {
	return auth.GenerateToken(auth.Identity{UserID: user.ID, BadgeNum: user.BadgeNum}, s.jwtSecret, s.accessTokenValidityDuration)
}

func (s *UserService) generateRefreshToken() (string, error) {
	return common.MakeRandHexString(32)
}

func (s *UserService) generateTokenPair(ctx context.Context, user *models.User, tx dbx.DBTX) (*TokenPair, error) {
	access, err := s.generateAccessToken(user)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := s.generateRefreshToken()
	if err != nil {
		return nil, common.ErrorInternal
	}
	issued := &models.RefreshToken{
		UserID:    user.ID,
		Token:     refresh,
		ExpiresAt: s.records.now().Add(s.refreshTokenValidityDuration),
	}
	if err := s.repomanager.RefreshTokens(tx).Issue(ctx, issued); err != nil {
		return nil, common.ErrorInternal
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
