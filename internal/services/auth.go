package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"taskflow/backend/internal/config"
	"taskflow/backend/internal/models"
	"taskflow/backend/internal/session"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Claims are carried by access tokens. Subject is the user id; SessionID is
// the id of the refresh-token row backing the session.
type Claims struct {
	SessionID string `json:"sid"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	jwt.RegisteredClaims
}

type AuthService interface {
	session.Provider

	SignIn(ctx context.Context, email, password string) (*models.User, TokenPair, error)
	SignUp(ctx context.Context, req SignUpRequest) (*models.User, TokenPair, error)
	SignOut(ctx context.Context, sessionID uuid.UUID) error
	Refresh(ctx context.Context, refreshToken string) (TokenPair, error)
	Resolve(ctx context.Context, accessToken string) (*session.Identity, error)
	CurrentUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

type AuthServiceImpl struct {
	db       *gorm.DB
	cfg      config.AuthConfig
	validate *validator.Validate
	hub      *sessionHub
	now      func() time.Time
}

func NewAuthService(db *gorm.DB, cfg config.AuthConfig) *AuthServiceImpl {
	if cfg.BCryptCost == 0 {
		cfg.BCryptCost = bcrypt.DefaultCost
	}
	if cfg.SessionResolveTimeout == 0 {
		cfg.SessionResolveTimeout = 2 * time.Second
	}
	if cfg.SessionLookupTimeout <= cfg.SessionResolveTimeout {
		cfg.SessionLookupTimeout = 4 * cfg.SessionResolveTimeout
	}
	return &AuthServiceImpl{
		db:       db,
		cfg:      cfg,
		validate: newSignUpValidator(),
		hub:      newSessionHub(),
		now:      time.Now,
	}
}

// WithClock replaces the time source for token issuing and validation.
func (s *AuthServiceImpl) WithClock(now func() time.Time) *AuthServiceImpl {
	s.now = now
	return s
}

func VerifyPassword(hashedPassword, plainPassword string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(plainPassword))
	return err == nil
}

func (s *AuthServiceImpl) SignIn(ctx context.Context, email, password string) (*models.User, TokenPair, error) {
	email = normalizeEmail(email)

	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, TokenPair{}, newAuthError(OpSignIn, KindInvalidCredential, nil)
		}
		return nil, TokenPair{}, newAuthError(OpSignIn, KindUnknown, err)
	}

	if !VerifyPassword(user.Password, password) {
		return nil, TokenPair{}, newAuthError(OpSignIn, KindInvalidCredential, nil)
	}
	if !user.IsActive {
		return nil, TokenPair{}, newAuthError(OpSignIn, KindUserDisabled, nil)
	}

	now := s.now()
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, TokenPair{}, newAuthError(OpSignIn, KindUnknown, tx.Error)
	}

	if err := tx.Model(&user).Update("last_sign_in_at", now).Error; err != nil {
		tx.Rollback()
		return nil, TokenPair{}, newAuthError(OpSignIn, KindUnknown, err)
	}

	pair, err := s.issueTokens(tx, &user)
	if err != nil {
		tx.Rollback()
		return nil, TokenPair{}, newAuthError(OpSignIn, KindUnknown, err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, TokenPair{}, newAuthError(OpSignIn, KindUnknown, err)
	}

	user.LastSignInAt = &now
	return &user, pair, nil
}

func (s *AuthServiceImpl) SignUp(ctx context.Context, req SignUpRequest) (*models.User, TokenPair, error) {
	if !s.cfg.SignUpEnabled {
		return nil, TokenPair{}, newAuthError(OpSignUp, KindOperationNotAllowed, nil)
	}

	req.normalize()
	if err := validateSignUp(s.validate, req); err != nil {
		return nil, TokenPair{}, err
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", req.Email).Count(&existing).Error; err != nil {
		return nil, TokenPair{}, newAuthError(OpSignUp, KindUnknown, err)
	}
	if existing > 0 {
		return nil, TokenPair{}, newAuthError(OpSignUp, KindEmailInUse, nil)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BCryptCost)
	if err != nil {
		return nil, TokenPair{}, newAuthError(OpSignUp, KindUnknown, err)
	}

	now := s.now()
	user := models.User{
		ID:           uuid.Must(uuid.NewV4()),
		Name:         req.Name,
		Email:        req.Email,
		Password:     string(hashedPassword),
		IsActive:     true,
		LastSignInAt: &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, TokenPair{}, newAuthError(OpSignUp, KindUnknown, tx.Error)
	}

	if err := tx.Create(&user).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrDuplicatedKey) || s.emailTaken(ctx, req.Email) {
			return nil, TokenPair{}, newAuthError(OpSignUp, KindEmailInUse, err)
		}
		return nil, TokenPair{}, newAuthError(OpSignUp, KindUnknown, err)
	}

	pair, err := s.issueTokens(tx, &user)
	if err != nil {
		tx.Rollback()
		return nil, TokenPair{}, newAuthError(OpSignUp, KindUnknown, err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, TokenPair{}, newAuthError(OpSignUp, KindUnknown, err)
	}

	log.Printf("auth: registered user %s", user.ID)
	return &user, pair, nil
}

func (s *AuthServiceImpl) emailTaken(ctx context.Context, email string) bool {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&n).Error
	return err == nil && n > 0
}

// SignOut ends the session and tells every watcher of it that nobody is
// signed in any more. Signing out an unknown session is not an error.
func (s *AuthServiceImpl) SignOut(ctx context.Context, sessionID uuid.UUID) error {
	if err := s.db.WithContext(ctx).Where("id = ?", sessionID).Delete(&models.Token{}).Error; err != nil {
		return newAuthError(OpSignOut, KindUnknown, err)
	}
	s.hub.revoke(sessionID)
	return nil
}

// Refresh rotates the refresh token in place. The session id stays the same,
// so access tokens already issued for it remain valid until they expire.
func (s *AuthServiceImpl) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	refreshUUID, err := uuid.FromString(refreshToken)
	if err != nil {
		return TokenPair{}, newAuthError(OpRefresh, KindInvalidToken, err)
	}

	now := s.now()
	var token models.Token
	err = s.db.WithContext(ctx).
		Where("refresh_token = ? AND expires_at > ?", refreshUUID, now).
		First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return TokenPair{}, newAuthError(OpRefresh, KindInvalidToken, err)
		}
		return TokenPair{}, newAuthError(OpRefresh, KindUnknown, err)
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", token.UserId).Error; err != nil {
		return TokenPair{}, newAuthError(OpRefresh, KindInvalidToken, err)
	}
	if !user.IsActive {
		return TokenPair{}, newAuthError(OpRefresh, KindUserDisabled, nil)
	}

	next := uuid.Must(uuid.NewV4())
	result := s.db.WithContext(ctx).Model(&models.Token{}).
		Where("id = ? AND refresh_token = ?", token.ID, token.RefreshToken).
		Updates(map[string]interface{}{
			"refresh_token": next,
			"expires_at":    now.Add(s.cfg.RefreshTokenTTL),
		})
	if result.Error != nil {
		return TokenPair{}, newAuthError(OpRefresh, KindUnknown, result.Error)
	}
	if result.RowsAffected == 0 {
		// Lost a race with another refresh of the same token.
		return TokenPair{}, newAuthError(OpRefresh, KindInvalidToken, nil)
	}

	access, err := s.signAccessToken(&user, token.ID, now)
	if err != nil {
		return TokenPair{}, newAuthError(OpRefresh, KindUnknown, err)
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: next.String(),
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

// Resolve turns an access token into the identity it was issued for. It
// fails when the token is malformed or expired, or when its session has been
// signed out or its user disabled.
func (s *AuthServiceImpl) Resolve(ctx context.Context, accessToken string) (*session.Identity, error) {
	claims, err := s.parseAccessToken(accessToken)
	if err != nil {
		return nil, err
	}
	return s.lookupSession(ctx, claims)
}

func (s *AuthServiceImpl) parseAccessToken(accessToken string) (*Claims, error) {
	if accessToken == "" {
		return nil, newAuthError(OpResolve, KindInvalidToken, nil)
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(accessToken, claims,
		func(token *jwt.Token) (interface{}, error) {
			return []byte(s.cfg.JWTSecret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, newAuthError(OpResolve, KindInvalidToken, err)
	}
	return claims, nil
}

func (s *AuthServiceImpl) lookupSession(ctx context.Context, claims *Claims) (*session.Identity, error) {
	userID, err := uuid.FromString(claims.Subject)
	if err != nil {
		return nil, newAuthError(OpResolve, KindInvalidToken, err)
	}
	sessionID, err := uuid.FromString(claims.SessionID)
	if err != nil {
		return nil, newAuthError(OpResolve, KindInvalidToken, err)
	}

	var user models.User
	err = s.db.WithContext(ctx).
		Joins("JOIN tokens ON tokens.user_id = users.id").
		Where("users.id = ? AND tokens.id = ? AND tokens.expires_at > ?", userID, sessionID, s.now()).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newAuthError(OpResolve, KindInvalidToken, err)
		}
		return nil, newAuthError(OpResolve, KindUnknown, err)
	}
	if !user.IsActive {
		return nil, newAuthError(OpResolve, KindUserDisabled, nil)
	}

	return &session.Identity{
		UserID:    user.ID,
		SessionID: sessionID,
		Email:     user.Email,
		Name:      user.Name,
	}, nil
}

func (s *AuthServiceImpl) CurrentUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newAuthError(OpResolve, KindInvalidToken, err)
		}
		return nil, newAuthError(OpResolve, KindUnknown, err)
	}
	return &user, nil
}

// issueTokens creates the session row and signs an access token for it,
// inside the caller's transaction.
func (s *AuthServiceImpl) issueTokens(tx *gorm.DB, user *models.User) (TokenPair, error) {
	now := s.now()
	token := models.Token{
		ID:           uuid.Must(uuid.NewV4()),
		UserId:       user.ID,
		RefreshToken: uuid.Must(uuid.NewV4()),
		ExpiresAt:    now.Add(s.cfg.RefreshTokenTTL),
		CreatedAt:    now,
	}
	if err := tx.Create(&token).Error; err != nil {
		return TokenPair{}, err
	}

	access, err := s.signAccessToken(user, token.ID, now)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: token.RefreshToken.String(),
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

func (s *AuthServiceImpl) signAccessToken(user *models.User, sessionID uuid.UUID, now time.Time) (string, error) {
	claims := Claims{
		SessionID: sessionID.String(),
		Email:     user.Email,
		Name:      user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}
