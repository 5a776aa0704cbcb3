package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Errors surfaced by session validation and refresh redemption.
var (
	ErrInvalidManagerConfig  = errors.New("invalid manager config")
	ErrTokenExpired          = errors.New("access token expired")
	ErrTokenInvalid          = errors.New("access token invalid")
	ErrUnknownRefreshToken   = errors.New("unknown refresh token")
	ErrRefreshTokenExpired   = errors.New("refresh token expired")
	ErrRefreshTokenConflict  = errors.New("refresh token already issued")
	ErrRefreshStoreUnhealthy = errors.New("refresh token store failed")
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 30 * 24 * time.Hour
)

// Claims is the access token payload.
type Claims struct {
	SellerID string `json:"sellerId"`
	IsAdmin  bool   `json:"isAdmin"`
	jwt.RegisteredClaims
}

// RefreshToken is a single-use opaque token persisted server-side.
type RefreshToken struct {
	Token     string
	SellerID  string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// TokenStore persists refresh tokens between issuance and redemption.
type TokenStore interface {
	SaveRefreshToken(ctx context.Context, token RefreshToken) error
	GetRefreshToken(ctx context.Context, raw string) (RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, raw string) error
	DeleteRefreshTokensForSeller(ctx context.Context, sellerID string) error
}

// TokenPair is the credential pair handed to callers on sign-in and refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Manager issues and validates session credentials.
type Manager struct {
	signingKey []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	tokens     TokenStore
	nowFn      func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithAccessTokenTTL overrides the access token lifetime.
func WithAccessTokenTTL(ttl time.Duration) ManagerOption {
	return func(manager *Manager) {
		if ttl > 0 {
			manager.accessTTL = ttl
		}
	}
}

// WithRefreshTokenTTL overrides the refresh token lifetime.
func WithRefreshTokenTTL(ttl time.Duration) ManagerOption {
	return func(manager *Manager) {
		if ttl > 0 {
			manager.refreshTTL = ttl
		}
	}
}

// WithNowFunc overrides the clock, used in tests to force expiry.
func WithNowFunc(nowFn func() time.Time) ManagerOption {
	return func(manager *Manager) {
		if nowFn != nil {
			manager.nowFn = nowFn
		}
	}
}

// NewManager builds a Manager with HS256 signing.
func NewManager(signingKey string, issuer string, tokens TokenStore, options ...ManagerOption) (*Manager, error) {
	if signingKey == "" {
		return nil, ErrInvalidManagerConfig
	}
	if tokens == nil {
		return nil, ErrInvalidManagerConfig
	}
	manager := &Manager{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		accessTTL:  defaultAccessTokenTTL,
		refreshTTL: defaultRefreshTokenTTL,
		tokens:     tokens,
		nowFn:      time.Now,
	}
	for _, option := range options {
		option(manager)
	}
	return manager, nil
}

// IssuePair mints an access token and persists a fresh single-use refresh
// token for the seller.
func (manager *Manager) IssuePair(ctx context.Context, sellerID string, isAdmin bool) (TokenPair, error) {
	now := manager.nowFn().UTC()
	claims := Claims{
		SellerID: sellerID,
		IsAdmin:  isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    manager.issuer,
			Subject:   sellerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(manager.accessTTL)),
		},
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(manager.signingKey)
	if err != nil {
		return TokenPair{}, err
	}
	refresh := RefreshToken{
		Token:     uuid.NewString(),
		SellerID:  sellerID,
		ExpiresAt: now.Add(manager.refreshTTL),
		CreatedAt: now,
	}
	if err := manager.tokens.SaveRefreshToken(ctx, refresh); err != nil {
		return TokenPair{}, errors.Join(ErrRefreshStoreUnhealthy, err)
	}
	return TokenPair{AccessToken: accessToken, RefreshToken: refresh.Token}, nil
}

// ValidateAccessToken parses and verifies an access token. Expired tokens map
// to ErrTokenExpired so the transport can emit the exact expiry signature
// clients key their refresh logic on.
func (manager *Manager) ValidateAccessToken(raw string) (Claims, error) {
	claims := Claims{}
	token, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return manager.signingKey, nil
	}, jwt.WithTimeFunc(func() time.Time { return manager.nowFn().UTC() }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, errors.Join(ErrTokenInvalid, err)
	}
	if !token.Valid || claims.SellerID == "" {
		return Claims{}, ErrTokenInvalid
	}
	return claims, nil
}

// Redeem consumes a refresh token and returns the seller it belongs to. The
// token is deleted before any new pair is minted, so each value redeems at
// most once.
func (manager *Manager) Redeem(ctx context.Context, raw string) (string, error) {
	if raw == "" {
		return "", ErrUnknownRefreshToken
	}
	stored, err := manager.tokens.GetRefreshToken(ctx, raw)
	if err != nil {
		return "", ErrUnknownRefreshToken
	}
	if err := manager.tokens.DeleteRefreshToken(ctx, raw); err != nil {
		return "", errors.Join(ErrRefreshStoreUnhealthy, err)
	}
	if manager.nowFn().UTC().After(stored.ExpiresAt) {
		return "", ErrRefreshTokenExpired
	}
	return stored.SellerID, nil
}

// RevokeSeller drops every refresh token held for the seller.
func (manager *Manager) RevokeSeller(ctx context.Context, sellerID string) error {
	return manager.tokens.DeleteRefreshTokensForSeller(ctx, sellerID)
}
