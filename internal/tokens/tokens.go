package tokens

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nvisust/authserver/types"
)

const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

// ErrInvalidToken is returned for any token that fails verification:
// malformed, expired, wrong type, or revoked. Callers never see the
// underlying parse detail.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the JWT claims carried by both token types.
type Claims struct {
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Manager issues and verifies the access/refresh token pair and revokes
// refresh tokens through the blacklist.
type Manager struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	blacklist  Blacklist
}

// NewManager constructs a Manager. The blacklist must not be nil.
func NewManager(secret, issuer string, accessTTL, refreshTTL time.Duration, blacklist Blacklist) *Manager {
	return &Manager{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		blacklist:  blacklist,
	}
}

// IssuePair mints a fresh access/refresh pair for the user. Pairs are
// independent: issuing a new pair never invalidates earlier ones.
func (m *Manager) IssuePair(user types.User) (access, refresh string, err error) {
	access, err = m.sign(user.ID, typeAccess, m.accessTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err = m.sign(user.ID, typeRefresh, m.refreshTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// VerifyAccess validates an access token and returns the user ID it is
// bound to.
func (m *Manager) VerifyAccess(tokenString string) (int, error) {
	claims, err := m.parse(tokenString, typeAccess)
	if err != nil {
		return 0, err
	}
	id, err := strconv.Atoi(claims.Subject)
	if err != nil || id < 1 {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// Refresh exchanges a valid, non-revoked refresh token for a new access
// token. The refresh token itself stays valid.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := m.verifyRefresh(ctx, refreshToken)
	if err != nil {
		return "", err
	}
	id, err := strconv.Atoi(claims.Subject)
	if err != nil || id < 1 {
		return "", ErrInvalidToken
	}
	return m.sign(id, typeAccess, m.accessTTL)
}

// Revoke blacklists a refresh token for its remaining lifetime. An
// already-revoked or otherwise invalid token yields ErrInvalidToken.
func (m *Manager) Revoke(ctx context.Context, refreshToken string) error {
	claims, err := m.verifyRefresh(ctx, refreshToken)
	if err != nil {
		return err
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return ErrInvalidToken
	}
	return m.blacklist.Add(ctx, claims.ID, ttl)
}

func (m *Manager) verifyRefresh(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := m.parse(tokenString, typeRefresh)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.ID) == "" || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}
	revoked, err := m.blacklist.Contains(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (m *Manager) sign(userID int, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        newTokenID(),
			Subject:   strconv.Itoa(userID),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *Manager) parse(tokenString, wantType string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != wantType {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func newTokenID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return ""
	}
	return hex.EncodeToString(buf[:])
}
