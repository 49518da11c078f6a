package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"profile-api/internal/domain"
)

// TokenService emite y valida tokens firmados con un proposito unico.
type TokenService struct {
	secret []byte
	issuer string
	store  TokenStore
	now    func() time.Time
}

type Claims struct {
	UserID  string              `json:"uid"`
	Purpose domain.TokenPurpose `json:"typ"`
	jwt.RegisteredClaims
}

var (
	ErrTokenInvalidSignature = errors.New("token signature invalid")
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenPurposeMismatch  = errors.New("token purpose mismatch")
	ErrTokenNotFound         = errors.New("token not found")
	ErrTokenNotConfigured    = errors.New("token service not configured")
)

const tokenIssuer = "profile-api"

func NewTokenService(secret string, store TokenStore) *TokenService {
	if store == nil {
		store = NewMemoryTokenStore()
	}
	return &TokenService{
		secret: []byte(secret),
		issuer: tokenIssuer,
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Issue firma un token para userID con el proposito y ttl indicados.
// Los tokens de sesion y de reset quedan registrados como activos.
func (s *TokenService) Issue(ctx context.Context, userID string, purpose domain.TokenPurpose, ttl time.Duration) (domain.IssuedToken, error) {
	if len(s.secret) == 0 {
		return domain.IssuedToken{}, ErrTokenNotConfigured
	}
	if strings.TrimSpace(userID) == "" || purpose == "" || ttl <= 0 {
		return domain.IssuedToken{}, errors.New("invalid token request")
	}

	now := s.now()
	expiresAt := now.Add(ttl)
	jti := uuid.NewString()
	claims := Claims{
		UserID:  userID,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return domain.IssuedToken{}, err
	}

	if purpose.Tracked() {
		if err := s.store.Store(ctx, jti, userID, ttl); err != nil {
			return domain.IssuedToken{}, err
		}
	}

	return domain.IssuedToken{
		Token:     signed,
		JTI:       jti,
		Purpose:   purpose,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify valida firma, expiracion, proposito y, para tokens rastreados, que no haya sido revocado.
func (s *TokenService) Verify(ctx context.Context, token string, expected domain.TokenPurpose) (Claims, error) {
	return s.VerifyAny(ctx, token, expected)
}

// VerifyAny acepta el token si su proposito es alguno de los indicados.
func (s *TokenService) VerifyAny(ctx context.Context, token string, purposes ...domain.TokenPurpose) (Claims, error) {
	claims, err := s.parse(token)
	if err != nil {
		return Claims{}, err
	}
	if !purposeAllowed(claims.Purpose, purposes) {
		return Claims{}, ErrTokenPurposeMismatch
	}
	if claims.Purpose.Tracked() {
		ok, err := s.store.Exists(ctx, claims.ID)
		if err != nil {
			return Claims{}, err
		}
		if !ok {
			return Claims{}, ErrTokenNotFound
		}
	}
	return claims, nil
}

// Revoke invalida un token antes de su expiracion natural.
// Un token ya expirado no requiere accion.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil
		}
		return err
	}
	return s.store.Revoke(ctx, claims.ID)
}

func (s *TokenService) parse(token string) (Claims, error) {
	if len(s.secret) == 0 {
		return Claims{}, ErrTokenNotConfigured
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrTokenInvalidSignature
	}

	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(token, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalidSignature
	}
	if !validClaims(claims) {
		return Claims{}, ErrTokenInvalidSignature
	}
	return claims, nil
}

func validClaims(claims Claims) bool {
	if strings.TrimSpace(claims.UserID) == "" || strings.TrimSpace(claims.ID) == "" {
		return false
	}
	return claims.Subject == claims.UserID
}

func purposeAllowed(p domain.TokenPurpose, allowed []domain.TokenPurpose) bool {
	for _, a := range allowed {
		if p == a {
			return true
		}
	}
	return false
}
