package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "shikkha/pkg/domain"
	dErrors "shikkha/pkg/domain-errors"
)

// Claims are the bearer token claims of an authenticated caller.
// The subject is the caller address that the ledger authorizes against.
type Claims struct {
	Version string `json:"api_version,omitempty"`
	jwt.RegisteredClaims
}

// Caller returns the normalized caller address carried in the subject.
func (c *Claims) Caller() (id.Address, error) {
	return id.ParseAddress(c.Subject)
}

// APIVersion returns the token's API version, defaulting legacy tokens to v1.
func (c *Claims) APIVersion() id.APIVersion {
	if c.Version == "" {
		return id.APIVersionV1
	}
	return id.APIVersion(c.Version)
}

// JWTService handles JWT creation and validation
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	now        func() time.Time
}

func NewJWTService(signingKey string, issuer string, audience string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		now:        time.Now,
	}
}

// GenerateAccessToken mints an HS256 token for caller.
func (s *JWTService) GenerateAccessToken(caller id.Address, expiresIn time.Duration) (string, *Claims, error) {
	if caller.IsNil() {
		return "", nil, dErrors.New(dErrors.CodeInvalidInput, "caller is required")
	}
	now := s.now()
	claims := &Claims{
		Version: id.DefaultVersion().String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthenticated, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthenticated, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthenticated, "invalid token claims")
	}
	if _, err := claims.Caller(); err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthenticated, "token has no subject")
	}
	return claims, nil
}
