package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Abhishekhack2909/StreamVerse/internal/domain"
)

// Claims are the token claims issued by the auth service.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// JWTResolver validates HS256 bearer tokens signed with a shared secret.
type JWTResolver struct {
	secret []byte
	issuer string
}

// NewJWTResolver creates a resolver for tokens signed with secret.
func NewJWTResolver(secret, issuer string) (*JWTResolver, error) {
	if secret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	return &JWTResolver{secret: []byte(secret), issuer: issuer}, nil
}

// Resolve validates the token and returns the caller.
func (r *JWTResolver) Resolve(ctx context.Context, credential string) (Caller, error) {
	token, err := jwt.ParseWithClaims(credential, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrUnauthenticated
		}
		return r.secret, nil
	})
	if err != nil {
		return Caller{}, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Caller{}, domain.ErrUnauthenticated
	}

	if r.issuer != "" {
		if iss, _ := claims.GetIssuer(); iss != r.issuer {
			return Caller{}, fmt.Errorf("%w: unexpected issuer", domain.ErrUnauthenticated)
		}
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return Caller{}, fmt.Errorf("%w: token has no subject", domain.ErrUnauthenticated)
	}

	name := claims.Username
	if name == "" {
		name = "Guest"
	}

	return Caller{UserID: userID, DisplayName: name}, nil
}

// Sign issues a token for userID. Used by tests and local tooling; the real
// auth service issues production tokens.
func (r *JWTResolver) Sign(userID, username string, opts ...func(*Claims)) (string, error) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:  r.issuer,
			Subject: userID,
		},
		UserID:   userID,
		Username: username,
	}
	for _, opt := range opts {
		opt(claims)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(r.secret)
}
