package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// TokenTTL is how long an issued session token stays valid.
const TokenTTL = 7 * 24 * time.Hour

var (
	// ErrInvalidCredentials is returned on any login failure. It does not
	// say which of the two fields was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrMissingToken means no session token was presented at all.
	ErrMissingToken = errors.New("missing authentication token")

	// ErrInvalidToken covers bad signatures, malformed tokens and expiry.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Claims are the payload of a session token.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Authenticator checks the single configured credential pair and issues
// signed session tokens. Tokens are stateless: validity is fully determined
// by signature and expiry at verification time.
type Authenticator struct {
	username     string
	passwordHash []byte
	secret       []byte
	skipPassword bool
}

// New creates an Authenticator. passwordHash is a bcrypt hash of the
// configured password. skipPassword disables the password check for local
// development only; the username must still match.
func New(username, passwordHash, secret string, skipPassword bool) (*Authenticator, error) {
	if username == "" || passwordHash == "" {
		return nil, errors.New("auth credentials are not configured")
	}
	if secret == "" {
		return nil, errors.New("token signing secret is not configured")
	}

	return &Authenticator{
		username:     username,
		passwordHash: []byte(passwordHash),
		secret:       []byte(secret),
		skipPassword: skipPassword,
	}, nil
}

// Login verifies the credential pair and returns a signed session token.
// bcrypt comparison is constant time, and both failure modes collapse into
// ErrInvalidCredentials.
func (a *Authenticator) Login(username, password string) (string, error) {
	if username != a.username {
		return "", ErrInvalidCredentials
	}

	if !a.skipPassword {
		if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
			return "", ErrInvalidCredentials
		}
	}

	now := time.Now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
			Issuer:    "toolbox",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return signed, nil
}

// Verify checks signature and expiry of a session token.
func (a *Authenticator) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
