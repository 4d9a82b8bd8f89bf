package apiv1

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const operatorRole = "operator"

var (
	ErrAuthDisabled = errors.New("auth secret is not configured")
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// OperatorClaims are carried by tokens that may requeue units and trigger the worker.
type OperatorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Auth mints and checks HS256 bearer tokens.
type Auth struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuth(secret string, ttl time.Duration) *Auth {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Auth{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (a *Auth) Enabled() bool { return a != nil && len(a.secret) > 0 }

// Mint signs an operator token for subject.
func (a *Auth) Mint(subject string) (string, error) {
	if !a.Enabled() {
		return "", ErrAuthDisabled
	}
	if subject == "" {
		subject = operatorRole
	}
	now := a.now()
	claims := OperatorClaims{
		Role: operatorRole,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			Subject:   subject,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (a *Auth) ParseFromRequest(r *http.Request) (*OperatorClaims, error) {
	hdr := r.Header.Get("Authorization")
	if hdr == "" {
		return nil, ErrMissingToken
	}
	if len(hdr) < 7 || !strings.EqualFold(hdr[:7], "bearer ") {
		return nil, ErrInvalidToken
	}
	return a.parse(strings.TrimSpace(hdr[7:]))
}

func (a *Auth) parse(tok string) (*OperatorClaims, error) {
	claims := &OperatorClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil || !tkn.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Role != operatorRole {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Guard lets through requests carrying a valid operator token.
func (a *Auth) Guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			writeError(w, r, http.StatusForbidden, "operator routes are disabled")
			return
		}
		if _, err := a.ParseFromRequest(r); err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
