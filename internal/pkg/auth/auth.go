// Package auth issues and verifies the HS256 bearer tokens that guard the
// relay's state-changing endpoints.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"k8s.io/utils/clock"
)

// ErrUnauthenticated is returned for a missing, malformed or expired token.
var ErrUnauthenticated = errors.New("unauthenticated")

// DefaultSubject is used for dev tokens requested without a user.
const DefaultSubject = "operator"

// Identity is the authenticated caller.
type Identity struct {
	Subject   string
	ExpiresAt time.Time
}

type contextKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IdentityFrom returns the identity stored by the middleware, if any.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// Authenticator signs and verifies tokens with a shared secret.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	clock  clock.PassiveClock
}

// Options configures an Authenticator.
type Options struct {
	Secret string
	TTL    time.Duration
	Clock  clock.PassiveClock
}

// New returns an Authenticator. The secret must not be empty.
func New(opts Options) (*Authenticator, error) {
	if opts.Secret == "" {
		return nil, errors.New("auth secret is required")
	}
	if opts.TTL <= 0 {
		opts.TTL = 12 * time.Hour
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	return &Authenticator{secret: []byte(opts.Secret), ttl: opts.TTL, clock: opts.Clock}, nil
}

// Issue signs a token for subject.
func (a *Authenticator) Issue(subject string) (string, time.Time, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	now := a.clock.Now()
	exp := now.Add(a.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks the signature and lifetime of raw. Issuer and audience
// are not checked.
func (a *Authenticator) Verify(raw string) (Identity, error) {
	if strings.TrimSpace(raw) == "" {
		return Identity{}, fmt.Errorf("%w: token is empty", ErrUnauthenticated)
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.clock.Now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}

	return Identity{Subject: claims.Subject, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// TokenFromRequest reads a bearer token from the Authorization header, or
// from the access_token query parameter that browsers use for websockets.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

// DenyFunc writes the response for a rejected request.
type DenyFunc func(w http.ResponseWriter, r *http.Request, err error)

// Middleware rejects requests without a valid token and stores the
// caller's Identity in the request context.
func (a *Authenticator) Middleware(deny DenyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := a.Verify(TokenFromRequest(r))
			if err != nil {
				deny(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
