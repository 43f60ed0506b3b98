package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

const secret = "hydronom-test-secret-0123456789"

func newAuth(t *testing.T, clk *testingclock.FakePassiveClock) *Authenticator {
	t.Helper()
	a, err := New(Options{Secret: secret, TTL: time.Hour, Clock: clk})
	require.NoError(t, err)
	return a
}

func TestIssueAndVerify(t *testing.T) {
	clk := testingclock.NewFakePassiveClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	a := newAuth(t, clk)

	token, exp, err := a.Issue("alice")
	require.NoError(t, err)
	assert.Equal(t, clk.Now().Add(time.Hour), exp)

	id, err := a.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", id.Subject)

	token, _, err = a.Issue("")
	require.NoError(t, err)
	id, err = a.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, DefaultSubject, id.Subject)
}

func TestVerifyRejects(t *testing.T) {
	clk := testingclock.NewFakePassiveClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	a := newAuth(t, clk)

	token, _, err := a.Issue("alice")
	require.NoError(t, err)

	clk.SetTime(clk.Now().Add(2 * time.Hour))
	_, err = a.Verify(token)
	assert.ErrorIs(t, err, ErrUnauthenticated, "expired")

	other, err := New(Options{Secret: "another-secret-of-enough-length", Clock: clk})
	require.NoError(t, err)
	foreign, _, err := other.Issue("mallory")
	require.NoError(t, err)
	_, err = a.Verify(foreign)
	assert.ErrorIs(t, err, ErrUnauthenticated, "wrong key")

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "x"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = a.Verify(none)
	assert.ErrorIs(t, err, ErrUnauthenticated, "alg none")

	_, err = a.Verify("")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws/telemetry?access_token=q", nil)
	assert.Equal(t, "q", TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer h")
	assert.Equal(t, "h", TokenFromRequest(r))

	r.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, TokenFromRequest(r))
}

func TestMiddleware(t *testing.T) {
	a := newAuth(t, testingclock.NewFakePassiveClock(time.Now()))
	token, _, err := a.Issue("bob")
	require.NoError(t, err)

	var seen string
	h := a.Middleware(func(w http.ResponseWriter, r *http.Request, err error) {
		w.WriteHeader(http.StatusUnauthorized)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())
		seen = id.Subject
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/commands", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/commands", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bob", seen)
}
