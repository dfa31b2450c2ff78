package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkconsole/console-chat/models"
)

var testIdentity = Identity{Secret: []byte("test-secret")}

func TestIdentity_RoundTrip(t *testing.T) {
	for _, v := range []models.Viewer{
		{ID: "u1", DisplayName: "Alice"},
		{ID: "s1", DisplayName: "Ops", Privileged: true},
	} {
		token, err := testIdentity.IssueToken(v, time.Hour)
		require.NoError(t, err)
		got, err := testIdentity.ParseToken(token)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestIdentity_EmptyTokenIsAnonymous(t *testing.T) {
	v, err := testIdentity.ParseToken("")
	require.NoError(t, err)
	assert.True(t, v.Anonymous())
}

func TestIdentity_Rejects(t *testing.T) {
	claims := ViewerClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testIdentity.Secret)
	require.NoError(t, err)

	other, err := Identity{Secret: []byte("other")}.IssueToken(models.Viewer{ID: "u1"}, time.Hour)
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, ViewerClaims{Name: "x"}).SignedString(testIdentity.Secret)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":      expired,
		"wrong secret": other,
		"no subject":   noSubject,
		"garbage":      "not-a-jwt",
	} {
		_, err := testIdentity.ParseToken(token)
		assert.True(t, errors.Is(err, ErrInvalidToken), name)
	}
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws/chat?token=q", nil)
	assert.Equal(t, "q", BearerToken(r))
	r.Header.Set("Authorization", "Bearer h")
	assert.Equal(t, "h", BearerToken(r))
}

func newTestAuthenticator(t *testing.T) *Authenticator {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewAuthenticator(ctx, testIdentity)
}

func TestAuthenticator_ViewerFromRequest(t *testing.T) {
	a := newTestAuthenticator(t)
	staff := models.Viewer{ID: "s1", DisplayName: "Ops", Privileged: true}
	token, err := testIdentity.IssueToken(staff, time.Hour)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/ws/chat?token="+token, nil)
	v, err := a.ViewerFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, staff, v)
	assert.Empty(t, r.Header.Get("Authorization"))

	r = httptest.NewRequest(http.MethodGet, "/api/v1/chats/order:1", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	v, err = a.ViewerFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, staff, v)

	v, err = a.ViewerFromRequest(httptest.NewRequest(http.MethodGet, "/ws/chat", nil))
	require.NoError(t, err)
	assert.True(t, v.Anonymous())

	other, err := Identity{Secret: []byte("other")}.IssueToken(staff, time.Hour)
	require.NoError(t, err)
	_, err = a.ViewerFromRequest(httptest.NewRequest(http.MethodGet, "/ws/chat?token="+other, nil))
	assert.True(t, errors.Is(err, ErrInvalidToken), "got %v", err)
}

func TestAuthenticator_CachedTokenStillExpires(t *testing.T) {
	a := newTestAuthenticator(t)
	token, err := testIdentity.IssueToken(models.Viewer{ID: "u1"}, time.Minute)
	require.NoError(t, err)
	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/chats/order:1", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		return r
	}

	v, err := a.ViewerFromRequest(req())
	require.NoError(t, err)
	assert.Equal(t, "u1", v.ID)

	a.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = a.ViewerFromRequest(req())
	assert.True(t, errors.Is(err, ErrInvalidToken), "got %v", err)
}

func TestMiddleware(t *testing.T) {
	var seen models.Viewer
	h := Middleware(newTestAuthenticator(t))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ViewerFromContext(r.Context())
	}))

	token, err := testIdentity.IssueToken(models.Viewer{ID: "u1", DisplayName: "Alice"}, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/chats/order:1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "u1", seen.ID)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/chats/community:global", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, seen.Anonymous())

	req = httptest.NewRequest(http.MethodGet, "/api/v1/chats/order:1", nil)
	req.Header.Set("Authorization", "Bearer broken")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.JSONEq(t, `{"error": "unauthorized"}`, rr.Body.String())
}

func TestPeekToken(t *testing.T) {
	token, err := Identity{Secret: []byte("someone-else")}.IssueToken(models.Viewer{ID: "s1", DisplayName: "Ops", Privileged: true}, time.Hour)
	require.NoError(t, err)

	v, err := PeekToken(token)
	require.NoError(t, err)
	assert.Equal(t, models.Viewer{ID: "s1", DisplayName: "Ops", Privileged: true}, v)

	_, err = testIdentity.ParseToken(token)
	assert.True(t, errors.Is(err, ErrInvalidToken))

	v, err = PeekToken("")
	require.NoError(t, err)
	assert.True(t, v.Anonymous())

	_, err = PeekToken("not-a-jwt")
	assert.True(t, errors.Is(err, ErrInvalidToken))
}
