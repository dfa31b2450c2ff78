package api

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/shaj13/go-guardian/auth"
	"github.com/shaj13/go-guardian/auth/strategies/bearer"
	"github.com/shaj13/go-guardian/store"
	"go.uber.org/zap"

	"github.com/darkconsole/console-chat/models"
)

// tokenCacheTTL bounds how long a verified token skips signature checks
const tokenCacheTTL = 10 * time.Minute

// Authenticator verifies bearer tokens through a cached go-guardian strategy. The
// strategy runs the JWT check once per token; expiry is enforced on every request.
type Authenticator struct {
	identity Identity
	strategy auth.Strategy
	now      func() time.Time
}

// NewAuthenticator sets up the bearer strategy for id. The token cache lives until
// ctx is done.
func NewAuthenticator(ctx context.Context, id Identity) *Authenticator {
	a := &Authenticator{identity: id, now: time.Now}
	cache := store.NewFIFO(ctx, tokenCacheTTL)
	a.strategy = bearer.New(a.verify, cache)
	return a
}

func (a *Authenticator) verify(ctx context.Context, r *http.Request, token string) (auth.Info, error) {
	v, err := a.identity.ParseToken(token)
	if err != nil {
		return nil, err
	}
	var groups []string
	if v.Privileged {
		groups = []string{RoleAdmin}
	}
	return auth.NewDefaultUser(v.DisplayName, v.ID, groups, nil), nil
}

// ViewerFromRequest authenticates r from its bearer header or token query parameter.
// A request without a token is an anonymous guest.
func (a *Authenticator) ViewerFromRequest(r *http.Request) (models.Viewer, error) {
	token := BearerToken(r)
	if token == "" {
		return models.Viewer{}, nil
	}
	if r.Header.Get("Authorization") == "" {
		r = r.Clone(r.Context())
		if r.Header == nil {
			r.Header = http.Header{}
		}
		r.Header.Set("Authorization", "Bearer "+token)
	}

	info, err := a.strategy.Authenticate(r.Context(), r)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return models.Viewer{}, err
		}
		return models.Viewer{}, errors.Wrap(ErrInvalidToken, err.Error())
	}
	if err := a.checkExpiry(token); err != nil {
		return models.Viewer{}, err
	}

	v := models.Viewer{ID: info.ID(), DisplayName: info.UserName()}
	for _, g := range info.Groups() {
		if g == RoleAdmin {
			v.Privileged = true
		}
	}
	return v, nil
}

// checkExpiry rejects cached tokens that have since expired. The signature was
// verified when the token entered the cache.
func (a *Authenticator) checkExpiry(token string) error {
	var claims ViewerClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return errors.Wrap(ErrInvalidToken, err.Error())
	}
	if claims.ExpiresAt != nil && !a.now().Before(claims.ExpiresAt.Time) {
		return errors.Wrap(ErrInvalidToken, "token has expired")
	}
	return nil
}

// Middleware authenticates the bearer token and stores the viewer in the request
// context. Requests without a token pass through as anonymous; a bad token is
// rejected.
func Middleware(a *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			viewer, err := a.ViewerFromRequest(r)
			if err != nil {
				zap.S().Errorw("unauthorized",
					"url", r.URL.Path,
					"error", err)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error": "unauthorized"}`))
				return
			}
			if !viewer.Anonymous() {
				zap.S().Debugw("viewer authenticated", "viewer", viewer.ID)
			}
			next.ServeHTTP(w, r.WithContext(WithViewer(r.Context(), viewer)))
		})
	}
}
