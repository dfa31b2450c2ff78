package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/darkconsole/console-chat/models"
)

// RoleAdmin marks staff tokens
const RoleAdmin = "admin"

// ErrInvalidToken is returned for tokens that fail verification
var ErrInvalidToken = errors.New("invalid token")

// ViewerClaims are the claims carried by a chat token. Subject is the viewer id.
type ViewerClaims struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity signs and verifies viewer tokens
type Identity struct {
	Secret []byte
}

// IssueToken signs a token for v valid for ttl. A zero ttl never expires.
func (i Identity) IssueToken(v models.Viewer, ttl time.Duration) (string, error) {
	claims := ViewerClaims{
		Name: v.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  v.ID,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if v.Privileged {
		claims.Role = RoleAdmin
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.Secret)
}

// ParseToken verifies token and returns its viewer. An empty token is an anonymous
// guest.
func (i Identity) ParseToken(token string) (models.Viewer, error) {
	if token == "" {
		return models.Viewer{}, nil
	}
	var claims ViewerClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return i.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return models.Viewer{}, errors.Wrap(ErrInvalidToken, err.Error())
	}
	return claims.viewer()
}

// PeekToken reads the viewer out of token without verifying the signature. Clients
// use it to learn who they are; the relay never trusts it.
func PeekToken(token string) (models.Viewer, error) {
	if token == "" {
		return models.Viewer{}, nil
	}
	var claims ViewerClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return models.Viewer{}, errors.Wrap(ErrInvalidToken, err.Error())
	}
	return claims.viewer()
}

func (c ViewerClaims) viewer() (models.Viewer, error) {
	if c.Subject == "" {
		return models.Viewer{}, errors.Wrap(ErrInvalidToken, "missing subject")
	}
	return models.Viewer{
		ID:          c.Subject,
		DisplayName: c.Name,
		Privileged:  c.Role == RoleAdmin,
	}, nil
}

// BearerToken extracts the token from the Authorization header, falling back to the
// token query parameter browsers use for websocket upgrades
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

type viewerKey struct{}

// WithViewer stores v in ctx
func WithViewer(ctx context.Context, v models.Viewer) context.Context {
	return context.WithValue(ctx, viewerKey{}, v)
}

// ViewerFromContext returns the viewer stored by Middleware, or an anonymous one
func ViewerFromContext(ctx context.Context) models.Viewer {
	v, _ := ctx.Value(viewerKey{}).(models.Viewer)
	return v
}
