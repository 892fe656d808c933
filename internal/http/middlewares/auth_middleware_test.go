package middlewares

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fintrack/fintrack/internal/auth"
	"github.com/fintrack/fintrack/internal/domain/user"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeVerifier struct {
	claims *auth.Claims
	err    error
}

func (f fakeVerifier) VerifyAccessToken(string) (*auth.Claims, error) {
	return f.claims, f.err
}

type fakeUserGetter struct {
	u   user.User
	err error
}

func (f fakeUserGetter) GetByID(context.Context, string) (user.User, error) {
	return f.u, f.err
}

func protectedRouter(jwt TokenVerifier, users UserGetter) *gin.Engine {
	r := gin.New()

	r.GET("/protected", NewAuthMiddleware(jwt, users).RequireAuth(), func(c *gin.Context) {
		ident, ok := IdentityFromContext(c)

		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false})
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "id": ident.ID, "email": ident.Email})
	})

	return r
}

func get(r *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)

	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuthRejections(t *testing.T) {
	activeUser := user.User{ID: "u1", Email: "ada@example.com", IsActive: true}
	validClaims := &auth.Claims{UserID: "u1", Email: "ada@example.com"}

	tests := []struct {
		name   string
		jwt    TokenVerifier
		users  UserGetter
		header string
	}{
		{
			name:   "missing header",
			jwt:    fakeVerifier{claims: validClaims},
			users:  fakeUserGetter{u: activeUser},
			header: "",
		},
		{
			name:   "not a bearer scheme",
			jwt:    fakeVerifier{claims: validClaims},
			users:  fakeUserGetter{u: activeUser},
			header: "Basic dXNlcjpwYXNz",
		},
		{
			name:   "bearer with empty token",
			jwt:    fakeVerifier{claims: validClaims},
			users:  fakeUserGetter{u: activeUser},
			header: "Bearer ",
		},
		{
			name:   "verification fails",
			jwt:    fakeVerifier{err: auth.ErrInvalidToken},
			users:  fakeUserGetter{u: activeUser},
			header: "Bearer some-token",
		},
		{
			name:   "user no longer exists",
			jwt:    fakeVerifier{claims: validClaims},
			users:  fakeUserGetter{err: user.ErrNotFound},
			header: "Bearer some-token",
		},
		{
			name:   "user deactivated",
			jwt:    fakeVerifier{claims: validClaims},
			users:  fakeUserGetter{u: user.User{ID: "u1", IsActive: false}},
			header: "Bearer some-token",
		},
		{
			name:   "store failure",
			jwt:    fakeVerifier{claims: validClaims},
			users:  fakeUserGetter{err: errors.New("connection refused")},
			header: "Bearer some-token",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := get(protectedRouter(tc.jwt, tc.users), tc.header)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401, body=%s", w.Code, w.Body.String())
			}
		})
	}
}

func TestRequireAuthSetsIdentity(t *testing.T) {
	jwt := fakeVerifier{claims: &auth.Claims{UserID: "u1", Email: "stale@example.com"}}

	// identity must reflect the current record, not the token claims
	users := fakeUserGetter{u: user.User{
		ID:        "u1",
		Email:     "current@example.com",
		FirstName: "Ada",
		LastName:  "Lovelace",
		IsActive:  true,
	}}

	w := get(protectedRouter(jwt, users), "Bearer valid-token")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}

	body := w.Body.String()

	if !strings.Contains(body, `"id":"u1"`) || !strings.Contains(body, `"email":"current@example.com"`) {
		t.Fatalf("identity not propagated from the store record: %s", body)
	}
}
