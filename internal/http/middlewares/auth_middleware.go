package middlewares

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/fintrack/fintrack/internal/auth"
	"github.com/fintrack/fintrack/internal/domain/user"
	"github.com/gin-gonic/gin"
)

// Small interfaces so tests can fake them easily.
type TokenVerifier interface {
	VerifyAccessToken(token string) (*auth.Claims, error)
}

type UserGetter interface {
	GetByID(ctx context.Context, id string) (user.User, error)
}

// Identity is the minimal view handlers get; never the password hash.
type Identity struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
}

type AuthMiddleware struct {
	jwt   TokenVerifier
	users UserGetter
}

func NewAuthMiddleware(jwt TokenVerifier, users UserGetter) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt, users: users}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"message": message,
	})
}

// RequireAuth verifies the bearer token, then re-checks the user still
// exists and is active. Every failure mode reads the same to the client.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			abortUnauthorized(c, "Missing or invalid Authorization header")
			return
		}

		raw := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
		if raw == "" {
			abortUnauthorized(c, "Missing or invalid access token")
			return
		}

		claims, err := m.jwt.VerifyAccessToken(raw)
		if err != nil {
			abortUnauthorized(c, "Invalid or expired access token")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		u, err := m.users.GetByID(ctx, claims.UserID)
		if err != nil || !u.IsActive {
			abortUnauthorized(c, "Invalid or expired access token")
			return
		}

		SetIdentity(c, Identity{
			ID:        u.ID,
			Email:     u.Email,
			FirstName: u.FirstName,
			LastName:  u.LastName,
		})

		c.Next()
	}
}

// SetIdentity stores the authenticated identity on the request context.
func SetIdentity(c *gin.Context, ident Identity) {
	c.Set(ctxUserIDKey, ident.ID)
	c.Set(ctxEmailKey, ident.Email)
	c.Set(ctxFirstNameKey, ident.FirstName)
	c.Set(ctxLastNameKey, ident.LastName)
}

// Helpers so handlers don't need to know the magic keys.

func UserIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxUserIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

func IdentityFromContext(c *gin.Context) (Identity, bool) {
	id, ok := UserIDFromContext(c)
	if !ok {
		return Identity{}, false
	}

	return Identity{
		ID:        id,
		Email:     c.GetString(ctxEmailKey),
		FirstName: c.GetString(ctxFirstNameKey),
		LastName:  c.GetString(ctxLastNameKey),
	}, true
}
