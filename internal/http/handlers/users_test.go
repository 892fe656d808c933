package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fintrack/fintrack/internal/auth"
	"github.com/fintrack/fintrack/internal/domain/user"
	"github.com/fintrack/fintrack/internal/http/handlers"
	"github.com/fintrack/fintrack/internal/http/middlewares"
	"github.com/fintrack/fintrack/internal/repo/postgres"
	"github.com/fintrack/fintrack/internal/security"
	"github.com/gin-gonic/gin"
)

// keep Gin quiet during tests
func init() {
	gin.SetMode(gin.TestMode)
}

type fakeUserStore struct {
	createFn           func(ctx context.Context, email, hash, first, last, currency string) (user.User, error)
	getByEmailFn       func(ctx context.Context, email string) (user.User, error)
	getByIDFn          func(ctx context.Context, id string) (user.User, error)
	updateProfileFn    func(ctx context.Context, id string, req user.UpdateProfileRequest) (user.User, error)
	updatePasswordFn   func(ctx context.Context, id, hash string) error
	touchLastLoginFn   func(ctx context.Context, id string) error
	setRefreshFn       func(ctx context.Context, id, token string, expiresAt time.Time) error
	getByRefreshFn     func(ctx context.Context, token string) (user.User, error)
	rotateRefreshFn    func(ctx context.Context, id, oldToken, newToken string, expiresAt time.Time) error
	clearRefreshFn     func(ctx context.Context, id string) error
	clearByValueFn     func(ctx context.Context, token string) error
	deactivateFn       func(ctx context.Context, id string) (user.User, error)
}

func (f *fakeUserStore) Create(ctx context.Context, email, hash, first, last, currency string) (user.User, error) {
	if f.createFn != nil {
		return f.createFn(ctx, email, hash, first, last, currency)
	}
	return user.User{}, nil
}

func (f *fakeUserStore) GetByEmail(ctx context.Context, email string) (user.User, error) {
	if f.getByEmailFn != nil {
		return f.getByEmailFn(ctx, email)
	}
	return user.User{}, user.ErrNotFound
}

func (f *fakeUserStore) GetByID(ctx context.Context, id string) (user.User, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return user.User{}, user.ErrNotFound
}

func (f *fakeUserStore) UpdateProfile(ctx context.Context, id string, req user.UpdateProfileRequest) (user.User, error) {
	if f.updateProfileFn != nil {
		return f.updateProfileFn(ctx, id, req)
	}
	return user.User{}, nil
}

func (f *fakeUserStore) UpdatePassword(ctx context.Context, id, hash string) error {
	if f.updatePasswordFn != nil {
		return f.updatePasswordFn(ctx, id, hash)
	}
	return nil
}

func (f *fakeUserStore) TouchLastLogin(ctx context.Context, id string) error {
	if f.touchLastLoginFn != nil {
		return f.touchLastLoginFn(ctx, id)
	}
	return nil
}

func (f *fakeUserStore) SetRefreshToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	if f.setRefreshFn != nil {
		return f.setRefreshFn(ctx, id, token, expiresAt)
	}
	return nil
}

func (f *fakeUserStore) GetByRefreshToken(ctx context.Context, token string) (user.User, error) {
	if f.getByRefreshFn != nil {
		return f.getByRefreshFn(ctx, token)
	}
	return user.User{}, user.ErrNotFound
}

func (f *fakeUserStore) RotateRefreshToken(ctx context.Context, id, oldToken, newToken string, expiresAt time.Time) error {
	if f.rotateRefreshFn != nil {
		return f.rotateRefreshFn(ctx, id, oldToken, newToken, expiresAt)
	}
	return nil
}

func (f *fakeUserStore) ClearRefreshToken(ctx context.Context, id string) error {
	if f.clearRefreshFn != nil {
		return f.clearRefreshFn(ctx, id)
	}
	return nil
}

func (f *fakeUserStore) ClearRefreshTokenByValue(ctx context.Context, token string) error {
	if f.clearByValueFn != nil {
		return f.clearByValueFn(ctx, token)
	}
	return nil
}

func (f *fakeUserStore) Deactivate(ctx context.Context, id string) (user.User, error) {
	if f.deactivateFn != nil {
		return f.deactivateFn(ctx, id)
	}
	return user.User{}, user.ErrNotFound
}

func newJWT() *auth.Manager {
	return auth.NewManager("test-secret", time.Hour, 24*time.Hour)
}

// withIdentity stands in for the auth middleware on protected routes.
func withIdentity(id string) gin.HandlerFunc {
	return func(c *gin.Context) {
		middlewares.SetIdentity(c, middlewares.Identity{ID: id})
		c.Next()
	}
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v body=%s", err, w.Body.String())
	}
	return resp
}

func TestRegisterDuplicateEmail(t *testing.T) {
	created := 0

	store := &fakeUserStore{
		createFn: func(_ context.Context, email, _, _, _, _ string) (user.User, error) {
			created++
			return user.User{}, user.ErrEmailAlreadyUsed
		},
	}

	h := handlers.NewUsersHandler(store, newJWT())
	r := gin.New()
	r.POST("/users/register", h.Register)

	w := postJSON(r, "/users/register",
		`{"email":"ada@example.com","password":"hunter22","firstName":"Ada","lastName":"Lovelace","currency":"GBP"}`)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409, body=%s", w.Code, w.Body.String())
	}

	resp := decodeEnvelope(t, w)
	if resp["success"] != false || resp["message"] != "Email already registered" {
		t.Fatalf("unexpected envelope: %v", resp)
	}

	if created != 1 {
		t.Fatalf("create called %d times, want exactly 1", created)
	}
}

func TestRegisterIssuesSession(t *testing.T) {
	var storedRefresh string

	store := &fakeUserStore{
		createFn: func(_ context.Context, email, hash, first, last, currency string) (user.User, error) {
			if err := security.CheckPassword(hash, "hunter22"); err != nil {
				t.Errorf("password was not hashed correctly")
			}
			return user.User{ID: "u1", Email: email, FirstName: first, LastName: last, Currency: currency, IsActive: true}, nil
		},
		setRefreshFn: func(_ context.Context, id, token string, _ time.Time) error {
			storedRefresh = token
			return nil
		},
	}

	h := handlers.NewUsersHandler(store, newJWT())
	r := gin.New()
	r.POST("/users/register", h.Register)

	w := postJSON(r, "/users/register",
		`{"email":"ada@example.com","password":"hunter22","firstName":"Ada","lastName":"Lovelace","currency":"GBP"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", w.Code, w.Body.String())
	}

	resp := decodeEnvelope(t, w)
	data, _ := resp["data"].(map[string]interface{})

	if data["accessToken"] == "" || data["refreshToken"] == "" {
		t.Fatalf("expected both tokens in response, got %v", data)
	}

	if data["refreshToken"] != storedRefresh {
		t.Fatalf("persisted refresh token differs from the one returned")
	}

	u, _ := data["user"].(map[string]interface{})
	if _, leaked := u["password"]; leaked {
		t.Fatalf("password field leaked in response: %v", u)
	}
	if u["fullName"] != "Ada Lovelace" {
		t.Fatalf("fullName = %v, want Ada Lovelace", u["fullName"])
	}
}

func TestRegisterDefaultsCurrency(t *testing.T) {
	store := &fakeUserStore{
		createFn: func(_ context.Context, email, hash, first, last, currency string) (user.User, error) {
			if currency != "INR" {
				t.Errorf("currency = %q, want the INR default", currency)
			}
			return user.User{ID: "u1", Email: email, Currency: currency, IsActive: true}, nil
		},
	}

	h := handlers.NewUsersHandler(store, newJWT())
	r := gin.New()
	r.POST("/users/register", h.Register)

	w := postJSON(r, "/users/register",
		`{"email":"ada@example.com","password":"hunter22","firstName":"Ada","lastName":"Lovelace"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", w.Code, w.Body.String())
	}
}

// wrong email and wrong password must be indistinguishable to the client
func TestLoginFailureIsUniform(t *testing.T) {
	hash, err := security.HashPassword("correct-password")
	if err != nil {
		t.Fatal(err)
	}

	store := &fakeUserStore{
		getByEmailFn: func(_ context.Context, email string) (user.User, error) {
			if email == "known@example.com" {
				return user.User{ID: "u1", Email: email, PasswordHash: hash, IsActive: true}, nil
			}
			return user.User{}, user.ErrNotFound
		},
	}

	h := handlers.NewUsersHandler(store, newJWT())
	r := gin.New()
	r.POST("/users/login", h.Login)

	wrongEmail := postJSON(r, "/users/login", `{"email":"unknown@example.com","password":"whatever1"}`)
	wrongPassword := postJSON(r, "/users/login", `{"email":"known@example.com","password":"not-the-password"}`)

	if wrongEmail.Code != http.StatusUnauthorized || wrongPassword.Code != http.StatusUnauthorized {
		t.Fatalf("statuses = %d/%d, want 401/401", wrongEmail.Code, wrongPassword.Code)
	}

	if wrongEmail.Body.String() != wrongPassword.Body.String() {
		t.Fatalf("responses differ:\n%s\n%s", wrongEmail.Body.String(), wrongPassword.Body.String())
	}
}

func TestLoginDeactivatedAccount(t *testing.T) {
	hash, _ := security.HashPassword("correct-password")

	store := &fakeUserStore{
		getByEmailFn: func(_ context.Context, email string) (user.User, error) {
			return user.User{ID: "u1", Email: email, PasswordHash: hash, IsActive: false}, nil
		},
	}

	h := handlers.NewUsersHandler(store, newJWT())
	r := gin.New()
	r.POST("/users/login", h.Login)

	w := postJSON(r, "/users/login", `{"email":"ada@example.com","password":"correct-password"}`)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}

	resp := decodeEnvelope(t, w)
	if resp["message"] != "Account is deactivated" {
		t.Fatalf("message = %v, want account-deactivated", resp["message"])
	}
}

func TestRefreshRotation(t *testing.T) {
	jwt := newJWT()

	oldToken, expiresAt, err := jwt.GenerateRefreshToken("u1")
	if err != nil {
		t.Fatal(err)
	}

	stored := oldToken
	storedExpiry := expiresAt

	store := &fakeUserStore{
		getByRefreshFn: func(_ context.Context, token string) (user.User, error) {
			if token == stored && time.Now().Before(storedExpiry) {
				return user.User{ID: "u1", Email: "ada@example.com", FirstName: "Ada", LastName: "Lovelace", IsActive: true}, nil
			}
			return user.User{}, user.ErrNotFound
		},
		rotateRefreshFn: func(_ context.Context, id, oldTok, newTok string, exp time.Time) error {
			if oldTok != stored {
				return postgres.ErrStaleRefreshToken
			}
			stored = newTok
			storedExpiry = exp
			return nil
		},
	}

	h := handlers.NewUsersHandler(store, jwt)
	r := gin.New()
	r.POST("/users/refresh-token", h.Refresh)

	first := postJSON(r, "/users/refresh-token", `{"refreshToken":"`+oldToken+`"}`)

	if first.Code != http.StatusOK {
		t.Fatalf("first refresh status = %d, body=%s", first.Code, first.Body.String())
	}

	resp := decodeEnvelope(t, first)
	data, _ := resp["data"].(map[string]interface{})

	newToken, _ := data["refreshToken"].(string)
	if newToken == "" || newToken == oldToken {
		t.Fatalf("refresh did not rotate the token")
	}

	// the replaced token must no longer be accepted
	second := postJSON(r, "/users/refresh-token", `{"refreshToken":"`+oldToken+`"}`)

	if second.Code != http.StatusUnauthorized {
		t.Fatalf("second refresh with rotated-out token: status = %d, want 401", second.Code)
	}

	// while the rotated-in one still works
	third := postJSON(r, "/users/refresh-token", `{"refreshToken":"`+newToken+`"}`)

	if third.Code != http.StatusOK {
		t.Fatalf("refresh with current token: status = %d, body=%s", third.Code, third.Body.String())
	}
}

func TestRefreshWithForgedTokenClearsSlot(t *testing.T) {
	forged, _, err := auth.NewManager("other-secret", time.Hour, 24*time.Hour).GenerateRefreshToken("u1")
	if err != nil {
		t.Fatal(err)
	}

	cleared := false

	store := &fakeUserStore{
		getByRefreshFn: func(_ context.Context, token string) (user.User, error) {
			return user.User{ID: "u1", IsActive: true}, nil
		},
		clearRefreshFn: func(_ context.Context, id string) error {
			cleared = true
			return nil
		},
	}

	h := handlers.NewUsersHandler(store, newJWT())
	r := gin.New()
	r.POST("/users/refresh-token", h.Refresh)

	w := postJSON(r, "/users/refresh-token", `{"refreshToken":"`+forged+`"}`)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}

	if !cleared {
		t.Fatalf("stored token with bad signature should be defensively cleared")
	}
}

// logout succeeds whether or not the token matched anything
func TestLogoutIsIdempotent(t *testing.T) {
	store := &fakeUserStore{
		clearByValueFn: func(_ context.Context, token string) error { return nil },
	}

	h := handlers.NewUsersHandler(store, newJWT())
	r := gin.New()
	r.POST("/users/logout", h.Logout)

	tests := []struct {
		name string
		body string
	}{
		{"with a token", `{"refreshToken":"anything"}`},
		{"empty body", ``},
		{"unknown token", `{"refreshToken":"never-issued"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := postJSON(r, "/users/logout", tc.body)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
			}

			resp := decodeEnvelope(t, w)
			if resp["success"] != true {
				t.Fatalf("logout must always report success: %v", resp)
			}
		})
	}
}

func TestUpdatePasswordWrongCurrent(t *testing.T) {
	hash, _ := security.HashPassword("the-real-one")

	updates := 0

	store := &fakeUserStore{
		getByIDFn: func(_ context.Context, id string) (user.User, error) {
			return user.User{ID: id, PasswordHash: hash, IsActive: true}, nil
		},
		updatePasswordFn: func(_ context.Context, id, newHash string) error {
			updates++
			return nil
		},
	}

	h := handlers.NewUsersHandler(store, newJWT())
	r := gin.New()
	r.PUT("/users/profile/password", withIdentity("u1"), h.UpdatePassword)

	req := httptest.NewRequest(http.MethodPut, "/users/profile/password",
		bytes.NewBufferString(`{"currentPassword":"wrong-guess","newPassword":"new-password"}`))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", w.Code, w.Body.String())
	}

	if updates != 0 {
		t.Fatalf("password must not be updated on a failed current-password check")
	}
}
