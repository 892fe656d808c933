package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fintrack/fintrack/internal/auth"
	"github.com/fintrack/fintrack/internal/domain/user"
	"github.com/fintrack/fintrack/internal/http/middlewares"
	"github.com/fintrack/fintrack/internal/repo/postgres"
	"github.com/fintrack/fintrack/internal/security"
	"github.com/gin-gonic/gin"
)

type UserStore interface {
	Create(ctx context.Context, email, passwordHash, firstName, lastName, currency string) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	UpdateProfile(ctx context.Context, id string, req user.UpdateProfileRequest) (user.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	TouchLastLogin(ctx context.Context, id string) error
	SetRefreshToken(ctx context.Context, id, token string, expiresAt time.Time) error
	GetByRefreshToken(ctx context.Context, token string) (user.User, error)
	RotateRefreshToken(ctx context.Context, id, oldToken, newToken string, expiresAt time.Time) error
	ClearRefreshToken(ctx context.Context, id string) error
	ClearRefreshTokenByValue(ctx context.Context, token string) error
	Deactivate(ctx context.Context, id string) (user.User, error)
}

type TokenService interface {
	GenerateAccessToken(userID, email, firstName, lastName string) (string, error)
	GenerateRefreshToken(userID string) (string, time.Time, error)
	VerifyRefreshToken(token string) (*auth.Claims, error)
}

type UsersHandler struct {
	users UserStore
	jwt   TokenService
}

func NewUsersHandler(users UserStore, jwt TokenService) *UsersHandler {
	return &UsersHandler{users: users, jwt: jwt}
}

const defaultCurrency = "INR"

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// profile view adds the derived full name on top of the stored fields
type profileResponse struct {
	user.User
	FullName string `json:"fullName"`
}

type authPayload struct {
	User         profileResponse `json:"user"`
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
}

func profileOf(u user.User) profileResponse {
	return profileResponse{User: u, FullName: u.FullName()}
}

func (h *UsersHandler) Register(ctx *gin.Context) {
	var req user.RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	if req.Currency == "" {
		req.Currency = defaultCurrency
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	hash, err := security.HashPassword(req.Password)

	if err != nil {
		RespondInternal(ctx, "Registration failed", err)
		return
	}

	u, err := h.users.Create(cctx, req.Email, hash, req.FirstName, req.LastName, req.Currency)

	if err != nil {
		if errors.Is(err, user.ErrEmailAlreadyUsed) {
			RespondConflict(ctx, "Email already registered")
			return
		}

		RespondInternal(ctx, "Registration failed", err)
		return
	}

	pair, err := h.issueSession(cctx, u)

	if err != nil {
		RespondInternal(ctx, "Registration failed", err)
		return
	}

	RespondData(ctx, http.StatusCreated, "User registered successfully", authPayload{
		User:         profileOf(u),
		AccessToken:  pair.access,
		RefreshToken: pair.refresh,
	})
}

func (h *UsersHandler) Login(ctx *gin.Context) {
	var req user.LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	u, err := h.users.GetByEmail(cctx, req.Email)

	if err != nil {
		// burn a compare so unknown email costs the same as a bad password
		security.CheckDummyPassword(req.Password)
		RespondUnauthorized(ctx, "Invalid email or password")
		return
	}

	if !u.IsActive {
		RespondUnauthorized(ctx, "Account is deactivated")
		return
	}

	if err := security.CheckPassword(u.PasswordHash, req.Password); err != nil {
		RespondUnauthorized(ctx, "Invalid email or password")
		return
	}

	if err := h.users.TouchLastLogin(cctx, u.ID); err != nil {
		RespondInternal(ctx, "Login failed", err)
		return
	}

	pair, err := h.issueSession(cctx, u)

	if err != nil {
		RespondInternal(ctx, "Login failed", err)
		return
	}

	RespondData(ctx, http.StatusOK, "Login successful", authPayload{
		User:         profileOf(u),
		AccessToken:  pair.access,
		RefreshToken: pair.refresh,
	})
}

// Refresh rotates the stored refresh token: the presented token must match
// the persisted slot, still be unexpired, and carry a valid signature.
func (h *UsersHandler) Refresh(ctx *gin.Context) {
	var req RefreshRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	u, err := h.users.GetByRefreshToken(cctx, req.RefreshToken)

	if err != nil {
		RespondUnauthorized(ctx, "Invalid or expired refresh token")
		return
	}

	if _, err := h.jwt.VerifyRefreshToken(req.RefreshToken); err != nil {
		// stored token with a bad signature: clear the slot so it can
		// never be presented again
		_ = h.users.ClearRefreshToken(cctx, u.ID)
		RespondUnauthorized(ctx, "Invalid refresh token")
		return
	}

	accessToken, err := h.jwt.GenerateAccessToken(u.ID, u.Email, u.FirstName, u.LastName)

	if err != nil {
		RespondInternal(ctx, "Failed to refresh token", err)
		return
	}

	newRefresh, expiresAt, err := h.jwt.GenerateRefreshToken(u.ID)

	if err != nil {
		RespondInternal(ctx, "Failed to refresh token", err)
		return
	}

	// conditional overwrite; a concurrent refresh that won the race makes
	// this one invalid
	err = h.users.RotateRefreshToken(cctx, u.ID, req.RefreshToken, newRefresh, expiresAt)

	if err != nil {
		if errors.Is(err, postgres.ErrStaleRefreshToken) {
			RespondUnauthorized(ctx, "Invalid or expired refresh token")
			return
		}

		RespondInternal(ctx, "Failed to refresh token", err)
		return
	}

	RespondData(ctx, http.StatusOK, "Token refreshed successfully", gin.H{
		"accessToken":  accessToken,
		"refreshToken": newRefresh,
	})
}

// Logout always reports success; it must not leak whether the token matched.
func (h *UsersHandler) Logout(ctx *gin.Context) {
	var req LogoutRequest

	// body is optional on logout
	_ = ctx.ShouldBindJSON(&req)

	if req.RefreshToken != "" {
		cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
		defer cancel()

		if err := h.users.ClearRefreshTokenByValue(cctx, req.RefreshToken); err != nil {
			RespondInternal(ctx, "Logout failed", err)
			return
		}
	}

	RespondData(ctx, http.StatusOK, "Logged out successfully", nil)
}

func (h *UsersHandler) GetProfile(ctx *gin.Context) {
	id, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "Not authenticated")
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	u, err := h.users.GetByID(cctx, id)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}

		RespondInternal(ctx, "Failed to get user profile", err)
		return
	}

	RespondData(ctx, http.StatusOK, "", profileOf(u))
}

func (h *UsersHandler) UpdateProfile(ctx *gin.Context) {
	id, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "Not authenticated")
		return
	}

	var req user.UpdateProfileRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	u, err := h.users.UpdateProfile(cctx, id, req)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}

		RespondInternal(ctx, "Failed to update profile", err)
		return
	}

	RespondData(ctx, http.StatusOK, "Profile updated successfully", profileOf(u))
}

func (h *UsersHandler) UpdatePassword(ctx *gin.Context) {
	id, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "Not authenticated")
		return
	}

	var req user.ChangePasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	u, err := h.users.GetByID(cctx, id)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}

		RespondInternal(ctx, "Failed to update password", err)
		return
	}

	if err := security.CheckPassword(u.PasswordHash, req.CurrentPassword); err != nil {
		RespondBadRequest(ctx, "Current password is incorrect")
		return
	}

	hash, err := security.HashPassword(req.NewPassword)

	if err != nil {
		RespondInternal(ctx, "Failed to update password", err)
		return
	}

	// outstanding refresh tokens survive a password change; known tradeoff
	if err := h.users.UpdatePassword(cctx, id, hash); err != nil {
		RespondInternal(ctx, "Failed to update password", err)
		return
	}

	RespondData(ctx, http.StatusOK, "Password updated successfully", nil)
}

// Deactivate is the soft delete: the account stays on record, the session
// slot is cleared in the same statement.
func (h *UsersHandler) Deactivate(ctx *gin.Context) {
	id, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "Not authenticated")
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	u, err := h.users.Deactivate(cctx, id)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}

		RespondInternal(ctx, "Failed to deactivate account", err)
		return
	}

	RespondData(ctx, http.StatusOK, "Account deactivated successfully", profileOf(u))
}

type tokenPair struct {
	access  string
	refresh string
}

func (h *UsersHandler) issueSession(ctx context.Context, u user.User) (tokenPair, error) {
	accessToken, err := h.jwt.GenerateAccessToken(u.ID, u.Email, u.FirstName, u.LastName)

	if err != nil {
		return tokenPair{}, err
	}

	refreshToken, expiresAt, err := h.jwt.GenerateRefreshToken(u.ID)

	if err != nil {
		return tokenPair{}, err
	}

	// overwrites any previous session: one refresh slot per user
	if err := h.users.SetRefreshToken(ctx, u.ID, refreshToken, expiresAt); err != nil {
		return tokenPair{}, err
	}

	return tokenPair{access: accessToken, refresh: refreshToken}, nil
}
