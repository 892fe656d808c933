package user

import (
	"errors"
	"time"
)

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"` // never expose hash in JSON
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	Currency     string     `json:"currency"`
	ProfileImage *string    `json:"profileImage,omitempty"`
	IsActive     bool       `json:"isActive"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`

	// single refresh-token slot; overwritten on every login/refresh
	RefreshToken          *string    `json:"-"`
	RefreshTokenExpiresAt *time.Time `json:"-"`
}

func (u User) FullName() string {
	return u.FirstName + " " + u.LastName
}

var (
	ErrNotFound         = errors.New("user not found")
	ErrEmailAlreadyUsed = errors.New("email already registered")
)

type RegisterRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=6"`
	FirstName string `json:"firstName" binding:"required,max=50"`
	LastName  string `json:"lastName" binding:"required,max=50"`
	// optional; empty means the INR default
	Currency string `json:"currency" binding:"omitempty,oneof=USD EUR GBP INR CAD AUD JPY CHF"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// partial update; email and password are deliberately absent, those
// have dedicated flows
type UpdateProfileRequest struct {
	FirstName    *string `json:"firstName" binding:"omitempty,min=1,max=50"`
	LastName     *string `json:"lastName" binding:"omitempty,min=1,max=50"`
	Currency     *string `json:"currency" binding:"omitempty,oneof=USD EUR GBP INR CAD AUD JPY CHF"`
	ProfileImage *string `json:"profileImage" binding:"omitempty,max=500"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=6"`
}
