package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleStudent  = "student"
	RoleLecturer = "lecturer"
	RoleSystem   = "system"
)

type User struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Name         string     `json:"name"`
	Role         string     `json:"role"` // "student" | "lecturer"
	USN          *string    `json:"usn"`  // students only
	Branch       *string    `json:"branch"`
	Year         *string    `json:"year"`
	GroupID      *int64     `json:"group_id"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthTokens struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Role        string `json:"role"`
	Name        string `json:"name"`
	GroupID     *int64 `json:"group_id"`
}

type RegisterProfile struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	USN      string `json:"usn"`
	Branch   string `json:"branch"`
	Year     string `json:"year"`
}
