package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"unicode"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"nexus-backend/internal/middleware"
	"nexus-backend/internal/models"
	"nexus-backend/internal/repository"
)

type AuthService struct {
	userRepo *repository.UserRepo
	jwt      *middleware.JWTAuth
	face     *FaceVerifyService
}

func NewAuthService(userRepo *repository.UserRepo, jwt *middleware.JWTAuth, face *FaceVerifyService) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		jwt:      jwt,
		face:     face,
	}
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthTokens, error) {
	user, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &UnauthorizedError{Message: "Invalid email or password"}
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, &UnauthorizedError{Message: "Invalid email or password"}
	}

	s.userRepo.UpdateLastLogin(ctx, user.ID)

	return s.issueTokens(user)
}

// RegisterStudent creates a student account after the decrypted capture burst
// passes face enrollment. The account only exists once the face service has
// accepted the embedding, so a half-registered student cannot sign documents.
func (s *AuthService) RegisterStudent(ctx context.Context, profile models.RegisterProfile, frames [][]byte) (*models.AuthTokens, error) {
	fieldErrors := make(map[string]string)
	if profile.Name == "" {
		fieldErrors["name"] = "Name is required"
	}
	if !emailRegex.MatchString(profile.Email) {
		fieldErrors["email"] = "Invalid email format"
	}
	if profile.USN == "" {
		fieldErrors["usn"] = "USN is required"
	}
	if err := validatePassword(profile.Password); err != nil {
		fieldErrors["password"] = err.Error()
	}
	if len(frames) == 0 {
		fieldErrors["frames"] = "At least one face frame is required"
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Fields: fieldErrors}
	}

	_, err := s.userRepo.GetByEmail(ctx, profile.Email)
	if err == nil {
		return nil, &ConflictError{Message: "Email already in use"}
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	if err := s.face.RegisterFace(ctx, profile.USN, frames); err != nil {
		return nil, err
	}

	// bcrypt cost 12
	hash, err := bcrypt.GenerateFromPassword([]byte(profile.Password), 12)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:        profile.Email,
		PasswordHash: string(hash),
		Name:         profile.Name,
		Role:         models.RoleStudent,
		USN:          &profile.USN,
	}
	if profile.Branch != "" {
		user.Branch = &profile.Branch
	}
	if profile.Year != "" {
		user.Year = &profile.Year
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	return s.issueTokens(user)
}

func (s *AuthService) issueTokens(user *models.User) (*models.AuthTokens, error) {
	id := middleware.Identity{
		UserID:  user.ID,
		Name:    user.Name,
		Role:    user.Role,
		GroupID: user.GroupID,
	}
	accessToken, err := s.jwt.GenerateAccessToken(id, user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	return &models.AuthTokens{
		AccessToken: accessToken,
		ExpiresIn:   12 * 60 * 60,
		Role:        user.Role,
		Name:        user.Name,
		GroupID:     user.GroupID,
	}, nil
}

func validatePassword(pw string) error {
	if len(pw) < 8 {
		return fmt.Errorf("Password must be at least 8 characters")
	}
	hasNumber := false
	for _, ch := range pw {
		if unicode.IsDigit(ch) {
			hasNumber = true
			break
		}
	}
	if !hasNumber {
		return fmt.Errorf("Password must contain at least one number")
	}
	return nil
}
