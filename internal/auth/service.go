package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"notesync/pkg/logger"
)

const tokenTTL = 30 * time.Minute

var (
	ErrUsernameTaken      = errors.New("auth: username already exists")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)

type AuthService struct {
	Repo   *UserRepository
	secret []byte
}

func NewAuthService(repo *UserRepository, secret string) *AuthService {
	return &AuthService{Repo: repo, secret: []byte(secret)}
}

func (s *AuthService) Register(ctx context.Context, username, password string) (*User, error) {
	exists, err := s.Repo.UsernameExists(ctx, username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user, err := s.Repo.Insert(ctx, uuid.NewString(), username, string(hash))
	if err != nil {
		return nil, err
	}
	logger.Sugar.Infof("Registered user %s", username)
	return user, nil
}

// Login verifies the password and issues a short-lived HS256 token with the
// user id in the sub claim, which the middleware reads back out.
func (s *AuthService) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	userID, passwordHash, err := s.Repo.GetCredentials(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(tokenTTL).Unix(),
		"iat": time.Now().Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, err
	}
	return &TokenResponse{AccessToken: signed, TokenType: "bearer"}, nil
}
