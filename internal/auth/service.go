package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/vovakirdan/linechat-server/internal/store"
)

var (
	// ErrNicknameTaken is returned when registering a nickname that already exists.
	ErrNicknameTaken = errors.New("nickname already taken")
	// ErrUserNotFound is returned when authenticating an unknown nickname.
	ErrUserNotFound = errors.New("user not found")
	// ErrWrongPassword is returned when the password does not match the stored hash.
	ErrWrongPassword = errors.New("wrong password")
	// ErrInvalidNickname is returned when a nickname doesn't meet constraints.
	ErrInvalidNickname = errors.New("invalid nickname")
	// ErrInvalidPassword is returned when a password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrInvalidToken is returned when a token fails signature, expiry, issuer or audience checks.
	ErrInvalidToken = errors.New("invalid token")
)

// '-' is reserved as the separator in dual room names.
var nicknamePattern = regexp.MustCompile(`^[A-Za-z0-9_.]{1,32}$`)

// ValidNickname reports whether nickname can be registered.
func ValidNickname(nickname string) bool {
	return nicknamePattern.MatchString(nickname)
}

// Service provides authentication operations.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// Lookup returns the user registered under nickname, or ErrUserNotFound.
func (s *Service) Lookup(ctx context.Context, nickname string) (*store.User, error) {
	user, err := store.RetryValue(ctx, func(ctx context.Context) (*store.User, error) {
		return s.store.GetUserByNickname(ctx, nickname)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

// Register creates a new user with a hashed password.
// Of several concurrent registrations of one nickname exactly one succeeds;
// the store's unique constraint turns the others into ErrNicknameTaken.
func (s *Service) Register(ctx context.Context, nickname, password string) (*store.User, error) {
	if !ValidNickname(nickname) {
		return nil, ErrInvalidNickname
	}
	if !ValidPassword(password) {
		return nil, ErrInvalidPassword
	}

	exists, err := store.RetryValue(ctx, func(ctx context.Context) (bool, error) {
		return s.store.ExistsByNickname(ctx, nickname)
	})
	if err != nil {
		return nil, fmt.Errorf("check nickname: %w", err)
	}
	if exists {
		return nil, ErrNicknameTaken
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user, err := store.RetryValue(ctx, func(ctx context.Context) (*store.User, error) {
		return s.store.CreateUser(ctx, nickname, hashedPassword)
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrNicknameTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

// Authenticate verifies the password of an existing user.
func (s *Service) Authenticate(ctx context.Context, nickname, password string) (*store.User, error) {
	user, err := s.Lookup(ctx, nickname)
	if err != nil {
		return nil, err
	}
	if err := ComparePassword(user.PasswordHash, password); err != nil {
		return nil, err
	}
	return user, nil
}

// IssueToken generates a JWT token for the user.
func (s *Service) IssueToken(user *store.User) (string, error) {
	token, err := GenerateToken(s.jwtConfig, user.ID, user.Nickname)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

// UserFromToken validates a token and loads the user it was issued for.
func (s *Service) UserFromToken(ctx context.Context, tokenString string) (*store.User, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	user, err := store.RetryValue(ctx, func(ctx context.Context) (*store.User, error) {
		return s.store.GetUserByID(ctx, claims.UserID)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load token user: %w", err)
	}
	return user, nil
}
