package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/google/uuid"

	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
	"github.com/ignatzorin/marketplace-backend/internal/validation"
)

// AuthRepository описывает зависимости AuthService от слоя хранилища.
type AuthRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// AuthService инкапсулирует бизнес-логику регистрации и аутентификации.
// Refresh токены не хранятся: валидность определяется подписью и сроком.
type AuthService struct {
	repo         AuthRepository
	tokenManager *TokenManager
}

// RegisterInput содержит данные пользователя при регистрации.
type RegisterInput struct {
	Email    string
	Password string
	Username string
}

// LoginInput содержит данные для входа.
type LoginInput struct {
	Email    string
	Password string
}

// AuthResult возвращает итог регистрации или авторизации.
type AuthResult struct {
	User      *models.User
	TokenPair *TokenPair
}

// NewAuthService создаёт сервис аутентификации.
func NewAuthService(repo AuthRepository, tokenManager *TokenManager) *AuthService {
	return &AuthService{
		repo:         repo,
		tokenManager: tokenManager,
	}
}

// Register создаёт нового пользователя.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	if _, err := s.repo.GetByEmail(ctx, in.Email); err == nil {
		return nil, fmt.Errorf("auth service: email уже зарегистрирован")
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	username := in.Username
	if username == "" {
		username = deriveUsername(in.Email)
	}
	if err := validation.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth service: не удалось захешировать пароль: %w", err)
	}

	user := &models.User{
		Email:        strings.ToLower(in.Email),
		Username:     username,
		PasswordHash: string(passHash),
		Role:         "user",
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	tokenPair, err := s.tokenManager.GeneratePair(user)
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		User:      user,
		TokenPair: tokenPair,
	}, nil
}

// Login проверяет учётные данные и возвращает токены.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	user, err := s.repo.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("auth service: неверный email или пароль")
	}

	if !user.IsActive {
		return nil, fmt.Errorf("auth service: аккаунт заблокирован")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return nil, fmt.Errorf("auth service: неверный email или пароль")
	}

	if err := s.repo.UpdateLastLogin(ctx, user.ID, time.Now()); err != nil {
		// Логируем ошибку, но не прерываем процесс логина
		if logger.Log != nil {
			logger.Log.WithFields(map[string]interface{}{
				"user_id": user.ID,
				"error":   err.Error(),
			}).Warn("auth service: не удалось обновить last_login_at")
		}
	}

	tokenPair, err := s.tokenManager.GeneratePair(user)
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		User:      user,
		TokenPair: tokenPair,
	}, nil
}

// Refresh выпускает новую пару токенов.
func (s *AuthService) Refresh(ctx context.Context, oldToken string) (*TokenPair, error) {
	claims, err := s.tokenManager.ParseRefresh(oldToken)
	if err != nil {
		return nil, fmt.Errorf("auth service: refresh токен невалиден: %w", err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("auth service: некорректный subject: %w", err)
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !user.IsActive {
		return nil, fmt.Errorf("auth service: аккаунт заблокирован")
	}

	return s.tokenManager.GeneratePair(user)
}

// deriveUsername формирует username из email.
func deriveUsername(email string) string {
	name := strings.Split(email, "@")[0]
	name = strings.NewReplacer(".", "_", "+", "_").Replace(name)
	name = strings.ToLower(name)
	if len(name) < 3 {
		name = "user_" + uuid.NewString()[:6]
	}
	return name
}
