package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
)

// mockAuthRepository реализует AuthRepository для тестов.
type mockAuthRepository struct {
	usersByEmail map[string]*models.User
	usersByID    map[uuid.UUID]*models.User
}

func newMockAuthRepository() *mockAuthRepository {
	return &mockAuthRepository{
		usersByEmail: make(map[string]*models.User),
		usersByID:    make(map[uuid.UUID]*models.User),
	}
}

func (m *mockAuthRepository) Create(ctx context.Context, user *models.User) error {
	user.ID = uuid.New()
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.IsActive = true
	m.usersByEmail[user.Email] = user
	m.usersByID[user.ID] = user
	return nil
}

func (m *mockAuthRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if user, ok := m.usersByEmail[email]; ok {
		return user, nil
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockAuthRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if user, ok := m.usersByID[id]; ok {
		return user, nil
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockAuthRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	if user, ok := m.usersByID[id]; ok {
		user.LastLoginAt = &at
	}
	return nil
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	repo := newMockAuthRepository()
	tokenManager := NewTokenManager("access", "refresh", time.Minute, time.Hour)
	service := NewAuthService(repo, tokenManager)

	ctx := context.Background()
	res, err := service.Register(ctx, RegisterInput{
		Email:    "test@example.com",
		Password: "Password123",
	})
	if err != nil {
		t.Fatalf("register returned error: %v", err)
	}

	if res.User.ID == uuid.Nil {
		t.Fatalf("user ID должен быть установлен")
	}

	if res.User.Username != "test" {
		t.Fatalf("username должен быть выведен из email, получили %q", res.User.Username)
	}

	loginRes, err := service.Login(ctx, LoginInput{
		Email:    "test@example.com",
		Password: "Password123",
	})
	if err != nil {
		t.Fatalf("login returned error: %v", err)
	}

	if loginRes.TokenPair.AccessToken == "" {
		t.Fatalf("ожидался access токен")
	}

	if res.User.LastLoginAt == nil {
		t.Fatalf("last_login_at должен быть обновлён после логина")
	}
}

func TestAuthService_RegisterDuplicateEmail(t *testing.T) {
	repo := newMockAuthRepository()
	tokenManager := NewTokenManager("access", "refresh", time.Minute, time.Hour)
	service := NewAuthService(repo, tokenManager)

	ctx := context.Background()
	if _, err := service.Register(ctx, RegisterInput{Email: "dup@example.com", Password: "Password123"}); err != nil {
		t.Fatalf("первая регистрация вернула ошибку: %v", err)
	}
	if _, err := service.Register(ctx, RegisterInput{Email: "dup@example.com", Password: "Password123"}); err == nil {
		t.Fatalf("повторная регистрация должна вернуть ошибку")
	}
}

func TestAuthService_LoginWrongPassword(t *testing.T) {
	repo := newMockAuthRepository()
	tokenManager := NewTokenManager("access", "refresh", time.Minute, time.Hour)
	service := NewAuthService(repo, tokenManager)

	ctx := context.Background()
	hash, _ := bcrypt.GenerateFromPassword([]byte("Password123"), bcrypt.DefaultCost)
	user := &models.User{
		ID:           uuid.New(),
		Email:        "user@example.com",
		PasswordHash: string(hash),
		Role:         "user",
		IsActive:     true,
	}
	repo.usersByEmail[user.Email] = user
	repo.usersByID[user.ID] = user

	if _, err := service.Login(ctx, LoginInput{Email: "user@example.com", Password: "WrongPass1"}); err == nil {
		t.Fatalf("логин с неверным паролем должен вернуть ошибку")
	}
}

func TestAuthService_Refresh(t *testing.T) {
	repo := newMockAuthRepository()
	tokenManager := NewTokenManager("access-secret", "refresh-secret", time.Minute, time.Hour)
	service := NewAuthService(repo, tokenManager)

	ctx := context.Background()
	hash, _ := bcrypt.GenerateFromPassword([]byte("Password123"), bcrypt.DefaultCost)
	user := &models.User{
		ID:           uuid.New(),
		Email:        "user@example.com",
		PasswordHash: string(hash),
		Role:         "user",
		IsActive:     true,
	}
	repo.usersByEmail[user.Email] = user
	repo.usersByID[user.ID] = user

	tokenPair, err := tokenManager.GeneratePair(user)
	if err != nil {
		t.Fatalf("не удалось сгенерировать токены: %v", err)
	}

	newPair, err := service.Refresh(ctx, tokenPair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh вернул ошибку: %v", err)
	}

	if newPair.AccessToken == "" || newPair.RefreshToken == "" {
		t.Fatalf("ожидалась новая пара токенов")
	}

	parsedID, role, err := tokenManager.ParseAccess(newPair.AccessToken)
	if err != nil {
		t.Fatalf("новый access токен невалиден: %v", err)
	}
	if parsedID != user.ID || role != user.Role {
		t.Fatalf("claims нового access токена не совпадают с пользователем")
	}
}

func TestAuthService_RefreshInactiveUser(t *testing.T) {
	repo := newMockAuthRepository()
	tokenManager := NewTokenManager("access-secret", "refresh-secret", time.Minute, time.Hour)
	service := NewAuthService(repo, tokenManager)

	ctx := context.Background()
	user := &models.User{
		ID:       uuid.New(),
		Email:    "blocked@example.com",
		Role:     "user",
		IsActive: false,
	}
	repo.usersByEmail[user.Email] = user
	repo.usersByID[user.ID] = user

	tokenPair, err := tokenManager.GeneratePair(user)
	if err != nil {
		t.Fatalf("не удалось сгенерировать токены: %v", err)
	}

	if _, err := service.Refresh(ctx, tokenPair.RefreshToken); err == nil {
		t.Fatalf("refresh заблокированного аккаунта должен вернуть ошибку")
	}
}
