package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
)

type mockWalletRepo struct {
	mock.Mock
}

func (m *mockWalletRepo) GetBalance(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func (m *mockWalletRepo) Deposit(ctx context.Context, userID uuid.UUID, amount float64, description string) (*models.WalletTransaction, error) {
	args := m.Called(ctx, userID, amount, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WalletTransaction), args.Error(1)
}

func (m *mockWalletRepo) Withdraw(ctx context.Context, userID uuid.UUID, amount float64, description string) (*models.WalletTransaction, error) {
	args := m.Called(ctx, userID, amount, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WalletTransaction), args.Error(1)
}

func (m *mockWalletRepo) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WalletTransaction, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]models.WalletTransaction), args.Error(1)
}

func TestWalletService_GetBalance(t *testing.T) {
	repo := new(mockWalletRepo)
	svc := NewWalletService(repo)
	ctx := context.Background()
	userID := uuid.New()

	expected := &models.Wallet{UserID: userID, Balance: 1500}
	repo.On("GetBalance", ctx, userID).Return(expected, nil)

	wallet, err := svc.GetBalance(ctx, userID)
	assert.NoError(t, err)
	assert.Equal(t, expected, wallet)
	repo.AssertExpectations(t)
}

func TestWalletService_Deposit_Success(t *testing.T) {
	repo := new(mockWalletRepo)
	svc := NewWalletService(repo)
	ctx := context.Background()
	userID := uuid.New()

	expected := &models.WalletTransaction{ID: uuid.New(), Amount: 1000, Type: models.TransactionTypeDeposit}
	repo.On("Deposit", ctx, userID, float64(1000), "Пополнение баланса").Return(expected, nil)

	tx, err := svc.Deposit(ctx, userID, 1000)
	assert.NoError(t, err)
	assert.Equal(t, expected, tx)
}

func TestWalletService_Deposit_InvalidAmount(t *testing.T) {
	repo := new(mockWalletRepo)
	svc := NewWalletService(repo)
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.Deposit(ctx, userID, 0)
	assert.Error(t, err)
	assert.True(t, apperror.IsValidation(err))

	_, err = svc.Deposit(ctx, userID, -100)
	assert.Error(t, err)

	repo.AssertNotCalled(t, "Deposit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWalletService_Withdraw_Success(t *testing.T) {
	repo := new(mockWalletRepo)
	svc := NewWalletService(repo)
	ctx := context.Background()
	userID := uuid.New()

	expected := &models.WalletTransaction{ID: uuid.New(), Amount: -500, Type: models.TransactionTypeWithdrawal}
	repo.On("Withdraw", ctx, userID, float64(500), "Вывод средств").Return(expected, nil)

	tx, err := svc.Withdraw(ctx, userID, 500)
	assert.NoError(t, err)
	assert.Equal(t, expected, tx)
}

func TestWalletService_Withdraw_InsufficientFunds(t *testing.T) {
	repo := new(mockWalletRepo)
	svc := NewWalletService(repo)
	ctx := context.Background()
	userID := uuid.New()

	repo.On("Withdraw", ctx, userID, float64(500), "Вывод средств").Return(nil, repository.ErrInsufficientFunds)

	_, err := svc.Withdraw(ctx, userID, 500)
	assert.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrInsufficientFunds)
}

func TestWalletService_Withdraw_InvalidAmount(t *testing.T) {
	repo := new(mockWalletRepo)
	svc := NewWalletService(repo)
	ctx := context.Background()

	_, err := svc.Withdraw(ctx, uuid.New(), -1)
	assert.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
}

func TestWalletService_ListTransactions(t *testing.T) {
	repo := new(mockWalletRepo)
	svc := NewWalletService(repo)
	ctx := context.Background()
	userID := uuid.New()

	expected := []models.WalletTransaction{{ID: uuid.New()}, {ID: uuid.New()}}
	repo.On("ListTransactions", ctx, userID, 50, 0).Return(expected, nil)

	txs, err := svc.ListTransactions(ctx, userID, 50, 0)
	assert.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestWalletService_ListTransactions_DefaultLimit(t *testing.T) {
	repo := new(mockWalletRepo)
	svc := NewWalletService(repo)
	ctx := context.Background()
	userID := uuid.New()

	repo.On("ListTransactions", ctx, userID, 20, 0).Return([]models.WalletTransaction{}, nil)

	_, err := svc.ListTransactions(ctx, userID, 0, -5)
	assert.NoError(t, err)
}

func TestWalletService_ListTransactions_RepoError(t *testing.T) {
	repo := new(mockWalletRepo)
	svc := NewWalletService(repo)
	ctx := context.Background()
	userID := uuid.New()

	repo.On("ListTransactions", ctx, userID, 20, 0).Return([]models.WalletTransaction(nil), errors.New("db down"))

	_, err := svc.ListTransactions(ctx, userID, 20, 0)
	assert.Error(t, err)
}
