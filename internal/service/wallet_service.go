package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
	"github.com/ignatzorin/marketplace-backend/internal/validation"
)

// WalletRepository описывает зависимости WalletService от слоя хранилища.
type WalletRepository interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	Deposit(ctx context.Context, userID uuid.UUID, amount float64, description string) (*models.WalletTransaction, error)
	Withdraw(ctx context.Context, userID uuid.UUID, amount float64, description string) (*models.WalletTransaction, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WalletTransaction, error)
}

// WalletService инкапсулирует операции с балансом пользователя.
// Удержание, выплата и возврат средств по заказам недоступны напрямую:
// они происходят только внутри переходов заказа.
type WalletService struct {
	repo WalletRepository
}

func NewWalletService(repo WalletRepository) *WalletService {
	return &WalletService{repo: repo}
}

// GetBalance возвращает баланс пользователя.
func (s *WalletService) GetBalance(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return s.repo.GetBalance(ctx, userID)
}

// Deposit пополняет баланс.
func (s *WalletService) Deposit(ctx context.Context, userID uuid.UUID, amount float64) (*models.WalletTransaction, error) {
	if err := validation.ValidateAmount("сумма пополнения", amount); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	return s.repo.Deposit(ctx, userID, amount, "Пополнение баланса")
}

// Withdraw списывает средства с баланса.
func (s *WalletService) Withdraw(ctx context.Context, userID uuid.UUID, amount float64) (*models.WalletTransaction, error) {
	if err := validation.ValidateAmount("сумма вывода", amount); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	transaction, err := s.repo.Withdraw(ctx, userID, amount, "Вывод средств")
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			return nil, apperror.ErrInsufficientFunds
		}
		return nil, fmt.Errorf("wallet service: withdraw %w", err)
	}
	return transaction, nil
}

// ListTransactions возвращает историю транзакций.
func (s *WalletService) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WalletTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListTransactions(ctx, userID, limit, offset)
}
