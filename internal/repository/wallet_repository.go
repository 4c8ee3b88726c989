package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/marketplace-backend/internal/models"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrWalletNotFound    = errors.New("wallet not found")
)

// WalletRepository отвечает за балансы и леджер транзакций.
// Любая мутация баланса пишет ровно одну запись в wallet_transactions
// в той же транзакции БД.
type WalletRepository struct {
	db *sqlx.DB
}

func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// GetBalance возвращает кошелек пользователя, создаёт если не существует.
func (r *WalletRepository) GetBalance(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	query := `
		INSERT INTO wallets (user_id, balance)
		VALUES ($1, 0)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
		RETURNING user_id, balance, updated_at
	`
	if err := r.db.GetContext(ctx, &wallet, query, userID); err != nil {
		return nil, fmt.Errorf("wallet repository: get balance %w", err)
	}
	return &wallet, nil
}

// Deposit пополняет баланс пользователя.
func (r *WalletRepository) Deposit(ctx context.Context, userID uuid.UUID, amount float64, description string) (*models.WalletTransaction, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := creditWalletTx(ctx, tx, userID, amount); err != nil {
		return nil, fmt.Errorf("wallet repository: deposit update balance %w", err)
	}

	transaction, err := insertWalletTransactionTx(ctx, tx, userID, nil, models.TransactionTypeDeposit, amount, description)
	if err != nil {
		return nil, fmt.Errorf("wallet repository: deposit create transaction %w", err)
	}

	return transaction, tx.Commit()
}

// Withdraw списывает средства с баланса пользователя.
// Баланс проверяется под блокировкой строки, при нехватке средств
// ничего не записывается.
func (r *WalletRepository) Withdraw(ctx context.Context, userID uuid.UUID, amount float64, description string) (*models.WalletTransaction, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := debitWalletTx(ctx, tx, userID, amount); err != nil {
		return nil, err
	}

	transaction, err := insertWalletTransactionTx(ctx, tx, userID, nil, models.TransactionTypeWithdrawal, -amount, description)
	if err != nil {
		return nil, fmt.Errorf("wallet repository: withdraw create transaction %w", err)
	}

	return transaction, tx.Commit()
}

// ListTransactions возвращает историю транзакций пользователя.
func (r *WalletRepository) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WalletTransaction, error) {
	var transactions []models.WalletTransaction
	err := r.db.SelectContext(ctx, &transactions, `
		SELECT id, user_id, order_id, type, amount, status, description, created_at
		FROM wallet_transactions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("wallet repository: list transactions %w", err)
	}
	return transactions, nil
}

// debitWalletTx списывает средства под блокировкой строки кошелька.
// Возвращает ErrInsufficientFunds, если баланса не хватает.
func debitWalletTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount float64) error {
	var wallet models.Wallet
	err := tx.GetContext(ctx, &wallet, `SELECT user_id, balance, updated_at FROM wallets WHERE user_id = $1 FOR UPDATE`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInsufficientFunds
		}
		return err
	}
	if wallet.Balance < amount {
		return ErrInsufficientFunds
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE wallets SET balance = balance - $2, updated_at = NOW()
		WHERE user_id = $1
	`, userID, amount)
	return err
}

// creditWalletTx начисляет средства, создавая кошелек при необходимости.
func creditWalletTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount float64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallets (user_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET balance = wallets.balance + $2, updated_at = NOW()
	`, userID, amount)
	return err
}

// insertWalletTransactionTx пишет запись леджера в рамках транзакции БД.
func insertWalletTransactionTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, orderID *uuid.UUID, txType string, amount float64, description string) (*models.WalletTransaction, error) {
	var transaction models.WalletTransaction
	err := tx.GetContext(ctx, &transaction, `
		INSERT INTO wallet_transactions (user_id, order_id, type, amount, status, description)
		VALUES ($1, $2, $3, $4, 'completed', $5)
		RETURNING id, user_id, order_id, type, amount, status, description, created_at
	`, userID, orderID, txType, amount, description)
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}
