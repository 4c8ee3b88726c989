package models

import (
	"time"

	"github.com/google/uuid"
)

// Типы транзакций
const (
	TransactionTypeDeposit      = "deposit"
	TransactionTypeWithdrawal   = "withdrawal"
	TransactionTypeOrderHold    = "order_hold"
	TransactionTypeOrderRelease = "order_release"
	TransactionTypeRefund       = "refund"
)

// Статусы транзакций
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

// Wallet представляет баланс пользователя. Баланс меняется только через
// операции леджера, каждая из которых пишет ровно одну транзакцию.
type Wallet struct {
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Balance   float64   `db:"balance" json:"balance"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// WalletTransaction — неизменяемая запись аудита движения средств.
// Сумма подписана: удержания и выводы отрицательные, начисления положительные.
type WalletTransaction struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	UserID      uuid.UUID  `db:"user_id" json:"user_id"`
	OrderID     *uuid.UUID `db:"order_id" json:"order_id,omitempty"`
	Type        string     `db:"type" json:"type"`
	Amount      float64    `db:"amount" json:"amount"`
	Status      string     `db:"status" json:"status"`
	Description string     `db:"description" json:"description"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}
