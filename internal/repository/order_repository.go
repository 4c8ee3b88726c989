package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/marketplace-backend/internal/models"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrStatusConflict = errors.New("order status conflict")
)

const orderColumns = `
	id, buyer_id, seller_id, service_name, tier, price, delivery_time, status, requirements,
	created_at, accepted_at, delivered_at, completed_at, disputed_at, updated_at,
	acceptance_deadline, review_deadline,
	deliverable_files, deliverable_message, deliverable_submitted_at,
	dispute_reason, dispute_details, admin_decision, admin_notes
`

// OrderRepository отвечает за заказы, переписку и доказательства по спорам.
// Переходы с движением средств выполняются одной транзакцией БД с блокировкой
// строки заказа; остальные переходы идут через условный UPDATE по статусу.
type OrderRepository struct {
	db *sqlx.DB
}

func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create вставляет заказ и удерживает средства покупателя атомарно.
// При нехватке средств не сохраняется ничего.
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (buyer_id, seller_id, service_name, tier, price, delivery_time, status, requirements, acceptance_deadline)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	if err := tx.QueryRowxContext(
		ctx, query,
		order.BuyerID, order.SellerID, order.ServiceName, order.Tier,
		order.Price, order.DeliveryTime, order.Status, order.Requirements, order.AcceptanceDeadline,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return fmt.Errorf("order repository: create %w", err)
	}

	if err := debitWalletTx(ctx, tx, order.BuyerID, order.Price); err != nil {
		return err
	}

	if _, err := insertWalletTransactionTx(
		ctx, tx, order.BuyerID, &order.ID,
		models.TransactionTypeOrderHold, -order.Price, "Удержание средств по заказу",
	); err != nil {
		return fmt.Errorf("order repository: create hold transaction %w", err)
	}

	return tx.Commit()
}

// GetByID возвращает заказ по идентификатору.
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if err := r.db.GetContext(ctx, &order, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("order repository: get by id %w", err)
	}
	return &order, nil
}

// Accept переводит заказ из awaiting_acceptance в pending.
func (r *OrderRepository) Accept(ctx context.Context, id uuid.UUID, acceptedAt time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $3, accepted_at = $2, acceptance_deadline = NULL, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`, id, acceptedAt, models.OrderStatusPending, models.OrderStatusAwaitingAcceptance)
	if err != nil {
		return fmt.Errorf("order repository: accept %w", err)
	}
	return r.checkAffected(ctx, result, id)
}

// StartProgress переводит заказ из pending в in_progress.
func (r *OrderRepository) StartProgress(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, models.OrderStatusInProgress, models.OrderStatusPending)
	if err != nil {
		return fmt.Errorf("order repository: start progress %w", err)
	}
	return r.checkAffected(ctx, result, id)
}

// SubmitDelivery переводит заказ из in_progress в delivered,
// фиксирует результат и дедлайн проверки.
func (r *OrderRepository) SubmitDelivery(ctx context.Context, id uuid.UUID, deliverable models.Deliverable, deliveredAt, reviewDeadline time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $5, delivered_at = $2, review_deadline = $3,
			deliverable_files = $4, deliverable_message = $6, deliverable_submitted_at = $2,
			updated_at = NOW()
		WHERE id = $1 AND status = $7
	`, id, deliveredAt, reviewDeadline, pq.Array(deliverable.Files),
		models.OrderStatusDelivered, deliverable.Message, models.OrderStatusInProgress)
	if err != nil {
		return fmt.Errorf("order repository: submit delivery %w", err)
	}
	return r.checkAffected(ctx, result, id)
}

// UpdateDeliverable обновляет результат работы, пока заказ на проверке.
func (r *OrderRepository) UpdateDeliverable(ctx context.Context, id uuid.UUID, deliverable models.Deliverable, submittedAt time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET deliverable_files = $2, deliverable_message = $3, deliverable_submitted_at = $4, updated_at = NOW()
		WHERE id = $1 AND status = $5
	`, id, pq.Array(deliverable.Files), deliverable.Message, submittedAt, models.OrderStatusDelivered)
	if err != nil {
		return fmt.Errorf("order repository: update deliverable %w", err)
	}
	return r.checkAffected(ctx, result, id)
}

// MarkDisputed переводит заказ из delivered в disputed.
func (r *OrderRepository) MarkDisputed(ctx context.Context, id uuid.UUID, reason, details string, disputedAt time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $5, dispute_reason = $2, dispute_details = $3, disputed_at = $4,
			review_deadline = NULL, updated_at = NOW()
		WHERE id = $1 AND status = $6
	`, id, reason, details, disputedAt, models.OrderStatusDisputed, models.OrderStatusDelivered)
	if err != nil {
		return fmt.Errorf("order repository: mark disputed %w", err)
	}
	return r.checkAffected(ctx, result, id)
}

// UpdateRequirements меняет требования, пока работа не началась.
func (r *OrderRepository) UpdateRequirements(ctx context.Context, id uuid.UUID, requirements string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET requirements = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
	`, id, requirements, pq.Array([]string{models.OrderStatusAwaitingAcceptance, models.OrderStatusPending}))
	if err != nil {
		return fmt.Errorf("order repository: update requirements %w", err)
	}
	return r.checkAffected(ctx, result, id)
}

// CancelWithRefund отменяет заказ и возвращает средства покупателю
// одной транзакцией. Допустимые исходные статусы передаёт вызывающий.
func (r *OrderRepository) CancelWithRefund(ctx context.Context, id uuid.UUID, fromStatuses []string, description string) (*models.Order, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	order, err := lockOrderTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !statusIn(order.Status, fromStatuses) {
		return nil, ErrStatusConflict
	}

	if err := tx.GetContext(ctx, order, `
		UPDATE orders
		SET status = $2, acceptance_deadline = NULL, updated_at = NOW()
		WHERE id = $1
		RETURNING `+orderColumns+`
	`, id, models.OrderStatusCancelled); err != nil {
		return nil, fmt.Errorf("order repository: cancel %w", err)
	}

	if err := creditWalletTx(ctx, tx, order.BuyerID, order.Price); err != nil {
		return nil, err
	}
	if _, err := insertWalletTransactionTx(
		ctx, tx, order.BuyerID, &order.ID,
		models.TransactionTypeRefund, order.Price, description,
	); err != nil {
		return nil, fmt.Errorf("order repository: cancel refund transaction %w", err)
	}

	return order, tx.Commit()
}

// CompleteWithRelease завершает заказ и выплачивает продавцу
// одной транзакцией.
func (r *OrderRepository) CompleteWithRelease(ctx context.Context, id uuid.UUID, completedAt time.Time) (*models.Order, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	order, err := lockOrderTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusDelivered {
		return nil, ErrStatusConflict
	}

	if err := tx.GetContext(ctx, order, `
		UPDATE orders
		SET status = $2, completed_at = $3, review_deadline = NULL, updated_at = NOW()
		WHERE id = $1
		RETURNING `+orderColumns+`
	`, id, models.OrderStatusCompleted, completedAt); err != nil {
		return nil, fmt.Errorf("order repository: complete %w", err)
	}

	if err := creditWalletTx(ctx, tx, order.SellerID, order.Price); err != nil {
		return nil, err
	}
	if _, err := insertWalletTransactionTx(
		ctx, tx, order.SellerID, &order.ID,
		models.TransactionTypeOrderRelease, order.Price, "Оплата за выполненный заказ",
	); err != nil {
		return nil, fmt.Errorf("order repository: release transaction %w", err)
	}

	return order, tx.Commit()
}

// ResolveWithSettlement закрывает спор решением администратора и
// двигает средства ровно один раз в рамках одной транзакции.
func (r *OrderRepository) ResolveWithSettlement(ctx context.Context, id uuid.UUID, decision, notes string, resolvedAt time.Time) (*models.Order, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	order, err := lockOrderTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusDisputed {
		return nil, ErrStatusConflict
	}

	if err := tx.GetContext(ctx, order, `
		UPDATE orders
		SET status = $2, admin_decision = $3, admin_notes = $4, completed_at = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING `+orderColumns+`
	`, id, models.OrderStatusDisputeResolved, decision, notes, resolvedAt); err != nil {
		return nil, fmt.Errorf("order repository: resolve dispute %w", err)
	}

	switch decision {
	case models.DisputeDecisionRefundBuyer:
		if err := creditWalletTx(ctx, tx, order.BuyerID, order.Price); err != nil {
			return nil, err
		}
		if _, err := insertWalletTransactionTx(
			ctx, tx, order.BuyerID, &order.ID,
			models.TransactionTypeRefund, order.Price, "Возврат средств по решению спора",
		); err != nil {
			return nil, fmt.Errorf("order repository: dispute refund transaction %w", err)
		}
	case models.DisputeDecisionPaySeller:
		if err := creditWalletTx(ctx, tx, order.SellerID, order.Price); err != nil {
			return nil, err
		}
		if _, err := insertWalletTransactionTx(
			ctx, tx, order.SellerID, &order.ID,
			models.TransactionTypeOrderRelease, order.Price, "Оплата по решению спора",
		); err != nil {
			return nil, fmt.Errorf("order repository: dispute release transaction %w", err)
		}
	default:
		return nil, fmt.Errorf("order repository: unknown decision %q", decision)
	}

	return order, tx.Commit()
}

// ListByBuyer возвращает заказы пользователя как покупателя.
func (r *OrderRepository) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	query := `SELECT ` + orderColumns + ` FROM orders WHERE buyer_id = $1 ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &orders, query, buyerID); err != nil {
		return nil, fmt.Errorf("order repository: list by buyer %w", err)
	}
	return orders, nil
}

// ListBySeller возвращает заказы пользователя как продавца.
func (r *OrderRepository) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	query := `SELECT ` + orderColumns + ` FROM orders WHERE seller_id = $1 ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &orders, query, sellerID); err != nil {
		return nil, fmt.Errorf("order repository: list by seller %w", err)
	}
	return orders, nil
}

// ListByStatus возвращает заказы в указанном статусе.
func (r *OrderRepository) ListByStatus(ctx context.Context, status string, limit, offset int) ([]models.Order, error) {
	var orders []models.Order
	query := `SELECT ` + orderColumns + ` FROM orders WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &orders, query, status, limit, offset); err != nil {
		return nil, fmt.Errorf("order repository: list by status %w", err)
	}
	return orders, nil
}

// ListAll возвращает все заказы для административного обзора.
func (r *OrderRepository) ListAll(ctx context.Context, limit, offset int) ([]models.Order, error) {
	var orders []models.Order
	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &orders, query, limit, offset); err != nil {
		return nil, fmt.Errorf("order repository: list all %w", err)
	}
	return orders, nil
}

// ListExpiredAcceptance возвращает заказы с истёкшим окном принятия.
// Граница не включается: заказ с дедлайном ровно now ещё можно принять.
func (r *OrderRepository) ListExpiredAcceptance(ctx context.Context, now time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	query := `SELECT ` + orderColumns + ` FROM orders WHERE status = $1 AND acceptance_deadline < $2 ORDER BY acceptance_deadline LIMIT $3`
	if err := r.db.SelectContext(ctx, &orders, query, models.OrderStatusAwaitingAcceptance, now, limit); err != nil {
		return nil, fmt.Errorf("order repository: list expired acceptance %w", err)
	}
	return orders, nil
}

// ListExpiredReview возвращает заказы с истёкшим сроком проверки.
func (r *OrderRepository) ListExpiredReview(ctx context.Context, now time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	query := `SELECT ` + orderColumns + ` FROM orders WHERE status = $1 AND review_deadline < $2 ORDER BY review_deadline LIMIT $3`
	if err := r.db.SelectContext(ctx, &orders, query, models.OrderStatusDelivered, now, limit); err != nil {
		return nil, fmt.Errorf("order repository: list expired review %w", err)
	}
	return orders, nil
}

// AddMessage добавляет сообщение в переписку заказа.
func (r *OrderRepository) AddMessage(ctx context.Context, message *models.OrderMessage) error {
	query := `
		INSERT INTO order_messages (order_id, sender_id, sender_role, message, files)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	if err := r.db.QueryRowxContext(
		ctx, query,
		message.OrderID, message.SenderID, message.SenderRole, message.Message, message.Files,
	).Scan(&message.ID, &message.CreatedAt); err != nil {
		return fmt.Errorf("order repository: add message %w", err)
	}
	return nil
}

// ListMessages возвращает переписку заказа в хронологическом порядке.
func (r *OrderRepository) ListMessages(ctx context.Context, orderID uuid.UUID) ([]models.OrderMessage, error) {
	var messages []models.OrderMessage
	err := r.db.SelectContext(ctx, &messages, `
		SELECT id, order_id, sender_id, sender_role, message, files, created_at
		FROM order_messages WHERE order_id = $1 ORDER BY created_at
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("order repository: list messages %w", err)
	}
	return messages, nil
}

// AddEvidence прикладывает доказательство к спору.
func (r *OrderRepository) AddEvidence(ctx context.Context, evidence *models.DisputeEvidence) error {
	query := `
		INSERT INTO dispute_evidence (order_id, uploader_id, type, content)
		VALUES ($1, $2, $3, $4)
		RETURNING id, uploaded_at
	`
	if err := r.db.QueryRowxContext(
		ctx, query,
		evidence.OrderID, evidence.UploaderID, evidence.Type, evidence.Content,
	).Scan(&evidence.ID, &evidence.UploadedAt); err != nil {
		return fmt.Errorf("order repository: add evidence %w", err)
	}
	return nil
}

// ListEvidence возвращает доказательства по спору.
func (r *OrderRepository) ListEvidence(ctx context.Context, orderID uuid.UUID) ([]models.DisputeEvidence, error) {
	var evidence []models.DisputeEvidence
	err := r.db.SelectContext(ctx, &evidence, `
		SELECT id, order_id, uploader_id, type, content, uploaded_at
		FROM dispute_evidence WHERE order_id = $1 ORDER BY uploaded_at
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("order repository: list evidence %w", err)
	}
	return evidence, nil
}

// lockOrderTx берёт строку заказа под блокировку.
func lockOrderTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &order, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("order repository: lock order %w", err)
	}
	return &order, nil
}

// checkAffected различает отсутствие заказа и несовпадение статуса
// после условного обновления.
func (r *OrderRepository) checkAffected(ctx context.Context, result sql.Result, id uuid.UUID) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("order repository: rows affected %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id); err != nil {
		return fmt.Errorf("order repository: check existence %w", err)
	}
	if !exists {
		return ErrOrderNotFound
	}
	return ErrStatusConflict
}

func statusIn(status string, statuses []string) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
