package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Статусы заказа
const (
	OrderStatusAwaitingAcceptance = "awaiting_acceptance"
	OrderStatusPending            = "pending"
	OrderStatusInProgress         = "in_progress"
	OrderStatusDelivered          = "delivered"
	OrderStatusCompleted          = "completed"
	OrderStatusCancelled          = "cancelled"
	OrderStatusDisputed           = "disputed"
	OrderStatusDisputeResolved    = "dispute_resolved"
)

// Тарифы услуги
const (
	TierBasic    = "basic"
	TierStandard = "standard"
	TierPremium  = "premium"
)

// Роли участников заказа
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
	RoleAdmin  = "admin"
)

// ValidOrderStatuses содержит все допустимые статусы заказа.
var ValidOrderStatuses = map[string]struct{}{
	OrderStatusAwaitingAcceptance: {},
	OrderStatusPending:            {},
	OrderStatusInProgress:         {},
	OrderStatusDelivered:          {},
	OrderStatusCompleted:          {},
	OrderStatusCancelled:          {},
	OrderStatusDisputed:           {},
	OrderStatusDisputeResolved:    {},
}

// ValidTiers содержит допустимые тарифы.
var ValidTiers = map[string]struct{}{
	TierBasic:    {},
	TierStandard: {},
	TierPremium:  {},
}

// TerminalOrderStatuses содержит статусы, из которых нет переходов.
var TerminalOrderStatuses = map[string]struct{}{
	OrderStatusCompleted:       {},
	OrderStatusCancelled:       {},
	OrderStatusDisputeResolved: {},
}

// IsTerminalStatus сообщает, является ли статус терминальным.
func IsTerminalStatus(status string) bool {
	_, ok := TerminalOrderStatuses[status]
	return ok
}

// Order описывает покупку услуги с escrow-удержанием средств.
// Дедлайн принятия действует в awaiting_acceptance, дедлайн проверки — в delivered;
// одновременно значим ровно один из них.
type Order struct {
	ID           uuid.UUID `db:"id" json:"id"`
	BuyerID      uuid.UUID `db:"buyer_id" json:"buyer_id"`
	SellerID     uuid.UUID `db:"seller_id" json:"seller_id"`
	ServiceName  string    `db:"service_name" json:"service_name"`
	Tier         string    `db:"tier" json:"tier"`
	Price        float64   `db:"price" json:"price"`
	DeliveryTime int       `db:"delivery_time" json:"delivery_time"` // в днях
	Status       string    `db:"status" json:"status"`
	Requirements string    `db:"requirements" json:"requirements"`

	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	AcceptedAt  *time.Time `db:"accepted_at" json:"accepted_at,omitempty"`
	DeliveredAt *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	DisputedAt  *time.Time `db:"disputed_at" json:"disputed_at,omitempty"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`

	AcceptanceDeadline *time.Time `db:"acceptance_deadline" json:"acceptance_deadline,omitempty"`
	ReviewDeadline     *time.Time `db:"review_deadline" json:"review_deadline,omitempty"`

	DeliverableFiles       pq.StringArray `db:"deliverable_files" json:"deliverable_files,omitempty"`
	DeliverableMessage     *string        `db:"deliverable_message" json:"deliverable_message,omitempty"`
	DeliverableSubmittedAt *time.Time     `db:"deliverable_submitted_at" json:"deliverable_submitted_at,omitempty"`

	DisputeReason  *string `db:"dispute_reason" json:"dispute_reason,omitempty"`
	DisputeDetails *string `db:"dispute_details" json:"dispute_details,omitempty"`
	AdminDecision  *string `db:"admin_decision" json:"admin_decision,omitempty"`
	AdminNotes     *string `db:"admin_notes" json:"admin_notes,omitempty"`
}

// OrderMessage — сообщение в переписке по заказу (append-only).
type OrderMessage struct {
	ID         uuid.UUID      `db:"id" json:"id"`
	OrderID    uuid.UUID      `db:"order_id" json:"order_id"`
	SenderID   uuid.UUID      `db:"sender_id" json:"sender_id"`
	SenderRole string         `db:"sender_role" json:"sender_role"`
	Message    string         `db:"message" json:"message"`
	Files      pq.StringArray `db:"files" json:"files,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// Deliverable описывает результат работы, переданный продавцом.
type Deliverable struct {
	Files   []string `json:"files"`
	Message string   `json:"message"`
}
