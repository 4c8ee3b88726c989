package models

import (
	"time"

	"github.com/google/uuid"
)

// Причины спора
const (
	DisputeReasonWorkQuality   = "work_quality"
	DisputeReasonPaymentDelay  = "payment_delay"
	DisputeReasonScopeChange   = "scope_change"
	DisputeReasonCommunication = "communication"
	DisputeReasonOther         = "other"
)

// Решения администратора
const (
	DisputeDecisionRefundBuyer = "refund_buyer"
	DisputeDecisionPaySeller   = "pay_seller"
)

// Типы доказательств
const (
	EvidenceTypeText = "text"
	EvidenceTypeFile = "file"
	EvidenceTypeLink = "link"
)

// ValidDisputeReasons содержит допустимые причины спора.
var ValidDisputeReasons = map[string]struct{}{
	DisputeReasonWorkQuality:   {},
	DisputeReasonPaymentDelay:  {},
	DisputeReasonScopeChange:   {},
	DisputeReasonCommunication: {},
	DisputeReasonOther:         {},
}

// ValidDisputeDecisions содержит допустимые решения по спору.
var ValidDisputeDecisions = map[string]struct{}{
	DisputeDecisionRefundBuyer: {},
	DisputeDecisionPaySeller:   {},
}

// ValidEvidenceTypes содержит допустимые типы доказательств.
var ValidEvidenceTypes = map[string]struct{}{
	EvidenceTypeText: {},
	EvidenceTypeFile: {},
	EvidenceTypeLink: {},
}

// DisputeEvidence — доказательство, приложенное к спору.
// Список append-only, пока заказ в статусе disputed.
type DisputeEvidence struct {
	ID         uuid.UUID `db:"id" json:"id"`
	OrderID    uuid.UUID `db:"order_id" json:"order_id"`
	UploaderID uuid.UUID `db:"uploader_id" json:"uploader_id"`
	Type       string    `db:"type" json:"type"`
	Content    string    `db:"content" json:"content"`
	UploadedAt time.Time `db:"uploaded_at" json:"uploaded_at"`
}

// DisputeView агрегирует данные спора для выдачи наружу.
type DisputeView struct {
	OrderID    uuid.UUID         `json:"order_id"`
	Status     string            `json:"status"`
	Reason     *string           `json:"reason,omitempty"`
	Details    *string           `json:"details,omitempty"`
	Decision   *string           `json:"decision,omitempty"`
	AdminNotes *string           `json:"admin_notes,omitempty"`
	DisputedAt *time.Time        `json:"disputed_at,omitempty"`
	ResolvedAt *time.Time        `json:"resolved_at,omitempty"`
	Evidence   []DisputeEvidence `json:"evidence"`
}
