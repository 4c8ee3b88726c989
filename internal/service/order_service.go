package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
	"github.com/ignatzorin/marketplace-backend/internal/validation"
)

// OrderRepository описывает взаимодействие сервиса с хранилищем заказов.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	Accept(ctx context.Context, id uuid.UUID, acceptedAt time.Time) error
	StartProgress(ctx context.Context, id uuid.UUID) error
	SubmitDelivery(ctx context.Context, id uuid.UUID, deliverable models.Deliverable, deliveredAt, reviewDeadline time.Time) error
	UpdateDeliverable(ctx context.Context, id uuid.UUID, deliverable models.Deliverable, submittedAt time.Time) error
	MarkDisputed(ctx context.Context, id uuid.UUID, reason, details string, disputedAt time.Time) error
	UpdateRequirements(ctx context.Context, id uuid.UUID, requirements string) error
	CancelWithRefund(ctx context.Context, id uuid.UUID, fromStatuses []string, description string) (*models.Order, error)
	CompleteWithRelease(ctx context.Context, id uuid.UUID, completedAt time.Time) (*models.Order, error)
	ResolveWithSettlement(ctx context.Context, id uuid.UUID, decision, notes string, resolvedAt time.Time) (*models.Order, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Order, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.Order, error)
	ListByStatus(ctx context.Context, status string, limit, offset int) ([]models.Order, error)
	ListAll(ctx context.Context, limit, offset int) ([]models.Order, error)
	ListExpiredAcceptance(ctx context.Context, now time.Time, limit int) ([]models.Order, error)
	ListExpiredReview(ctx context.Context, now time.Time, limit int) ([]models.Order, error)
	AddMessage(ctx context.Context, message *models.OrderMessage) error
	ListMessages(ctx context.Context, orderID uuid.UUID) ([]models.OrderMessage, error)
	AddEvidence(ctx context.Context, evidence *models.DisputeEvidence) error
	ListEvidence(ctx context.Context, orderID uuid.UUID) ([]models.DisputeEvidence, error)
}

// WSNotifier интерфейс для отправки WebSocket уведомлений.
type WSNotifier interface {
	BroadcastToUser(userID uuid.UUID, event string, data interface{}) error
}

// EventNotifier интерфейс для доставки событий во внешние системы.
type EventNotifier interface {
	Notify(event string, payload map[string]interface{})
}

const sweepBatchSize = 100

// OrderService содержит бизнес-логику жизненного цикла заказов:
// машину статусов, дедлайны, споры и движение средств через репозиторий.
type OrderService struct {
	repo     OrderRepository
	hub      WSNotifier
	webhooks EventNotifier

	acceptanceWindow time.Duration
	reviewPeriod     time.Duration
	autoRelease      bool

	now func() time.Time
}

// NewOrderService создаёт новый сервис заказов.
func NewOrderService(repo OrderRepository, acceptanceWindow, reviewPeriod time.Duration, autoRelease bool) *OrderService {
	return &OrderService{
		repo:             repo,
		acceptanceWindow: acceptanceWindow,
		reviewPeriod:     reviewPeriod,
		autoRelease:      autoRelease,
		now:              time.Now,
	}
}

// SetHub устанавливает WebSocket hub для отправки уведомлений.
func (s *OrderService) SetHub(hub WSNotifier) {
	s.hub = hub
}

// SetWebhooks устанавливает отправщик внешних событий.
func (s *OrderService) SetWebhooks(sink EventNotifier) {
	s.webhooks = sink
}

// CreateOrderInput описывает входные данные создания заказа.
type CreateOrderInput struct {
	BuyerID      uuid.UUID
	SellerID     uuid.UUID
	ServiceName  string
	Tier         string
	Price        float64
	DeliveryTime int
	Requirements string
}

// DeliveryInput описывает результат работы от продавца.
type DeliveryInput struct {
	Files   []string
	Message string
}

// DisputeInput описывает открытие спора покупателем.
type DisputeInput struct {
	Reason  string
	Details string
}

// CreateOrder создаёт заказ и удерживает средства покупателя.
// При нехватке средств заказ не сохраняется.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	if in.BuyerID == in.SellerID {
		return nil, apperror.New(apperror.ErrCodeValidation, "покупатель и продавец не могут совпадать")
	}
	if err := validation.ValidateServiceName(in.ServiceName); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if _, ok := models.ValidTiers[in.Tier]; !ok {
		return nil, apperror.New(apperror.ErrCodeValidation, "недопустимый тариф услуги")
	}
	if err := validation.ValidateAmount("цена заказа", in.Price); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateDeliveryTime(in.DeliveryTime); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateRequirements(in.Requirements); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	deadline := s.now().Add(s.acceptanceWindow)
	order := &models.Order{
		BuyerID:            in.BuyerID,
		SellerID:           in.SellerID,
		ServiceName:        in.ServiceName,
		Tier:               in.Tier,
		Price:              in.Price,
		DeliveryTime:       in.DeliveryTime,
		Status:             models.OrderStatusAwaitingAcceptance,
		Requirements:       in.Requirements,
		AcceptanceDeadline: &deadline,
	}

	if err := s.repo.Create(ctx, order); err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			return nil, apperror.ErrInsufficientFunds
		}
		return nil, err
	}

	s.notify(order.SellerID, "order.created", orderEventPayload(order))
	return order, nil
}

// GetOrder возвращает заказ участнику сделки или администратору.
// Просроченные дедлайны обрабатываются лениво при чтении.
func (s *OrderService) GetOrder(ctx context.Context, orderID, userID uuid.UUID, role string) (*models.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderRepoErr(err)
	}
	if !isOrderParty(order, userID) && role != models.RoleAdmin {
		return nil, apperror.ErrForbidden
	}
	return s.applyExpiry(ctx, order)
}

// AcceptOrder принимает заказ продавцом в пределах окна принятия.
// Просроченный заказ отменяется с возвратом средств, а вызов получает
// ошибку истечения срока. Принятие ровно в момент дедлайна допустимо.
func (s *OrderService) AcceptOrder(ctx context.Context, orderID, sellerID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderRepoErr(err)
	}
	if order.SellerID != sellerID {
		return nil, apperror.ErrForbidden
	}
	if order.Status != models.OrderStatusAwaitingAcceptance {
		return nil, apperror.ErrInvalidTransition
	}

	if order.AcceptanceDeadline != nil && s.now().After(*order.AcceptanceDeadline) {
		if _, err := s.cancelExpiredAcceptance(ctx, order.ID); err != nil {
			return nil, err
		}
		return nil, apperror.ErrDeadlineExpired
	}

	if err := s.repo.Accept(ctx, orderID, s.now()); err != nil {
		return nil, mapOrderRepoErr(err)
	}

	order, err = s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderRepoErr(err)
	}

	s.notify(order.BuyerID, "order.accepted", orderEventPayload(order))
	return order, nil
}

// DeclineOrder отклоняет заказ продавцом с возвратом средств покупателю.
func (s *OrderService) DeclineOrder(ctx context.Context, orderID, sellerID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderRepoErr(err)
	}
	if order.SellerID != sellerID {
		return nil, apperror.ErrForbidden
	}

	order, err = s.repo.CancelWithRefund(ctx, orderID,
		[]string{models.OrderStatusAwaitingAcceptance},
		"Возврат средств: продавец отклонил заказ")
	if err != nil {
		return nil, mapOrderRepoErr(err)
	}

	s.notify(order.BuyerID, "order.declined", orderEventPayload(order))
	return order, nil
}

// CancelOrder отменяет заказ участником сделки, пока работа не началась.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderRepoErr(err)
	}
	if !isOrderParty(order, userID) {
		return nil, apperror.ErrForbidden
	}

	order, err = s.repo.CancelWithRefund(ctx, orderID,
		[]string{models.OrderStatusAwaitingAcceptance, models.OrderStatusPending},
		"Возврат средств: заказ отменён")
	if err != nil {
		return nil, mapOrderRepoErr(err)
	}

	s.notify(otherParty(order, userID), "order.cancelled", orderEventPayload(order))
	return order, nil
}

// StartProgress переводит принятый заказ в работу.
func (s *OrderService) StartProgress(ctx context.Context, orderID, sellerID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderRepoErr(err)
	}
	if order.SellerID != sellerID {
		return nil, apperror.ErrForbidden
	}

	if err := s.repo.StartProgress(ctx, orderID); err != nil {
		return nil, mapOrderRepoErr(err)
	}

	order, err = s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderRepoErr(err)
	}

	s.notify(order.BuyerID, "order.started", orderEventPayload(order))
	return order, nil
}

// SubmitDelivery сдаёт результат работы покупателю на проверку.
// Повторная сдача до завершения проверки обновляет результат.
func (s *OrderService) SubmitDelivery(ctx context.Context, orderID, sellerID uuid.UUID, in DeliveryInput) (*models.Order, error) {
	if err := validation.ValidateDeliverable(in.Message, in.Files); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderRepoErr(err)
	}
	if order.SellerID != sellerID {
		return nil, apperror.ErrForbidden
	}

	deliverable := models.Deliverable{Files: in.Files, Message: in.Message}

	switch order.Status {
	case models.OrderStatusInProgress:
		now := s.now()
		if err := s.repo.SubmitDelivery(ctx, orderID, deliverable, now, now.Add(s.reviewPeriod)); err != nil {
			return nil, mapOrderRepoErr(err)
		}
	case models.OrderStatusDelivered:
		if err := s.repo.UpdateDeliverable(ctx, orderID, deliverable, s.now()); err != nil {
			return nil, mapOrderRepoErr(err)
		}
	default:
		return nil, apperror.ErrInvalidTransition
	}

	order, err = s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderRepoErr(err)
	}

	s.notify(order.BuyerID, "order.delivered", orderEventPayload(order))
	return order, nil
}

// ReleasePayment завершает заказ покупателем с выплатой продавцу.
func (s *OrderService) ReleasePayment(ctx context.Context, orderID, buyerID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderRepoErr(err)
	}
	if order.BuyerID != buyerID {
		return nil, apperror.ErrForbidden
	}

	order, err = s.repo.CompleteWithRelease(ctx, orderID, s.now())
	if err != nil {
		return nil, mapOrderRepoErr(err)
	}

	s.notify(order.SellerID, "order.completed", orderEventPayload(order))
	return order, nil
}

// OpenDispute открывает спор покупателем по сданному заказу.
func (s *OrderService) OpenDispute(ctx context.Context, orderID, buyerID uuid.UUID, in DisputeInput) (*models.Order, error) {
	if _, ok := models.ValidDisputeReasons[in.Reason]; !ok {
		return nil, apperror.New(apperror.ErrCodeValidation, "недопустимая причина спора")
	}
	if err := validation.ValidateDisputeDetails(in.Details); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderRepoErr(err)
	}
	if order.BuyerID != buyerID {
		return nil, apperror.ErrForbidden
	}

	if err := s.repo.MarkDisputed(ctx, orderID, in.Reason, in.Details, s.now()); err != nil {
		return nil, mapOrderRepoErr(err)
	}

	order, err = s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderRepoErr(err)
	}

	s.notify(order.SellerID, "dispute.opened", orderEventPayload(order))
	return order, nil
}

// AddDisputeEvidence прикладывает доказательство к открытому спору.
func (s *OrderService) AddDisputeEvidence(ctx context.Context, orderID, uploaderID uuid.UUID, role, evidenceType, content string) (*models.DisputeEvidence, error) {
	if _, ok := models.ValidEvidenceTypes[evidenceType]; !ok {
		return nil, apperror.New(apperror.ErrCodeValidation, "недопустимый тип доказательства")
	}
	if evidenceType == models.EvidenceTypeLink {
		if err := validation.ValidateEvidenceLink(content); err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
		}
	} else if err := validation.ValidateEvidenceContent(content); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderRepoErr(err)
	}
	if !isOrderParty(order, uploaderID) && role != models.RoleAdmin {
		return nil, apperror.ErrForbidden
	}
	if order.Status != models.OrderStatusDisputed {
		return nil, apperror.ErrInvalidTransition
	}

	evidence := &models.DisputeEvidence{
		OrderID:    orderID,
		UploaderID: uploaderID,
		Type:       evidenceType,
		Content:    content,
	}
	if err := s.repo.AddEvidence(ctx, evidence); err != nil {
		return nil, err
	}
	return evidence, nil
}

// GetDispute возвращает агрегированные данные спора по заказу.
func (s *OrderService) GetDispute(ctx context.Context, orderID, userID uuid.UUID, role string) (*models.DisputeView, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderRepoErr(err)
	}
	if !isOrderParty(order, userID) && role != models.RoleAdmin {
		return nil, apperror.ErrForbidden
	}
	if order.Status != models.OrderStatusDisputed && order.Status != models.OrderStatusDisputeResolved {
		return nil, apperror.ErrDisputeNotFound
	}

	evidence, err := s.repo.ListEvidence(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if evidence == nil {
		evidence = []models.DisputeEvidence{}
	}

	view := &models.DisputeView{
		OrderID:    order.ID,
		Status:     order.Status,
		Reason:     order.DisputeReason,
		Details:    order.DisputeDetails,
		Decision:   order.AdminDecision,
		AdminNotes: order.AdminNotes,
		DisputedAt: order.DisputedAt,
		Evidence:   evidence,
	}
	if order.Status == models.OrderStatusDisputeResolved {
		view.ResolvedAt = order.CompletedAt
	}
	return view, nil
}

// ResolveDispute закрывает спор решением администратора.
// Средства двигаются ровно один раз; повторный вызов получает
// ошибку недопустимого перехода.
func (s *OrderService) ResolveDispute(ctx context.Context, orderID uuid.UUID, decision, notes string) (*models.Order, error) {
	if _, ok := models.ValidDisputeDecisions[decision]; !ok {
		return nil, apperror.New(apperror.ErrCodeValidation, "недопустимое решение по спору")
	}
	if err := validation.ValidateLength("комментарий администратора", notes, 0, validation.MaxAdminNotesLength); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	order, err := s.repo.ResolveWithSettlement(ctx, orderID, decision, notes, s.now())
	if err != nil {
		return nil, mapOrderRepoErr(err)
	}

	payload := orderEventPayload(order)
	s.notify(order.BuyerID, "dispute.resolved", payload)
	s.notify(order.SellerID, "dispute.resolved", payload)
	return order, nil
}

// UpdateRequirements меняет требования покупателем до начала работы.
func (s *OrderService) UpdateRequirements(ctx context.Context, orderID, buyerID uuid.UUID, requirements string) (*models.Order, error) {
	if err := validation.ValidateRequirements(requirements); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderRepoErr(err)
	}
	if order.BuyerID != buyerID {
		return nil, apperror.ErrForbidden
	}

	if err := s.repo.UpdateRequirements(ctx, orderID, requirements); err != nil {
		return nil, mapOrderRepoErr(err)
	}

	order, err = s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderRepoErr(err)
	}
	return order, nil
}

// AddMessage добавляет сообщение в переписку по заказу.
// Переписка доступна участникам и администратору, пока заказ не закрыт.
func (s *OrderService) AddMessage(ctx context.Context, orderID, senderID uuid.UUID, role, text string, files []string) (*models.OrderMessage, error) {
	if err := validation.ValidateMessageContent(text); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderRepoErr(err)
	}

	senderRole := models.RoleAdmin
	switch {
	case order.BuyerID == senderID:
		senderRole = models.RoleBuyer
	case order.SellerID == senderID:
		senderRole = models.RoleSeller
	default:
		if role != models.RoleAdmin {
			return nil, apperror.ErrForbidden
		}
	}

	if models.IsTerminalStatus(order.Status) {
		return nil, apperror.ErrInvalidTransition
	}

	message := &models.OrderMessage{
		OrderID:    orderID,
		SenderID:   senderID,
		SenderRole: senderRole,
		Message:    text,
		Files:      files,
	}
	if err := s.repo.AddMessage(ctx, message); err != nil {
		return nil, err
	}

	if senderRole == models.RoleBuyer {
		s.notify(order.SellerID, "order.message", messageEventPayload(message))
	} else if senderRole == models.RoleSeller {
		s.notify(order.BuyerID, "order.message", messageEventPayload(message))
	}
	return message, nil
}

// ListMessages возвращает переписку заказа.
func (s *OrderService) ListMessages(ctx context.Context, orderID, userID uuid.UUID, role string) ([]models.OrderMessage, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderRepoErr(err)
	}
	if !isOrderParty(order, userID) && role != models.RoleAdmin {
		return nil, apperror.ErrForbidden
	}
	return s.repo.ListMessages(ctx, orderID)
}

// ListMyOrders возвращает заказы пользователя как покупателя и как продавца.
func (s *OrderService) ListMyOrders(ctx context.Context, userID uuid.UUID) ([]models.Order, []models.Order, error) {
	asBuyer, err := s.repo.ListByBuyer(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	asSeller, err := s.repo.ListBySeller(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return asBuyer, asSeller, nil
}

// ListByStatus возвращает заказы в указанном статусе.
func (s *OrderService) ListByStatus(ctx context.Context, status string, limit, offset int) ([]models.Order, error) {
	if _, ok := models.ValidOrderStatuses[status]; !ok {
		return nil, apperror.New(apperror.ErrCodeValidation, "недопустимый статус заказа")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByStatus(ctx, status, limit, offset)
}

// ListAll возвращает все заказы для административного обзора.
func (s *OrderService) ListAll(ctx context.Context, limit, offset int) ([]models.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListAll(ctx, limit, offset)
}

// ListDisputed возвращает заказы с открытыми спорами.
func (s *OrderService) ListDisputed(ctx context.Context, limit, offset int) ([]models.Order, error) {
	return s.ListByStatus(ctx, models.OrderStatusDisputed, limit, offset)
}

// CancelExpiredAcceptances отменяет заказы с истёкшим окном принятия.
// Возвращает число обработанных заказов. Гонка с принятием решается
// атомарной проверкой статуса: проигравшая сторона получает no-op.
func (s *OrderService) CancelExpiredAcceptances(ctx context.Context) (int, error) {
	orders, err := s.repo.ListExpiredAcceptance(ctx, s.now(), sweepBatchSize)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, order := range orders {
		if _, err := s.cancelExpiredAcceptance(ctx, order.ID); err != nil {
			if isBenignSweepErr(err) {
				continue
			}
			if logger.Log != nil {
				logger.Log.WithFields(map[string]interface{}{
					"order_id": order.ID,
					"error":    err.Error(),
				}).Error("order service: не удалось отменить просроченный заказ")
			}
			continue
		}
		cancelled++
	}
	return cancelled, nil
}

// AutoReleaseExpiredReviews выплачивает продавцам по заказам,
// не проверенным покупателем в срок. При выключенной автовыплате no-op.
func (s *OrderService) AutoReleaseExpiredReviews(ctx context.Context) (int, error) {
	if !s.autoRelease {
		return 0, nil
	}

	orders, err := s.repo.ListExpiredReview(ctx, s.now(), sweepBatchSize)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, order := range orders {
		completed, err := s.repo.CompleteWithRelease(ctx, order.ID, s.now())
		if err != nil {
			if isBenignSweepErr(err) {
				continue
			}
			if logger.Log != nil {
				logger.Log.WithFields(map[string]interface{}{
					"order_id": order.ID,
					"error":    err.Error(),
				}).Error("order service: не удалось автоматически завершить заказ")
			}
			continue
		}
		released++
		s.notify(completed.SellerID, "order.completed", orderEventPayload(completed))
		s.notify(completed.BuyerID, "order.completed", orderEventPayload(completed))
	}
	return released, nil
}

// applyExpiry лениво обрабатывает просроченные дедлайны при чтении.
func (s *OrderService) applyExpiry(ctx context.Context, order *models.Order) (*models.Order, error) {
	now := s.now()

	if order.Status == models.OrderStatusAwaitingAcceptance &&
		order.AcceptanceDeadline != nil && now.After(*order.AcceptanceDeadline) {
		cancelled, err := s.cancelExpiredAcceptance(ctx, order.ID)
		if err != nil {
			if isBenignSweepErr(err) {
				return s.repo.GetByID(ctx, order.ID)
			}
			return nil, err
		}
		return cancelled, nil
	}

	if s.autoRelease && order.Status == models.OrderStatusDelivered &&
		order.ReviewDeadline != nil && now.After(*order.ReviewDeadline) {
		completed, err := s.repo.CompleteWithRelease(ctx, order.ID, now)
		if err != nil {
			if isBenignSweepErr(err) {
				return s.repo.GetByID(ctx, order.ID)
			}
			return nil, mapOrderRepoErr(err)
		}
		s.notify(completed.SellerID, "order.completed", orderEventPayload(completed))
		return completed, nil
	}

	return order, nil
}

// cancelExpiredAcceptance отменяет непринятый в срок заказ с возвратом средств.
func (s *OrderService) cancelExpiredAcceptance(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.CancelWithRefund(ctx, orderID,
		[]string{models.OrderStatusAwaitingAcceptance},
		"Возврат средств: заказ не принят в срок")
	if err != nil {
		return nil, err
	}
	s.notify(order.BuyerID, "order.cancelled", orderEventPayload(order))
	return order, nil
}

// notify отправляет событие пользователю и во внешние системы.
func (s *OrderService) notify(userID uuid.UUID, event string, data map[string]interface{}) {
	if s.hub != nil {
		if err := s.hub.BroadcastToUser(userID, event, data); err != nil && logger.Log != nil {
			logger.Log.WithFields(map[string]interface{}{
				"user_id": userID,
				"event":   event,
				"error":   err.Error(),
			}).Warn("order service: не удалось отправить ws уведомление")
		}
	}
	if s.webhooks != nil {
		s.webhooks.Notify(event, data)
	}
}

func isOrderParty(order *models.Order, userID uuid.UUID) bool {
	return order.BuyerID == userID || order.SellerID == userID
}

func otherParty(order *models.Order, userID uuid.UUID) uuid.UUID {
	if order.BuyerID == userID {
		return order.SellerID
	}
	return order.BuyerID
}

func orderEventPayload(order *models.Order) map[string]interface{} {
	return map[string]interface{}{
		"order_id": order.ID,
		"status":   order.Status,
	}
}

func messageEventPayload(message *models.OrderMessage) map[string]interface{} {
	return map[string]interface{}{
		"order_id":   message.OrderID,
		"message_id": message.ID,
		"sender_id":  message.SenderID,
	}
}

// isBenignSweepErr отличает проигранную гонку от настоящей ошибки:
// заказ уже покинул ожидаемый статус или был удалён.
func isBenignSweepErr(err error) bool {
	return errors.Is(err, repository.ErrStatusConflict) || errors.Is(err, repository.ErrOrderNotFound)
}

func mapOrderRepoErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		return apperror.ErrOrderNotFound
	case errors.Is(err, repository.ErrStatusConflict):
		return apperror.ErrInvalidTransition
	case errors.Is(err, repository.ErrInsufficientFunds):
		return apperror.ErrInsufficientFunds
	}
	return fmt.Errorf("order service: %w", err)
}
