package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
)

type mockOrderRepo struct {
	mock.Mock
}

func (m *mockOrderRepo) Create(ctx context.Context, order *models.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *mockOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockOrderRepo) Accept(ctx context.Context, id uuid.UUID, acceptedAt time.Time) error {
	args := m.Called(ctx, id, acceptedAt)
	return args.Error(0)
}

func (m *mockOrderRepo) StartProgress(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockOrderRepo) SubmitDelivery(ctx context.Context, id uuid.UUID, deliverable models.Deliverable, deliveredAt, reviewDeadline time.Time) error {
	args := m.Called(ctx, id, deliverable, deliveredAt, reviewDeadline)
	return args.Error(0)
}

func (m *mockOrderRepo) UpdateDeliverable(ctx context.Context, id uuid.UUID, deliverable models.Deliverable, submittedAt time.Time) error {
	args := m.Called(ctx, id, deliverable, submittedAt)
	return args.Error(0)
}

func (m *mockOrderRepo) MarkDisputed(ctx context.Context, id uuid.UUID, reason, details string, disputedAt time.Time) error {
	args := m.Called(ctx, id, reason, details, disputedAt)
	return args.Error(0)
}

func (m *mockOrderRepo) UpdateRequirements(ctx context.Context, id uuid.UUID, requirements string) error {
	args := m.Called(ctx, id, requirements)
	return args.Error(0)
}

func (m *mockOrderRepo) CancelWithRefund(ctx context.Context, id uuid.UUID, fromStatuses []string, description string) (*models.Order, error) {
	args := m.Called(ctx, id, fromStatuses, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockOrderRepo) CompleteWithRelease(ctx context.Context, id uuid.UUID, completedAt time.Time) (*models.Order, error) {
	args := m.Called(ctx, id, completedAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockOrderRepo) ResolveWithSettlement(ctx context.Context, id uuid.UUID, decision, notes string, resolvedAt time.Time) (*models.Order, error) {
	args := m.Called(ctx, id, decision, notes, resolvedAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockOrderRepo) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Order, error) {
	args := m.Called(ctx, buyerID)
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *mockOrderRepo) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.Order, error) {
	args := m.Called(ctx, sellerID)
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *mockOrderRepo) ListByStatus(ctx context.Context, status string, limit, offset int) ([]models.Order, error) {
	args := m.Called(ctx, status, limit, offset)
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *mockOrderRepo) ListAll(ctx context.Context, limit, offset int) ([]models.Order, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *mockOrderRepo) ListExpiredAcceptance(ctx context.Context, now time.Time, limit int) ([]models.Order, error) {
	args := m.Called(ctx, now, limit)
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *mockOrderRepo) ListExpiredReview(ctx context.Context, now time.Time, limit int) ([]models.Order, error) {
	args := m.Called(ctx, now, limit)
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *mockOrderRepo) AddMessage(ctx context.Context, message *models.OrderMessage) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *mockOrderRepo) ListMessages(ctx context.Context, orderID uuid.UUID) ([]models.OrderMessage, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).([]models.OrderMessage), args.Error(1)
}

func (m *mockOrderRepo) AddEvidence(ctx context.Context, evidence *models.DisputeEvidence) error {
	args := m.Called(ctx, evidence)
	return args.Error(0)
}

func (m *mockOrderRepo) ListEvidence(ctx context.Context, orderID uuid.UUID) ([]models.DisputeEvidence, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).([]models.DisputeEvidence), args.Error(1)
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestOrderService(repo *mockOrderRepo) *OrderService {
	svc := NewOrderService(repo, 24*time.Hour, 72*time.Hour, true)
	svc.now = func() time.Time { return testNow }
	return svc
}

func awaitingOrder(buyerID, sellerID uuid.UUID, deadline time.Time) *models.Order {
	return &models.Order{
		ID:                 uuid.New(),
		BuyerID:            buyerID,
		SellerID:           sellerID,
		ServiceName:        "Дизайн логотипа",
		Tier:               models.TierStandard,
		Price:              5000,
		DeliveryTime:       7,
		Status:             models.OrderStatusAwaitingAcceptance,
		AcceptanceDeadline: &deadline,
	}
}

func TestOrderService_CreateOrder_Success(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	buyerID, sellerID := uuid.New(), uuid.New()

	repo.On("Create", ctx, mock.AnythingOfType("*models.Order")).Run(func(args mock.Arguments) {
		order := args.Get(1).(*models.Order)
		order.ID = uuid.New()
	}).Return(nil)

	order, err := svc.CreateOrder(ctx, CreateOrderInput{
		BuyerID:      buyerID,
		SellerID:     sellerID,
		ServiceName:  "Дизайн логотипа",
		Tier:         models.TierStandard,
		Price:        5000,
		DeliveryTime: 7,
		Requirements: "Логотип в векторе",
	})
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusAwaitingAcceptance, order.Status)
	assert.NotNil(t, order.AcceptanceDeadline)
	assert.Equal(t, testNow.Add(24*time.Hour), *order.AcceptanceDeadline)
	repo.AssertExpectations(t)
}

func TestOrderService_CreateOrder_InsufficientFunds(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()

	repo.On("Create", ctx, mock.AnythingOfType("*models.Order")).Return(repository.ErrInsufficientFunds)

	_, err := svc.CreateOrder(ctx, CreateOrderInput{
		BuyerID:      uuid.New(),
		SellerID:     uuid.New(),
		ServiceName:  "Дизайн логотипа",
		Tier:         models.TierBasic,
		Price:        5000,
		DeliveryTime: 7,
	})
	assert.ErrorIs(t, err, apperror.ErrInsufficientFunds)
}

func TestOrderService_CreateOrder_BuyerIsSeller(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	userID := uuid.New()

	_, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		BuyerID:      userID,
		SellerID:     userID,
		ServiceName:  "Дизайн логотипа",
		Tier:         models.TierBasic,
		Price:        100,
		DeliveryTime: 1,
	})
	assert.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestOrderService_CreateOrder_InvalidInput(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	base := CreateOrderInput{
		BuyerID:      uuid.New(),
		SellerID:     uuid.New(),
		ServiceName:  "Дизайн логотипа",
		Tier:         models.TierBasic,
		Price:        100,
		DeliveryTime: 1,
	}

	in := base
	in.Tier = "vip"
	_, err := svc.CreateOrder(ctx, in)
	assert.True(t, apperror.IsValidation(err))

	in = base
	in.Price = 0
	_, err = svc.CreateOrder(ctx, in)
	assert.True(t, apperror.IsValidation(err))

	in = base
	in.DeliveryTime = 0
	_, err = svc.CreateOrder(ctx, in)
	assert.True(t, apperror.IsValidation(err))

	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestOrderService_AcceptOrder_Success(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	buyerID, sellerID := uuid.New(), uuid.New()
	order := awaitingOrder(buyerID, sellerID, testNow.Add(time.Hour))

	accepted := *order
	accepted.Status = models.OrderStatusPending
	accepted.AcceptanceDeadline = nil

	repo.On("GetByID", ctx, order.ID).Return(order, nil).Once()
	repo.On("Accept", ctx, order.ID, testNow).Return(nil)
	repo.On("GetByID", ctx, order.ID).Return(&accepted, nil).Once()

	result, err := svc.AcceptOrder(ctx, order.ID, sellerID)
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, result.Status)
	repo.AssertExpectations(t)
}

func TestOrderService_AcceptOrder_AtDeadline(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	buyerID, sellerID := uuid.New(), uuid.New()
	// Дедлайн ровно в текущий момент: принятие ещё допустимо
	order := awaitingOrder(buyerID, sellerID, testNow)

	accepted := *order
	accepted.Status = models.OrderStatusPending

	repo.On("GetByID", ctx, order.ID).Return(order, nil).Once()
	repo.On("Accept", ctx, order.ID, testNow).Return(nil)
	repo.On("GetByID", ctx, order.ID).Return(&accepted, nil).Once()

	_, err := svc.AcceptOrder(ctx, order.ID, sellerID)
	assert.NoError(t, err)
	repo.AssertNotCalled(t, "CancelWithRefund", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderService_AcceptOrder_AfterDeadline(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	buyerID, sellerID := uuid.New(), uuid.New()
	order := awaitingOrder(buyerID, sellerID, testNow.Add(-time.Millisecond))

	cancelled := *order
	cancelled.Status = models.OrderStatusCancelled

	repo.On("GetByID", ctx, order.ID).Return(order, nil)
	repo.On("CancelWithRefund", ctx, order.ID,
		[]string{models.OrderStatusAwaitingAcceptance},
		"Возврат средств: заказ не принят в срок").Return(&cancelled, nil)

	_, err := svc.AcceptOrder(ctx, order.ID, sellerID)
	assert.ErrorIs(t, err, apperror.ErrDeadlineExpired)
	repo.AssertNotCalled(t, "Accept", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestOrderService_AcceptOrder_WrongSeller(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	order := awaitingOrder(uuid.New(), uuid.New(), testNow.Add(time.Hour))

	repo.On("GetByID", ctx, order.ID).Return(order, nil)

	_, err := svc.AcceptOrder(ctx, order.ID, uuid.New())
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestOrderService_AcceptOrder_WrongStatus(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	order := awaitingOrder(uuid.New(), uuid.New(), testNow.Add(time.Hour))
	order.Status = models.OrderStatusCompleted

	repo.On("GetByID", ctx, order.ID).Return(order, nil)

	_, err := svc.AcceptOrder(ctx, order.ID, order.SellerID)
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
}

func TestOrderService_DeclineOrder_Success(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	order := awaitingOrder(uuid.New(), uuid.New(), testNow.Add(time.Hour))

	cancelled := *order
	cancelled.Status = models.OrderStatusCancelled

	repo.On("GetByID", ctx, order.ID).Return(order, nil)
	repo.On("CancelWithRefund", ctx, order.ID,
		[]string{models.OrderStatusAwaitingAcceptance},
		"Возврат средств: продавец отклонил заказ").Return(&cancelled, nil)

	result, err := svc.DeclineOrder(ctx, order.ID, order.SellerID)
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, result.Status)
}

func TestOrderService_CancelOrder_Success(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	order := awaitingOrder(uuid.New(), uuid.New(), testNow.Add(time.Hour))
	order.Status = models.OrderStatusPending

	cancelled := *order
	cancelled.Status = models.OrderStatusCancelled

	repo.On("GetByID", ctx, order.ID).Return(order, nil)
	repo.On("CancelWithRefund", ctx, order.ID,
		[]string{models.OrderStatusAwaitingAcceptance, models.OrderStatusPending},
		"Возврат средств: заказ отменён").Return(&cancelled, nil)

	result, err := svc.CancelOrder(ctx, order.ID, order.BuyerID)
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, result.Status)
}

func TestOrderService_CancelOrder_Forbidden(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	order := awaitingOrder(uuid.New(), uuid.New(), testNow.Add(time.Hour))

	repo.On("GetByID", ctx, order.ID).Return(order, nil)

	_, err := svc.CancelOrder(ctx, order.ID, uuid.New())
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	repo.AssertNotCalled(t, "CancelWithRefund", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderService_CancelOrder_InProgress(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	order := awaitingOrder(uuid.New(), uuid.New(), testNow.Add(time.Hour))
	order.Status = models.OrderStatusInProgress

	repo.On("GetByID", ctx, order.ID).Return(order, nil)
	repo.On("CancelWithRefund", ctx, order.ID, mock.Anything, mock.Anything).Return(nil, repository.ErrStatusConflict)

	_, err := svc.CancelOrder(ctx, order.ID, order.BuyerID)
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
}

func TestOrderService_StartProgress_Success(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	order := awaitingOrder(uuid.New(), uuid.New(), testNow.Add(time.Hour))
	order.Status = models.OrderStatusPending

	started := *order
	started.Status = models.OrderStatusInProgress

	repo.On("GetByID", ctx, order.ID).Return(order, nil).Once()
	repo.On("StartProgress", ctx, order.ID).Return(nil)
	repo.On("GetByID", ctx, order.ID).Return(&started, nil).Once()

	result, err := svc.StartProgress(ctx, order.ID, order.SellerID)
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusInProgress, result.Status)
}

func TestOrderService_SubmitDelivery_Success(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	order := awaitingOrder(uuid.New(), uuid.New(), testNow.Add(time.Hour))
	order.Status = models.OrderStatusInProgress

	delivered := *order
	delivered.Status = models.OrderStatusDelivered

	deliverable := models.Deliverable{Files: []string{"result.zip"}, Message: "Готово"}
	repo.On("GetByID", ctx, order.ID).Return(order, nil).Once()
	repo.On("SubmitDelivery", ctx, order.ID, deliverable, testNow, testNow.Add(72*time.Hour)).Return(nil)
	repo.On("GetByID", ctx, order.ID).Return(&delivered, nil).Once()

	result, err := svc.SubmitDelivery(ctx, order.ID, order.SellerID, DeliveryInput{
		Files:   []string{"result.zip"},
		Message: "Готово",
	})
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, result.Status)
	repo.AssertExpectations(t)
}

func TestOrderService_SubmitDelivery_Resubmission(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	order := awaitingOrder(uuid.New(), uuid.New(), testNow.Add(time.Hour))
	order.Status = models.OrderStatusDelivered

	deliverable := models.Deliverable{Files: []string{"v2.zip"}, Message: "Исправленная версия"}
	repo.On("GetByID", ctx, order.ID).Return(order, nil)
	repo.On("UpdateDeliverable", ctx, order.ID, deliverable, testNow).Return(nil)

	_, err := svc.SubmitDelivery(ctx, order.ID, order.SellerID, DeliveryInput{
		Files:   []string{"v2.zip"},
		Message: "Исправленная версия",
	})
	assert.NoError(t, err)
	repo.AssertNotCalled(t, "SubmitDelivery", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderService_SubmitDelivery_WrongStatus(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	order := awaitingOrder(uuid.New(), uuid.New(), testNow.Add(time.Hour))

	repo.On("GetByID", ctx, order.ID).Return(order, nil)

	_, err := svc.SubmitDelivery(ctx, order.ID, order.SellerID, DeliveryInput{Message: "Готово"})
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
}

func TestOrderService_ReleasePayment_Success(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	order := awaitingOrder(uuid.New(), uuid.New(), testNow.Add(time.Hour))
	order.Status = models.OrderStatusDelivered

	completed := *order
	completed.Status = models.OrderStatusCompleted

	repo.On("GetByID", ctx, order.ID).Return(order, nil)
	repo.On("CompleteWithRelease", ctx, order.ID, testNow).Return(&completed, nil)

	result, err := svc.ReleasePayment(ctx, order.ID, order.BuyerID)
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, result.Status)
}

func TestOrderService_ReleasePayment_Twice(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	order := awaitingOrder(uuid.New(), uuid.New(), testNow.Add(time.Hour))
	order.Status = models.OrderStatusDelivered

	completed := *order
	completed.Status = models.OrderStatusCompleted

	repo.On("GetByID", ctx, order.ID).Return(order, nil)
	repo.On("CompleteWithRelease", ctx, order.ID, testNow).Return(&completed, nil).Once()
	repo.On("CompleteWithRelease", ctx, order.ID, testNow).Return(nil, repository.ErrStatusConflict).Once()

	_, err := svc.ReleasePayment(ctx, order.ID, order.BuyerID)
	assert.NoError(t, err)

	// Повторная выплата невозможна: средства двигаются ровно один раз
	_, err = svc.ReleasePayment(ctx, order.ID, order.BuyerID)
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
}

func TestOrderService_ReleasePayment_NotBuyer(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	order := awaitingOrder(uuid.New(), uuid.New(), testNow.Add(time.Hour))
	order.Status = models.OrderStatusDelivered

	repo.On("GetByID", ctx, order.ID).Return(order, nil)

	_, err := svc.ReleasePayment(ctx, order.ID, order.SellerID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestOrderService_OpenDispute_Success(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	order := awaitingOrder(uuid.New(), uuid.New(), testNow.Add(time.Hour))
	order.Status = models.OrderStatusDelivered

	disputed := *order
	disputed.Status = models.OrderStatusDisputed

	repo.On("GetByID", ctx, order.ID).Return(order, nil).Once()
	repo.On("MarkDisputed", ctx, order.ID, models.DisputeReasonWorkQuality, "Результат не соответствует требованиям", testNow).Return(nil)
	repo.On("GetByID", ctx, order.ID).Return(&disputed, nil).Once()

	result, err := svc.OpenDispute(ctx, order.ID, order.BuyerID, DisputeInput{
		Reason:  models.DisputeReasonWorkQuality,
		Details: "Результат не соответствует требованиям",
	})
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusDisputed, result.Status)
}

func TestOrderService_OpenDispute_InvalidReason(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)

	_, err := svc.OpenDispute(context.Background(), uuid.New(), uuid.New(), DisputeInput{Reason: "mood"})
	assert.True(t, apperror.IsValidation(err))
	repo.AssertNotCalled(t, "MarkDisputed", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderService_OpenDispute_NotBuyer(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	order := awaitingOrder(uuid.New(), uuid.New(), testNow.Add(time.Hour))
	order.Status = models.OrderStatusDelivered

	repo.On("GetByID", ctx, order.ID).Return(order, nil)

	_, err := svc.OpenDispute(ctx, order.ID, order.SellerID, DisputeInput{Reason: models.DisputeReasonOther})
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestOrderService_AddDisputeEvidence_Success(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	order := awaitingOrder(uuid.New(), uuid.New(), testNow.Add(time.Hour))
	order.Status = models.OrderStatusDisputed

	repo.On("GetByID", ctx, order.ID).Return(order, nil)
	repo.On("AddEvidence", ctx, mock.AnythingOfType("*models.DisputeEvidence")).Return(nil)

	evidence, err := svc.AddDisputeEvidence(ctx, order.ID, order.SellerID, "user", models.EvidenceTypeText, "Переписка с согласованием макета")
	assert.NoError(t, err)
	assert.Equal(t, models.EvidenceTypeText, evidence.Type)
}

func TestOrderService_AddDisputeEvidence_NotDisputed(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	order := awaitingOrder(uuid.New(), uuid.New(), testNow.Add(time.Hour))
	order.Status = models.OrderStatusDelivered

	repo.On("GetByID", ctx, order.ID).Return(order, nil)

	_, err := svc.AddDisputeEvidence(ctx, order.ID, order.BuyerID, "user", models.EvidenceTypeText, "Текст")
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
}

func TestOrderService_AddDisputeEvidence_InvalidLink(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)

	_, err := svc.AddDisputeEvidence(context.Background(), uuid.New(), uuid.New(), "user", models.EvidenceTypeLink, "ftp://example.com")
	assert.True(t, apperror.IsValidation(err))
}

func TestOrderService_GetDispute(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	order := awaitingOrder(uuid.New(), uuid.New(), testNow.Add(time.Hour))
	order.Status = models.OrderStatusDisputed
	reason := models.DisputeReasonWorkQuality
	order.DisputeReason = &reason

	repo.On("GetByID", ctx, order.ID).Return(order, nil)
	repo.On("ListEvidence", ctx, order.ID).Return([]models.DisputeEvidence{{ID: uuid.New()}}, nil)

	view, err := svc.GetDispute(ctx, order.ID, order.BuyerID, "user")
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusDisputed, view.Status)
	assert.Len(t, view.Evidence, 1)
}

func TestOrderService_GetDispute_NoDispute(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	order := awaitingOrder(uuid.New(), uuid.New(), testNow.Add(time.Hour))
	order.Status = models.OrderStatusInProgress

	repo.On("GetByID", ctx, order.ID).Return(order, nil)

	_, err := svc.GetDispute(ctx, order.ID, order.BuyerID, "user")
	assert.ErrorIs(t, err, apperror.ErrDisputeNotFound)
}

func TestOrderService_ResolveDispute_RefundBuyer(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	order := awaitingOrder(uuid.New(), uuid.New(), testNow.Add(time.Hour))
	order.Status = models.OrderStatusDisputeResolved
	decision := models.DisputeDecisionRefundBuyer
	order.AdminDecision = &decision

	repo.On("ResolveWithSettlement", ctx, order.ID, models.DisputeDecisionRefundBuyer, "Работа не выполнена", testNow).Return(order, nil)

	result, err := svc.ResolveDispute(ctx, order.ID, models.DisputeDecisionRefundBuyer, "Работа не выполнена")
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusDisputeResolved, result.Status)
}

func TestOrderService_ResolveDispute_InvalidDecision(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)

	_, err := svc.ResolveDispute(context.Background(), uuid.New(), "split_50_50", "")
	assert.True(t, apperror.IsValidation(err))
	repo.AssertNotCalled(t, "ResolveWithSettlement", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderService_ResolveDispute_Twice(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	orderID := uuid.New()

	repo.On("ResolveWithSettlement", ctx, orderID, models.DisputeDecisionPaySeller, "", testNow).Return(nil, repository.ErrStatusConflict)

	_, err := svc.ResolveDispute(ctx, orderID, models.DisputeDecisionPaySeller, "")
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
}

func TestOrderService_UpdateRequirements_AfterStart(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	order := awaitingOrder(uuid.New(), uuid.New(), testNow.Add(time.Hour))
	order.Status = models.OrderStatusInProgress

	repo.On("GetByID", ctx, order.ID).Return(order, nil)
	repo.On("UpdateRequirements", ctx, order.ID, "Новые требования").Return(repository.ErrStatusConflict)

	_, err := svc.UpdateRequirements(ctx, order.ID, order.BuyerID, "Новые требования")
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
}

func TestOrderService_AddMessage_Success(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	order := awaitingOrder(uuid.New(), uuid.New(), testNow.Add(time.Hour))
	order.Status = models.OrderStatusInProgress

	repo.On("GetByID", ctx, order.ID).Return(order, nil)
	repo.On("AddMessage", ctx, mock.AnythingOfType("*models.OrderMessage")).Return(nil)

	message, err := svc.AddMessage(ctx, order.ID, order.BuyerID, "user", "Когда будет готово?", nil)
	assert.NoError(t, err)
	assert.Equal(t, models.RoleBuyer, message.SenderRole)
}

func TestOrderService_AddMessage_TerminalStatus(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	order := awaitingOrder(uuid.New(), uuid.New(), testNow.Add(time.Hour))
	order.Status = models.OrderStatusCompleted

	repo.On("GetByID", ctx, order.ID).Return(order, nil)

	_, err := svc.AddMessage(ctx, order.ID, order.BuyerID, "user", "Спасибо", nil)
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
}

func TestOrderService_AddMessage_Stranger(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	order := awaitingOrder(uuid.New(), uuid.New(), testNow.Add(time.Hour))
	order.Status = models.OrderStatusInProgress

	repo.On("GetByID", ctx, order.ID).Return(order, nil)

	_, err := svc.AddMessage(ctx, order.ID, uuid.New(), "user", "Привет", nil)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestOrderService_GetOrder_LazyExpiry(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	order := awaitingOrder(uuid.New(), uuid.New(), testNow.Add(-time.Minute))

	cancelled := *order
	cancelled.Status = models.OrderStatusCancelled

	repo.On("GetByID", ctx, order.ID).Return(order, nil)
	repo.On("CancelWithRefund", ctx, order.ID,
		[]string{models.OrderStatusAwaitingAcceptance},
		"Возврат средств: заказ не принят в срок").Return(&cancelled, nil)

	result, err := svc.GetOrder(ctx, order.ID, order.BuyerID, "user")
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, result.Status)
}

func TestOrderService_GetOrder_LazyAutoRelease(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	order := awaitingOrder(uuid.New(), uuid.New(), testNow.Add(time.Hour))
	order.Status = models.OrderStatusDelivered
	reviewDeadline := testNow.Add(-time.Minute)
	order.ReviewDeadline = &reviewDeadline
	order.AcceptanceDeadline = nil

	completed := *order
	completed.Status = models.OrderStatusCompleted

	repo.On("GetByID", ctx, order.ID).Return(order, nil)
	repo.On("CompleteWithRelease", ctx, order.ID, testNow).Return(&completed, nil)

	result, err := svc.GetOrder(ctx, order.ID, order.BuyerID, "user")
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, result.Status)
}

func TestOrderService_GetOrder_Forbidden(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	order := awaitingOrder(uuid.New(), uuid.New(), testNow.Add(time.Hour))

	repo.On("GetByID", ctx, order.ID).Return(order, nil)

	_, err := svc.GetOrder(ctx, order.ID, uuid.New(), "user")
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestOrderService_GetOrder_AdminAccess(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	order := awaitingOrder(uuid.New(), uuid.New(), testNow.Add(time.Hour))

	repo.On("GetByID", ctx, order.ID).Return(order, nil)

	result, err := svc.GetOrder(ctx, order.ID, uuid.New(), models.RoleAdmin)
	assert.NoError(t, err)
	assert.Equal(t, order.ID, result.ID)
}

func TestOrderService_CancelExpiredAcceptances(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()

	first := awaitingOrder(uuid.New(), uuid.New(), testNow.Add(-time.Hour))
	second := awaitingOrder(uuid.New(), uuid.New(), testNow.Add(-time.Hour))

	cancelled := *first
	cancelled.Status = models.OrderStatusCancelled

	repo.On("ListExpiredAcceptance", ctx, testNow, sweepBatchSize).Return([]models.Order{*first, *second}, nil)
	repo.On("CancelWithRefund", ctx, first.ID, mock.Anything, mock.Anything).Return(&cancelled, nil)
	// Второй заказ успели принять между выборкой и отменой: no-op
	repo.On("CancelWithRefund", ctx, second.ID, mock.Anything, mock.Anything).Return(nil, repository.ErrStatusConflict)

	count, err := svc.CancelExpiredAcceptances(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestOrderService_AutoReleaseExpiredReviews(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()

	order := awaitingOrder(uuid.New(), uuid.New(), testNow.Add(time.Hour))
	order.Status = models.OrderStatusDelivered

	completed := *order
	completed.Status = models.OrderStatusCompleted

	repo.On("ListExpiredReview", ctx, testNow, sweepBatchSize).Return([]models.Order{*order}, nil)
	repo.On("CompleteWithRelease", ctx, order.ID, testNow).Return(&completed, nil)

	count, err := svc.AutoReleaseExpiredReviews(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestOrderService_AutoReleaseExpiredReviews_Disabled(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := NewOrderService(repo, 24*time.Hour, 72*time.Hour, false)
	svc.now = func() time.Time { return testNow }

	count, err := svc.AutoReleaseExpiredReviews(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, count)
	repo.AssertNotCalled(t, "ListExpiredReview", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderService_ListMyOrders(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)
	ctx := context.Background()
	userID := uuid.New()

	repo.On("ListByBuyer", ctx, userID).Return([]models.Order{{ID: uuid.New()}}, nil)
	repo.On("ListBySeller", ctx, userID).Return([]models.Order{{ID: uuid.New()}, {ID: uuid.New()}}, nil)

	asBuyer, asSeller, err := svc.ListMyOrders(ctx, userID)
	assert.NoError(t, err)
	assert.Len(t, asBuyer, 1)
	assert.Len(t, asSeller, 2)
}

func TestOrderService_ListByStatus_InvalidStatus(t *testing.T) {
	repo := new(mockOrderRepo)
	svc := newTestOrderService(repo)

	_, err := svc.ListByStatus(context.Background(), "archived", 20, 0)
	assert.True(t, apperror.IsValidation(err))
	repo.AssertNotCalled(t, "ListByStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
