package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"

	"github.com/coachly/coachly/internal/auth"
	"github.com/coachly/coachly/internal/billing"
	"github.com/coachly/coachly/internal/domain"
	"github.com/coachly/coachly/internal/repository"
)

// =============================================================================
// Mock QuotaService
// =============================================================================

type mockQuotaService struct {
	CheckQuotaFunc           func(ctx context.Context, userID uuid.UUID, action domain.Action, tier *domain.SubscriptionTier) (*domain.QuotaEvaluation, error)
	ConsumeQuotaFunc         func(ctx context.Context, userID uuid.UUID, action domain.Action, tier *domain.SubscriptionTier) (*domain.QuotaConsumption, error)
	GetQuotaSnapshotFunc     func(ctx context.Context, userID uuid.UUID, tier *domain.SubscriptionTier) (*domain.QuotaSnapshot, error)
	NutritionAccessFunc      func(ctx context.Context, userID uuid.UUID, tier *domain.SubscriptionTier) (*domain.NutritionAccess, error)
	StartNutritionWindowFunc func(ctx context.Context, userID uuid.UUID, tier *domain.SubscriptionTier) (*domain.NutritionAccess, error)
}

func (m *mockQuotaService) EnsureLedger(ctx context.Context, userID uuid.UUID, tier *domain.SubscriptionTier) (*domain.QuotaLedger, error) {
	return nil, errors.New("EnsureLedger not implemented")
}

func (m *mockQuotaService) CheckQuota(ctx context.Context, userID uuid.UUID, action domain.Action, tier *domain.SubscriptionTier) (*domain.QuotaEvaluation, error) {
	if m.CheckQuotaFunc != nil {
		return m.CheckQuotaFunc(ctx, userID, action, tier)
	}
	return nil, errors.New("CheckQuotaFunc not implemented")
}

func (m *mockQuotaService) ConsumeQuota(ctx context.Context, userID uuid.UUID, action domain.Action, tier *domain.SubscriptionTier) (*domain.QuotaConsumption, error) {
	if m.ConsumeQuotaFunc != nil {
		return m.ConsumeQuotaFunc(ctx, userID, action, tier)
	}
	return nil, errors.New("ConsumeQuotaFunc not implemented")
}

func (m *mockQuotaService) ConsumeQuotaWith(ctx context.Context, q repository.Querier, userID uuid.UUID, action domain.Action, tier *domain.SubscriptionTier) (*domain.QuotaConsumption, error) {
	return m.ConsumeQuota(ctx, userID, action, tier)
}

func (m *mockQuotaService) GetQuotaSnapshot(ctx context.Context, userID uuid.UUID, tier *domain.SubscriptionTier) (*domain.QuotaSnapshot, error) {
	if m.GetQuotaSnapshotFunc != nil {
		return m.GetQuotaSnapshotFunc(ctx, userID, tier)
	}
	return nil, errors.New("GetQuotaSnapshotFunc not implemented")
}

func (m *mockQuotaService) NutritionAccess(ctx context.Context, userID uuid.UUID, tier *domain.SubscriptionTier) (*domain.NutritionAccess, error) {
	if m.NutritionAccessFunc != nil {
		return m.NutritionAccessFunc(ctx, userID, tier)
	}
	return nil, errors.New("NutritionAccessFunc not implemented")
}

func (m *mockQuotaService) StartNutritionWindow(ctx context.Context, userID uuid.UUID, tier *domain.SubscriptionTier) (*domain.NutritionAccess, error) {
	if m.StartNutritionWindowFunc != nil {
		return m.StartNutritionWindowFunc(ctx, userID, tier)
	}
	return nil, errors.New("StartNutritionWindowFunc not implemented")
}

// =============================================================================
// Mock ChatService
// =============================================================================

type mockChatService struct {
	ListConversationsFunc    func(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Conversation, error)
	ListMessagesFunc         func(ctx context.Context, userID, conversationID uuid.UUID, page domain.MessagePage) ([]domain.Message, error)
	UnreadCountFunc          func(ctx context.Context, userID uuid.UUID) (int64, error)
	MarkConversationReadFunc func(ctx context.Context, userID, conversationID uuid.UUID) (int64, error)
}

func (m *mockChatService) JoinConversation(ctx context.Context, userID, conversationID uuid.UUID) (*domain.Conversation, error) {
	return nil, errors.New("JoinConversation not implemented")
}

func (m *mockChatService) SendMessage(ctx context.Context, params domain.SendMessageParams) (*domain.SendResult, error) {
	return nil, errors.New("SendMessage not implemented")
}

func (m *mockChatService) MarkRead(ctx context.Context, userID, messageID uuid.UUID) (*domain.ReadReceipt, error) {
	return nil, errors.New("MarkRead not implemented")
}

func (m *mockChatService) ListConversations(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Conversation, error) {
	if m.ListConversationsFunc != nil {
		return m.ListConversationsFunc(ctx, userID, limit, offset)
	}
	return nil, errors.New("ListConversationsFunc not implemented")
}

func (m *mockChatService) ListMessages(ctx context.Context, userID, conversationID uuid.UUID, page domain.MessagePage) ([]domain.Message, error) {
	if m.ListMessagesFunc != nil {
		return m.ListMessagesFunc(ctx, userID, conversationID, page)
	}
	return nil, errors.New("ListMessagesFunc not implemented")
}

func (m *mockChatService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	if m.UnreadCountFunc != nil {
		return m.UnreadCountFunc(ctx, userID)
	}
	return 0, errors.New("UnreadCountFunc not implemented")
}

func (m *mockChatService) MarkConversationRead(ctx context.Context, userID, conversationID uuid.UUID) (int64, error) {
	if m.MarkConversationReadFunc != nil {
		return m.MarkConversationReadFunc(ctx, userID, conversationID)
	}
	return 0, errors.New("MarkConversationReadFunc not implemented")
}

// =============================================================================
// Mock MessageSender
// =============================================================================

type mockSender struct {
	SendMessageFunc func(ctx context.Context, params domain.SendMessageParams) (*domain.SendResult, error)
	MarkReadFunc    func(ctx context.Context, userID, messageID uuid.UUID) (*domain.ReadReceipt, error)
}

func (m *mockSender) SendMessage(ctx context.Context, params domain.SendMessageParams) (*domain.SendResult, error) {
	if m.SendMessageFunc != nil {
		return m.SendMessageFunc(ctx, params)
	}
	return nil, errors.New("SendMessageFunc not implemented")
}

func (m *mockSender) MarkRead(ctx context.Context, userID, messageID uuid.UUID) (*domain.ReadReceipt, error) {
	if m.MarkReadFunc != nil {
		return m.MarkReadFunc(ctx, userID, messageID)
	}
	return nil, errors.New("MarkReadFunc not implemented")
}

// =============================================================================
// Mock CallService
// =============================================================================

type mockCallService struct {
	BookCallFunc func(ctx context.Context, params domain.BookCallParams) (*domain.CallBooking, error)
}

func (m *mockCallService) BookCall(ctx context.Context, params domain.BookCallParams) (*domain.CallBooking, error) {
	if m.BookCallFunc != nil {
		return m.BookCallFunc(ctx, params)
	}
	return nil, errors.New("BookCallFunc not implemented")
}

// =============================================================================
// Mock SubscriptionService
// =============================================================================

type mockSubscriptionService struct {
	ApplyPlanForCustomerFunc func(ctx context.Context, customerID, planCode string) error
	LinkCustomerFunc         func(ctx context.Context, userID uuid.UUID, customerID string) error
}

func (m *mockSubscriptionService) GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return nil, errors.New("GetUser not implemented")
}

func (m *mockSubscriptionService) ApplyTier(ctx context.Context, userID uuid.UUID, tier domain.SubscriptionTier) error {
	return errors.New("ApplyTier not implemented")
}

func (m *mockSubscriptionService) ApplyPlanForCustomer(ctx context.Context, customerID, planCode string) error {
	if m.ApplyPlanForCustomerFunc != nil {
		return m.ApplyPlanForCustomerFunc(ctx, customerID, planCode)
	}
	return errors.New("ApplyPlanForCustomerFunc not implemented")
}

func (m *mockSubscriptionService) LinkCustomer(ctx context.Context, userID uuid.UUID, customerID string) error {
	if m.LinkCustomerFunc != nil {
		return m.LinkCustomerFunc(ctx, userID, customerID)
	}
	return errors.New("LinkCustomerFunc not implemented")
}

// =============================================================================
// Mock billing.Service
// =============================================================================

type mockBilling struct {
	CreateCustomerFunc         func(email, name string) (string, error)
	CreateCheckoutSessionFunc  func(params billing.CheckoutParams) (string, error)
	CreatePortalSessionFunc    func(customerID, returnURL string) (string, error)
	VerifyWebhookSignatureFunc func(payload []byte, signature string) (stripe.Event, error)
	Plans                      map[string]string
}

func (m *mockBilling) CreateCustomer(email, name string) (string, error) {
	if m.CreateCustomerFunc != nil {
		return m.CreateCustomerFunc(email, name)
	}
	return "", errors.New("CreateCustomerFunc not implemented")
}

func (m *mockBilling) CreateCheckoutSession(params billing.CheckoutParams) (string, error) {
	if m.CreateCheckoutSessionFunc != nil {
		return m.CreateCheckoutSessionFunc(params)
	}
	return "", errors.New("CreateCheckoutSessionFunc not implemented")
}

func (m *mockBilling) CreatePortalSession(customerID, returnURL string) (string, error) {
	if m.CreatePortalSessionFunc != nil {
		return m.CreatePortalSessionFunc(customerID, returnURL)
	}
	return "", errors.New("CreatePortalSessionFunc not implemented")
}

func (m *mockBilling) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	if m.VerifyWebhookSignatureFunc != nil {
		return m.VerifyWebhookSignatureFunc(payload, signature)
	}
	return stripe.Event{}, errors.New("VerifyWebhookSignatureFunc not implemented")
}

func (m *mockBilling) PlanForPriceID(priceID string) string {
	return m.Plans[priceID]
}

// =============================================================================
// Helpers
// =============================================================================

func passthrough(next http.Handler) http.Handler { return next }

func testUser(tier domain.SubscriptionTier) *domain.User {
	return &domain.User{
		ID:               uuid.New(),
		Email:            "athlete@example.com",
		FullName:         "Alex Athlete",
		Role:             domain.RoleUser,
		SubscriptionTier: tier,
		IsActive:         true,
	}
}

// serve routes req through mux as user (nil for anonymous).
func serve(mux *http.ServeMux, req *http.Request, user *domain.User) *httptest.ResponseRecorder {
	if user != nil {
		req = req.WithContext(auth.SetUser(req.Context(), user))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}
