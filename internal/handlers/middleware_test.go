package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/easytips/easytips/internal/domain"
	"github.com/easytips/easytips/internal/gateway"
	"github.com/easytips/easytips/internal/handlers"
	"github.com/easytips/easytips/pkg/config"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// ---------- Mocks ----------

type mockAuthService struct {
	resolveUser    *domain.User
	resolveSession *domain.Session
	resolveErr     error
	renewedTokens  []string
	revokedTokens  []string
}

func (m *mockAuthService) SendCode(context.Context, string) error { return nil }

func (m *mockAuthService) VerifyCode(context.Context, *domain.VerifyCodeRequest) (*domain.LoginResult, error) {
	return nil, domain.ErrInvalidCredential
}

func (m *mockAuthService) OrganizationLogin(context.Context, *domain.OrganizationLoginRequest) (*domain.LoginResult, error) {
	return nil, domain.ErrInvalidCredential
}

func (m *mockAuthService) RegisterOrganization(context.Context, *domain.RegisterOrganizationRequest) (*domain.LoginResult, error) {
	return nil, domain.ErrConflict
}

func (m *mockAuthService) GuestLogin(context.Context) (*domain.LoginResult, error) {
	return nil, nil
}

func (m *mockAuthService) Logout(_ context.Context, token string) error {
	m.revokedTokens = append(m.revokedTokens, token)
	return nil
}

func (m *mockAuthService) ResolveSession(_ context.Context, token string) (*domain.User, *domain.Session, error) {
	if m.resolveErr != nil {
		return nil, nil, m.resolveErr
	}
	return m.resolveUser, m.resolveSession, nil
}

func (m *mockAuthService) RenewSession(_ context.Context, token string) error {
	m.renewedTokens = append(m.renewedTokens, token)
	return nil
}

func (m *mockAuthService) GetUser(context.Context, string) (*domain.User, error) {
	return nil, domain.ErrNotFound
}

func (m *mockAuthService) UpdateProfile(context.Context, string, *domain.UpdateProfileRequest) (*domain.User, error) {
	return m.resolveUser, nil
}

func (m *mockAuthService) CompleteProfile(context.Context, *domain.User, *domain.UpdateProfileRequest) (*domain.User, error) {
	return m.resolveUser, nil
}

func (m *mockAuthService) CreateEmployee(context.Context, *domain.User, *domain.CreateEmployeeRequest) (*domain.User, error) {
	return nil, nil
}

type mockPaymentService struct{}

func (m *mockPaymentService) InitiateTip(context.Context, *domain.User, *domain.TipRequest) (*domain.CheckoutResult, error) {
	return nil, domain.ErrNotFound
}

func (m *mockPaymentService) ReconcileEvent(context.Context, *gateway.Event) error { return nil }

func (m *mockPaymentService) Reconcile(context.Context, string) (*domain.Transaction, error) {
	return nil, domain.ErrNotFound
}

func (m *mockPaymentService) Withdraw(context.Context, *domain.User, *domain.WithdrawRequest) (*domain.Transaction, error) {
	return nil, domain.ErrInsufficientFunds
}

func (m *mockPaymentService) ProcessDirectTip(context.Context, string, decimal.Decimal, *int, *string, string) (*domain.Transaction, error) {
	return nil, nil
}

func (m *mockPaymentService) Balance(context.Context, string) (decimal.Decimal, error) {
	return decimal.NewFromInt(42), nil
}

func (m *mockPaymentService) History(context.Context, *domain.User, int) ([]domain.Transaction, error) {
	return nil, nil
}

func (m *mockPaymentService) Statistics(context.Context, *domain.User, *time.Time, *time.Time) (*domain.TransactionSummary, error) {
	return &domain.TransactionSummary{}, nil
}

func (m *mockPaymentService) OrganizationStatistics(context.Context, string) (*domain.OrganizationStats, error) {
	return &domain.OrganizationStats{}, nil
}

func (m *mockPaymentService) EmployeeTipFormURL(employeeID string) string {
	return "http://localhost:3000/tip-form/?employee_id=" + employeeID
}

type stubGateway struct {
	event     *gateway.Event
	verifyErr error
}

func (s *stubGateway) CreateCustomer(context.Context, *domain.User) (string, error) {
	return "cus_1", nil
}

func (s *stubGateway) CreateCheckout(context.Context, gateway.CheckoutParams) (*gateway.Checkout, error) {
	return &gateway.Checkout{}, nil
}

func (s *stubGateway) VerifyWebhook([]byte, string) (*gateway.Event, error) {
	return s.event, s.verifyErr
}

// ---------- Helpers ----------

func handlerConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{
			CookieName:     "session_id",
			CookieSameSite: "lax",
			CookieMaxAge:   24 * time.Hour,
		},
	}
}

func activeEmployee() (*domain.User, *domain.Session) {
	name := "Jamie"
	user := &domain.User{ID: "user-1", Kind: domain.KindEmployee, Name: &name}
	session := &domain.Session{
		Token:     "token-1",
		UserID:    user.ID,
		Kind:      user.Kind,
		ExpiresAt: time.Now().Add(time.Hour),
		IsActive:  true,
	}
	return user, session
}

func newRouter(auth *mockAuthService, gw *stubGateway) (chi.Router, *handlers.Handlers) {
	if gw == nil {
		gw = &stubGateway{}
	}
	h := handlers.NewHandlers(auth, &mockPaymentService{}, gw, handlerConfig())

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(h.RequireSession)
		r.Get("/payments/balance", h.Balance)
		r.With(h.RequireKind(domain.KindOrganization)).Get("/payments/organization/statistics", h.OrganizationStatistics)
	})
	r.Post("/payments/webhook", h.Webhook)
	return r, h
}

// ---------- Tests ----------

func TestRequireSessionMissingToken(t *testing.T) {
	r, _ := newRouter(&mockAuthService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/payments/balance", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireSessionRejectedToken(t *testing.T) {
	auth := &mockAuthService{resolveErr: domain.ErrUnauthorized}
	r, _ := newRouter(auth, nil)

	req := httptest.NewRequest(http.MethodGet, "/payments/balance", nil)
	req.Header.Set(handlers.SessionHeader, "expired-token")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(auth.renewedTokens) != 0 {
		t.Fatal("rejected token must not be renewed")
	}
}

func TestRequireSessionHeaderTokenRenews(t *testing.T) {
	user, session := activeEmployee()
	auth := &mockAuthService{resolveUser: user, resolveSession: session}
	r, _ := newRouter(auth, nil)

	req := httptest.NewRequest(http.MethodGet, "/payments/balance", nil)
	req.Header.Set(handlers.SessionHeader, session.Token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(auth.renewedTokens) != 1 || auth.renewedTokens[0] != session.Token {
		t.Fatalf("expected a renewal for %q, got %v", session.Token, auth.renewedTokens)
	}

	// Cookie expiry refreshed on every authenticated request.
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 || cookies[0].Name != "session_id" || cookies[0].Value != session.Token {
		t.Fatalf("expected refreshed session cookie, got %v", cookies)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if body["balance"] != "42" {
		t.Fatalf("expected balance 42, got %v", body["balance"])
	}
}

func TestRequireSessionCookieFallback(t *testing.T) {
	user, session := activeEmployee()
	auth := &mockAuthService{resolveUser: user, resolveSession: session}
	r, _ := newRouter(auth, nil)

	req := httptest.NewRequest(http.MethodGet, "/payments/balance", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: session.Token})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRequireKindForbidsOtherKinds(t *testing.T) {
	user, session := activeEmployee()
	auth := &mockAuthService{resolveUser: user, resolveSession: session}
	r, _ := newRouter(auth, nil)

	req := httptest.NewRequest(http.MethodGet, "/payments/organization/statistics", nil)
	req.Header.Set(handlers.SessionHeader, session.Token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for employee on organization route, got %d", rec.Code)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	gw := &stubGateway{verifyErr: domain.ErrGateway}
	r, _ := newRouter(&mockAuthService{}, gw)

	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "bogus")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad signature, got %d", rec.Code)
	}
}

func TestWebhookAcknowledgesHandledEvent(t *testing.T) {
	gw := &stubGateway{event: &gateway.Event{Kind: gateway.EventIgnored}}
	r, _ := newRouter(&mockAuthService{}, gw)

	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "valid")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
