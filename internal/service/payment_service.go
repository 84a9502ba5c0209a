package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/easytips/easytips/internal/domain"
	"github.com/easytips/easytips/internal/gateway"
	"github.com/easytips/easytips/internal/repository"
	"github.com/easytips/easytips/pkg/config"
	"github.com/easytips/easytips/pkg/events"
	"github.com/easytips/easytips/pkg/logger"
	"github.com/shopspring/decimal"
)

type PaymentService interface {
	// InitiateTip records a pending tip and opens a gateway checkout for it.
	// Nothing is credited until the gateway confirms over the webhook.
	InitiateTip(ctx context.Context, payer *domain.User, req *domain.TipRequest) (*domain.CheckoutResult, error)
	// ReconcileEvent routes a verified webhook event to the matching ledger
	// action. Unknown refs are logged and dropped so the gateway stops
	// retrying them.
	ReconcileEvent(ctx context.Context, ev *gateway.Event) error
	Reconcile(ctx context.Context, ref string) (*domain.Transaction, error)
	Withdraw(ctx context.Context, user *domain.User, req *domain.WithdrawRequest) (*domain.Transaction, error)
	ProcessDirectTip(ctx context.Context, employeeID string, amount decimal.Decimal, rating *int, comment *string, method string) (*domain.Transaction, error)
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
	History(ctx context.Context, user *domain.User, limit int) ([]domain.Transaction, error)
	Statistics(ctx context.Context, user *domain.User, from, to *time.Time) (*domain.TransactionSummary, error)
	OrganizationStatistics(ctx context.Context, organizationID string) (*domain.OrganizationStats, error)
	EmployeeTipFormURL(employeeID string) string
}

type paymentService struct {
	userRepo repository.UserRepository
	txnRepo  repository.TransactionRepository
	gateway  gateway.PaymentGateway
	eventBus events.Publisher
	config   *config.Config
}

func NewPaymentService(
	userRepo repository.UserRepository,
	txnRepo repository.TransactionRepository,
	gw gateway.PaymentGateway,
	eventBus events.Publisher,
	config *config.Config,
) PaymentService {
	return &paymentService{
		userRepo: userRepo,
		txnRepo:  txnRepo,
		gateway:  gw,
		eventBus: eventBus,
		config:   config,
	}
}

func (s *paymentService) InitiateTip(ctx context.Context, payer *domain.User, req *domain.TipRequest) (*domain.CheckoutResult, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	employee, err := s.userRepo.FindByID(ctx, req.EmployeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up employee: %w", err)
	}
	if employee == nil || employee.Kind != domain.KindEmployee {
		return nil, fmt.Errorf("%w: employee not found", domain.ErrNotFound)
	}

	// The gateway customer belongs to the beneficiary. Payers are mostly
	// one-shot guests and never get a handle.
	customerID, err := s.ensureCustomer(ctx, employee)
	if err != nil {
		return nil, err
	}

	method := "stripe"
	txn, err := s.txnRepo.Create(ctx, &domain.Transaction{
		UserID:         payer.ID,
		EmployeeID:     &req.EmployeeID,
		Type:           domain.TransactionTip,
		Amount:         req.Amount,
		Status:         domain.StatusPending,
		EmployeeRating: req.EmployeeRating,
		Comment:        req.Comment,
		PaymentMethod:  &method,
		GuestSessionID: req.GuestSessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	metadata := map[string]string{
		"transaction_id":   txn.ID,
		"transaction_type": string(domain.TransactionTip),
		"employee_uuid":    req.EmployeeID,
		"payment_type":     "guest_tip",
	}
	if req.GuestSessionID != nil {
		metadata["guest_session_id"] = *req.GuestSessionID
	}

	checkout, err := s.gateway.CreateCheckout(ctx, gateway.CheckoutParams{
		Amount:      req.Amount,
		Currency:    s.config.Stripe.Currency,
		CustomerID:  customerID,
		Description: "Tip payment",
		Metadata:    metadata,
		SuccessURL:  s.config.Frontend.BaseURL + "/payment/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:   s.config.Frontend.BaseURL + "/payment/cancel",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout: %w", err)
	}

	// Refs must be attached before we return: the webhook can arrive before
	// the HTTP response leaves the building.
	var intentID *string
	if checkout.PaymentIntentID != "" {
		intentID = &checkout.PaymentIntentID
	}
	if err := s.txnRepo.AttachExternalRefs(ctx, txn.ID, &checkout.CheckoutSessionID, intentID); err != nil {
		return nil, fmt.Errorf("failed to attach gateway references: %w", err)
	}

	if err := s.eventBus.Publish(ctx, events.TipInitiated, events.TipInitiatedEvent{
		TransactionID:     txn.ID,
		EmployeeID:        req.EmployeeID,
		Amount:            req.Amount,
		CheckoutSessionID: checkout.CheckoutSessionID,
		CreatedAt:         txn.CreatedAt,
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish tip event", "error", err)
	}

	return &domain.CheckoutResult{
		TransactionID:     txn.ID,
		CheckoutSessionID: checkout.CheckoutSessionID,
		RedirectURL:       checkout.RedirectURL,
		PaymentIntentID:   checkout.PaymentIntentID,
	}, nil
}

func (s *paymentService) ReconcileEvent(ctx context.Context, ev *gateway.Event) error {
	switch ev.Kind {
	case gateway.EventPaymentSucceeded, gateway.EventChargeSucceeded:
		_, err := s.Reconcile(ctx, ev.PaymentIntentID)
		return s.dropUnknownRef(ctx, ev, err)

	case gateway.EventCheckoutCompleted:
		return s.dropUnknownRef(ctx, ev, s.reconcileCheckout(ctx, ev))

	case gateway.EventPaymentFailed:
		return s.dropUnknownRef(ctx, ev, s.markFailed(ctx, ev.PaymentIntentID))

	default:
		logger.DebugContext(ctx, "Ignoring webhook event", "kind", string(ev.Kind))
		return nil
	}
}

// reconcileCheckout settles a checkout.session.completed delivery. The session
// id is the primary lookup; when the pending row predates the checkout (a
// crash between Create and AttachExternalRefs) the metadata transaction id is
// the fallback.
func (s *paymentService) reconcileCheckout(ctx context.Context, ev *gateway.Event) error {
	txn, err := s.txnRepo.FindByExternalRef(ctx, ev.CheckoutSessionID)
	if err != nil {
		return fmt.Errorf("failed to look up transaction: %w", err)
	}

	if txn == nil {
		txnID := ev.Metadata["transaction_id"]
		if txnID == "" {
			return fmt.Errorf("%w: no transaction for checkout session", domain.ErrNotFound)
		}
		txn, err = s.txnRepo.FindByID(ctx, txnID)
		if err != nil {
			return fmt.Errorf("failed to look up transaction: %w", err)
		}
		if txn == nil {
			return fmt.Errorf("%w: no transaction for checkout session", domain.ErrNotFound)
		}
		if err := s.txnRepo.AttachExternalRefs(ctx, txn.ID, &ev.CheckoutSessionID, nil); err != nil {
			return fmt.Errorf("failed to attach checkout session: %w", err)
		}
	}

	if ev.PaymentIntentID != "" {
		if err := s.txnRepo.AttachExternalRefs(ctx, txn.ID, nil, &ev.PaymentIntentID); err != nil {
			return fmt.Errorf("failed to attach payment intent: %w", err)
		}
	}

	ref := ev.PaymentIntentID
	if ref == "" {
		ref = ev.CheckoutSessionID
	}
	_, err = s.Reconcile(ctx, ref)
	return err
}

func (s *paymentService) Reconcile(ctx context.Context, ref string) (*domain.Transaction, error) {
	if ref == "" {
		return nil, fmt.Errorf("%w: empty gateway reference", domain.ErrNotFound)
	}

	txn, credited, err := s.txnRepo.CompleteAndCredit(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile transaction: %w", err)
	}
	if txn == nil {
		return nil, fmt.Errorf("%w: no transaction for gateway reference", domain.ErrNotFound)
	}

	if !credited {
		// Duplicate or out-of-order delivery for a settled row. Success,
		// nothing to do.
		logger.InfoContext(ctx, "Transaction already finalized", "transaction_id", txn.ID, "status", string(txn.Status))
		return txn, nil
	}

	employeeID := ""
	if txn.EmployeeID != nil {
		employeeID = *txn.EmployeeID
	}
	if err := s.eventBus.Publish(ctx, events.TipCompleted, events.TipCompletedEvent{
		TransactionID:   txn.ID,
		EmployeeID:      employeeID,
		Amount:          txn.Amount,
		PaymentIntentID: ref,
		CompletedAt:     time.Now().UTC(),
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish tip event", "error", err)
	}

	return txn, nil
}

func (s *paymentService) markFailed(ctx context.Context, ref string) error {
	if ref == "" {
		return fmt.Errorf("%w: empty gateway reference", domain.ErrNotFound)
	}

	txn, flipped, err := s.txnRepo.MarkFailed(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to mark transaction failed: %w", err)
	}
	if txn == nil {
		return fmt.Errorf("%w: no transaction for gateway reference", domain.ErrNotFound)
	}
	if !flipped {
		return nil
	}

	if err := s.eventBus.Publish(ctx, events.TipFailed, events.TipFailedEvent{
		TransactionID:   txn.ID,
		PaymentIntentID: ref,
		FailedAt:        time.Now().UTC(),
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish tip event", "error", err)
	}

	return nil
}

// dropUnknownRef turns a not-found reconciliation into a handled event. The
// gateway retries delivery on non-2xx, and retrying a ref we will never know
// helps nobody.
func (s *paymentService) dropUnknownRef(ctx context.Context, ev *gateway.Event, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		logger.WarnContext(ctx, "Webhook references unknown transaction",
			"kind", string(ev.Kind),
			"payment_intent_id", ev.PaymentIntentID,
			"checkout_session_id", ev.CheckoutSessionID,
		)
		return nil
	}
	return err
}

func (s *paymentService) Withdraw(ctx context.Context, user *domain.User, req *domain.WithdrawRequest) (*domain.Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	txn, err := s.txnRepo.CreateCompletedPayout(ctx, user.ID, req.Amount, req.Method, req.Details)
	if err != nil {
		return nil, err
	}

	if err := s.eventBus.Publish(ctx, events.PayoutCreated, events.PayoutCreatedEvent{
		TransactionID: txn.ID,
		UserID:        user.ID,
		Amount:        req.Amount,
		Method:        req.Method,
		CreatedAt:     txn.CreatedAt,
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish payout event", "error", err)
	}

	return txn, nil
}

func (s *paymentService) ProcessDirectTip(ctx context.Context, employeeID string, amount decimal.Decimal, rating *int, comment *string, method string) (*domain.Transaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be greater than zero", domain.ErrValidation)
	}

	employee, err := s.userRepo.FindByID(ctx, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up employee: %w", err)
	}
	if employee == nil || employee.Kind != domain.KindEmployee {
		return nil, fmt.Errorf("%w: employee not found", domain.ErrNotFound)
	}

	return s.txnRepo.CreateCompletedTip(ctx, employeeID, amount, rating, comment, method)
}

func (s *paymentService) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	return s.userRepo.Balance(ctx, userID)
}

func (s *paymentService) History(ctx context.Context, user *domain.User, limit int) ([]domain.Transaction, error) {
	if user.Kind == domain.KindEmployee {
		return s.txnRepo.ListReceivedByEmployee(ctx, user.ID, limit)
	}
	return s.txnRepo.ListByUser(ctx, user.ID, limit)
}

// Statistics follows the same split as History: employees are measured by
// the tips they received, everyone else by the transactions they created.
func (s *paymentService) Statistics(ctx context.Context, user *domain.User, from, to *time.Time) (*domain.TransactionSummary, error) {
	if user.Kind == domain.KindEmployee {
		return s.txnRepo.SummaryForEmployee(ctx, user.ID, from, to)
	}
	return s.txnRepo.Summary(ctx, user.ID, from, to)
}

func (s *paymentService) OrganizationStatistics(ctx context.Context, organizationID string) (*domain.OrganizationStats, error) {
	stats, err := s.txnRepo.OrganizationStats(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load organization stats: %w", err)
	}

	total, err := s.userRepo.CountEmployees(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to count employees: %w", err)
	}
	stats.TotalEmployees = total

	return stats, nil
}

func (s *paymentService) EmployeeTipFormURL(employeeID string) string {
	return fmt.Sprintf("%s/tip-form/?employee_id=%s", s.config.Frontend.BaseURL, employeeID)
}

// ensureCustomer lazily provisions a gateway customer for the beneficiary
// and persists the handle for reuse on later tips.
func (s *paymentService) ensureCustomer(ctx context.Context, beneficiary *domain.User) (string, error) {
	if beneficiary.StripeCustomerID != nil && *beneficiary.StripeCustomerID != "" {
		return *beneficiary.StripeCustomerID, nil
	}

	customerID, err := s.gateway.CreateCustomer(ctx, beneficiary)
	if err != nil {
		return "", fmt.Errorf("failed to create gateway customer: %w", err)
	}

	if err := s.userRepo.SetStripeCustomerID(ctx, beneficiary.ID, customerID); err != nil {
		return "", fmt.Errorf("failed to save gateway customer: %w", err)
	}
	beneficiary.StripeCustomerID = &customerID

	return customerID, nil
}
