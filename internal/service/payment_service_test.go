package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/easytips/easytips/internal/domain"
	"github.com/easytips/easytips/internal/gateway"
	"github.com/easytips/easytips/internal/service"
	"github.com/shopspring/decimal"
)

// ---------- Mocks ----------

type mockTxnRepo struct {
	users  *mockUserRepo
	txns   map[string]*domain.Transaction
	nextID int
}

func newMockTxnRepo(users *mockUserRepo) *mockTxnRepo {
	return &mockTxnRepo{users: users, txns: make(map[string]*domain.Transaction)}
}

func (m *mockTxnRepo) Create(_ context.Context, t *domain.Transaction) (*domain.Transaction, error) {
	m.nextID++
	copied := *t
	if copied.ID == "" {
		copied.ID = fmt.Sprintf("txn-%d", m.nextID)
	}
	copied.CreatedAt = time.Now()
	copied.UpdatedAt = copied.CreatedAt
	m.txns[copied.ID] = &copied
	return &copied, nil
}

func (m *mockTxnRepo) FindByID(_ context.Context, id string) (*domain.Transaction, error) {
	return m.txns[id], nil
}

func (m *mockTxnRepo) FindByExternalRef(_ context.Context, ref string) (*domain.Transaction, error) {
	return m.findByRef(ref), nil
}

func (m *mockTxnRepo) findByRef(ref string) *domain.Transaction {
	for _, t := range m.txns {
		if t.StripePaymentIntentID != nil && *t.StripePaymentIntentID == ref {
			return t
		}
		if t.StripeCheckoutSessionID != nil && *t.StripeCheckoutSessionID == ref {
			return t
		}
	}
	return nil
}

func (m *mockTxnRepo) AttachExternalRefs(_ context.Context, id string, checkoutSessionID, paymentIntentID *string) error {
	t, ok := m.txns[id]
	if !ok {
		return errors.New("no rows")
	}
	if checkoutSessionID != nil {
		t.StripeCheckoutSessionID = checkoutSessionID
	}
	if paymentIntentID != nil {
		t.StripePaymentIntentID = paymentIntentID
	}
	return nil
}

func (m *mockTxnRepo) CompleteAndCredit(_ context.Context, ref string) (*domain.Transaction, bool, error) {
	t := m.findByRef(ref)
	if t == nil {
		return nil, false, nil
	}
	if t.Status != domain.StatusPending {
		return t, false, nil
	}
	t.Status = domain.StatusCompleted
	if t.Type == domain.TransactionTip && t.EmployeeID != nil {
		if u, ok := m.users.users[*t.EmployeeID]; ok {
			u.Balance = u.Balance.Add(t.Amount)
		}
	}
	return t, true, nil
}

func (m *mockTxnRepo) MarkFailed(_ context.Context, ref string) (*domain.Transaction, bool, error) {
	t := m.findByRef(ref)
	if t == nil {
		return nil, false, nil
	}
	if t.Status != domain.StatusPending {
		return t, false, nil
	}
	t.Status = domain.StatusFailed
	return t, true, nil
}

func (m *mockTxnRepo) CreateCompletedPayout(_ context.Context, userID string, amount decimal.Decimal, method, details string) (*domain.Transaction, error) {
	u, ok := m.users.users[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if u.Balance.LessThan(amount) {
		return nil, domain.ErrInsufficientFunds
	}
	u.Balance = u.Balance.Sub(amount)

	m.nextID++
	t := &domain.Transaction{
		ID:            fmt.Sprintf("txn-%d", m.nextID),
		UserID:        userID,
		Type:          domain.TransactionPayout,
		Amount:        amount,
		Status:        domain.StatusCompleted,
		PaymentMethod: &method,
		CreatedAt:     time.Now(),
	}
	m.txns[t.ID] = t
	return t, nil
}

func (m *mockTxnRepo) CreateCompletedTip(_ context.Context, userID string, amount decimal.Decimal, rating *int, comment *string, method string) (*domain.Transaction, error) {
	u, ok := m.users.users[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	u.Balance = u.Balance.Add(amount)

	m.nextID++
	t := &domain.Transaction{
		ID:             fmt.Sprintf("txn-%d", m.nextID),
		UserID:         userID,
		EmployeeID:     &userID,
		Type:           domain.TransactionTip,
		Amount:         amount,
		Status:         domain.StatusCompleted,
		EmployeeRating: rating,
		Comment:        comment,
		PaymentMethod:  &method,
		CreatedAt:      time.Now(),
	}
	m.txns[t.ID] = t
	return t, nil
}

func (m *mockTxnRepo) ListByUser(_ context.Context, userID string, _ int) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, t := range m.txns {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *mockTxnRepo) ListReceivedByEmployee(_ context.Context, employeeID string, _ int) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, t := range m.txns {
		if t.EmployeeID != nil && *t.EmployeeID == employeeID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *mockTxnRepo) Summary(_ context.Context, userID string, _, _ *time.Time) (*domain.TransactionSummary, error) {
	s := &domain.TransactionSummary{}
	for _, t := range m.txns {
		if t.UserID != userID {
			continue
		}
		s.TotalTransactions++
		switch t.Type {
		case domain.TransactionTip:
			s.TipsCount++
			s.TipsAmount = s.TipsAmount.Add(t.Amount)
		case domain.TransactionPayout:
			s.PayoutsCount++
			s.PayoutsAmount = s.PayoutsAmount.Add(t.Amount)
		}
	}
	s.NetIncome = s.TipsAmount.Sub(s.PayoutsAmount)
	return s, nil
}

func (m *mockTxnRepo) SummaryForEmployee(_ context.Context, employeeID string, _, _ *time.Time) (*domain.TransactionSummary, error) {
	s := &domain.TransactionSummary{}
	for _, t := range m.txns {
		switch {
		case t.Type == domain.TransactionTip && t.EmployeeID != nil && *t.EmployeeID == employeeID && t.Status == domain.StatusCompleted:
			s.TotalTransactions++
			s.TipsCount++
			s.TipsAmount = s.TipsAmount.Add(t.Amount)
		case t.Type == domain.TransactionPayout && t.UserID == employeeID:
			s.TotalTransactions++
			s.PayoutsCount++
			s.PayoutsAmount = s.PayoutsAmount.Add(t.Amount)
		}
	}
	s.NetIncome = s.TipsAmount.Sub(s.PayoutsAmount)
	return s, nil
}

func (m *mockTxnRepo) OrganizationStats(_ context.Context, _ string) (*domain.OrganizationStats, error) {
	return &domain.OrganizationStats{}, nil
}

type mockGateway struct {
	customers     int
	customersFor  []string
	checkouts     int
	checkoutErr   error
	lastParams    gateway.CheckoutParams
	verifiedEvent *gateway.Event
}

func (m *mockGateway) CreateCustomer(_ context.Context, u *domain.User) (string, error) {
	m.customers++
	m.customersFor = append(m.customersFor, u.ID)
	return fmt.Sprintf("cus_%d", m.customers), nil
}

func (m *mockGateway) CreateCheckout(_ context.Context, params gateway.CheckoutParams) (*gateway.Checkout, error) {
	if m.checkoutErr != nil {
		return nil, m.checkoutErr
	}
	m.checkouts++
	m.lastParams = params
	return &gateway.Checkout{
		CheckoutSessionID: fmt.Sprintf("cs_%d", m.checkouts),
		RedirectURL:       "https://checkout.example/session",
		PaymentIntentID:   fmt.Sprintf("pi_%d", m.checkouts),
	}, nil
}

func (m *mockGateway) VerifyWebhook(_ []byte, _ string) (*gateway.Event, error) {
	return m.verifiedEvent, nil
}

// ---------- Helpers ----------

type paymentFixture struct {
	svc   service.PaymentService
	users *mockUserRepo
	txns  *mockTxnRepo
	gw    *mockGateway
	bus   *mockBus
}

func newPaymentFixture() *paymentFixture {
	users := newMockUserRepo()
	f := &paymentFixture{
		users: users,
		txns:  newMockTxnRepo(users),
		gw:    &mockGateway{},
		bus:   &mockBus{},
	}
	f.svc = service.NewPaymentService(f.users, f.txns, f.gw, f.bus, testConfig())
	return f
}

func (f *paymentFixture) addEmployee(t *testing.T) *domain.User {
	t.Helper()
	phone := "+12345678901"
	name := "Jamie"
	u, err := f.users.Create(context.Background(), &domain.User{Kind: domain.KindEmployee, Phone: &phone, Name: &name})
	if err != nil {
		t.Fatalf("create employee: %v", err)
	}
	return u
}

func (f *paymentFixture) addGuest(t *testing.T) *domain.User {
	t.Helper()
	u, err := f.users.Create(context.Background(), &domain.User{Kind: domain.KindGuest})
	if err != nil {
		t.Fatalf("create guest: %v", err)
	}
	return u
}

// ---------- Tests ----------

func TestInitiateTipCreatesPendingWithRefs(t *testing.T) {
	f := newPaymentFixture()
	ctx := context.Background()
	employee := f.addEmployee(t)
	guest := f.addGuest(t)

	result, err := f.svc.InitiateTip(ctx, guest, &domain.TipRequest{
		EmployeeID: employee.ID,
		Amount:     decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("InitiateTip: %v", err)
	}

	txn := f.txns.txns[result.TransactionID]
	if txn == nil {
		t.Fatal("expected a recorded transaction")
	}
	if txn.Status != domain.StatusPending {
		t.Fatalf("expected pending, got %s", txn.Status)
	}
	if txn.StripeCheckoutSessionID == nil || *txn.StripeCheckoutSessionID != result.CheckoutSessionID {
		t.Fatal("checkout session id must be attached before returning")
	}
	if f.gw.lastParams.Metadata["transaction_id"] != txn.ID {
		t.Fatal("checkout metadata must carry the transaction id")
	}
	if employeeBalance := f.users.users[employee.ID].Balance; !employeeBalance.IsZero() {
		t.Fatalf("nothing may be credited before reconciliation, balance=%s", employeeBalance)
	}
}

func TestInitiateTipProvisionsCustomerForBeneficiary(t *testing.T) {
	f := newPaymentFixture()
	ctx := context.Background()
	employee := f.addEmployee(t)
	guest := f.addGuest(t)

	if _, err := f.svc.InitiateTip(ctx, guest, &domain.TipRequest{
		EmployeeID: employee.ID,
		Amount:     decimal.NewFromInt(10),
	}); err != nil {
		t.Fatalf("InitiateTip: %v", err)
	}

	if got := f.gw.customersFor; len(got) != 1 || got[0] != employee.ID {
		t.Fatalf("gateway customer must be created for the employee, got %v", got)
	}
	if f.users.users[employee.ID].StripeCustomerID == nil {
		t.Fatal("employee must keep the customer handle")
	}
	if f.users.users[guest.ID].StripeCustomerID != nil {
		t.Fatal("one-shot guest payer must not get a customer handle")
	}

	// The handle is reused, not re-provisioned, on the next tip.
	other := f.addGuest(t)
	if _, err := f.svc.InitiateTip(ctx, other, &domain.TipRequest{
		EmployeeID: employee.ID,
		Amount:     decimal.NewFromInt(5),
	}); err != nil {
		t.Fatalf("InitiateTip: %v", err)
	}
	if f.gw.customers != 1 {
		t.Fatalf("expected 1 customer total, got %d", f.gw.customers)
	}
	if f.gw.lastParams.CustomerID != *f.users.users[employee.ID].StripeCustomerID {
		t.Fatal("checkout must carry the beneficiary's customer handle")
	}
}

func TestInitiateTipRejectsNonEmployee(t *testing.T) {
	f := newPaymentFixture()
	guest := f.addGuest(t)
	other := f.addGuest(t)

	_, err := f.svc.InitiateTip(context.Background(), guest, &domain.TipRequest{
		EmployeeID: other.ID,
		Amount:     decimal.NewFromInt(10),
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for non-employee target, got %v", err)
	}
}

func TestReconcileCreditsExactlyOnce(t *testing.T) {
	f := newPaymentFixture()
	ctx := context.Background()
	employee := f.addEmployee(t)
	guest := f.addGuest(t)

	result, err := f.svc.InitiateTip(ctx, guest, &domain.TipRequest{
		EmployeeID: employee.ID,
		Amount:     decimal.NewFromInt(25),
	})
	if err != nil {
		t.Fatalf("InitiateTip: %v", err)
	}

	txn, err := f.svc.Reconcile(ctx, result.PaymentIntentID)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if txn.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", txn.Status)
	}
	if got := f.users.users[employee.ID].Balance; !got.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("expected balance 25, got %s", got)
	}

	// Duplicate delivery is a success no-op.
	if _, err := f.svc.Reconcile(ctx, result.PaymentIntentID); err != nil {
		t.Fatalf("duplicate Reconcile: %v", err)
	}
	if got := f.users.users[employee.ID].Balance; !got.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("duplicate delivery credited again, balance=%s", got)
	}
}

func TestReconcileUnknownRef(t *testing.T) {
	f := newPaymentFixture()

	if _, err := f.svc.Reconcile(context.Background(), "pi_unknown"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReconcileEventDropsUnknownRef(t *testing.T) {
	f := newPaymentFixture()

	err := f.svc.ReconcileEvent(context.Background(), &gateway.Event{
		Kind:            gateway.EventPaymentSucceeded,
		PaymentIntentID: "pi_unknown",
	})
	if err != nil {
		t.Fatalf("unknown refs must be dropped, not retried: %v", err)
	}
}

func TestReconcileEventMetadataFallback(t *testing.T) {
	f := newPaymentFixture()
	ctx := context.Background()
	employee := f.addEmployee(t)
	guest := f.addGuest(t)

	// Pending row without gateway refs, as if the attach step never ran.
	method := "stripe"
	txn, err := f.txns.Create(ctx, &domain.Transaction{
		UserID:        guest.ID,
		EmployeeID:    &employee.ID,
		Type:          domain.TransactionTip,
		Amount:        decimal.NewFromInt(15),
		Status:        domain.StatusPending,
		PaymentMethod: &method,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	err = f.svc.ReconcileEvent(ctx, &gateway.Event{
		Kind:              gateway.EventCheckoutCompleted,
		CheckoutSessionID: "cs_detached",
		PaymentIntentID:   "pi_detached",
		Metadata:          map[string]string{"transaction_id": txn.ID},
	})
	if err != nil {
		t.Fatalf("ReconcileEvent: %v", err)
	}

	if f.txns.txns[txn.ID].Status != domain.StatusCompleted {
		t.Fatal("metadata fallback must settle the transaction")
	}
	if got := f.users.users[employee.ID].Balance; !got.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("expected balance 15, got %s", got)
	}
}

func TestReconcileEventFailureFlipsPending(t *testing.T) {
	f := newPaymentFixture()
	ctx := context.Background()
	employee := f.addEmployee(t)
	guest := f.addGuest(t)

	result, err := f.svc.InitiateTip(ctx, guest, &domain.TipRequest{
		EmployeeID: employee.ID,
		Amount:     decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("InitiateTip: %v", err)
	}

	err = f.svc.ReconcileEvent(ctx, &gateway.Event{
		Kind:            gateway.EventPaymentFailed,
		PaymentIntentID: result.PaymentIntentID,
	})
	if err != nil {
		t.Fatalf("ReconcileEvent: %v", err)
	}

	if f.txns.txns[result.TransactionID].Status != domain.StatusFailed {
		t.Fatal("expected failed status")
	}
	if got := f.users.users[employee.ID].Balance; !got.IsZero() {
		t.Fatalf("failure must not credit, balance=%s", got)
	}

	// A success event after failure must not resurrect the row.
	if _, err := f.svc.Reconcile(ctx, result.PaymentIntentID); err != nil {
		t.Fatalf("Reconcile after failure: %v", err)
	}
	if f.txns.txns[result.TransactionID].Status != domain.StatusFailed {
		t.Fatal("terminal failed status must not change")
	}
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	f := newPaymentFixture()
	ctx := context.Background()
	employee := f.addEmployee(t)
	f.users.users[employee.ID].Balance = decimal.NewFromInt(20)

	_, err := f.svc.Withdraw(ctx, employee, &domain.WithdrawRequest{
		Amount: decimal.NewFromInt(50),
		Method: "card",
	})
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if got := f.users.users[employee.ID].Balance; !got.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("failed withdrawal must not move the balance, got %s", got)
	}

	txn, err := f.svc.Withdraw(ctx, employee, &domain.WithdrawRequest{
		Amount: decimal.NewFromInt(15),
		Method: "card",
	})
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if txn.Status != domain.StatusCompleted {
		t.Fatalf("payouts have no pending phase, got %s", txn.Status)
	}
	if got := f.users.users[employee.ID].Balance; !got.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected balance 5, got %s", got)
	}
}

func TestProcessDirectTipCreditsImmediately(t *testing.T) {
	f := newPaymentFixture()
	ctx := context.Background()
	employee := f.addEmployee(t)

	rating := 5
	txn, err := f.svc.ProcessDirectTip(ctx, employee.ID, decimal.NewFromInt(7), &rating, nil, "cash")
	if err != nil {
		t.Fatalf("ProcessDirectTip: %v", err)
	}
	if txn.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", txn.Status)
	}
	if got := f.users.users[employee.ID].Balance; !got.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("expected balance 7, got %s", got)
	}
}

func TestHistoryEmployeeSeesReceivedTips(t *testing.T) {
	f := newPaymentFixture()
	ctx := context.Background()
	employee := f.addEmployee(t)
	guest := f.addGuest(t)

	result, err := f.svc.InitiateTip(ctx, guest, &domain.TipRequest{
		EmployeeID: employee.ID,
		Amount:     decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("InitiateTip: %v", err)
	}
	if _, err := f.svc.Reconcile(ctx, result.PaymentIntentID); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	received, err := f.svc.History(ctx, employee, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(received) != 1 {
		t.Fatalf("expected 1 received tip, got %d", len(received))
	}

	sent, err := f.svc.History(ctx, guest, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(sent) != 1 {
		t.Fatalf("expected 1 sent tip, got %d", len(sent))
	}
}

func TestStatisticsEmployeeCountsReceivedTips(t *testing.T) {
	f := newPaymentFixture()
	ctx := context.Background()
	employee := f.addEmployee(t)
	guest := f.addGuest(t)

	result, err := f.svc.InitiateTip(ctx, guest, &domain.TipRequest{
		EmployeeID: employee.ID,
		Amount:     decimal.NewFromInt(25),
	})
	if err != nil {
		t.Fatalf("InitiateTip: %v", err)
	}
	if _, err := f.svc.Reconcile(ctx, result.PaymentIntentID); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if _, err := f.svc.Withdraw(ctx, employee, &domain.WithdrawRequest{
		Amount: decimal.NewFromInt(10),
		Method: "card",
	}); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}

	summary, err := f.svc.Statistics(ctx, employee, nil, nil)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if summary.TipsCount != 1 || !summary.TipsAmount.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("employee statistics must count received tips, got count=%d amount=%s", summary.TipsCount, summary.TipsAmount)
	}
	if summary.PayoutsCount != 1 || !summary.PayoutsAmount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected 1 payout of 10, got count=%d amount=%s", summary.PayoutsCount, summary.PayoutsAmount)
	}
	if !summary.NetIncome.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("expected net income 15, got %s", summary.NetIncome)
	}

	// The guest payer still sees the tip they sent.
	sent, err := f.svc.Statistics(ctx, guest, nil, nil)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if sent.TipsCount != 1 {
		t.Fatalf("expected payer to see 1 sent tip, got %d", sent.TipsCount)
	}
}

func TestEmployeeTipFormURL(t *testing.T) {
	f := newPaymentFixture()

	got := f.svc.EmployeeTipFormURL("abc")
	want := "http://localhost:3000/tip-form/?employee_id=abc"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
