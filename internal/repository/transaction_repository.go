package repository

import (
	"context"
	"time"

	"github.com/easytips/easytips/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type TransactionRepository interface {
	Create(ctx context.Context, t *domain.Transaction) (*domain.Transaction, error)
	FindByID(ctx context.Context, id string) (*domain.Transaction, error)
	FindByExternalRef(ctx context.Context, ref string) (*domain.Transaction, error)
	AttachExternalRefs(ctx context.Context, id string, checkoutSessionID, paymentIntentID *string) error
	// CompleteAndCredit flips a pending transaction matching ref to completed
	// and credits the beneficiary in the same database transaction. Returns
	// the row and whether a credit happened. A non-pending match comes back
	// unchanged with credited=false; an absent ref comes back nil.
	CompleteAndCredit(ctx context.Context, ref string) (*domain.Transaction, bool, error)
	// MarkFailed flips a pending transaction to failed with no balance
	// effect. Terminal rows come back unchanged with flipped=false.
	MarkFailed(ctx context.Context, ref string) (*domain.Transaction, bool, error)
	// CreateCompletedPayout debits the payer and records the payout as one
	// atomic step. There is no pending phase for payouts.
	CreateCompletedPayout(ctx context.Context, userID string, amount decimal.Decimal, method, details string) (*domain.Transaction, error)
	CreateCompletedTip(ctx context.Context, userID string, amount decimal.Decimal, rating *int, comment *string, method string) (*domain.Transaction, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Transaction, error)
	ListReceivedByEmployee(ctx context.Context, employeeID string, limit int) ([]domain.Transaction, error)
	Summary(ctx context.Context, userID string, from, to *time.Time) (*domain.TransactionSummary, error)
	// SummaryForEmployee counts tips by beneficiary and payouts by creator,
	// since gateway tips are owned by the payer.
	SummaryForEmployee(ctx context.Context, employeeID string, from, to *time.Time) (*domain.TransactionSummary, error)
	OrganizationStats(ctx context.Context, organizationID string) (*domain.OrganizationStats, error)
}

type transactionRepository struct {
	pool *pgxpool.Pool
}

func NewTransactionRepository(pool *pgxpool.Pool) TransactionRepository {
	return &transactionRepository{pool: pool}
}

const txnCols = `id, user_id, employee_id, transaction_type, amount, status, employee_rating, comment, payment_method, stripe_checkout_session_id, stripe_payment_intent_id, guest_session_id, created_at, updated_at`

func scanTxn(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	err := row.Scan(
		&t.ID, &t.UserID, &t.EmployeeID, &t.Type, &t.Amount, &t.Status,
		&t.EmployeeRating, &t.Comment, &t.PaymentMethod,
		&t.StripeCheckoutSessionID, &t.StripePaymentIntentID, &t.GuestSessionID,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *transactionRepository) Create(ctx context.Context, t *domain.Transaction) (*domain.Transaction, error) {
	const q = `
		INSERT INTO transactions (id, user_id, employee_id, transaction_type, amount, status, employee_rating, comment, payment_method, stripe_checkout_session_id, stripe_payment_intent_id, guest_session_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + txnCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	return scanTxn(r.pool.QueryRow(ctx, q,
		t.ID, t.UserID, t.EmployeeID, t.Type, t.Amount, t.Status,
		t.EmployeeRating, t.Comment, t.PaymentMethod,
		t.StripeCheckoutSessionID, t.StripePaymentIntentID, t.GuestSessionID,
	))
}

func (r *transactionRepository) FindByID(ctx context.Context, id string) (*domain.Transaction, error) {
	const q = `SELECT ` + txnCols + ` FROM transactions WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	t, err := scanTxn(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func (r *transactionRepository) FindByExternalRef(ctx context.Context, ref string) (*domain.Transaction, error) {
	const q = `
		SELECT ` + txnCols + `
		FROM transactions
		WHERE stripe_payment_intent_id = $1 OR stripe_checkout_session_id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	t, err := scanTxn(r.pool.QueryRow(ctx, q, ref))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func (r *transactionRepository) AttachExternalRefs(ctx context.Context, id string, checkoutSessionID, paymentIntentID *string) error {
	const q = `
		UPDATE transactions
		SET
			stripe_checkout_session_id = COALESCE($2, stripe_checkout_session_id),
			stripe_payment_intent_id = COALESCE($3, stripe_payment_intent_id),
			updated_at = now()
		WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id, checkoutSessionID, paymentIntentID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *transactionRepository) CompleteAndCredit(ctx context.Context, ref string) (*domain.Transaction, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	// Conditional flip keyed on status serializes concurrent webhook
	// deliveries for the same ref: only one delivery sees the pending row.
	const flip = `
		UPDATE transactions
		SET status = 'completed', updated_at = now()
		WHERE (stripe_payment_intent_id = $1 OR stripe_checkout_session_id = $1)
		  AND status = 'pending'
		RETURNING ` + txnCols

	t, err := scanTxn(tx.QueryRow(ctx, flip, ref))
	if err == pgx.ErrNoRows {
		// Either unknown ref or already finalized; look without locking.
		existing, ferr := r.FindByExternalRef(ctx, ref)
		return existing, false, ferr
	}
	if err != nil {
		return nil, false, err
	}

	if t.Type == domain.TransactionTip && t.EmployeeID != nil {
		const credit = `UPDATE users SET balance = balance + $2, updated_at = now() WHERE uuid = $1`
		if _, err := tx.Exec(ctx, credit, *t.EmployeeID, t.Amount); err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}

	return t, true, nil
}

func (r *transactionRepository) MarkFailed(ctx context.Context, ref string) (*domain.Transaction, bool, error) {
	const q = `
		UPDATE transactions
		SET status = 'failed', updated_at = now()
		WHERE (stripe_payment_intent_id = $1 OR stripe_checkout_session_id = $1)
		  AND status = 'pending'
		RETURNING ` + txnCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	t, err := scanTxn(r.pool.QueryRow(ctx, q, ref))
	if err == pgx.ErrNoRows {
		existing, ferr := r.FindByExternalRef(ctx, ref)
		return existing, false, ferr
	}
	return t, err == nil, err
}

func (r *transactionRepository) CreateCompletedPayout(ctx context.Context, userID string, amount decimal.Decimal, method, details string) (*domain.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// The balance guard lives in the UPDATE so concurrent withdrawals cannot
	// overdraw between a read and a write.
	const debit = `
		UPDATE users
		SET balance = balance - $2, updated_at = now()
		WHERE uuid = $1 AND balance >= $2`

	result, err := tx.Exec(ctx, debit, userID, amount)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE uuid = $1)`, userID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrInsufficientFunds
	}

	const insert = `
		INSERT INTO transactions (id, user_id, transaction_type, amount, status, payment_method, comment)
		VALUES ($1, $2, 'payout', $3, 'completed', $4, $5)
		RETURNING ` + txnCols

	t, err := scanTxn(tx.QueryRow(ctx, insert, uuid.NewString(), userID, amount, method, nullable(details)))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return t, nil
}

func (r *transactionRepository) CreateCompletedTip(ctx context.Context, userID string, amount decimal.Decimal, rating *int, comment *string, method string) (*domain.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const insert = `
		INSERT INTO transactions (id, user_id, employee_id, transaction_type, amount, status, employee_rating, comment, payment_method)
		VALUES ($1, $2, $2, 'tip', $3, 'completed', $4, $5, $6)
		RETURNING ` + txnCols

	t, err := scanTxn(tx.QueryRow(ctx, insert, uuid.NewString(), userID, amount, rating, comment, method))
	if err != nil {
		return nil, err
	}

	const credit = `UPDATE users SET balance = balance + $2, updated_at = now() WHERE uuid = $1`
	if _, err := tx.Exec(ctx, credit, userID, amount); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return t, nil
}

func (r *transactionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	const q = `
		SELECT ` + txnCols + `
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	return r.list(ctx, q, userID, limit)
}

func (r *transactionRepository) ListReceivedByEmployee(ctx context.Context, employeeID string, limit int) ([]domain.Transaction, error) {
	const q = `
		SELECT ` + txnCols + `
		FROM transactions
		WHERE employee_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	return r.list(ctx, q, employeeID, limit)
}

func (r *transactionRepository) list(ctx context.Context, q, id string, limit int) ([]domain.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.EmployeeID, &t.Type, &t.Amount, &t.Status,
			&t.EmployeeRating, &t.Comment, &t.PaymentMethod,
			&t.StripeCheckoutSessionID, &t.StripePaymentIntentID, &t.GuestSessionID,
			&t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}

	return txns, rows.Err()
}

func (r *transactionRepository) Summary(ctx context.Context, userID string, from, to *time.Time) (*domain.TransactionSummary, error) {
	const q = `
		SELECT
			count(*),
			count(*) FILTER (WHERE transaction_type = 'tip'),
			count(*) FILTER (WHERE transaction_type = 'payout'),
			COALESCE(sum(amount) FILTER (WHERE transaction_type = 'tip'), 0),
			COALESCE(sum(amount) FILTER (WHERE transaction_type = 'payout'), 0)
		FROM transactions
		WHERE user_id = $1
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at <= $3)`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var s domain.TransactionSummary
	err := r.pool.QueryRow(ctx, q, userID, from, to).Scan(
		&s.TotalTransactions, &s.TipsCount, &s.PayoutsCount, &s.TipsAmount, &s.PayoutsAmount,
	)
	if err != nil {
		return nil, err
	}

	s.NetIncome = s.TipsAmount.Sub(s.PayoutsAmount)
	return &s, nil
}

func (r *transactionRepository) SummaryForEmployee(ctx context.Context, employeeID string, from, to *time.Time) (*domain.TransactionSummary, error) {
	const q = `
		SELECT
			count(*),
			count(*) FILTER (WHERE transaction_type = 'tip'),
			count(*) FILTER (WHERE transaction_type = 'payout'),
			COALESCE(sum(amount) FILTER (WHERE transaction_type = 'tip'), 0),
			COALESCE(sum(amount) FILTER (WHERE transaction_type = 'payout'), 0)
		FROM transactions
		WHERE ((transaction_type = 'tip' AND employee_id = $1 AND status = 'completed')
		    OR (transaction_type = 'payout' AND user_id = $1))
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at <= $3)`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var s domain.TransactionSummary
	err := r.pool.QueryRow(ctx, q, employeeID, from, to).Scan(
		&s.TotalTransactions, &s.TipsCount, &s.PayoutsCount, &s.TipsAmount, &s.PayoutsAmount,
	)
	if err != nil {
		return nil, err
	}

	s.NetIncome = s.TipsAmount.Sub(s.PayoutsAmount)
	return &s, nil
}

func (r *transactionRepository) OrganizationStats(ctx context.Context, organizationID string) (*domain.OrganizationStats, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var stats domain.OrganizationStats

	const totals = `
		SELECT COALESCE(sum(t.amount), 0), count(t.id)
		FROM transactions t
		JOIN users e ON e.uuid = t.employee_id
		WHERE e.organization_id = $1
		  AND t.transaction_type = 'tip'
		  AND t.status = 'completed'
		  AND t.created_at >= date_trunc('day', now())`

	if err := r.pool.QueryRow(ctx, totals, organizationID).Scan(&stats.TotalTipsToday, &stats.TipTransactionsToday); err != nil {
		return nil, err
	}

	const top = `
		SELECT e.uuid, e.name, COALESCE(sum(t.amount), 0), count(t.id)
		FROM transactions t
		JOIN users e ON e.uuid = t.employee_id
		WHERE e.organization_id = $1
		  AND t.transaction_type = 'tip'
		  AND t.status = 'completed'
		  AND t.created_at >= date_trunc('day', now())
		GROUP BY e.uuid, e.name
		ORDER BY sum(t.amount) DESC
		LIMIT 5`

	rows, err := r.pool.Query(ctx, top, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var te domain.TopEmployee
		if err := rows.Scan(&te.EmployeeID, &te.Name, &te.TotalTips, &te.TransactionCount); err != nil {
			return nil, err
		}
		stats.TopEmployeesToday = append(stats.TopEmployeesToday, te)
	}

	return &stats, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
