package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTip    TransactionType = "tip"
	TransactionPayout TransactionType = "payout"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

// Transaction is a ledger row. Status moves pending->completed or
// pending->failed exactly once; the beneficiary balance is credited in the
// same step as the pending->completed flip.
type Transaction struct {
	ID                      string            `json:"id"`
	UserID                  string            `json:"user_id"`
	EmployeeID              *string           `json:"employee_id,omitempty"`
	Type                    TransactionType   `json:"type"`
	Amount                  decimal.Decimal   `json:"amount"`
	Status                  TransactionStatus `json:"status"`
	EmployeeRating          *int              `json:"employee_rating,omitempty"`
	Comment                 *string           `json:"comment,omitempty"`
	PaymentMethod           *string           `json:"payment_method,omitempty"`
	StripeCheckoutSessionID *string           `json:"-"`
	StripePaymentIntentID   *string           `json:"-"`
	GuestSessionID          *string           `json:"guest_session_id,omitempty"`
	CreatedAt               time.Time         `json:"created_at"`
	UpdatedAt               time.Time         `json:"updated_at"`
}

func (t *Transaction) Terminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

type TipRequest struct {
	EmployeeID     string          `json:"employee_id"`
	Amount         decimal.Decimal `json:"amount"`
	EmployeeRating *int            `json:"employee_rating,omitempty"`
	Comment        *string         `json:"comment,omitempty"`
	GuestSessionID *string         `json:"guest_session_id,omitempty"`
}

func (r *TipRequest) Validate() error {
	if strings.TrimSpace(r.EmployeeID) == "" {
		return fmt.Errorf("employee_id is required")
	}
	if !r.Amount.IsPositive() {
		return fmt.Errorf("amount must be greater than zero")
	}
	if r.EmployeeRating != nil && (*r.EmployeeRating < 1 || *r.EmployeeRating > 5) {
		return fmt.Errorf("employee_rating must be between 1 and 5")
	}
	return nil
}

type WithdrawRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	Method  string          `json:"withdraw_type"`
	Details string          `json:"details"`
}

func (r *WithdrawRequest) Validate() error {
	if !r.Amount.IsPositive() {
		return fmt.Errorf("amount must be greater than zero")
	}
	if strings.TrimSpace(r.Method) == "" {
		return fmt.Errorf("withdraw_type is required")
	}
	return nil
}

// CheckoutResult is what the caller needs to redirect a guest to the
// payment provider.
type CheckoutResult struct {
	TransactionID     string `json:"transaction_id"`
	CheckoutSessionID string `json:"session_id"`
	RedirectURL       string `json:"url"`
	PaymentIntentID   string `json:"payment_intent_id,omitempty"`
}

type TransactionSummary struct {
	TotalTransactions int             `json:"total_transactions"`
	TipsCount         int             `json:"tips_count"`
	PayoutsCount      int             `json:"payouts_count"`
	TipsAmount        decimal.Decimal `json:"tips_amount"`
	PayoutsAmount     decimal.Decimal `json:"payouts_amount"`
	NetIncome         decimal.Decimal `json:"net_income"`
}

type TopEmployee struct {
	EmployeeID       string          `json:"employee_id"`
	Name             *string         `json:"name,omitempty"`
	TotalTips        decimal.Decimal `json:"total_tips"`
	TransactionCount int             `json:"transaction_count"`
}

type OrganizationStats struct {
	TotalTipsToday       decimal.Decimal `json:"total_tips_today"`
	TipTransactionsToday int             `json:"tip_transactions_today"`
	TotalEmployees       int             `json:"total_employees"`
	TopEmployeesToday    []TopEmployee   `json:"top_employees_today"`
}
