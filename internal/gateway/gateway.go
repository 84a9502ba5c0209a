package gateway

import (
	"context"

	"github.com/easytips/easytips/internal/domain"
	"github.com/shopspring/decimal"
)

// Checkout is the provider's answer to a checkout request: where to send the
// payer and the references we will later reconcile against.
type Checkout struct {
	CheckoutSessionID string
	RedirectURL       string
	PaymentIntentID   string
}

type CheckoutParams struct {
	Amount      decimal.Decimal
	Currency    string
	CustomerID  string
	Description string
	Metadata    map[string]string
	SuccessURL  string
	CancelURL   string
}

type EventKind string

const (
	EventPaymentSucceeded  EventKind = "payment_succeeded"
	EventCheckoutCompleted EventKind = "checkout_completed"
	EventChargeSucceeded   EventKind = "charge_succeeded"
	EventPaymentFailed     EventKind = "payment_failed"
	EventIgnored           EventKind = "ignored"
)

// Event is a signature-verified webhook delivery normalized to the few
// fields reconciliation needs.
type Event struct {
	Kind              EventKind
	PaymentIntentID   string
	CheckoutSessionID string
	Metadata          map[string]string
}

// PaymentGateway is the boundary to the external payment provider. Calls are
// bounded synchronous round trips; retries belong to the caller.
type PaymentGateway interface {
	CreateCustomer(ctx context.Context, user *domain.User) (string, error)
	CreateCheckout(ctx context.Context, params CheckoutParams) (*Checkout, error)
	// VerifyWebhook authenticates a raw webhook payload. Payloads are
	// untrusted until this returns.
	VerifyWebhook(payload []byte, signatureHeader string) (*Event, error)
}
