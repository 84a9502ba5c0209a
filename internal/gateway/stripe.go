package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/easytips/easytips/internal/domain"
	"github.com/easytips/easytips/pkg/config"
	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Stripe amounts are integer minor units.
var decimalHundred = decimal.NewFromInt(100)

type StripeGateway struct {
	api           *client.API
	webhookSecret string
	currency      string
}

func NewStripeGateway(cfg config.StripeConfig) *StripeGateway {
	return &StripeGateway{
		api:           client.New(cfg.SecretKey, nil),
		webhookSecret: cfg.WebhookSecret,
		currency:      cfg.Currency,
	}
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, user *domain.User) (string, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	if user.Email != nil {
		params.Email = stripe.String(*user.Email)
	}
	if user.Phone != nil {
		params.Phone = stripe.String(*user.Phone)
	}
	if user.Name != nil {
		params.Name = stripe.String(*user.Name)
	}
	params.AddMetadata("user_uuid", user.ID)
	params.AddMetadata("user_type", string(user.Kind))

	cust, err := g.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("%w: create customer: %v", domain.ErrGateway, err)
	}

	return cust.ID, nil
}

func (g *StripeGateway) CreateCheckout(ctx context.Context, p CheckoutParams) (*Checkout, error) {
	currency := p.Currency
	if currency == "" {
		currency = g.currency
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String("Tip"),
					Description: stripe.String(p.Description),
				},
				UnitAmount: stripe.Int64(p.Amount.Mul(decimalHundred).IntPart()),
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
	}
	params.Context = ctx
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: create checkout session: %v", domain.ErrGateway, err)
	}

	out := &Checkout{
		CheckoutSessionID: sess.ID,
		RedirectURL:       sess.URL,
	}
	if sess.PaymentIntent != nil {
		out.PaymentIntentID = sess.PaymentIntent.ID
	}

	return out, nil
}

func (g *StripeGateway) VerifyWebhook(payload []byte, signatureHeader string) (*Event, error) {
	ev, err := webhook.ConstructEvent(payload, signatureHeader, g.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid webhook signature: %v", domain.ErrGateway, err)
	}

	switch string(ev.Type) {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("%w: decode payment intent: %v", domain.ErrGateway, err)
		}
		kind := EventPaymentSucceeded
		if string(ev.Type) == "payment_intent.payment_failed" {
			kind = EventPaymentFailed
		}
		return &Event{Kind: kind, PaymentIntentID: pi.ID, Metadata: pi.Metadata}, nil

	case "checkout.session.completed":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("%w: decode checkout session: %v", domain.ErrGateway, err)
		}
		out := &Event{Kind: EventCheckoutCompleted, CheckoutSessionID: cs.ID, Metadata: cs.Metadata}
		if cs.PaymentIntent != nil {
			out.PaymentIntentID = cs.PaymentIntent.ID
		}
		return out, nil

	case "charge.succeeded":
		var ch stripe.Charge
		if err := json.Unmarshal(ev.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("%w: decode charge: %v", domain.ErrGateway, err)
		}
		out := &Event{Kind: EventChargeSucceeded, Metadata: ch.Metadata}
		if ch.PaymentIntent != nil {
			out.PaymentIntentID = ch.PaymentIntent.ID
		}
		return out, nil
	}

	return &Event{Kind: EventIgnored}, nil
}
