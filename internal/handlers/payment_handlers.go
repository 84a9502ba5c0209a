package handlers

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/easytips/easytips/internal/domain"
	"github.com/easytips/easytips/pkg/logger"
)

// maxWebhookBody bounds webhook payload reads. Stripe events are small.
const maxWebhookBody = 1 << 16

// InitiateTip opens a checkout for a tip to an employee.
// POST /payments/tips
func (h *Handlers) InitiateTip(w http.ResponseWriter, r *http.Request) {
	var req domain.TipRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}

	payer := UserFromContext(r.Context())
	if req.GuestSessionID == nil {
		if session := SessionFromContext(r.Context()); session != nil {
			req.GuestSessionID = &session.Token
		}
	}

	result, err := h.payments.InitiateTip(r.Context(), payer, &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// Webhook receives gateway event deliveries. A 2xx acknowledges the event;
// anything else makes the gateway retry, so only verification failures and
// transient errors are non-2xx.
// POST /payments/webhook
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read payload", "bad_request")
		return
	}
	defer r.Body.Close()

	event, err := h.gateway.VerifyWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		logger.WarnContext(r.Context(), "Webhook verification failed", "error", err)
		writeError(w, http.StatusBadRequest, "invalid signature", "invalid_signature")
		return
	}

	if err := h.payments.ReconcileEvent(r.Context(), event); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

// Withdraw debits the caller's balance into a completed payout.
// POST /payments/withdraw
func (h *Handlers) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req domain.WithdrawRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}

	user := UserFromContext(r.Context())
	txn, err := h.payments.Withdraw(r.Context(), user, &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, txn)
}

// Balance returns the caller's current balance.
// GET /payments/balance
func (h *Handlers) Balance(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	balance, err := h.payments.Balance(r.Context(), user.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"balance": balance})
}

// Transactions lists the caller's recent ledger entries. Employees see tips
// they received, everyone else sees transactions they created.
// GET /payments/transactions
func (h *Handlers) Transactions(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	txns, err := h.payments.History(r.Context(), user, limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if txns == nil {
		txns = []domain.Transaction{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": txns})
}

// Statistics summarizes the caller's ledger over an optional date range.
// GET /payments/statistics?from=RFC3339&to=RFC3339
func (h *Handlers) Statistics(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	from, err := parseTimeParam(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from parameter, use RFC3339", "bad_request")
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to parameter, use RFC3339", "bad_request")
		return
	}

	summary, err := h.payments.Statistics(r.Context(), user, from, to)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// OrganizationStatistics returns today's tip totals and top employees for the
// calling organization.
// GET /payments/organization/statistics
func (h *Handlers) OrganizationStatistics(w http.ResponseWriter, r *http.Request) {
	organization := UserFromContext(r.Context())

	stats, err := h.payments.OrganizationStatistics(r.Context(), organization.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// TipFormURL returns the URL an employee encodes into their QR code.
// GET /payments/qr
func (h *Handlers) TipFormURL(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{
		"url": h.payments.EmployeeTipFormURL(user.ID),
	})
}

func parseTimeParam(r *http.Request, name string) (*time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
