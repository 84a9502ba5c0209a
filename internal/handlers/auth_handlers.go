package handlers

import (
	"net/http"

	"github.com/easytips/easytips/internal/domain"
	"github.com/easytips/easytips/pkg/logger"
	"github.com/go-chi/chi/v5"
)

type loginResponse struct {
	SessionID string           `json:"session_id"`
	User      *domain.UserInfo `json:"user"`
	Created   bool             `json:"created,omitempty"`
}

func (h *Handlers) newLoginResponse(w http.ResponseWriter, result *domain.LoginResult) *loginResponse {
	h.setSessionCookie(w, result.Session.Token)
	return &loginResponse{
		SessionID: result.Session.Token,
		User:      result.User.ToUserInfo(),
		Created:   result.Created,
	}
}

// SendCode issues a verification code for a phone number.
// POST /auth/send-code
func (h *Handlers) SendCode(w http.ResponseWriter, r *http.Request) {
	var req domain.SendCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}

	if err := h.auth.SendCode(r.Context(), req.Phone); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "verification code sent"})
}

// VerifyCode exchanges a phone + code for a session.
// POST /auth/verify-code
func (h *Handlers) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}

	result, err := h.auth.VerifyCode(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, h.newLoginResponse(w, result))
}

// OrganizationLogin authenticates an organization by login and password.
// POST /auth/org/login
func (h *Handlers) OrganizationLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.OrganizationLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}

	result, err := h.auth.OrganizationLogin(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.newLoginResponse(w, result))
}

// RegisterOrganization creates an organization account and logs it in.
// POST /auth/org/register
func (h *Handlers) RegisterOrganization(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterOrganizationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}

	result, err := h.auth.RegisterOrganization(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.newLoginResponse(w, result))
}

// GuestLogin mints an anonymous guest identity and session.
// POST /auth/guest
func (h *Handlers) GuestLogin(w http.ResponseWriter, r *http.Request) {
	result, err := h.auth.GuestLogin(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.newLoginResponse(w, result))
}

// Logout revokes the current session. Safe to repeat.
// POST /auth/logout
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	token := h.sessionToken(r)
	if token != "" {
		if err := h.auth.Logout(r.Context(), token); err != nil {
			logger.ErrorContext(r.Context(), "Failed to revoke session", "error", err)
		}
	}
	h.clearSessionCookie(w)

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// GetProfile returns the authenticated user's profile.
// GET /profile
func (h *Handlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, user.ToUserInfo())
}

// UpdateProfile applies a partial profile update and recomputes completeness.
// PUT /profile
func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}

	user := UserFromContext(r.Context())
	updated, err := h.auth.UpdateProfile(r.Context(), user.ID, &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, updated.ToUserInfo())
}

// CompleteProfile is the one-shot first-fill of a fresh profile. Conflicts
// once the profile is already complete.
// POST /profile/complete
func (h *Handlers) CompleteProfile(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}

	user := UserFromContext(r.Context())
	updated, err := h.auth.CompleteProfile(r.Context(), user, &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, updated.ToUserInfo())
}

// ProfileStatus reports whether the profile still needs its first fill.
// GET /profile/status
func (h *Handlers) ProfileStatus(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"is_profile_complete": user.IsProfileComplete,
		"kind":                user.Kind,
	})
}

// GetEmployee returns the public tip-form view of an employee.
// GET /employees/{id}
func (h *Handlers) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	user, err := h.auth.GetUser(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if user.Kind != domain.KindEmployee {
		writeError(w, http.StatusNotFound, "not found", "not_found")
		return
	}

	// Public endpoint: no balance, no contacts.
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":           user.ID,
		"name":         user.Name,
		"avatar_url":   user.AvatarURL,
		"goal":         user.Goal,
		"payment_goal": user.PaymentGoal,
	})
}

// CreateEmployee registers (or claims) an employee under the calling
// organization.
// POST /org/employees
func (h *Handlers) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateEmployeeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}

	organization := UserFromContext(r.Context())
	employee, err := h.auth.CreateEmployee(r.Context(), organization, &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, employee.ToUserInfo())
}
