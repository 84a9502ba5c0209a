package handlers

import (
	"context"
	"net/http"

	"github.com/easytips/easytips/internal/domain"
	"github.com/easytips/easytips/pkg/logger"
)

type ctxKey string

const (
	ctxUserKey    ctxKey = "session_user"
	ctxSessionKey ctxKey = "session"
)

// SessionHeader carries the token for API clients; browsers use the cookie.
const SessionHeader = "X-Session-ID"

// RequireSession resolves the session token, attaches the identity to the
// request context and slides the session forward. Renewal failures are logged
// but never block the request.
func (h *Handlers) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.sessionToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing session", "unauthorized")
			return
		}

		user, session, err := h.auth.ResolveSession(r.Context(), token)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}

		if err := h.auth.RenewSession(r.Context(), token); err != nil {
			logger.WarnContext(r.Context(), "Failed to renew session", "error", err)
		}
		h.refreshSessionCookie(w, token)

		ctx := context.WithValue(r.Context(), ctxUserKey, user)
		ctx = context.WithValue(ctx, ctxSessionKey, session)
		ctx = context.WithValue(ctx, logger.UserIDKey, user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireKind narrows an authenticated route to one user kind.
func (h *Handlers) RequireKind(kind domain.UserKind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFromContext(r.Context())
			if user == nil || user.Kind != kind {
				writeError(w, http.StatusForbidden, "forbidden", "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func UserFromContext(ctx context.Context) *domain.User {
	user, _ := ctx.Value(ctxUserKey).(*domain.User)
	return user
}

func SessionFromContext(ctx context.Context) *domain.Session {
	session, _ := ctx.Value(ctxSessionKey).(*domain.Session)
	return session
}

func (h *Handlers) sessionToken(r *http.Request) string {
	if token := r.Header.Get(SessionHeader); token != "" {
		return token
	}
	if cookie, err := r.Cookie(h.config.Auth.CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.config.Auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.config.Auth.CookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.config.Auth.CookieSecure,
		SameSite: h.cookieSameSite(),
	})
}

func (h *Handlers) refreshSessionCookie(w http.ResponseWriter, token string) {
	h.setSessionCookie(w, token)
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.config.Auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.Auth.CookieSecure,
		SameSite: h.cookieSameSite(),
	})
}

func (h *Handlers) cookieSameSite() http.SameSite {
	switch h.config.Auth.CookieSameSite {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
