package handler

import (
	"net/http"

	"github.com/sandeepkv93/otp-account-service/internal/http/middleware"
	"github.com/sandeepkv93/otp-account-service/internal/http/response"
	"github.com/sandeepkv93/otp-account-service/internal/i18n"
	"github.com/sandeepkv93/otp-account-service/internal/observability"
	"github.com/sandeepkv93/otp-account-service/internal/service"
)

type UserHandler struct {
	authSvc service.AuthServiceInterface
	dict    *i18n.Dictionary
}

func NewUserHandler(authSvc service.AuthServiceInterface, dict *i18n.Dictionary) *UserHandler {
	return &UserHandler{authSvc: authSvc, dict: dict}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.AccessTokenFromContext(r.Context())
	if !ok {
		writeServiceError(w, r, h.dict, service.ErrUnauthenticated)
		return
	}
	u, err := h.authSvc.Me(r.Context(), token.UserID)
	if err != nil {
		writeServiceError(w, r, h.dict, err)
		return
	}
	msg := h.dict.Message(i18n.LanguageFromContext(r.Context()), "profile_loaded", nil)
	response.Message(w, r, http.StatusOK, msg, map[string]any{"user": newUserView(u)})
}

// DeleteAccount soft-deletes the caller. Logging in again within the grace
// period restores the account.
func (h *UserHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.AccessTokenFromContext(r.Context())
	if !ok {
		writeServiceError(w, r, h.dict, service.ErrUnauthenticated)
		return
	}
	days, err := h.authSvc.DeleteAccount(r.Context(), token.UserID)
	if err != nil {
		observability.Audit(r, "account.delete.failed", "user_id", token.UserID, "reason", errorReason(err))
		writeServiceError(w, r, h.dict, err)
		return
	}
	observability.AuditStructured(r, observability.AuditInput{
		EventName:   "account.delete.success",
		ActorUserID: token.UserID,
		TargetType:  "user",
		TargetID:    token.UserID,
		Action:      "soft_delete",
		Outcome:     "success",
	})
	msg := h.dict.Message(i18n.LanguageFromContext(r.Context()), "account_deleted", map[string]any{"days": days})
	response.Message(w, r, http.StatusOK, msg, map[string]int{"graceDays": days})
}
