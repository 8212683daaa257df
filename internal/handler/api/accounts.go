package api

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/ledgerline/internal/domain"
	"github.com/dukerupert/ledgerline/internal/handler"
)

// AccountHandler serves users, clients and per-user reminder settings.
type AccountHandler struct {
	accounts  domain.AccountService
	reminders domain.ReminderService
	logger    *slog.Logger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(accounts domain.AccountService, reminders domain.ReminderService, logger *slog.Logger) *AccountHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountHandler{
		accounts:  accounts,
		reminders: reminders,
		logger:    logger,
	}
}

// CreateUser handles POST /api/users
func (h *AccountHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var params domain.CreateUserParams
	if err := handler.DecodeJSON(r, &params); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	user, err := h.accounts.CreateUser(r.Context(), params)
	if err != nil {
		handler.ValidationErrorResponse(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusCreated, user)
}

// GetUser handles GET /api/users/{id}
func (h *AccountHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.accounts.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusOK, user)
}

// CreateClient handles POST /api/clients
func (h *AccountHandler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var params domain.CreateClientParams
	if err := handler.DecodeJSON(r, &params); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	client, err := h.accounts.CreateClient(r.Context(), params)
	if err != nil {
		handler.ValidationErrorResponse(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusCreated, client)
}

// GetReminderSettings handles GET /api/users/{id}/reminder-settings.
// Users who never saved settings get the defaults.
func (h *AccountHandler) GetReminderSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.reminders.GetReminderSettings(r.Context(), r.PathValue("id"))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusOK, settings)
}

// UpdateReminderSettings handles PUT /api/users/{id}/reminder-settings.
// The body replaces the stored settings wholesale; pending reminders are
// not rescheduled until the next reschedule or send.
func (h *AccountHandler) UpdateReminderSettings(w http.ResponseWriter, r *http.Request) {
	var settings domain.ReminderSettings
	if err := handler.DecodeJSON(r, &settings); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	saved, err := h.reminders.UpdateReminderSettings(r.Context(), r.PathValue("id"), settings)
	if err != nil {
		handler.ValidationErrorResponse(w, r, err)
		return
	}

	h.logger.Info("reminder settings updated", "user_id", r.PathValue("id"), "enabled", saved.Enabled)
	handler.WriteJSON(w, http.StatusOK, saved)
}
