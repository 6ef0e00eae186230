package api

import (
	"errors"
	"net/http"

	"github.com/felixgeelhaar/reformer/internal/billing/domain"
)

// Localized user-facing messages.
const (
	msgAlreadyOwned      = "Ya compraste este contenido"
	msgAlreadySubscribed = "Ya tienes una suscripción activa"
	msgNoSubscription    = "No se encontró una suscripción"
	msgProductNotFound   = "Producto no encontrado"
	msgMissingEmail      = "User email not found"
	msgCheckoutFailed    = "Error al crear la sesión de pago"
	msgPortalFailed      = "Error al crear la sesión del portal"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: http.StatusText(status), Message: message})
}

// writeServiceError maps application errors to responses. Anything not
// recognized is logged and reported as 500 with fallback as the message.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var denied *domain.AccessDeniedError
	switch {
	case errors.As(err, &denied):
		writeJSON(w, http.StatusForbidden, errorBody{
			Error:   http.StatusText(http.StatusForbidden),
			Message: denied.Reason.Message(),
			Reason:  string(denied.Reason),
		})
	case errors.Is(err, domain.ErrAlreadyOwned):
		writeError(w, http.StatusBadRequest, msgAlreadyOwned)
	case errors.Is(err, domain.ErrAlreadySubscribed):
		writeError(w, http.StatusBadRequest, msgAlreadySubscribed)
	case errors.Is(err, domain.ErrNoCustomer):
		writeError(w, http.StatusBadRequest, msgNoSubscription)
	case errors.Is(err, domain.ErrMissingEmail):
		writeError(w, http.StatusBadRequest, msgMissingEmail)
	case errors.Is(err, domain.ErrMissingPrice):
		writeError(w, http.StatusBadRequest, "price id is required")
	case errors.Is(err, domain.ErrProductNotFound):
		writeError(w, http.StatusNotFound, msgProductNotFound)
	case errors.Is(err, domain.ErrContentNotFound):
		writeError(w, http.StatusNotFound, "Content not found")
	case errors.Is(err, domain.ErrInvalidSignature):
		writeError(w, http.StatusBadRequest, "Invalid signature")
	default:
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
