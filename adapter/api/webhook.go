package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/felixgeelhaar/reformer/internal/billing/domain"
)

// maxWebhookBody is the largest processor event accepted.
const maxWebhookBody = 1 << 20

type webhookAck struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// webhookHandler verifies and reconciles processor events. Verification
// uses the raw body bytes exactly as received.
type webhookHandler struct {
	verifier   WebhookVerifier
	reconciler EventReconciler
	logger     *slog.Logger
}

func (h *webhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Could not read body")
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		writeError(w, http.StatusBadRequest, "Missing Stripe-Signature header")
		return
	}

	evt, err := h.verifier.Verify(payload, signature)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSignature) {
			h.logger.WarnContext(r.Context(), "webhook signature verification failed", "error", err)
			writeError(w, http.StatusBadRequest, "Invalid signature")
			return
		}
		h.logger.ErrorContext(r.Context(), "webhook event could not be decoded", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid event payload")
		return
	}

	result, err := h.reconciler.Reconcile(r.Context(), evt)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "webhook processing failed",
			"event_id", evt.EventID(),
			"event_type", evt.EventType(),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "Webhook processing failed")
		return
	}

	writeJSON(w, http.StatusOK, webhookAck{
		Received:  true,
		Duplicate: result.Outcome == domain.OutcomeDuplicate,
	})
}
