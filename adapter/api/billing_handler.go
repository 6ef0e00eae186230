package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/felixgeelhaar/reformer/internal/billing/application"
	"github.com/felixgeelhaar/reformer/internal/billing/domain"
	"github.com/felixgeelhaar/reformer/pkg/observability"
)

type billingHandler struct {
	server       *Server
	publicOrigin string
}

type urlResponse struct {
	URL string `json:"url"`
}

// origin prefers the browser's Origin header for redirect targets.
func (h *billingHandler) origin(r *http.Request) string {
	if o := strings.TrimRight(r.Header.Get("Origin"), "/"); o != "" {
		return o
	}
	if h.publicOrigin != "" {
		return strings.TrimRight(h.publicOrigin, "/")
	}
	return "http://localhost:3000"
}

// listProducts handles GET /api/products.
func (h *billingHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	catalog, err := h.server.deps.Access.Products(r.Context())
	if err != nil {
		h.server.writeServiceError(w, r, err, "Failed to list products")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": catalog.Active()})
}

// createCheckoutSession handles POST /api/create-checkout-session.
func (h *billingHandler) createCheckoutSession(w http.ResponseWriter, r *http.Request, p Principal) {
	var req checkoutRequest
	if err := h.server.validate.decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	url, err := h.server.deps.Checkout.Start(r.Context(), application.CheckoutInput{
		UserID:  p.UserID,
		Email:   p.Email,
		PriceID: req.PriceID,
		Origin:  h.origin(r),
	})
	h.server.metrics.Counter(observability.MetricCheckoutSessions, 1, observability.T("outcome", outcomeOf(err)))
	if err != nil {
		h.server.writeServiceError(w, r, err, msgCheckoutFailed)
		return
	}
	writeJSON(w, http.StatusOK, urlResponse{URL: url})
}

// createPortalSession handles POST /api/create-portal-session.
func (h *billingHandler) createPortalSession(w http.ResponseWriter, r *http.Request, p Principal) {
	url, err := h.server.deps.Portal.Open(r.Context(), p.UserID, h.origin(r))
	if err != nil {
		h.server.writeServiceError(w, r, err, msgPortalFailed)
		return
	}
	writeJSON(w, http.StatusOK, urlResponse{URL: url})
}

// accessSummary handles GET /api/me/access.
func (h *billingHandler) accessSummary(w http.ResponseWriter, r *http.Request, p Principal) {
	summary, err := h.server.deps.Access.Summary(r.Context(), p.UserID)
	if err != nil {
		h.server.writeServiceError(w, r, err, "Failed to load access")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// latestSubscription handles GET /api/me/subscription with the newest active
// subscription, or null when there is none.
func (h *billingHandler) latestSubscription(w http.ResponseWriter, r *http.Request, p Principal) {
	summary, err := h.server.deps.Access.Summary(r.Context(), p.UserID)
	if err != nil {
		h.server.writeServiceError(w, r, err, "Failed to load subscription")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscription": summary.LatestActive()})
}

// outcomeOf labels a service result for metrics.
func outcomeOf(err error) string {
	var denied *domain.AccessDeniedError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &denied):
		return "denied"
	default:
		return "error"
	}
}
