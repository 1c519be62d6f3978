package handler

import (
	"io"
	"net/http"

	"membersync/internal/webhook"
	"membersync/pkg/apierror"
	"membersync/pkg/response"
)

// maxWebhookBody bounds an inbound webhook payload.
const maxWebhookBody = 1 << 20

// WebhookHandler receives change notifications from the remote system.
type WebhookHandler struct {
	validator *webhook.Validator
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(validator *webhook.Validator) *WebhookHandler {
	return &WebhookHandler{validator: validator}
}

// Receive handles POST /webhooks/membership. Malformed, replayed or
// duplicate deliveries respond 200 with an explicit reason — the remote
// retries on error statuses, and redelivering a bad event cannot fix it.
// Signature failures respond 401.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		response.Error(w, apierror.BadRequest("unreadable request body"))
		return
	}
	defer r.Body.Close()

	result, err := h.validator.Process(r.Context(), body, r.Header.Get("X-Webhook-Signature"))
	if err != nil {
		// Infrastructure failure: a retried delivery may succeed.
		response.Error(w, apierror.ServiceUnavailable("webhook processing unavailable"))
		return
	}

	if !result.Accepted && result.Reason == webhook.ReasonBadSignature {
		response.Error(w, apierror.Unauthorized("invalid webhook signature"))
		return
	}

	response.OK(w, result)
}
