package handler

import (
	"encoding/json"
	"net/http"

	"membersync/internal/model"
	"membersync/internal/registration"
	"membersync/pkg/apierror"
	"membersync/pkg/response"
)

// RegistrationHandler serves write-through registration operations.
type RegistrationHandler struct {
	service *registration.Service
}

// NewRegistrationHandler creates a registration handler.
func NewRegistrationHandler(service *registration.Service) *RegistrationHandler {
	return &RegistrationHandler{service: service}
}

// Create handles POST /api/v1/registrations. A queued result responds 202.
func (h *RegistrationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.RegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	if req.EventID <= 0 {
		response.Error(w, apierror.BadRequest("event_id is required"))
		return
	}
	if req.MemberID <= 0 {
		response.Error(w, apierror.BadRequest("member_id is required"))
		return
	}
	req.Actor = r.Header.Get("X-Actor")

	result, err := h.service.Create(r.Context(), req)
	if err != nil {
		response.Error(w, mapRemoteError(err))
		return
	}

	writeResult(w, result)
}

// Cancel handles DELETE /api/v1/registrations.
func (h *RegistrationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req model.CancellationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	if req.RegistrationID <= 0 {
		response.Error(w, apierror.BadRequest("registration_id is required"))
		return
	}
	req.Actor = r.Header.Get("X-Actor")

	result, err := h.service.Cancel(r.Context(), req)
	if err != nil {
		response.Error(w, mapRemoteError(err))
		return
	}

	writeResult(w, result)
}

func writeResult(w http.ResponseWriter, result *model.WriteResult) {
	if result.Status == model.WriteQueued {
		response.Accepted(w, result)
		return
	}
	response.OK(w, result)
}
