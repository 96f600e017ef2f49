package controllers

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"eventadmission/internal/delivery/http/helpers"
	"eventadmission/internal/domain"
)

// ChangeRequestStatusRequest is the request body for PATCH /events/{eventID}/requests.
type ChangeRequestStatusRequest struct {
	RequestIDs []string `json:"request_ids"`
	Status     string   `json:"status" example:"CONFIRMED"`
}

// Validate implements Validator. Empty and duplicate id lists are rejected by the service.
func (c ChangeRequestStatusRequest) Validate() []string {
	var errs []string
	if c.Status == "" {
		errs = append(errs, "status is required")
	}
	for _, id := range c.RequestIDs {
		if uuid.Validate(id) != nil {
			errs = append(errs, "request_ids must be valid UUIDs")
			break
		}
	}
	return errs
}

// RequestSuccessResponse is the success response envelope for endpoints returning one request.
type RequestSuccessResponse struct {
	Data  *domain.ParticipationRequest `json:"data"`
	Error *helpers.APIError            `json:"error"`
}

// RequestListSuccessResponse is the success response envelope for request listings.
type RequestListSuccessResponse struct {
	Data  []*domain.ParticipationRequest `json:"data"`
	Error *helpers.APIError              `json:"error"`
}

// StatusUpdateSuccessResponse is the success response envelope for PATCH /events/{eventID}/requests.
type StatusUpdateSuccessResponse struct {
	Data  *domain.RequestStatusUpdateResult `json:"data"`
	Error *helpers.APIError                 `json:"error"`
}

type RequestController struct {
	Logger  *slog.Logger
	Service domain.AdmissionService
}

func NewRequestController(logger *slog.Logger, svc domain.AdmissionService) *RequestController {
	return &RequestController{
		Logger:  logger,
		Service: svc,
	}
}

// CreateRequest godoc
// @Summary Request to participate in an event
// @Description Files a participation request. It is CONFIRMED immediately when the event does not moderate requests, PENDING otherwise.
// @Tags requests
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Success 201 {object} controllers.RequestSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict (own event, not published, duplicate, full)"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/requests [post]
func (c *RequestController) CreateRequest(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}
	req, err := c.Service.CreateRequest(r.Context(), p.UserID, eventID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, req)
}

// ListEventRequests godoc
// @Summary List requests for an event
// @Description Initiator or administrator view of all participation requests for the event.
// @Tags requests
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Success 200 {object} controllers.RequestListSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict (not the initiator)"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/requests [get]
func (c *RequestController) ListEventRequests(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}
	reqs, err := c.Service.ListEventRequests(r.Context(), p.Actor(), eventID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	if reqs == nil {
		reqs = []*domain.ParticipationRequest{}
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, reqs)
}

// ChangeRequestStatus godoc
// @Summary Confirm or reject pending requests
// @Description Batch decision in caller order. Requests beyond the remaining capacity are rejected; once the event is full every other pending request is rejected too.
// @Tags requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Param body body ChangeRequestStatusRequest true "Request ids and target status (CONFIRMED or REJECTED)"
// @Success 200 {object} controllers.StatusUpdateSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/requests [patch]
func (c *RequestController) ChangeRequestStatus(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	var req ChangeRequestStatusRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}
	result, err := c.Service.ChangeRequestStatus(r.Context(), p.Actor(), eventID, req.RequestIDs, domain.RequestStatus(req.Status))
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, result)
}

// ListMyRequests godoc
// @Summary List my participation requests
// @Description Requests filed by the authenticated user, newest first.
// @Tags requests
// @Produce json
// @Security BearerAuth
// @Success 200 {object} controllers.RequestListSuccessResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found (unknown user)"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /requests [get]
func (c *RequestController) ListMyRequests(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	reqs, err := c.Service.ListRequesterRequests(r.Context(), p.UserID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	if reqs == nil {
		reqs = []*domain.ParticipationRequest{}
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, reqs)
}

// CancelRequest godoc
// @Summary Cancel my participation request
// @Description Cancels a PENDING or CONFIRMED request; a confirmed one frees its slot.
// @Tags requests
// @Produce json
// @Security BearerAuth
// @Param requestID path string true "Request ID (UUID)"
// @Success 200 {object} controllers.RequestSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict (already rejected or canceled)"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /requests/{requestID}/cancel [patch]
func (c *RequestController) CancelRequest(w http.ResponseWriter, r *http.Request) {
	requestID, ok := pathID(w, r, "requestID")
	if !ok {
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}
	req, err := c.Service.CancelRequest(r.Context(), p.UserID, requestID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, req)
}
