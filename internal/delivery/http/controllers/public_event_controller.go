package controllers

import (
	"log/slog"
	"net"
	"net/http"

	"eventadmission/internal/delivery/http/helpers"
	"eventadmission/internal/domain"
)

// PublicEventController serves published events without authentication and reports views.
type PublicEventController struct {
	Logger  *slog.Logger
	Service domain.EventService
	// AppName identifies this service in recorded hits.
	AppName string
}

func NewPublicEventController(logger *slog.Logger, svc domain.EventService, appName string) *PublicEventController {
	return &PublicEventController{
		Logger:  logger,
		Service: svc,
		AppName: appName,
	}
}

// GetEvent godoc
// @Summary Get a published event
// @Description Public read of a PUBLISHED event with its view count. Each call is recorded as a view.
// @Tags public
// @Produce json
// @Param eventID path string true "Event ID (UUID)"
// @Success 200 {object} controllers.EventSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /public/events/{eventID} [get]
func (c *PublicEventController) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	hit := domain.EndpointHit{
		App: c.AppName,
		URI: domain.EventURI(eventID),
		IP:  clientIP(r),
	}
	event, err := c.Service.GetPublishedEvent(r.Context(), eventID, hit)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, event)
}

// clientIP strips the port from RemoteAddr, which RealIP middleware has already rewritten.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
