package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/council/internal/meetingservice"
	"github.com/starford/council/internal/view"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// loc is the zone meeting times are written in.
func NewRouter(svc *meetingservice.Service, ctrl *view.Controller, authEnabled bool, token string, sseHandler http.Handler, loc *time.Location) chi.Router {
	h := NewHandler(svc, ctrl, loc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Month view and gestures.
	r.Get("/calendar", h.Calendar)
	r.Get("/calendar.ics", h.ICS)
	r.Post("/calendar/events/{id}/click", h.Click)
	r.Delete("/views/{client}", h.CloseView)

	// Meetings CRUD.
	r.Get("/meetings", h.ListMeetings)
	r.Post("/meetings", h.CreateMeeting)
	r.Get("/meetings/{id}", h.GetMeeting)
	r.Put("/meetings/{id}", h.UpdateMeeting)
	r.Delete("/meetings/{id}", h.DeleteMeeting)

	// Detail view and agenda generation.
	r.Post("/meetings/{id}/open", h.OpenMeeting)
	r.Post("/meetings/{id}/generate", h.Generate)
	r.Get("/meetings/{id}/poll", h.PollState)
	r.Delete("/meetings/{id}/poll", h.LeaveMeeting)

	r.Get("/committees", h.Committees)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
