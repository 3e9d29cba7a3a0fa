package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/council/internal/calendar"
	"github.com/starford/council/internal/icalendar"
	"github.com/starford/council/internal/meetingservice"
	"github.com/starford/council/internal/models"
	"github.com/starford/council/internal/view"
)

const (
	conflictMessage = view.MsgConfirmRequired
	defaultClient   = "default"
	maxBodyBytes    = 1 << 20
)

// Handler holds API route handlers.
type Handler struct {
	svc  *meetingservice.Service
	view *view.Controller
	loc  *time.Location
	now  func() time.Time
}

// NewHandler creates a new Handler. loc is the zone the council meets in.
func NewHandler(svc *meetingservice.Service, ctrl *view.Controller, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{svc: svc, view: ctrl, loc: loc, now: time.Now}
}

func clientID(r *http.Request) string {
	if c := r.URL.Query().Get("client"); c != "" {
		return c
	}
	return defaultClient
}

// monthRef parses ?month=YYYY-MM, defaulting to the current month.
func (h *Handler) monthRef(r *http.Request) (time.Time, bool) {
	s := r.URL.Query().Get("month")
	if s == "" {
		return h.now().In(h.loc), true
	}
	t, err := calendar.ParseMonth(s)
	return t, err == nil
}

// Calendar handles GET /api/calendar.
//
//	@Summary		Month grid with the meetings placed on it
//	@Tags			calendar
//	@Produce		json
//	@Param			month	query		string	false	"Month (YYYY-MM)"
//	@Param			client	query		string	false	"View client id"
//	@Success		200		{object}	view.MonthView
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/calendar [get]
func (h *Handler) Calendar(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.monthRef(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("month must be YYYY-MM"))
		return
	}
	writeJSON(w, http.StatusOK, h.view.Month(r.Context(), clientID(r), ref))
}

// Click handles POST /api/calendar/events/{id}/click.
//
//	@Summary		Raw click on a displayed meeting
//	@Description	Single and double clicks are told apart server-side; the resulting intent arrives on the event stream.
//	@Tags			calendar
//	@Param			id		path	string	true	"Meeting id"
//	@Param			client	query	string	false	"View client id"
//	@Success		202
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/calendar/events/{id}/click [post]
func (h *Handler) Click(w http.ResponseWriter, r *http.Request) {
	if err := h.view.Click(clientID(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, "click", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// CloseView handles DELETE /api/views/{client}.
func (h *Handler) CloseView(w http.ResponseWriter, r *http.Request) {
	if !h.view.CloseClient(chi.URLParam(r, "client")) {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMeetings handles GET /api/meetings.
//
//	@Summary		List meetings
//	@Tags			meetings
//	@Produce		json
//	@Param			from			query		string	false	"First date (YYYY-MM-DD)"
//	@Param			to				query		string	false	"Last date (YYYY-MM-DD)"
//	@Param			committee		query		string	false	"Committee"
//	@Param			doc_status		query		int		false	"0 draft, 1 submitted, 2 cancelled"
//	@Param			has_document	query		bool	false	"Only meetings with (or without) an agenda"
//	@Param			upcoming		query		bool	false	"Draft meetings from today on"
//	@Param			limit			query		int		false	"Max results"
//	@Success		200				{object}	map[string]any
//	@Security		BearerAuth
//	@Router			/meetings [get]
func (h *Handler) ListMeetings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		items []models.Meeting
		err   error
	)
	if upcoming, _ := strconv.ParseBool(q.Get("upcoming")); upcoming {
		items, err = h.svc.Upcoming(r.Context(), q.Get("committee"))
	} else {
		f := models.MeetingFilter{From: q.Get("from"), To: q.Get("to"), Committee: q.Get("committee")}
		f.Limit, _ = strconv.Atoi(q.Get("limit"))
		if s := q.Get("doc_status"); s != "" {
			n, convErr := strconv.Atoi(s)
			if convErr != nil {
				writeJSON(w, http.StatusBadRequest, errorBody("doc_status must be 0, 1 or 2"))
				return
			}
			st := models.DocStatus(n)
			f.DocStatus = &st
		}
		if s := q.Get("has_document"); s != "" {
			b, convErr := strconv.ParseBool(s)
			if convErr != nil {
				writeJSON(w, http.StatusBadRequest, errorBody("has_document must be a boolean"))
				return
			}
			f.HasDocument = &b
		}
		items, err = h.svc.List(r.Context(), f, models.OrderDateTime)
	}
	if err != nil {
		writeError(w, "list meetings", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"meetings": items,
		"total":    len(items),
	})
}

// GetMeeting handles GET /api/meetings/{id}.
func (h *Handler) GetMeeting(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	m, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, "get meeting", err, slog.String("meeting_id", id))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// CreateMeeting handles POST /api/meetings.
//
//	@Summary		Create a meeting; its agenda is generated in the background
//	@Tags			meetings
//	@Accept			json
//	@Produce		json
//	@Param			body	body		models.Meeting	true	"Meeting to create"
//	@Success		201		{object}	models.Meeting
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/meetings [post]
func (h *Handler) CreateMeeting(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var m models.Meeting
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	m.ID = ""
	id, err := h.svc.Insert(r.Context(), &m)
	if err != nil {
		writeError(w, "create meeting", err)
		return
	}
	created, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, "create meeting", err, slog.String("meeting_id", id))
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// UpdateMeeting handles PUT /api/meetings/{id}. Absent fields are left unchanged.
func (h *Handler) UpdateMeeting(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	id := chi.URLParam(r, "id")
	var p models.MeetingPatch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.svc.Update(r.Context(), id, p); err != nil {
		writeError(w, "update meeting", err, slog.String("meeting_id", id))
		return
	}
	m, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, "update meeting", err, slog.String("meeting_id", id))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// DeleteMeeting handles DELETE /api/meetings/{id}?confirm=true.
//
//	@Summary		Delete a meeting and its agenda
//	@Tags			meetings
//	@Param			id		path	string	true	"Meeting id"
//	@Param			confirm	query	bool	true	"Must be true"
//	@Success		204
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/meetings/{id} [delete]
func (h *Handler) DeleteMeeting(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	if err := h.view.Delete(r.Context(), clientID(r), id, confirmed); err != nil {
		writeError(w, "delete meeting", err, slog.String("meeting_id", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// OpenMeeting handles POST /api/meetings/{id}/open: the detail view was
// entered. Polling resumes when the agenda is still missing.
func (h *Handler) OpenMeeting(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	m, err := h.view.OpenMeeting(r.Context(), clientID(r), id)
	if err != nil {
		writeError(w, "open meeting", err, slog.String("meeting_id", id))
		return
	}
	resp := map[string]any{"meeting": m}
	if st, ok := h.view.PollState(id); ok {
		resp["poll"] = st
	}
	writeJSON(w, http.StatusOK, resp)
}

// LeaveMeeting handles DELETE /api/meetings/{id}/poll: the detail view was left.
func (h *Handler) LeaveMeeting(w http.ResponseWriter, r *http.Request) {
	if !h.view.Leave(chi.URLParam(r, "id")) {
		writeJSON(w, http.StatusNotFound, errorBody("no active poll"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Generate handles POST /api/meetings/{id}/generate.
//
//	@Summary		Regenerate the agenda PDF
//	@Tags			meetings
//	@Param			id	path		string	true	"Meeting id"
//	@Success		202	{object}	poller.PollState
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/meetings/{id}/generate [post]
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.view.Generate(r.Context(), id); err != nil {
		writeError(w, "generate agenda", err, slog.String("meeting_id", id))
		return
	}
	st, _ := h.view.PollState(id)
	writeJSON(w, http.StatusAccepted, st)
}

// PollState handles GET /api/meetings/{id}/poll.
func (h *Handler) PollState(w http.ResponseWriter, r *http.Request) {
	st, ok := h.view.PollState(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("no active poll"))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Committees handles GET /api/committees.
func (h *Handler) Committees(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Committees(r.Context())
	if err != nil {
		writeError(w, "list committees", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"committees": items})
}

// ICS handles GET /api/calendar.ics?month=YYYY-MM. Without a month the
// feed covers the current month and the next twelve.
func (h *Handler) ICS(w http.ResponseWriter, r *http.Request) {
	var f models.MeetingFilter
	if r.URL.Query().Get("month") != "" {
		ref, ok := h.monthRef(r)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorBody("month must be YYYY-MM"))
			return
		}
		m := calendar.Build(ref, ref)
		f.From, f.To = m.RangeStart, m.RangeEnd
	} else {
		now := h.now().In(h.loc)
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, h.loc)
		f.From = first.Format(calendar.DateLayout)
		f.To = first.AddDate(1, 1, -1).Format(calendar.DateLayout)
	}

	items, err := h.svc.List(r.Context(), f, models.OrderDateTime)
	if err != nil {
		writeError(w, "export calendar", err)
		return
	}
	body, skipped := icalendar.Export(items, icalendar.ExportOptions{
		Location: h.loc,
		BaseURL:  baseURL(r),
		Name:     "Council Meetings",
		Now:      h.now(),
	})
	if len(skipped) > 0 {
		slog.Warn("calendar export skipped meetings", slog.Int("count", len(skipped)))
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="council.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

