package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/council/internal/docgen"
	"github.com/starford/council/internal/meetingservice"
	"github.com/starford/council/internal/models"
	"github.com/starford/council/internal/poller"
	"github.com/starford/council/internal/storage"
	"github.com/starford/council/internal/testutil"
	"github.com/starford/council/internal/view"
)

var testNow = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

type fakeGen struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeGen) RequestDocumentGeneration(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	return nil
}

func (f *fakeGen) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ids)
}

type nopNav struct{}

func (nopNav) OpenDetail(context.Context, string, *models.Meeting)   {}
func (nopNav) OpenDocument(context.Context, string, *models.Meeting) {}

type testEnv struct {
	gen    *fakeGen
	router http.Handler
}

// newTestEnv sets up a temp database, agenda directory, service, view and
// router. A non-empty token enables auth.
func newTestEnv(t *testing.T, token string, sseHandler http.Handler) *testEnv {
	t.Helper()

	db := testutil.TestDB(t)
	if err := db.EnsureCommittees(context.Background(), []string{"Education", "Finance"}); err != nil {
		t.Fatal(err)
	}
	_, files := testutil.TestFiles(t)

	gen := &fakeGen{}
	clock := func() time.Time { return testNow }
	svc := meetingservice.NewService(db, files, gen, meetingservice.WithClock(clock))

	polls := poller.New(svc, nil, poller.WithInterval(20*time.Millisecond), poller.WithMaxAttempts(50))
	t.Cleanup(polls.Close)

	ctrl := view.NewController(svc, polls, nopNav{}, nil, view.WithClock(clock))
	t.Cleanup(ctrl.Close)

	return &testEnv{
		gen:    gen,
		router: NewRouter(svc, ctrl, token != "", token, sseHandler, time.UTC),
	}
}

func (e *testEnv) do(method, target string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) create(t *testing.T, m map[string]any) models.Meeting {
	t.Helper()
	w := e.do(http.MethodPost, "/meetings", m)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var created models.Meeting
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	return created
}

func meetingBody(date, clock string) map[string]any {
	return map[string]any{
		"meeting_date": date,
		"meeting_time": clock,
		"meeting_type": models.MeetingTypeStandingCommittee,
		"committee":    "Education",
	}
}

func TestCreateAndGetMeeting(t *testing.T) {
	env := newTestEnv(t, "", nil)

	created := env.create(t, meetingBody("2025-01-14", "18:30"))
	if created.ID == "" {
		t.Fatal("created meeting has no id")
	}
	if env.gen.count() != 1 {
		t.Errorf("generation requests = %d, want 1", env.gen.count())
	}

	w := env.do(http.MethodGet, "/meetings/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var got models.Meeting
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.MeetingDate != "2025-01-14" || got.Committee != "Education" {
		t.Errorf("got %+v", got)
	}
}

func TestCreateMeetingValidation(t *testing.T) {
	env := newTestEnv(t, "", nil)

	body := meetingBody("", "18:30")
	body["committee"] = "Parks"
	w := env.do(http.MethodPost, "/meetings", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var resp errResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	for _, field := range []string{"meeting_date", "committee"} {
		if resp.Fields[field] == "" {
			t.Errorf("missing field error for %s: %+v", field, resp.Fields)
		}
	}
}

func TestCreateMeetingInvalidJSON(t *testing.T) {
	env := newTestEnv(t, "", nil)

	req := httptest.NewRequest(http.MethodPost, "/meetings", strings.NewReader("{"))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestUpdateMeeting(t *testing.T) {
	env := newTestEnv(t, "", nil)
	created := env.create(t, meetingBody("2025-01-14", "18:30"))

	w := env.do(http.MethodPut, "/meetings/"+created.ID, map[string]any{"location": "Room 3"})
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", w.Code, w.Body.String())
	}
	var got models.Meeting
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.Location != "Room 3" || got.MeetingTime == "" {
		t.Errorf("updated = %+v", got)
	}
	if env.gen.count() != 2 {
		t.Errorf("generation requests = %d, want 2", env.gen.count())
	}
}

func TestUpdateMeeting_NotFound(t *testing.T) {
	env := newTestEnv(t, "", nil)
	w := env.do(http.MethodPut, "/meetings/missing", map[string]any{"location": "x"})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	env := newTestEnv(t, "", nil)
	created := env.create(t, meetingBody("2025-01-14", "18:30"))

	w := env.do(http.MethodDelete, "/meetings/"+created.ID, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("unconfirmed delete = %d, want 409", w.Code)
	}

	w = env.do(http.MethodDelete, "/meetings/"+created.ID+"?confirm=true", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("confirmed delete = %d, body = %s", w.Code, w.Body.String())
	}

	w = env.do(http.MethodGet, "/meetings/"+created.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}

func TestListMeetings(t *testing.T) {
	env := newTestEnv(t, "", nil)
	env.create(t, meetingBody("2025-01-20", "09:00"))
	env.create(t, meetingBody("2025-01-14", "18:30"))
	env.create(t, meetingBody("2025-02-03", "18:30"))

	w := env.do(http.MethodGet, "/meetings?from=2025-01-01&to=2025-01-31", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var resp struct {
		Meetings []models.Meeting `json:"meetings"`
		Total    int              `json:"total"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 2 {
		t.Fatalf("total = %d, want 2", resp.Total)
	}
	if resp.Meetings[0].MeetingDate != "2025-01-14" {
		t.Errorf("first = %s, want 2025-01-14", resp.Meetings[0].MeetingDate)
	}

	w = env.do(http.MethodGet, "/meetings?has_document=true", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 0 {
		t.Errorf("with document = %d, want 0", resp.Total)
	}

	w = env.do(http.MethodGet, "/meetings?doc_status=x", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad doc_status = %d, want 400", w.Code)
	}
}

func TestUpcomingMeetings(t *testing.T) {
	env := newTestEnv(t, "", nil)
	env.create(t, meetingBody("2025-01-02", "09:00"))
	env.create(t, meetingBody("2025-01-14", "18:30"))

	w := env.do(http.MethodGet, "/meetings?upcoming=1", nil)
	var resp struct {
		Meetings []models.Meeting `json:"meetings"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Meetings) != 1 || resp.Meetings[0].MeetingDate != "2025-01-14" {
		t.Errorf("upcoming = %+v", resp.Meetings)
	}
}

func TestCalendarMonth(t *testing.T) {
	env := newTestEnv(t, "", nil)
	created := env.create(t, meetingBody("2025-01-14", "18:30"))

	w := env.do(http.MethodGet, "/calendar?month=2025-01&client=c1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("calendar status = %d", w.Code)
	}
	var mv view.MonthView
	if err := json.Unmarshal(w.Body.Bytes(), &mv); err != nil {
		t.Fatal(err)
	}
	if mv.Title != "January 2025" || len(mv.Cells) != 35 {
		t.Fatalf("title = %q cells = %d", mv.Title, len(mv.Cells))
	}
	cell := mv.Cells[16]
	if cell.DateKey != "2025-01-14" || len(cell.Events) != 1 || cell.Events[0].ID != created.ID {
		t.Errorf("cell 16 = %+v", cell)
	}

	w = env.do(http.MethodPost, "/calendar/events/"+created.ID+"/click?client=c1", nil)
	if w.Code != http.StatusAccepted {
		t.Errorf("click = %d, want 202", w.Code)
	}
	w = env.do(http.MethodPost, "/calendar/events/other/click?client=c1", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("click on undisplayed meeting = %d, want 404", w.Code)
	}

	w = env.do(http.MethodDelete, "/views/c1", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("close view = %d, want 204", w.Code)
	}
	w = env.do(http.MethodDelete, "/views/c1", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("close closed view = %d, want 404", w.Code)
	}
}

func TestCalendarBadMonth(t *testing.T) {
	env := newTestEnv(t, "", nil)
	w := env.do(http.MethodGet, "/calendar?month=January", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGenerateAndPoll(t *testing.T) {
	env := newTestEnv(t, "", nil)
	created := env.create(t, meetingBody("2025-01-14", "18:30"))

	w := env.do(http.MethodPost, "/meetings/"+created.ID+"/generate", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("generate = %d, body = %s", w.Code, w.Body.String())
	}
	var st poller.PollState
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if st.Status != poller.StatusPending || st.RecordID != created.ID {
		t.Errorf("poll state = %+v", st)
	}

	w = env.do(http.MethodGet, "/meetings/"+created.ID+"/poll", nil)
	if w.Code != http.StatusOK {
		t.Errorf("poll state = %d, want 200", w.Code)
	}

	w = env.do(http.MethodDelete, "/meetings/"+created.ID+"/poll", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("leave = %d, want 204", w.Code)
	}
	w = env.do(http.MethodGet, "/meetings/"+created.ID+"/poll", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("poll after leave = %d, want 404", w.Code)
	}

	w = env.do(http.MethodPost, "/meetings/missing/generate", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("generate missing = %d, want 404", w.Code)
	}
}

func TestOpenMeetingResumesPoll(t *testing.T) {
	env := newTestEnv(t, "", nil)
	created := env.create(t, meetingBody("2025-01-14", "18:30"))

	w := env.do(http.MethodPost, "/meetings/"+created.ID+"/open", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("open = %d", w.Code)
	}
	var resp struct {
		Meeting models.Meeting    `json:"meeting"`
		Poll    *poller.PollState `json:"poll"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Meeting.ID != created.ID || resp.Poll == nil {
		t.Errorf("open response = %s", w.Body.String())
	}
}

func TestCommittees(t *testing.T) {
	env := newTestEnv(t, "", nil)
	w := env.do(http.MethodGet, "/committees", nil)
	var resp struct {
		Committees []models.Committee `json:"committees"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Committees) != 2 {
		t.Errorf("committees = %+v", resp.Committees)
	}
}

func TestICSExport(t *testing.T) {
	env := newTestEnv(t, "", nil)
	created := env.create(t, meetingBody("2025-01-14", "18:30"))

	w := env.do(http.MethodGet, "/calendar.ics?month=2025-01", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ics status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("content type = %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "UID:"+created.ID+"@council") || !strings.Contains(body, "DTSTART:20250114T183000Z") {
		t.Errorf("ics body = %s", body)
	}
}

// Auth middleware tests.

func TestAuthMiddleware_ValidToken(t *testing.T) {
	env := newTestEnv(t, "secret", nil)
	req := httptest.NewRequest(http.MethodGet, "/committees", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	env := newTestEnv(t, "secret", nil)
	w := env.do(http.MethodGet, "/committees", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	env := newTestEnv(t, "secret", nil)
	req := httptest.NewRequest(http.MethodGet, "/committees", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

// SSE endpoint auth tests.

func sseStub() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	env := newTestEnv(t, "secret", sseStub())
	w := env.do(http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	env := newTestEnv(t, "tok", sseStub())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
}

// Agenda file tests.

func fileRouter(files storage.Provider) http.Handler {
	r := chi.NewRouter()
	r.Get("/files/{name}", NewFileHandler(files).ServeFile)
	return r
}

func TestServeAgenda(t *testing.T) {
	_, files := testutil.TestFiles(t)
	content := []byte("%PDF-1.4 agenda")
	name := docgen.FileName("m1")
	if err := files.Write(name, content); err != nil {
		t.Fatal(err)
	}
	router := fileRouter(files)

	req := httptest.NewRequest(http.MethodGet, docgen.FileURL("m1"), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("serve = %d", w.Code)
	}
	if w.Header().Get("Content-Type") != "application/pdf" {
		t.Errorf("content type = %q", w.Header().Get("Content-Type"))
	}
	if !bytes.Equal(w.Body.Bytes(), content) {
		t.Errorf("body = %q", w.Body.String())
	}
	etag := w.Header().Get("ETag")
	if etag != `"`+storage.Checksum(content)+`"` {
		t.Errorf("etag = %q", etag)
	}

	req = httptest.NewRequest(http.MethodGet, docgen.FileURL("m1"), nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified {
		t.Errorf("conditional get = %d, want 304", w.Code)
	}
}

func TestServeAgenda_NotFound(t *testing.T) {
	_, files := testutil.TestFiles(t)
	req := httptest.NewRequest(http.MethodGet, docgen.FileURL("missing"), nil)
	w := httptest.NewRecorder()
	fileRouter(files).ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestServeAgenda_RejectsOtherFiles(t *testing.T) {
	_, files := testutil.TestFiles(t)
	for _, name := range []string{"notes.txt", ".hidden.pdf"} {
		req := httptest.NewRequest(http.MethodGet, "/files/"+name, nil)
		w := httptest.NewRecorder()
		fileRouter(files).ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, w.Code)
		}
	}
}

func TestSSEEvents_QueryToken(t *testing.T) {
	env := newTestEnv(t, "tok", sseStub())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events?access_token=tok", nil).WithContext(ctx)
	req.Header.Set("Accept", "text/event-stream")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with query token = %d, want 200", w.Code)
	}

	// The query token is only honoured for event streams.
	req = httptest.NewRequest(http.MethodGet, "/committees?access_token=tok", nil)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("query token on JSON route = %d, want 401", w.Code)
	}
}
