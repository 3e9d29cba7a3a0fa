package meetingservice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/starford/council/internal/apperr"
	"github.com/starford/council/internal/docgen"
	"github.com/starford/council/internal/models"
	"github.com/starford/council/internal/testutil"
)

type fakeGen struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (f *fakeGen) RequestDocumentGeneration(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	return f.err
}

func (f *fakeGen) requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

func newTestService(t *testing.T) (*Service, *fakeGen, *[]string) {
	t.Helper()
	db := testutil.TestDB(t)
	_, files := testutil.TestFiles(t)
	if err := db.EnsureCommittees(context.Background(), []string{"Education", "Finance"}); err != nil {
		t.Fatal(err)
	}
	gen := &fakeGen{}
	var kinds []string
	svc := NewService(db, files, gen,
		WithClock(func() time.Time { return time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC) }),
		WithEventCallback(func(kind, _ string) { kinds = append(kinds, kind) }),
	)
	return svc, gen, &kinds
}

func validMeeting() *models.Meeting {
	return &models.Meeting{
		MeetingDate: "2025-01-14",
		MeetingTime: "18:30",
		MeetingType: models.MeetingTypeStandingCommittee,
		Committee:   "Education",
	}
}

func TestInsertRequestsGeneration(t *testing.T) {
	svc, gen, kinds := newTestService(t)
	m := validMeeting()
	m.DocumentURL = "/files/forged.pdf"

	id, err := svc.Insert(context.Background(), m)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := svc.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if got.HasDocument() {
		t.Error("insert must not accept a document reference")
	}
	if ids := gen.requested(); len(ids) != 1 || ids[0] != id {
		t.Errorf("generation requests = %v", ids)
	}
	if len(*kinds) != 1 || (*kinds)[0] != EventCreated {
		t.Errorf("events = %v", *kinds)
	}
}

func TestInsertSurvivesQueueFailure(t *testing.T) {
	svc, gen, _ := newTestService(t)
	gen.err = apperr.Transient(errors.New("queue full"))
	if _, err := svc.Insert(context.Background(), validMeeting()); err != nil {
		t.Fatalf("Insert should succeed when queueing fails: %v", err)
	}
}

func TestValidation(t *testing.T) {
	svc, gen, _ := newTestService(t)
	tests := []struct {
		name  string
		edit  func(m *models.Meeting)
		field string
	}{
		{"missing date", func(m *models.Meeting) { m.MeetingDate = "" }, "meeting_date"},
		{"bad date", func(m *models.Meeting) { m.MeetingDate = "2025-13-01" }, "meeting_date"},
		{"missing time", func(m *models.Meeting) { m.MeetingTime = "" }, "meeting_time"},
		{"bad time", func(m *models.Meeting) { m.MeetingTime = "6:30pm" }, "meeting_time"},
		{"end before start", func(m *models.Meeting) { m.EndTime = "17:00" }, "end_time"},
		{"unknown type", func(m *models.Meeting) { m.MeetingType = "Town Hall" }, "meeting_type"},
		{"unknown committee", func(m *models.Meeting) { m.Committee = "Parks" }, "committee"},
		{"bad status", func(m *models.Meeting) { m.DocStatus = 7 }, "doc_status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validMeeting()
			tt.edit(m)
			_, err := svc.Insert(context.Background(), m)
			var verr *apperr.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want validation error", err)
			}
			if _, ok := verr.Fields[tt.field]; !ok {
				t.Errorf("fields = %v, want %s", verr.Fields, tt.field)
			}
			if !errors.Is(err, apperr.ErrValidation) {
				t.Error("validation errors must match ErrValidation")
			}
		})
	}
	if ids := gen.requested(); len(ids) != 0 {
		t.Errorf("invalid meetings queued generation: %v", ids)
	}
}

func TestTimesStoredFixedWidth(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	for _, clock := range []string{"10:00", "9:00", "9:30:00"} {
		m := validMeeting()
		m.MeetingTime = clock
		if _, err := svc.Insert(ctx, m); err != nil {
			t.Fatalf("Insert %q: %v", clock, err)
		}
	}

	list, err := svc.List(ctx, models.MeetingFilter{From: "2025-01-14", To: "2025-01-14"}, models.OrderTime)
	if err != nil {
		t.Fatal(err)
	}
	want := []struct{ stored, label string }{
		{"09:00:00", "09:00"},
		{"09:30:00", "09:30"},
		{"10:00:00", "10:00"},
	}
	if len(list) != len(want) {
		t.Fatalf("listed %d meetings, want %d", len(list), len(want))
	}
	for i, w := range want {
		if list[i].MeetingTime != w.stored || list[i].TimeLabel() != w.label {
			t.Errorf("meeting %d = %q label %q, want %q label %q",
				i, list[i].MeetingTime, list[i].TimeLabel(), w.stored, w.label)
		}
	}

	start, end := "8:15", "9:45"
	id := list[0].ID
	if err := svc.Update(ctx, id, models.MeetingPatch{MeetingTime: &start, EndTime: &end}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := svc.Get(ctx, id)
	if got.MeetingTime != "08:15:00" || got.EndTime != "09:45:00" {
		t.Errorf("updated times = %q-%q", got.MeetingTime, got.EndTime)
	}
	if start != "8:15" {
		t.Errorf("caller's patch value changed to %q", start)
	}
}

func TestOptionalFieldsMayBeEmpty(t *testing.T) {
	svc, _, _ := newTestService(t)
	m := validMeeting()
	m.Committee = ""
	m.EndTime = "20:00:00"
	m.MeetingType = models.MeetingTypeCityCouncil
	if _, err := svc.Insert(context.Background(), m); err != nil {
		t.Fatalf("Insert: %v", err)
	}
}

func TestUpdate(t *testing.T) {
	svc, gen, kinds := newTestService(t)
	ctx := context.Background()
	id, _ := svc.Insert(ctx, validMeeting())

	loc := "Room 2"
	if err := svc.Update(ctx, id, models.MeetingPatch{Location: &loc}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	m, _ := svc.Get(ctx, id)
	if m.Location != "Room 2" {
		t.Errorf("location = %q", m.Location)
	}
	if len(gen.requested()) != 2 {
		t.Errorf("update should queue a fresh agenda: %v", gen.requested())
	}
	if (*kinds)[len(*kinds)-1] != EventUpdated {
		t.Errorf("events = %v", *kinds)
	}

	bad := "25:99"
	err := svc.Update(ctx, id, models.MeetingPatch{MeetingTime: &bad})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("err = %v, want validation", err)
	}
	if err := svc.Update(ctx, "missing", models.MeetingPatch{Location: &loc}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestDeleteRemovesAgenda(t *testing.T) {
	db := testutil.TestDB(t)
	_, files := testutil.TestFiles(t)
	svc := NewService(db, files, &fakeGen{})
	ctx := context.Background()
	id, err := svc.Insert(ctx, &models.Meeting{MeetingDate: "2025-01-14", MeetingTime: "18:30", MeetingType: models.MeetingTypeCityCouncil})
	if err != nil {
		t.Fatal(err)
	}
	_ = files.Write(docgen.FileName(id), []byte("%PDF"))

	if err := svc.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := files.Read(docgen.FileName(id)); err == nil {
		t.Error("agenda file should be removed")
	}
	if err := svc.Delete(ctx, id); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestRequestDocumentGenerationUnknown(t *testing.T) {
	svc, gen, _ := newTestService(t)
	err := svc.RequestDocumentGeneration(context.Background(), "nope")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
	if len(gen.requested()) != 0 {
		t.Error("unknown meeting must not be queued")
	}
}

func TestUpcoming(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	add := func(date, clock string, status models.DocStatus) {
		m := validMeeting()
		m.MeetingDate, m.MeetingTime, m.DocStatus = date, clock, status
		if _, err := svc.Insert(ctx, m); err != nil {
			t.Fatal(err)
		}
	}
	add("2025-01-09", "10:00", models.DocStatusDraft) // past
	add("2025-01-20", "09:00", models.DocStatusDraft)
	add("2025-01-10", "18:00", models.DocStatusDraft) // today
	add("2025-01-10", "08:00", models.DocStatusDraft)
	add("2025-01-15", "10:00", models.DocStatusSubmitted)

	list, err := svc.Upcoming(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, m := range list {
		got = append(got, m.MeetingDate+" "+m.MeetingTime)
	}
	want := []string{"2025-01-10 08:00:00", "2025-01-10 18:00:00", "2025-01-20 09:00:00"}
	if len(got) != len(want) {
		t.Fatalf("upcoming = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("upcoming[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}
