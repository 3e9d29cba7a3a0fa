// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes council calendar tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/council/internal/apperr"
	"github.com/starford/council/internal/calendar"
	"github.com/starford/council/internal/models"
)

const contractURI = "council://meeting-format"

// Meetings is the part of the meeting service the tools use.
type Meetings interface {
	List(ctx context.Context, f models.MeetingFilter, order models.Order) ([]models.Meeting, error)
	Get(ctx context.Context, id string) (*models.Meeting, error)
	Insert(ctx context.Context, m *models.Meeting) (string, error)
	Committees(ctx context.Context) ([]models.Committee, error)
}

// Agendas renders a meeting's agenda synchronously.
type Agendas interface {
	Generate(ctx context.Context, id string) error
}

// Server wraps the MCP server with council tools.
type Server struct {
	mcp      *server.MCPServer
	meetings Meetings
	agendas  Agendas
	loc      *time.Location
	now      func() time.Time
}

// New creates a new MCP server with all council tools registered.
// loc is the zone "today" is computed in.
func New(meetings Meetings, agendas Agendas, loc *time.Location) *Server {
	if loc == nil {
		loc = time.UTC
	}
	s := &Server{meetings: meetings, agendas: agendas, loc: loc, now: time.Now}

	s.mcp = server.NewMCPServer(
		"Council Calendar",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("month_calendar",
		mcp.WithDescription("Show the meetings of one month, grouped by day."),
		mcp.WithString("month", mcp.Description("Month as YYYY-MM (default: current month)")),
	), s.monthCalendar)

	s.mcp.AddTool(mcp.NewTool("list_meetings",
		mcp.WithDescription("List meetings in a date range, ordered by date and time."),
		mcp.WithString("from", mcp.Description("First date, YYYY-MM-DD")),
		mcp.WithString("to", mcp.Description("Last date, YYYY-MM-DD")),
		mcp.WithString("committee", mcp.Description("Only meetings of this committee")),
	), s.listMeetings)

	s.mcp.AddTool(mcp.NewTool("get_meeting",
		mcp.WithDescription("Read one meeting, including its agenda link once generated."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Meeting id")),
	), s.getMeeting)

	s.mcp.AddTool(mcp.NewTool("create_meeting",
		mcp.WithDescription("Schedule a new meeting. Its agenda PDF is generated in the background. "+
			"Read the field contract first via get_meeting_contract or the "+contractURI+" resource."),
		mcp.WithString("meeting_date", mcp.Required(), mcp.Description("YYYY-MM-DD")),
		mcp.WithString("meeting_time", mcp.Required(), mcp.Description("HH:MM, 24-hour")),
		mcp.WithString("end_time", mcp.Description("HH:MM, 24-hour")),
		mcp.WithString("meeting_type", mcp.Required(),
			mcp.Enum(models.MeetingTypes...),
			mcp.Description("Kind of meeting")),
		mcp.WithString("committee", mcp.Description("Committee name, see list_committees")),
		mcp.WithString("location", mcp.Description("Room or venue")),
		mcp.WithString("address", mcp.Description("Street address")),
		mcp.WithString("subject", mcp.Description("One-line topic")),
		mcp.WithString("note", mcp.Description("Free text printed on the agenda")),
	), s.createMeeting)

	s.mcp.AddTool(mcp.NewTool("generate_agenda",
		mcp.WithDescription("Render the agenda PDF of a meeting now and return its link."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Meeting id")),
	), s.generateAgenda)

	s.mcp.AddTool(mcp.NewTool("list_committees",
		mcp.WithDescription("List the standing committees meetings can belong to."),
	), s.listCommittees)

	s.mcp.AddTool(mcp.NewTool("get_meeting_contract",
		mcp.WithDescription("Returns the meeting field contract. "+
			"Call this before creating meetings to ensure correct values."),
	), s.getMeetingContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Meeting Format Contract",
			mcp.WithResourceDescription("Fields and formats of a council meeting."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func toolError(err error) *mcp.CallToolResult {
	var verr *apperr.ValidationError
	switch {
	case errors.As(err, &verr):
		return mcp.NewToolResultError(verr.Error())
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("meeting not found")
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) monthCalendar(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref := s.now().In(s.loc)
	if v := req.GetString("month", ""); v != "" {
		t, err := calendar.ParseMonth(v)
		if err != nil {
			return mcp.NewToolResultError("month must be YYYY-MM"), nil
		}
		ref = t
	}

	m := calendar.Build(ref, s.now().In(s.loc))
	items, err := s.meetings.List(ctx, models.MeetingFilter{From: m.RangeStart, To: m.RangeEnd}, models.OrderTime)
	if err != nil {
		return toolError(err), nil
	}
	ix := calendar.NewIndex(m)
	ix.Place(items)

	var b strings.Builder
	b.WriteString(m.Title())
	b.WriteString("\n")
	if ix.Len() == 0 {
		b.WriteString("no meetings\n")
		return mcp.NewToolResultText(b.String()), nil
	}
	for _, c := range m.Cells {
		if !c.InCurrentMonth {
			continue
		}
		for _, ev := range ix.Events(c.DateKey) {
			fmt.Fprintf(&b, "%s  %s", c.DateKey, ev.Title())
			if ev.Committee != "" {
				fmt.Fprintf(&b, " · %s", ev.Committee)
			}
			fmt.Fprintf(&b, " (%s) [%s]", ev.MeetingType, ev.ID)
			if ev.HasDocument() {
				b.WriteString(" agenda: " + ev.DocumentURL)
			}
			b.WriteString("\n")
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) listMeetings(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := models.MeetingFilter{
		From:      req.GetString("from", ""),
		To:        req.GetString("to", ""),
		Committee: req.GetString("committee", ""),
	}
	items, err := s.meetings.List(ctx, f, models.OrderDateTime)
	if err != nil {
		return toolError(err), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no meetings found"), nil
	}
	return jsonResult(items), nil
}

func (s *Server) getMeeting(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	m, err := s.meetings.Get(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(m), nil
}

func (s *Server) createMeeting(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	m := models.Meeting{
		MeetingDate: req.GetString("meeting_date", ""),
		MeetingTime: req.GetString("meeting_time", ""),
		EndTime:     req.GetString("end_time", ""),
		MeetingType: req.GetString("meeting_type", ""),
		Committee:   req.GetString("committee", ""),
		Location:    req.GetString("location", ""),
		Address:     req.GetString("address", ""),
		Subject:     req.GetString("subject", ""),
		Note:        req.GetString("note", ""),
	}
	id, err := s.meetings.Insert(ctx, &m)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", id)), nil
}

func (s *Server) generateAgenda(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.agendas.Generate(ctx, id); err != nil {
		return toolError(err), nil
	}
	m, err := s.meetings.Get(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("agenda: %s", m.DocumentURL)), nil
}

func (s *Server) listCommittees(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.meetings.Committees(ctx)
	if err != nil {
		return toolError(err), nil
	}
	names := make([]string, 0, len(items))
	for _, c := range items {
		names = append(names, c.Name)
	}
	return mcp.NewToolResultText(strings.Join(names, "\n")), nil
}

func (s *Server) getMeetingContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(MeetingFormatContract), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     MeetingFormatContract,
		},
	}, nil
}
