package mcpserver

// MeetingFormatContract describes the meeting fields that LLM consumers
// should send when scheduling meetings.
const MeetingFormatContract = `# Council Meeting Format

A meeting is one scheduled session of the city council or of a standing committee.

## Fields

| Field | Required | Format |
|---|---|---|
| meeting_date | yes | YYYY-MM-DD, a plain calendar date without time zone |
| meeting_time | yes | HH:MM or HH:MM:SS, 24-hour wall clock |
| end_time | no | HH:MM or HH:MM:SS, after meeting_time |
| meeting_type | yes | "City Council Meeting" or "Standing Committee Meeting" |
| committee | no | one of the names returned by list_committees |
| location | no | room or venue name |
| address | no | street address |
| subject | no | one-line topic |
| note | no | free text printed on the agenda |

## Rules

1. Times are local to the council; never append a zone offset.
2. City council meetings leave committee empty.
3. The agenda PDF is generated automatically after every create. Do not send a
   document_url; it is filled in once the PDF exists.
4. Use generate_agenda to rebuild the PDF after the meeting changed.

## Example

` + "```" + `json
{
  "meeting_date": "2025-01-14",
  "meeting_time": "18:30",
  "end_time": "20:00",
  "meeting_type": "Standing Committee Meeting",
  "committee": "Education",
  "location": "Council Chambers",
  "subject": "Budget review"
}
` + "```" + `
`
