/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract. Reply payloads
  are structured status + fields; rendering them into human-readable chat
  text is the transport's job, not ours.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Inbound requests carry validate struct tags checked with
  go-playground/validator in the handlers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import "github.com/shopspring/decimal"

// =============================================================================
// REQUESTS
// =============================================================================

// MessageRequest is a raw chat message forwarded by the transport. The
// engine classifies the text itself.
type MessageRequest struct {
	ChatID      int64  `json:"chat_id" validate:"required"`
	UserID      int64  `json:"user_id" validate:"required"`
	DisplayName string `json:"display_name"`
	Text        string `json:"text" validate:"required"`
	SentAt      int64  `json:"sent_at"` // epoch seconds; 0 means now
}

// ActionRequest is a pre-classified action for the direct endpoints.
type ActionRequest struct {
	ChatID      int64  `json:"chat_id" validate:"required"`
	UserID      int64  `json:"user_id" validate:"required"`
	DisplayName string `json:"display_name"`
	SentAt      int64  `json:"sent_at"`
}

// StartReportRequest starts a leave report with an explicit keyword.
type StartReportRequest struct {
	ChatID      int64  `json:"chat_id" validate:"required"`
	UserID      int64  `json:"user_id" validate:"required"`
	DisplayName string `json:"display_name"`
	Keyword     string `json:"keyword" validate:"required"`
	SentAt      int64  `json:"sent_at"`
}

// =============================================================================
// REPLY PAYLOADS
// =============================================================================

// Reply statuses. The transport renders these into user-facing text.
const (
	StatusOK             = "ok"
	StatusLate           = "late"
	StatusDuplicate      = "duplicate"
	StatusNoOpenSession  = "no_open_session"
	StatusAlreadyOngoing = "already_ongoing"
	StatusNoOngoing      = "no_ongoing"
	StatusUnknownKeyword = "unknown_keyword"
	StatusOverdueReturn  = "overdue_return"
	StatusIgnored        = "ignored"
)

// ReplyDTO wraps every outcome of a message or action. Exactly one of the
// payload pointers is set for successful operations.
type ReplyDTO struct {
	Action   string        `json:"action"`
	Status   string        `json:"status"`
	CheckIn  *CheckInDTO   `json:"check_in,omitempty"`
	CheckOut *CheckOutDTO  `json:"check_out,omitempty"`
	Report   *ReportDTO    `json:"report,omitempty"`
	Return   *ReturnDTO    `json:"return,omitempty"`
}

type CheckInDTO struct {
	SessionID int64  `json:"session_id"`
	Day       string `json:"day"`
	ClockTime string `json:"clock_time"`
	Late      bool   `json:"late"`
	LateTotal int64  `json:"late_total,omitempty"`
}

type CheckOutDTO struct {
	SessionID       int64           `json:"session_id"`
	StartTime       string          `json:"start_time"`
	ClockTime       string          `json:"clock_time"`
	GrossSeconds    int64           `json:"gross_seconds"`
	DeductedSeconds int64           `json:"deducted_seconds"`
	NetSeconds      int64           `json:"net_seconds"`
	Gross           string          `json:"gross"`
	Deducted        string          `json:"deducted"`
	Net             string          `json:"net"`
	NetHours        decimal.Decimal `json:"net_hours"`
}

type ReportDTO struct {
	ReportID int64  `json:"report_id"`
	Keyword  string `json:"keyword"`
	Minutes  int    `json:"minutes"`
	DueTime  string `json:"due_time"`
}

type ReturnDTO struct {
	ReportID     int64  `json:"report_id"`
	Keyword      string `json:"keyword"`
	UsedSeconds  int64  `json:"used_seconds"`
	Used         string `json:"used"`
	Overdue      bool   `json:"overdue"`
	OverdueTotal int64  `json:"overdue_total,omitempty"`
}

// =============================================================================
// QUERY RESPONSES
// =============================================================================

type StatusDTO struct {
	OpenSession   *SessionDTO `json:"open_session,omitempty"`
	OngoingReport *OngoingDTO `json:"ongoing_report,omitempty"`
	Counters      CountersDTO `json:"counters"`
}

type SessionDTO struct {
	SessionID int64  `json:"session_id"`
	Day       string `json:"day"`
	StartAt   int64  `json:"start_at"`
	Late      bool   `json:"late"`
}

type OngoingDTO struct {
	ReportID int64  `json:"report_id"`
	Keyword  string `json:"keyword"`
	Minutes  int    `json:"minutes"`
	StartAt  int64  `json:"start_at"`
	DueAt    int64  `json:"due_at"`
	Alerted  bool   `json:"alerted"`
}

type CountersDTO struct {
	LateCheckins   int64 `json:"late_checkins"`
	OverdueReports int64 `json:"overdue_reports"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
