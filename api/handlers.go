/*
handlers.go - HTTP handlers for the attendance engine

PURPOSE:
  The inbound edge of the engine. The chat transport forwards raw messages
  to POST /api/messages; pre-classified integrations use the direct action
  endpoints. Domain errors (duplicate check-in, no ongoing report, ...)
  are translated to reply statuses, never to failures - no user action is
  silently dropped without a reply.

ERROR MAPPING:
  Domain error            HTTP (direct endpoints)   Reply status
  ErrSessionAlreadyOpen   409                       duplicate
  ErrNoOpenSession        409                       no_open_session
  ErrReportAlreadyOngoing 409                       already_ongoing
  ErrNoOngoingReport      409                       no_ongoing
  ErrUnknownKeyword       400                       unknown_keyword
  ErrStoreUnavailable     500                       (generic failure)

  The /api/messages webhook always answers 200 with a reply payload for
  domain outcomes; the transport renders the status into chat text.

SEE ALSO:
  - dto.go: Request/response shapes
  - server.go: Route wiring
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/classify"
	"github.com/warp/attendance-engine/engine"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service    *attendance.Service
	Classifier *classify.Classifier

	validate *validator.Validate
}

// NewHandler creates a new handler.
func NewHandler(service *attendance.Service, classifier *classify.Classifier) *Handler {
	return &Handler{
		Service:    service,
		Classifier: classifier,
		validate:   validator.New(),
	}
}

// =============================================================================
// MESSAGE WEBHOOK
// =============================================================================

// HandleMessage classifies a raw chat message and executes the matching
// operation. Unrecognized text is acknowledged with status "ignored".
// POST /api/messages
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	subject := engine.Subject{ChatID: req.ChatID, UserID: req.UserID}
	now := requestTime(req.SentAt)
	match := h.Classifier.Classify(req.Text)

	var (
		reply *ReplyDTO
		err   error
	)
	switch match.Action {
	case classify.ActionCheckIn:
		reply, err = h.doCheckIn(r, subject, req.DisplayName, now)
	case classify.ActionCheckOut:
		reply, err = h.doCheckOut(r, subject, now)
	case classify.ActionLeaveStart:
		reply, err = h.doStartReport(r, subject, req.DisplayName, match.Keyword, now)
	case classify.ActionLeaveEnd:
		reply, err = h.doEndReport(r, subject, now)
	default:
		writeJSON(w, http.StatusOK, ReplyDTO{Action: classify.ActionNone.String(), Status: StatusIgnored})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Operation failed", nil)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// =============================================================================
// DIRECT ACTION ENDPOINTS
// =============================================================================

// CheckIn opens a session for a pre-classified action.
// POST /api/checkin
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req ActionRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	subject := engine.Subject{ChatID: req.ChatID, UserID: req.UserID}
	reply, err := h.doCheckIn(r, subject, req.DisplayName, requestTime(req.SentAt))
	h.writeReply(w, reply, err)
}

// CheckOut settles the open session.
// POST /api/checkout
func (h *Handler) CheckOut(w http.ResponseWriter, r *http.Request) {
	var req ActionRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	subject := engine.Subject{ChatID: req.ChatID, UserID: req.UserID}
	reply, err := h.doCheckOut(r, subject, requestTime(req.SentAt))
	h.writeReply(w, reply, err)
}

// StartReport opens a leave report with an explicit keyword.
// POST /api/reports
func (h *Handler) StartReport(w http.ResponseWriter, r *http.Request) {
	var req StartReportRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	subject := engine.Subject{ChatID: req.ChatID, UserID: req.UserID}
	reply, err := h.doStartReport(r, subject, req.DisplayName, req.Keyword, requestTime(req.SentAt))
	h.writeReply(w, reply, err)
}

// EndReport returns from the ongoing leave report.
// POST /api/reports/return
func (h *Handler) EndReport(w http.ResponseWriter, r *http.Request) {
	var req ActionRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	subject := engine.Subject{ChatID: req.ChatID, UserID: req.UserID}
	reply, err := h.doEndReport(r, subject, requestTime(req.SentAt))
	h.writeReply(w, reply, err)
}

// =============================================================================
// QUERY ENDPOINTS
// =============================================================================

// GetStatus returns the subject's open session, ongoing report, and counters.
// GET /api/subjects/{chatID}/{userID}/status
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectParams(w, r)
	if !ok {
		return
	}

	status, err := h.Service.Status(r.Context(), subject)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read status", nil)
		return
	}

	dto := StatusDTO{
		Counters: CountersDTO{
			LateCheckins:   status.Totals.LateCheckins,
			OverdueReports: status.Totals.OverdueReports,
		},
	}
	if s := status.OpenSession; s != nil {
		dto.OpenSession = &SessionDTO{
			SessionID: int64(s.ID),
			Day:       s.Day,
			StartAt:   s.StartAt,
			Late:      s.Late,
		}
	}
	if rep := status.OngoingReport; rep != nil {
		dto.OngoingReport = &OngoingDTO{
			ReportID: int64(rep.ID),
			Keyword:  rep.Keyword,
			Minutes:  rep.AllottedMinutes,
			StartAt:  rep.StartAt,
			DueAt:    rep.DueAt,
			Alerted:  rep.Alerted,
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

// GetCounters returns the subject's cumulative counters.
// GET /api/subjects/{chatID}/{userID}/counters
func (h *Handler) GetCounters(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectParams(w, r)
	if !ok {
		return
	}

	totals, err := h.Service.Totals(r.Context(), subject)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read counters", nil)
		return
	}
	writeJSON(w, http.StatusOK, CountersDTO{
		LateCheckins:   totals.LateCheckins,
		OverdueReports: totals.OverdueReports,
	})
}

// Health is a liveness probe.
// GET /api/healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// OPERATION DISPATCH
// =============================================================================

func (h *Handler) doCheckIn(r *http.Request, subject engine.Subject, displayName string, now time.Time) (*ReplyDTO, error) {
	result, err := h.Service.CheckIn(r.Context(), subject, displayName, now)
	if err != nil {
		return replyForDomainError(classify.ActionCheckIn.String(), err)
	}
	status := StatusOK
	if result.Late {
		status = StatusLate
	}
	return &ReplyDTO{
		Action: classify.ActionCheckIn.String(),
		Status: status,
		CheckIn: &CheckInDTO{
			SessionID: int64(result.Session.ID),
			Day:       result.Session.Day,
			ClockTime: result.ClockTime,
			Late:      result.Late,
			LateTotal: result.LateTotal,
		},
	}, nil
}

func (h *Handler) doCheckOut(r *http.Request, subject engine.Subject, now time.Time) (*ReplyDTO, error) {
	result, err := h.Service.CheckOut(r.Context(), subject, now)
	if err != nil {
		return replyForDomainError(classify.ActionCheckOut.String(), err)
	}
	return &ReplyDTO{
		Action: classify.ActionCheckOut.String(),
		Status: StatusOK,
		CheckOut: &CheckOutDTO{
			SessionID:       int64(result.Session.ID),
			StartTime:       result.StartTime,
			ClockTime:       result.ClockTime,
			GrossSeconds:    result.Summary.GrossSeconds,
			DeductedSeconds: result.Summary.DeductedSeconds,
			NetSeconds:      result.Summary.NetSeconds,
			Gross:           result.Summary.Gross,
			Deducted:        result.Summary.Deducted,
			Net:             result.Summary.Net,
			NetHours:        result.Summary.NetHours,
		},
	}, nil
}

func (h *Handler) doStartReport(r *http.Request, subject engine.Subject, displayName, keyword string, now time.Time) (*ReplyDTO, error) {
	result, err := h.Service.StartReport(r.Context(), subject, displayName, keyword, now)
	if err != nil {
		return replyForDomainError(classify.ActionLeaveStart.String(), err)
	}
	return &ReplyDTO{
		Action: classify.ActionLeaveStart.String(),
		Status: StatusOK,
		Report: &ReportDTO{
			ReportID: int64(result.Report.ID),
			Keyword:  result.Report.Keyword,
			Minutes:  result.Report.AllottedMinutes,
			DueTime:  result.DueTime,
		},
	}, nil
}

func (h *Handler) doEndReport(r *http.Request, subject engine.Subject, now time.Time) (*ReplyDTO, error) {
	result, err := h.Service.EndReport(r.Context(), subject, now)
	if err != nil {
		return replyForDomainError(classify.ActionLeaveEnd.String(), err)
	}
	status := StatusOK
	if result.Overdue {
		status = StatusOverdueReturn
	}
	return &ReplyDTO{
		Action: classify.ActionLeaveEnd.String(),
		Status: status,
		Return: &ReturnDTO{
			ReportID:     int64(result.Report.ID),
			Keyword:      result.Report.Keyword,
			UsedSeconds:  result.UsedSeconds,
			Used:         result.Used,
			Overdue:      result.Overdue,
			OverdueTotal: result.OverdueTotal,
		},
	}, nil
}

// replyForDomainError turns an expected domain condition into a reply
// payload. Store failures propagate.
func replyForDomainError(action string, err error) (*ReplyDTO, error) {
	var status string
	switch {
	case errors.Is(err, engine.ErrSessionAlreadyOpen):
		status = StatusDuplicate
	case errors.Is(err, engine.ErrNoOpenSession):
		status = StatusNoOpenSession
	case errors.Is(err, engine.ErrReportAlreadyOngoing):
		status = StatusAlreadyOngoing
	case errors.Is(err, engine.ErrNoOngoingReport):
		status = StatusNoOngoing
	case errors.Is(err, engine.ErrUnknownKeyword):
		status = StatusUnknownKeyword
	default:
		return nil, err
	}
	return &ReplyDTO{Action: action, Status: status}, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// writeReply maps direct-endpoint outcomes to HTTP codes: domain
// conditions stay structured with a conflict/bad-request code, store
// failures become a generic 500.
func (h *Handler) writeReply(w http.ResponseWriter, reply *ReplyDTO, err error) {
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Operation failed", nil)
		return
	}
	switch reply.Status {
	case StatusOK, StatusLate, StatusOverdueReturn:
		writeJSON(w, http.StatusOK, reply)
	case StatusUnknownKeyword:
		writeJSON(w, http.StatusBadRequest, reply)
	default:
		writeJSON(w, http.StatusConflict, reply)
	}
}

func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return false
	}
	return true
}

func subjectParams(w http.ResponseWriter, r *http.Request) (engine.Subject, bool) {
	chatID, err1 := strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
	userID, err2 := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, "Invalid subject", nil)
		return engine.Subject{}, false
	}
	return engine.Subject{ChatID: chatID, UserID: userID}, true
}

func requestTime(sentAt int64) time.Time {
	if sentAt > 0 {
		return time.Unix(sentAt, 0)
	}
	return time.Now()
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
