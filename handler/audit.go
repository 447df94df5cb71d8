package handler

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/axiagw/gateway/audit"
)

// AuditHandler exposes the audit trail's query and compliance-export
// surface (view:audit/PermAuditView-gated at the route-tree level).
type AuditHandler struct {
	engine *audit.Engine
	logger zerolog.Logger
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(engine *audit.Engine, logger zerolog.Logger) *AuditHandler {
	return &AuditHandler{
		engine: engine,
		logger: logger.With().Str("component", "audit_handler").Logger(),
	}
}

// ListEvents handles GET /api/v1/audit/events.
func (h *AuditHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.QueryFilter{
		Type:     q.Get("type"),
		UserID:   q.Get("user_id"),
		Severity: audit.Severity(q.Get("severity")),
	}
	if start := q.Get("start"); start != "" {
		if t, err := time.Parse(time.RFC3339, start); err == nil {
			filter.Start = t
		}
	}
	if end := q.Get("end"); end != "" {
		if t, err := time.Parse(time.RFC3339, end); err == nil {
			filter.End = t
		}
	}
	filter.Limit = 100
	if limit := q.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			filter.Limit = n
		}
	}
	if offset := q.Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil {
			filter.Offset = n
		}
	}

	events := h.engine.Query(filter)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"object": "list",
		"data":   events,
		"total":  len(events),
	})
}

// VerifyIntegrity handles GET /api/v1/audit/verify — recomputes the
// hash chain over the hot store and reports the first break, if any.
func (h *AuditHandler) VerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	breakAt := h.engine.VerifyIntegrity()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"verified": breakAt == -1,
		"break_at": breakAt,
	})
}

// ComplianceReport handles GET /api/v1/compliance/report/{standard},
// optionally exported as CSV via ?format=csv — a narrower repurposing
// of the teacher's ClickHouse cost-CSV export onto compliance rows.
func (h *AuditHandler) ComplianceReport(w http.ResponseWriter, r *http.Request) {
	standard := audit.ComplianceStandard(chi.URLParam(r, "standard"))
	q := r.URL.Query()

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -30)
	if s := q.Get("start"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			start = t
		}
	}
	if e := q.Get("end"); e != "" {
		if t, err := time.Parse(time.RFC3339, e); err == nil {
			end = t
		}
	}

	report, err := h.engine.ComplianceReportFor(standard, start, end)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unsupported_standard", err.Error())
		return
	}

	if q.Get("format") == "csv" {
		h.writeReportCSV(w, report)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *AuditHandler) writeReportCSV(w http.ResponseWriter, report audit.ComplianceReport) {
	filename := string(report.Standard) + "_" + report.WindowStart.Format("2006-01-02") + "_to_" + report.WindowEnd.Format("2006-01-02") + ".csv"
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filename+"\"")
	w.WriteHeader(http.StatusOK)

	writer := csv.NewWriter(w)
	defer writer.Flush()

	_ = writer.Write([]string{"standard", "window_start", "window_end", "total_events", "chain_verified"})
	_ = writer.Write([]string{
		string(report.Standard),
		report.WindowStart.Format(time.RFC3339),
		report.WindowEnd.Format(time.RFC3339),
		strconv.Itoa(report.TotalEvents),
		strconv.FormatBool(report.ChainVerified),
	})

	_ = writer.Write([]string{})
	_ = writer.Write([]string{"severity", "count"})
	for sev, count := range report.BySeverity {
		_ = writer.Write([]string{string(sev), strconv.Itoa(count)})
	}

	_ = writer.Write([]string{})
	_ = writer.Write([]string{"outcome", "count"})
	for outcome, count := range report.ByOutcome {
		_ = writer.Write([]string{string(outcome), strconv.Itoa(count)})
	}
}
