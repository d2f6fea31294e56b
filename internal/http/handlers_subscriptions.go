package http

import (
	"net/http"
	"sync/atomic"

	"talahum/internal/core"
	applog "talahum/internal/log"
	"talahum/internal/reconcile"
	"talahum/internal/render"
)

type rowView struct {
	SubscriberID int64
	Name         string
	Phone        string
	MemberType   string
	Status       string
	StatusClass  string
	PaidAt       string
	Amount       core.Money
	Paid         bool
}

type subscriptionsPartial struct {
	Period   core.Period
	Query    string
	Summary  core.Summary
	Rows     []rowView
	Matched  int
	Currency string
}

func newRowView(r core.PeriodRow) rowView {
	class := "none"
	if r.Subscription != nil {
		switch {
		case r.Subscription.Status.IsPaid():
			class = "paid"
		case r.Subscription.Status.IsPending():
			class = "pending"
		default:
			class = "failed"
		}
	}
	return rowView{
		SubscriberID: r.Subscriber.ID,
		Name:         r.Subscriber.Name,
		Phone:        r.Subscriber.Phone,
		MemberType:   r.Subscriber.MemberType().Label(),
		Status:       r.StatusLabel(),
		StatusClass:  class,
		PaidAt:       r.PaidAtLabel(),
		Amount:       r.Amount(),
		Paid:         r.Paid(),
	}
}

// handleSubscriptions renders the summary cards and the table of a period.
// A load overtaken by a newer one for the same session answers 204 so the
// page keeps the newer rows; a failed load keeps the rows already shown.
func (s *Server) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := applog.FromContext(ctx).WithComponent(applog.ComponentReconcile)

	period, err := ParsePeriodParams(r.URL.Query(), s.now())
	if err != nil {
		BadRequestError(msgInvalidPeriod).Write(w)
		return
	}
	query := sanitizeInput(r.URL.Query().Get("q"))

	view := s.sessions.View(sessionID(r))
	ticket := view.Begin(period)
	rows, err := s.loader.Load(ctx, period)
	if err != nil {
		atomic.AddInt64(&s.appMetrics.loadErrors, 1)
		logger.ErrorContext(ctx, "Subscriptions load failed",
			applog.FieldError, err,
			applog.FieldMonth, period.Month,
			applog.FieldYear, period.Year,
			applog.FieldOperation, applog.OpList)
		NewHTMXResponse().NoSwap().TriggerErrorNotification(msgLoadFailed).Write(w)
		return
	}
	if !view.Apply(ticket, rows) {
		atomic.AddInt64(&s.appMetrics.staleLoads, 1)
		logger.DebugContext(ctx, "Discarding superseded period load",
			applog.FieldMonth, period.Month,
			applog.FieldYear, period.Year,
			applog.FieldGeneration, ticket.Generation)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	matched := reconcile.FilterRows(rows, query)
	data := subscriptionsPartial{
		Period:   period,
		Query:    query,
		Summary:  core.Summarize(rows),
		Matched:  len(matched),
		Currency: s.cfg.Currency,
	}
	for _, row := range matched {
		data.Rows = append(data.Rows, newRowView(row))
	}
	w.Header().Set("Vary", "Cookie")
	s.renderTemplate(w, r, http.StatusOK, "subscriptions.html", data, nil)
}

// handleExportPeriod downloads the period report of the rows matching q.
// The summary cards always cover the whole period.
func (s *Server) handleExportPeriod(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := applog.FromContext(ctx).WithComponent(applog.ComponentRender)

	period, err := ParsePeriodParams(r.URL.Query(), s.now())
	if err != nil {
		http.Error(w, msgInvalidPeriod, http.StatusBadRequest)
		return
	}
	rows, err := s.loader.Load(ctx, period)
	if err != nil {
		atomic.AddInt64(&s.appMetrics.loadErrors, 1)
		logger.ErrorContext(ctx, "Period report load failed",
			applog.FieldError, err,
			applog.FieldMonth, period.Month,
			applog.FieldYear, period.Year)
		http.Error(w, msgLoadFailed, http.StatusBadGateway)
		return
	}

	artifact, err := s.exporter.RenderPeriodReport(ctx, render.PeriodReport{
		Period:      period,
		Rows:        reconcile.FilterRows(rows, sanitizeInput(r.URL.Query().Get("q"))),
		Summary:     core.Summarize(rows),
		GeneratedAt: s.now(),
	})
	if err != nil {
		logger.ErrorContext(ctx, "Period report rendering failed",
			applog.FieldError, err,
			applog.FieldMonth, period.Month,
			applog.FieldYear, period.Year,
			applog.FieldOperation, applog.OpRender)
		http.Error(w, msgReportFailed, http.StatusInternalServerError)
		return
	}
	atomic.AddInt64(&s.appMetrics.reportsExported, 1)
	logger.InfoContext(ctx, "Period report exported",
		applog.FieldMonth, period.Month,
		applog.FieldYear, period.Year,
		applog.FieldRows, len(rows),
		"bytes", len(artifact.Body))
	writeArtifact(w, artifact)
}
