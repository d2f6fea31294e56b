package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"

	"talahum/internal/capture"
	"talahum/internal/core"
	applog "talahum/internal/log"
)

// paymentModal is the view model of payment_modal.html.
type paymentModal struct {
	capture.Snapshot
	MemberType string
	Currency   string
	Collecting bool
	Receipt    bool
	Exported   bool
	Error      string
}

func (s *Server) newPaymentModal(snap capture.Snapshot) paymentModal {
	return paymentModal{
		Snapshot:   snap,
		MemberType: snap.Subscriber.MemberType().Label(),
		Currency:   s.cfg.Currency,
		Collecting: snap.State == capture.StateCollecting || snap.State == capture.StateSubmitting,
		Receipt:    snap.State == capture.StateReceipt,
		Exported:   snap.State == capture.StateClosed && snap.Artifact != nil,
		Error:      snap.Message,
	}
}

func (s *Server) renderModal(w http.ResponseWriter, r *http.Request, status int, f *capture.Flow, rb *HTMXResponseBuilder) {
	s.renderTemplate(w, r, status, "payment_modal.html", s.newPaymentModal(f.Snapshot()), rb)
}

// lookupFlow resolves the {id} path value, writing a 404 when the flow is gone.
func (s *Server) lookupFlow(w http.ResponseWriter, r *http.Request) (*capture.Flow, bool) {
	f, err := s.flows.Get(r.PathValue("id"))
	if err != nil {
		NotFoundError(msgFlowNotFound).TriggerErrorNotification(msgFlowNotFound).Write(w)
		return nil, false
	}
	return f, true
}

// findRow returns the subscriber row the session is showing for p, loading
// the period when the session displays another one.
func (s *Server) findRow(ctx context.Context, session string, p core.Period, subscriberID int64) (core.PeriodRow, bool, error) {
	view := s.sessions.View(session)
	if shown, ok := view.Current(); ok && shown == p {
		if row, ok := view.Find(subscriberID); ok {
			return row, true, nil
		}
	}
	rows, err := s.loader.Load(ctx, p)
	if err != nil {
		return core.PeriodRow{}, false, err
	}
	for _, row := range rows {
		if row.Subscriber.ID == subscriberID {
			return row, true, nil
		}
	}
	return core.PeriodRow{}, false, nil
}

// handleOpenFlow opens the payment modal for one subscriber and period.
func (s *Server) handleOpenFlow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := applog.FromContext(ctx).WithComponent(applog.ComponentCapture)

	if rb := ParseFormOrFail(r); rb != nil {
		rb.Write(w)
		return
	}
	subscriberID, ok := parseID(r.Form.Get("subscriber_id"))
	if !ok {
		BadRequestError(msgInvalidRequest).Write(w)
		return
	}
	period, err := ParsePeriodParams(r.Form, s.now())
	if err != nil {
		BadRequestError(msgInvalidPeriod).Write(w)
		return
	}

	row, found, err := s.findRow(ctx, sessionID(r), period, subscriberID)
	if err != nil {
		logger.ErrorContext(ctx, "Subscriber lookup failed",
			applog.FieldError, err,
			applog.FieldSubscriberID, subscriberID,
			applog.FieldMonth, period.Month,
			applog.FieldYear, period.Year)
		ErrorResponse(http.StatusBadGateway, msgLoadFailed).TriggerErrorNotification(msgLoadFailed).Write(w)
		return
	}
	if !found {
		NotFoundError(msgSubscriberNotFound).Write(w)
		return
	}

	f, err := s.flows.Open(ctx, row, period, s.refreshPeriod(period))
	if err != nil {
		logger.ErrorContext(ctx, "Payment flow open failed", applog.FieldError, err, applog.FieldSubscriberID, subscriberID)
		InternalServerError(msgInvalidRequest).Write(w)
		return
	}
	logger.InfoContext(ctx, "Payment flow opened",
		applog.FieldFlowID, f.ID(),
		applog.FieldSubscriberID, subscriberID,
		applog.FieldReceiptNumber, f.Snapshot().ReceiptNumber,
		applog.FieldMonth, period.Month,
		applog.FieldYear, period.Year)
	s.renderModal(w, r, http.StatusOK, f, nil)
}

// handleSubmitFlow records the payment entered in the modal.
func (s *Server) handleSubmitFlow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, ok := s.lookupFlow(w, r)
	if !ok {
		return
	}
	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		BadRequestError(msgInvalidRequest).Write(w)
		return
	}

	err := f.Submit(ctx, parser.PaymentForm())
	var validationErr *capture.ValidationError
	var submitErr *capture.SubmitError
	switch {
	case err == nil:
		snap := f.Snapshot()
		atomic.AddInt64(&s.appMetrics.paymentsRecorded, 1)
		if snap.Payment != nil {
			s.events.LogPaymentCaptured(ctx, snap.ID, snap.Payment.SubscriberID, snap.Payment.Amount.Cents,
				snap.Payment.Month, snap.Payment.Year, snap.Payment.ReceiptNumber)
		}
		s.renderModal(w, r, http.StatusOK, f, NewHTMXResponse().TriggerSuccessNotification(msgPaymentRecorded))
	case errors.As(err, &validationErr):
		s.renderModal(w, r, http.StatusUnprocessableEntity, f, nil)
	case errors.As(err, &submitErr):
		s.events.LogError(ctx, "Payment submit failed", err, applog.ComponentCapture, applog.OpSubmit,
			applog.NewFields().WithOperation(applog.OpSubmit))
		s.renderModal(w, r, http.StatusBadGateway, f, NewHTMXResponse().TriggerErrorNotification(submitErr.Message))
	case errors.Is(err, capture.ErrBusy):
		ConflictError(msgBusy).Write(w)
	default:
		ConflictError(msgInvalidRequest).Write(w)
	}
}

// handleExportFlow renders the receipt. Success closes the flow, asks the
// page to refresh the table and shows the download link.
func (s *Server) handleExportFlow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, ok := s.lookupFlow(w, r)
	if !ok {
		return
	}

	artifact, err := f.Export(ctx)
	var exportErr *capture.ExportError
	switch {
	case err == nil:
		snap := f.Snapshot()
		atomic.AddInt64(&s.appMetrics.receiptsExported, 1)
		applog.FromContext(ctx).WithComponent(applog.ComponentRender).InfoContext(ctx, "Receipt exported",
			applog.FieldFlowID, snap.ID,
			applog.FieldReceiptNumber, snap.ReceiptNumber,
			"filename", artifact.Filename,
			"bytes", len(artifact.Body))
		s.renderModal(w, r, http.StatusOK, f, NewHTMXResponse().
			TriggerSubscriptionsRefresh(snap.Period).
			TriggerSuccessNotification(msgReceiptExported))
	case errors.As(err, &exportErr):
		s.renderModal(w, r, http.StatusInternalServerError, f, NewHTMXResponse().TriggerErrorNotification(capture.MsgExportFailed))
	case errors.Is(err, capture.ErrBusy):
		ConflictError(msgBusy).Write(w)
	default:
		ConflictError(msgInvalidRequest).Write(w)
	}
}

// handleCloseFlow dismisses the modal. Leaving the receipt step asks the page
// to refresh; cancelling while collecting does not.
func (s *Server) handleCloseFlow(w http.ResponseWriter, r *http.Request) {
	f, ok := s.lookupFlow(w, r)
	if !ok {
		return
	}
	wasReceipt := f.State() == capture.StateReceipt
	refreshed, err := f.Close()
	if err != nil {
		ConflictError(msgBusy).Write(w)
		return
	}
	s.flows.Remove(f.ID())

	rb := NewHTMXResponse().TriggerModalClosed()
	if refreshed && wasReceipt {
		rb.TriggerSubscriptionsRefresh(f.Snapshot().Period)
	}
	rb.BodyHTML("").Write(w)
}

// handleDownloadReceipt serves the receipt produced by a flow's export.
func (s *Server) handleDownloadReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := strings.CutSuffix(r.PathValue("file"), ".pdf")
	if !ok {
		http.NotFound(w, r)
		return
	}
	f, err := s.flows.Get(id)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	artifact := f.Artifact()
	if artifact == nil {
		http.NotFound(w, r)
		return
	}
	writeArtifact(w, *artifact)
}
