// Package capture records a cash payment for one subscriber and period and
// produces its receipt.
//
// A Flow moves Closed -> Collecting -> Submitting -> Receipt -> Closed.
// Cancelling from Collecting closes without a refresh; a failed submit returns
// to Collecting with the form preserved; leaving Receipt, by Close or by a
// successful Export, signals the owner to refresh exactly once.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"talahum/internal/core"
	"talahum/internal/ports"
	"talahum/internal/render"
)

type State int

const (
	StateClosed State = iota
	StateCollecting
	StateSubmitting
	StateReceipt
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateCollecting:
		return "collecting"
	case StateSubmitting:
		return "submitting"
	case StateReceipt:
		return "receipt"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Form is what the user typed into the payment modal.
type Form struct {
	Amount      string `validate:"required"`
	Date        string `validate:"omitempty,datetime=2006-01-02"`
	Description string `validate:"max=500"`
}

// ReceiptExporter renders a receipt document.
type ReceiptExporter interface {
	RenderReceipt(ctx context.Context, doc render.ReceiptDocument) (render.Artifact, error)
}

// Deps are the collaborators of a flow.
type Deps struct {
	Sequencer ports.ReceiptSequencer
	Writer    ports.PaymentWriter
	Exporter  ReceiptExporter
	Logger    *slog.Logger
	// OnRecorded, when set, runs as soon as the payment service accepts a
	// payment, with the flow's period.
	OnRecorded func(core.Period)
	// Now defaults to time.Now.
	Now func() time.Time
}

// Snapshot is a read-only copy of a flow for rendering.
type Snapshot struct {
	ID            string
	State         State
	ReceiptNumber string
	Subscriber    core.Subscriber
	Period        core.Period
	Form          Form
	Payment       *core.Payment
	Artifact      *render.Artifact
	Message       string
	Busy          bool
}

var validate = validator.New(validator.WithRequiredStructEnabled())

type Flow struct {
	id         string
	subscriber core.Subscriber
	period     core.Period
	deps       Deps
	logger     *slog.Logger

	mu            sync.Mutex
	state         State
	busy          bool
	receiptNumber string
	form          Form
	payment       *core.Payment
	artifact      *render.Artifact
	message       string

	onRefresh   func()
	refreshOnce sync.Once
}

// NewFlow creates a closed flow for the subscriber of row. The subscriber is
// snapshotted here and is what the receipt shows.
func NewFlow(id string, row core.PeriodRow, period core.Period, deps Deps, onRefresh func()) *Flow {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{
		id:         id,
		subscriber: row.Subscriber,
		period:     period,
		deps:       deps,
		logger:     logger.With("flow_id", id, "subscriber_id", row.Subscriber.ID),
		onRefresh:  onRefresh,
	}
}

func (f *Flow) ID() string { return f.id }

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Open reserves a receipt number and moves to Collecting. A failing sequencer
// never blocks the flow; the fallback number is used instead.
func (f *Flow) Open(ctx context.Context) error {
	f.mu.Lock()
	if f.busy {
		f.mu.Unlock()
		return ErrBusy
	}
	if f.state != StateClosed || f.receiptNumber != "" {
		f.mu.Unlock()
		return ErrInvalidState
	}
	f.busy = true
	f.mu.Unlock()

	number, err := f.deps.Sequencer.NextReceiptNumber(ctx)
	if err != nil || strings.TrimSpace(number) == "" {
		f.logger.WarnContext(ctx, "Receipt number unavailable, using fallback", "error", err)
		number = core.FallbackReceiptNumber
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = false
	f.receiptNumber = number
	f.form = Form{Date: f.deps.Now().Format("2006-01-02")}
	f.state = StateCollecting
	return nil
}

// Submit validates the form and sends one create-payment request.
func (f *Flow) Submit(ctx context.Context, form Form) error {
	f.mu.Lock()
	if f.state == StateSubmitting || f.busy {
		f.mu.Unlock()
		return ErrBusy
	}
	if f.state != StateCollecting {
		f.mu.Unlock()
		return ErrInvalidState
	}
	form.Amount = strings.TrimSpace(form.Amount)
	form.Date = strings.TrimSpace(form.Date)
	f.form = form

	payment, err := f.buildPayment(form)
	if err != nil {
		f.message = UserMessage(err)
		f.mu.Unlock()
		return err
	}
	f.state = StateSubmitting
	f.message = ""
	f.mu.Unlock()

	err = f.deps.Writer.CreatePayment(ctx, payment)
	if err == nil && f.deps.OnRecorded != nil {
		f.deps.OnRecorded(f.period)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		se := newSubmitError(err)
		f.state = StateCollecting
		f.message = se.Message
		f.logger.WarnContext(ctx, "Payment submit failed", "error", err)
		return se
	}
	f.payment = &payment
	f.state = StateReceipt
	f.logger.InfoContext(ctx, "Payment recorded",
		"receipt_number", payment.ReceiptNumber,
		"amount_cents", payment.Amount.Cents,
		"month", payment.Month,
		"year", payment.Year)
	return nil
}

// buildPayment is the local validation step; no network call happens before it passes.
func (f *Flow) buildPayment(form Form) (core.Payment, error) {
	cents, err := core.ParseDecimalToCents(form.Amount)
	if err != nil {
		return core.Payment{}, &ValidationError{Field: "amount", Message: MsgInvalidAmount, Err: err}
	}
	if err := validate.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Field() == "Date" {
			return core.Payment{}, &ValidationError{Field: "date", Message: MsgInvalidDate, Err: err}
		}
		return core.Payment{}, &ValidationError{Field: "form", Message: MsgInvalidInput, Err: err}
	}

	now := f.deps.Now()
	paidAt := core.NewDate(now.Year(), int(now.Month()), now.Day())
	if form.Date != "" {
		d, err := core.ParseDate(form.Date)
		if err != nil {
			return core.Payment{}, &ValidationError{Field: "date", Message: MsgInvalidDate, Err: err}
		}
		paidAt = d
	}

	p := core.Payment{
		FlowID:        f.id,
		SubscriberID:  f.subscriber.ID,
		Amount:        core.Money{Cents: cents},
		Month:         f.period.Month,
		Year:          f.period.Year,
		Method:        core.PaymentMethodCash,
		Status:        core.StatusPaid,
		PaidAt:        paidAt,
		Description:   form.Description,
		ReceiptNumber: f.receiptNumber,
		Subscriber:    f.subscriber,
	}
	if err := validate.Struct(p); err != nil {
		return core.Payment{}, &ValidationError{Field: "payment", Message: MsgInvalidInput, Err: err}
	}
	return p, nil
}

// Receipt returns the document for the recorded payment.
func (f *Flow) Receipt() (render.ReceiptDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateReceipt || f.payment == nil {
		return render.ReceiptDocument{}, ErrInvalidState
	}
	return f.receiptDocument(), nil
}

func (f *Flow) receiptDocument() render.ReceiptDocument {
	return render.ReceiptDocument{
		ReceiptNumber: f.payment.ReceiptNumber,
		Date:          f.payment.PaidAt,
		Name:          f.subscriber.Name,
		Phone:         f.subscriber.Phone,
		MemberType:    f.subscriber.MemberType(),
		Amount:        f.payment.Amount,
		Period:        f.period,
		Description:   f.payment.Description,
	}
}

// Export renders the receipt. Success closes the flow and signals a refresh;
// failure leaves the flow in Receipt and never resubmits the payment.
func (f *Flow) Export(ctx context.Context) (render.Artifact, error) {
	f.mu.Lock()
	if f.busy {
		f.mu.Unlock()
		return render.Artifact{}, ErrBusy
	}
	if f.state != StateReceipt || f.payment == nil {
		f.mu.Unlock()
		return render.Artifact{}, ErrInvalidState
	}
	doc := f.receiptDocument()
	f.busy = true
	f.mu.Unlock()

	artifact, err := f.deps.Exporter.RenderReceipt(ctx, doc)

	f.mu.Lock()
	f.busy = false
	if err != nil {
		f.message = MsgExportFailed
		f.mu.Unlock()
		f.logger.ErrorContext(ctx, "Receipt export failed", "error", err)
		return render.Artifact{}, &ExportError{Err: err}
	}
	f.artifact = &artifact
	f.state = StateClosed
	f.message = ""
	f.mu.Unlock()

	f.signalRefresh()
	return artifact, nil
}

// Close dismisses the flow. It reports whether the owner was asked to refresh.
func (f *Flow) Close() (bool, error) {
	f.mu.Lock()
	if f.busy || f.state == StateSubmitting {
		f.mu.Unlock()
		return false, ErrBusy
	}
	prev := f.state
	f.state = StateClosed
	f.mu.Unlock()

	switch prev {
	case StateReceipt:
		f.signalRefresh()
		return true, nil
	case StateClosed:
		// Closed after a successful export: the refresh was already signalled.
		return f.Artifact() != nil, nil
	default:
		return false, nil
	}
}

// Artifact returns the exported receipt, nil until an export succeeded.
func (f *Flow) Artifact() *render.Artifact {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.artifact
}

func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := Snapshot{
		ID:            f.id,
		State:         f.state,
		ReceiptNumber: f.receiptNumber,
		Subscriber:    f.subscriber,
		Period:        f.period,
		Form:          f.form,
		Artifact:      f.artifact,
		Message:       f.message,
		Busy:          f.busy || f.state == StateSubmitting,
	}
	if f.payment != nil {
		p := *f.payment
		s.Payment = &p
	}
	return s
}

func (f *Flow) signalRefresh() {
	f.refreshOnce.Do(func() {
		if f.onRefresh != nil {
			f.onRefresh()
		}
	})
}
