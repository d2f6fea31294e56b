package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talahum/internal/core"
	"talahum/internal/remote"
	"talahum/internal/render"
)

type fakeSequencer struct {
	number string
	err    error
	calls  int
}

func (s *fakeSequencer) NextReceiptNumber(context.Context) (string, error) {
	s.calls++
	return s.number, s.err
}

type fakeWriter struct {
	mu       sync.Mutex
	err      error
	payments []core.Payment
	// block, when set, holds CreatePayment until closed.
	block chan struct{}
}

func (w *fakeWriter) CreatePayment(_ context.Context, p core.Payment) error {
	if w.block != nil {
		<-w.block
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.payments = append(w.payments, p)
	return w.err
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.payments)
}

type fakeExporter struct {
	err  error
	docs []render.ReceiptDocument
}

func (e *fakeExporter) RenderReceipt(_ context.Context, doc render.ReceiptDocument) (render.Artifact, error) {
	e.docs = append(e.docs, doc)
	if e.err != nil {
		return render.Artifact{}, e.err
	}
	return render.Artifact{Filename: core.ReceiptFilename(doc.ReceiptNumber), ContentType: render.ContentTypePDF, Body: []byte("%PDF")}, nil
}

var fixedNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func testRow() core.PeriodRow {
	return core.PeriodRow{Subscriber: core.Subscriber{ID: 7, Name: "أحمد", Phone: "777", Status: "active"}}
}

func newTestFlow(seq *fakeSequencer, w *fakeWriter, e *fakeExporter, refreshes *int32) *Flow {
	deps := Deps{Sequencer: seq, Writer: w, Exporter: e, Now: func() time.Time { return fixedNow }}
	return NewFlow("flow-1", testRow(), core.Period{Month: 3, Year: 2024}, deps, func() {
		atomic.AddInt32(refreshes, 1)
	})
}

func TestOpenReservesReceiptNumber(t *testing.T) {
	var refreshes int32
	seq := &fakeSequencer{number: "000042"}
	f := newTestFlow(seq, &fakeWriter{}, &fakeExporter{}, &refreshes)

	require.NoError(t, f.Open(context.Background()))
	snap := f.Snapshot()
	assert.Equal(t, StateCollecting, snap.State)
	assert.Equal(t, "000042", snap.ReceiptNumber)
	assert.Equal(t, "2024-03-15", snap.Form.Date)

	assert.ErrorIs(t, f.Open(context.Background()), ErrInvalidState)
	assert.Equal(t, 1, seq.calls)
}

func TestOpenFallsBackWhenSequencerFails(t *testing.T) {
	var refreshes int32
	f := newTestFlow(&fakeSequencer{err: errors.New("network down")}, &fakeWriter{}, &fakeExporter{}, &refreshes)

	require.NoError(t, f.Open(context.Background()))
	assert.Equal(t, StateCollecting, f.State())
	assert.Equal(t, "000001", f.Snapshot().ReceiptNumber)
}

func TestSubmitRejectsInvalidAmountWithoutNetwork(t *testing.T) {
	for _, amount := range []string{"0", "", "abc", "-5", "0.00"} {
		t.Run(amount, func(t *testing.T) {
			var refreshes int32
			w := &fakeWriter{}
			f := newTestFlow(&fakeSequencer{number: "000001"}, w, &fakeExporter{}, &refreshes)
			require.NoError(t, f.Open(context.Background()))

			err := f.Submit(context.Background(), Form{Amount: amount, Date: "2024-03-10"})
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, MsgInvalidAmount, ve.Message)
			assert.Equal(t, MsgInvalidAmount, UserMessage(err))
			assert.Equal(t, 0, w.count())
			assert.Equal(t, StateCollecting, f.State())
			assert.Equal(t, amount, f.Snapshot().Form.Amount)
		})
	}
}

func TestSubmitRejectsInvalidDate(t *testing.T) {
	var refreshes int32
	w := &fakeWriter{}
	f := newTestFlow(&fakeSequencer{number: "000001"}, w, &fakeExporter{}, &refreshes)
	require.NoError(t, f.Open(context.Background()))

	err := f.Submit(context.Background(), Form{Amount: "10", Date: "15/03/2024"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, MsgInvalidDate, ve.Message)
	assert.Equal(t, 0, w.count())
}

func TestSubmitSuccessReachesReceipt(t *testing.T) {
	var refreshes int32
	w := &fakeWriter{}
	f := newTestFlow(&fakeSequencer{number: "000042"}, w, &fakeExporter{}, &refreshes)
	require.NoError(t, f.Open(context.Background()))

	require.NoError(t, f.Submit(context.Background(), Form{Amount: "50", Date: "2024-03-10", Description: "شهر مارس"}))
	assert.Equal(t, StateReceipt, f.State())
	require.Equal(t, 1, w.count())

	p := w.payments[0]
	assert.Equal(t, "flow-1", p.FlowID)
	assert.Equal(t, int64(7), p.SubscriberID)
	assert.Equal(t, int64(5000), p.Amount.Cents)
	assert.Equal(t, 3, p.Month)
	assert.Equal(t, core.PaymentMethodCash, p.Method)
	assert.Equal(t, core.StatusPaid, p.Status)
	assert.Equal(t, "2024-03-10", p.PaidAt.String())

	doc, err := f.Receipt()
	require.NoError(t, err)
	assert.Equal(t, "000042", doc.ReceiptNumber)
	assert.Equal(t, "أحمد", doc.Name)
	assert.Equal(t, core.MemberAffiliated, doc.MemberType)
	assert.Equal(t, int32(0), atomic.LoadInt32(&refreshes))
}

func TestSubmitAcceptsArabicIndicDigits(t *testing.T) {
	var refreshes int32
	w := &fakeWriter{}
	f := newTestFlow(&fakeSequencer{number: "000043"}, w, &fakeExporter{}, &refreshes)
	require.NoError(t, f.Open(context.Background()))

	require.NoError(t, f.Submit(context.Background(), Form{Amount: "50.٥٠", Date: "2024-03-10"}))
	require.Equal(t, 1, w.count())
	assert.Equal(t, int64(5050), w.payments[0].Amount.Cents)
}

func TestSubmitNotifiesRecordedBeforeClose(t *testing.T) {
	var refreshes int32
	var recorded []core.Period
	w := &fakeWriter{}
	deps := Deps{
		Sequencer:  &fakeSequencer{number: "000044"},
		Writer:     w,
		Exporter:   &fakeExporter{},
		OnRecorded: func(p core.Period) { recorded = append(recorded, p) },
		Now:        func() time.Time { return fixedNow },
	}
	f := NewFlow("flow-2", testRow(), core.Period{Month: 3, Year: 2024}, deps, func() {
		atomic.AddInt32(&refreshes, 1)
	})
	require.NoError(t, f.Open(context.Background()))

	w.err = errors.New("timeout")
	require.Error(t, f.Submit(context.Background(), Form{Amount: "10"}))
	assert.Empty(t, recorded, "failed submit must not invalidate")

	w.err = nil
	require.NoError(t, f.Submit(context.Background(), Form{Amount: "10"}))
	assert.Equal(t, []core.Period{{Month: 3, Year: 2024}}, recorded)
	assert.Equal(t, StateReceipt, f.State())
	assert.Equal(t, int32(0), atomic.LoadInt32(&refreshes))
}

func TestSubmitDefaultsDateToToday(t *testing.T) {
	var refreshes int32
	w := &fakeWriter{}
	f := newTestFlow(&fakeSequencer{number: "000001"}, w, &fakeExporter{}, &refreshes)
	require.NoError(t, f.Open(context.Background()))
	require.NoError(t, f.Submit(context.Background(), Form{Amount: "5"}))
	assert.Equal(t, "2024-03-15", w.payments[0].PaidAt.String())
}

func TestSubmitFailureReturnsToCollecting(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"server message", &remote.APIError{StatusCode: 422, Message: "مسجل مسبقا"}, "مسجل مسبقا"},
		{"generic", errors.New("connection refused"), MsgSubmitFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var refreshes int32
			w := &fakeWriter{err: tc.err}
			f := newTestFlow(&fakeSequencer{number: "000009"}, w, &fakeExporter{}, &refreshes)
			require.NoError(t, f.Open(context.Background()))

			err := f.Submit(context.Background(), Form{Amount: "25", Date: "2024-03-01"})
			var se *SubmitError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tc.wantMsg, se.Message)

			snap := f.Snapshot()
			assert.Equal(t, StateCollecting, snap.State)
			assert.Equal(t, "25", snap.Form.Amount)
			assert.Equal(t, "000009", snap.ReceiptNumber)

			// Retry from Collecting succeeds once the API recovers.
			w.err = nil
			require.NoError(t, f.Submit(context.Background(), Form{Amount: "25", Date: "2024-03-01"}))
			assert.Equal(t, StateReceipt, f.State())
			assert.Equal(t, "000009", w.payments[1].ReceiptNumber)
		})
	}
}

func TestSubmitWhileSubmittingIsBusy(t *testing.T) {
	var refreshes int32
	w := &fakeWriter{block: make(chan struct{})}
	f := newTestFlow(&fakeSequencer{number: "000001"}, w, &fakeExporter{}, &refreshes)
	require.NoError(t, f.Open(context.Background()))

	done := make(chan error, 1)
	go func() { done <- f.Submit(context.Background(), Form{Amount: "10"}) }()

	require.Eventually(t, func() bool { return f.State() == StateSubmitting }, time.Second, time.Millisecond)
	assert.ErrorIs(t, f.Submit(context.Background(), Form{Amount: "10"}), ErrBusy)
	_, err := f.Close()
	assert.ErrorIs(t, err, ErrBusy)

	close(w.block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, w.count())
}

func TestCloseFromReceiptSignalsRefreshOnce(t *testing.T) {
	for _, exportErr := range []error{nil, errors.New("font missing")} {
		name := "export ok"
		if exportErr != nil {
			name = "export failed"
		}
		t.Run(name, func(t *testing.T) {
			var refreshes int32
			w := &fakeWriter{}
			f := newTestFlow(&fakeSequencer{number: "000003"}, w, &fakeExporter{err: exportErr}, &refreshes)
			require.NoError(t, f.Open(context.Background()))
			require.NoError(t, f.Submit(context.Background(), Form{Amount: "10"}))

			_, err := f.Export(context.Background())
			if exportErr != nil {
				var ee *ExportError
				require.ErrorAs(t, err, &ee)
				assert.Equal(t, StateReceipt, f.State())
			} else {
				require.NoError(t, err)
				assert.Equal(t, StateClosed, f.State())
			}

			refreshed, err := f.Close()
			require.NoError(t, err)
			assert.True(t, refreshed)
			_, _ = f.Close()

			assert.Equal(t, int32(1), atomic.LoadInt32(&refreshes))
			assert.Equal(t, 1, w.count(), "export must never resubmit the payment")
		})
	}
}

func TestCancelFromCollectingDoesNotRefresh(t *testing.T) {
	var refreshes int32
	w := &fakeWriter{}
	f := newTestFlow(&fakeSequencer{number: "000001"}, w, &fakeExporter{}, &refreshes)
	require.NoError(t, f.Open(context.Background()))

	refreshed, err := f.Close()
	require.NoError(t, err)
	assert.False(t, refreshed)
	assert.Equal(t, StateClosed, f.State())
	assert.Equal(t, int32(0), atomic.LoadInt32(&refreshes))
	assert.ErrorIs(t, f.Submit(context.Background(), Form{Amount: "10"}), ErrInvalidState)
}

func TestExportRequiresReceipt(t *testing.T) {
	var refreshes int32
	f := newTestFlow(&fakeSequencer{number: "000001"}, &fakeWriter{}, &fakeExporter{}, &refreshes)
	require.NoError(t, f.Open(context.Background()))
	_, err := f.Export(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRegistry(t *testing.T) {
	deps := Deps{
		Sequencer: &fakeSequencer{number: "000005"},
		Writer:    &fakeWriter{},
		Exporter:  &fakeExporter{},
	}
	r := NewRegistry(deps, 10, time.Minute)

	f, err := r.Open(context.Background(), testRow(), core.Period{Month: 3, Year: 2024}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, f.ID())

	got, err := r.Get(f.ID())
	require.NoError(t, err)
	assert.Same(t, f, got)

	r.Remove(f.ID())
	_, err = r.Get(f.ID())
	assert.ErrorIs(t, err, ErrFlowNotFound)

	_, err = r.Open(context.Background(), testRow(), core.Period{Month: 13, Year: 2024}, nil)
	assert.ErrorIs(t, err, core.ErrInvalidMonth)
}
