package capture

import (
	"errors"

	"talahum/internal/remote"
)

// User-facing messages.
const (
	MsgInvalidAmount = "الرجاء إدخال مبلغ صحيح"
	MsgInvalidDate   = "الرجاء إدخال تاريخ صحيح"
	MsgInvalidInput  = "الرجاء التحقق من البيانات المدخلة"
	MsgSubmitFailed  = "حدث خطأ أثناء تسجيل الدفع"
	MsgExportFailed  = "حدث خطأ أثناء إنشاء السند"
)

var (
	// ErrBusy is returned when a request is already in flight for the flow.
	ErrBusy = errors.New("capture flow busy")
	// ErrInvalidState is returned for an operation the current state does not allow.
	ErrInvalidState = errors.New("invalid capture flow state")
	ErrFlowNotFound = errors.New("capture flow not found")
)

// ValidationError rejects form input before any network call is made.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return e.Err }

// SubmitError is a failed create-payment request. Message is what the user sees.
type SubmitError struct {
	Message string
	Err     error
}

func (e *SubmitError) Error() string { return "submit payment: " + e.Err.Error() }

func (e *SubmitError) Unwrap() error { return e.Err }

func newSubmitError(err error) *SubmitError {
	msg, ok := remote.ServerMessage(err)
	if !ok {
		msg = MsgSubmitFailed
	}
	return &SubmitError{Message: msg, Err: err}
}

// ExportError is a failed receipt rendering. The payment itself stays recorded.
type ExportError struct {
	Err error
}

func (e *ExportError) Error() string { return "export receipt: " + e.Err.Error() }

func (e *ExportError) Unwrap() error { return e.Err }

// UserMessage returns the message to show for err, or "" when err carries none.
func UserMessage(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	var se *SubmitError
	if errors.As(err, &se) {
		return se.Message
	}
	var ee *ExportError
	if errors.As(err, &ee) {
		return MsgExportFailed
	}
	return ""
}
