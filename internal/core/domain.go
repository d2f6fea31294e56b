package core

import (
	"errors"
	"strings"
	"time"
)

const (
	StatusPaid    Status = "paid"
	StatusPending Status = "pending"
)

const (
	MemberAffiliated MemberType = "AFFILIATED"
	MemberNonMember  MemberType = "NON_MEMBER"
)

// PaymentMethodCash is the only method the dashboard records.
const PaymentMethodCash = "CASH"

type (
	// Status is a lower-cased subscription status as reported by the API.
	Status string

	// MemberType is derived from the subscriber's membership flag.
	MemberType string

	Money struct {
		Cents int64
	}

	Subscriber struct {
		ID           int64
		UserID       int64
		Status       string // membership flag, "active" means affiliated
		Name         string
		Email        string
		Phone        string
		Affiliation  string
		SubscribedAt string
	}

	SubscriptionRecord struct {
		ID            int64
		Month         int
		Year          int
		Amount        Money
		Status        Status
		PaymentMethod *string
		PaidAt        *time.Time
	}

	// PeriodRow is one subscriber as seen for a single (month, year).
	// Subscription is nil when nothing was recorded for the period.
	PeriodRow struct {
		Subscriber   Subscriber
		Subscription *SubscriptionRecord
		// Duplicates counts extra records matching the same period that were ignored.
		Duplicates int
	}

	// Payment is a new cash payment for one subscriber and period.
	Payment struct {
		FlowID        string
		SubscriberID  int64 `validate:"gt=0"`
		Amount        Money
		Month         int `validate:"min=1,max=12"`
		Year          int `validate:"min=1900"`
		Method        string `validate:"required"`
		Status        Status `validate:"required"`
		PaidAt        Date
		Description   string `validate:"max=500"`
		ReceiptNumber string
		Subscriber    Subscriber // snapshot shown on the receipt
	}
)

var (
	ErrInvalidMonth  = errors.New("invalid month")
	ErrInvalidYear   = errors.New("invalid year")
	ErrInvalidAmount = errors.New("invalid amount")
)

// NormalizeStatus lower-cases and trims a raw status string.
func NormalizeStatus(s string) Status {
	return Status(strings.ToLower(strings.TrimSpace(s)))
}

func (s Status) IsPaid() bool    { return s == StatusPaid }
func (s Status) IsPending() bool { return s == StatusPending }

// MemberType reports the membership type derived from the status flag.
func (s Subscriber) MemberType() MemberType {
	if strings.EqualFold(strings.TrimSpace(s.Status), "active") {
		return MemberAffiliated
	}
	return MemberNonMember
}

// Label returns the Arabic display label used on screens and documents.
func (m MemberType) Label() string {
	if m == MemberAffiliated {
		return "منتسب"
	}
	return "غير منتسب"
}

// Paid reports whether the row has a paid subscription for its period.
func (r PeriodRow) Paid() bool {
	return r.Subscription != nil && r.Subscription.Status.IsPaid()
}

// Amount returns the recorded amount, zero when nothing was recorded.
func (r PeriodRow) Amount() Money {
	if r.Subscription == nil {
		return Money{}
	}
	return r.Subscription.Amount
}

// StatusLabel renders the payment status the way the printed report does.
func (r PeriodRow) StatusLabel() string {
	switch {
	case r.Subscription == nil:
		return "لم يدفع بعد"
	case r.Subscription.Status.IsPaid():
		return "مدفوع"
	case r.Subscription.Status.IsPending():
		return "قيد الانتظار"
	default:
		return "فشل"
	}
}

// PaidAtLabel returns the payment date as YYYY-MM-DD or "-".
func (r PeriodRow) PaidAtLabel() string {
	if r.Subscription == nil || r.Subscription.PaidAt == nil {
		return "-"
	}
	return r.Subscription.PaidAt.Format("2006-01-02")
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
