package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RawSubscriber is a subscriber item as the API reports it, after a tolerant
// decode: fields that are absent or of the wrong JSON type are left at their
// zero value instead of failing the whole payload.
type RawSubscriber struct {
	ID            int64
	Status        string
	SubscribedAt  string
	User          RawUser
	Subscriptions []RawSubscription
}

type RawUser struct {
	ID    int64
	Name  string
	Email string
	Phone string
}

type RawSubscription struct {
	ID            int64
	Month         int
	Year          int
	Amount        Money
	Status        string
	PaymentMethod *string
	PaidAt        string
}

// DecodeError reports a payload whose overall shape is unusable.
type DecodeError struct {
	What string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %s: %v", e.What, e.Err)
	}
	return "decode " + e.What
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (s *RawSubscriber) UnmarshalJSON(data []byte) error {
	*s = RawSubscriber{}
	fields, ok := objectFields(data)
	if !ok {
		return nil
	}
	if id, ok := lookupInt(fields, "Subscriber_Id"); ok {
		s.ID = id
	} else if id, ok := lookupInt(fields, "id"); ok {
		s.ID = id
	}
	s.Status = asString(fields["status"])
	s.SubscribedAt = asString(fields["subscribed_at"])
	if raw, ok := fields["user"]; ok {
		_ = json.Unmarshal(raw, &s.User)
	}
	if raw, ok := fields["subscriptions"]; ok && isArray(raw) {
		// Element decoding never fails; a non-object element becomes a zero record.
		_ = json.Unmarshal(raw, &s.Subscriptions)
	}
	return nil
}

func (u *RawUser) UnmarshalJSON(data []byte) error {
	*u = RawUser{}
	fields, ok := objectFields(data)
	if !ok {
		return nil
	}
	u.ID, _ = lookupInt(fields, "id")
	u.Name = asString(fields["name"])
	u.Email = asString(fields["email"])
	u.Phone = asString(fields["phone"])
	return nil
}

func (r *RawSubscription) UnmarshalJSON(data []byte) error {
	*r = RawSubscription{}
	fields, ok := objectFields(data)
	if !ok {
		return nil
	}
	r.ID, _ = lookupInt(fields, "id")
	month, _ := lookupInt(fields, "month")
	year, _ := lookupInt(fields, "year")
	r.Month, r.Year = int(month), int(year)
	r.Amount = asAmount(fields["amount"])
	r.Status = asString(fields["status"])
	if pm := asString(fields["payment_method"]); pm != "" {
		r.PaymentMethod = &pm
	}
	r.PaidAt = asString(fields["paid_at"])
	if r.PaidAt == "" {
		r.PaidAt = asString(fields["paidAt"])
	}
	return nil
}

// ParsePaidAt reads the timestamp formats the API is known to emit.
func ParsePaidAt(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func objectFields(data []byte) (map[string]json.RawMessage, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, false
	}
	return fields, true
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

// lookupInt accepts JSON numbers and numeric strings with an integral value.
func lookupInt(fields map[string]json.RawMessage, key string) (int64, bool) {
	raw, ok := fields[key]
	if !ok {
		return 0, false
	}
	d, ok := asDecimal(raw)
	if !ok || !d.Equal(d.Truncate(0)) {
		return 0, false
	}
	return d.IntPart(), true
}

func asDecimal(raw json.RawMessage) (decimal.Decimal, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return decimal.Decimal{}, false
	}
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return decimal.Decimal{}, false
		}
		text = strings.TrimSpace(text)
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// asAmount converts a number or numeric string to cents, zero when unusable.
func asAmount(raw json.RawMessage) Money {
	d, ok := asDecimal(raw)
	if !ok {
		return Money{}
	}
	return Money{Cents: d.Shift(2).Round(0).IntPart()}
}

// asString renders strings as-is and numbers/bools in their JSON text form.
func asString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case 't', 'f':
		b, err := strconv.ParseBool(string(raw))
		if err != nil {
			return ""
		}
		return strconv.FormatBool(b)
	case 'n', '{', '[':
		return ""
	default:
		if _, ok := asDecimal(raw); ok {
			return string(raw)
		}
		return ""
	}
}
