package core

import (
	"encoding/json"
	"reflect"
	"testing"
)

func decodeItems(t *testing.T, payload string) []RawSubscriber {
	t.Helper()
	var items []RawSubscriber
	if err := json.Unmarshal([]byte(payload), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return items
}

func TestNormalizeSelectsPeriodCaseInsensitive(t *testing.T) {
	items := decodeItems(t, `[{"Subscriber_Id": 7, "status": "active",
		"user": {"id": 3, "name": "Ali", "phone": 777123456},
		"subscriptions": [
			{"id": 1, "month": 2, "year": 2024, "status": "paid", "amount": 10},
			{"id": 2, "month": 3, "year": 2024, "status": "Paid", "amount": "50", "paid_at": "2024-03-05"}
		]}]`)

	rows := Normalize(items, Period{Month: 3, Year: 2024})
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	r := rows[0]
	if r.Subscriber.ID != 7 || r.Subscriber.Name != "Ali" || r.Subscriber.Phone != "777123456" {
		t.Fatalf("unexpected subscriber: %+v", r.Subscriber)
	}
	if r.Subscription == nil {
		t.Fatalf("expected a subscription for 2024-03")
	}
	if r.Subscription.Status != StatusPaid {
		t.Fatalf("status not normalized: %q", r.Subscription.Status)
	}
	if r.Subscription.Month != 3 || r.Subscription.Year != 2024 {
		t.Fatalf("subscription outside period: %+v", r.Subscription)
	}
	if r.Subscription.Amount.Cents != 5000 {
		t.Fatalf("amount cents = %d", r.Subscription.Amount.Cents)
	}
	if r.PaidAtLabel() != "2024-03-05" {
		t.Fatalf("paid at = %q", r.PaidAtLabel())
	}
	if r.Subscriber.MemberType() != MemberAffiliated {
		t.Fatalf("expected affiliated member")
	}
}

func TestNormalizeToleratesMalformedItems(t *testing.T) {
	items := decodeItems(t, `[
		{"id": "12", "status": "inactive", "user": null, "subscriptions": "nope"},
		{"user": {"name": "No id"}, "subscriptions": [{"month": "3", "year": "2024", "status": "PENDING"}]},
		42,
		null,
		{"id": 5, "subscriptions": [null, {"month": 3.5, "year": 2024}, {"month": 3, "year": 2024, "amount": "abc", "status": "paid"}]}
	]`)

	rows := Normalize(items, Period{Month: 3, Year: 2024})
	if len(rows) != len(items) {
		t.Fatalf("expected %d rows, got %d", len(items), len(rows))
	}
	if rows[0].Subscriber.ID != 12 || rows[0].Subscription != nil {
		t.Fatalf("row 0: %+v", rows[0])
	}
	if rows[1].Subscriber.ID != 0 || rows[1].Subscription == nil || rows[1].Subscription.Status != StatusPending {
		t.Fatalf("row 1: %+v", rows[1])
	}
	if rows[2].Subscriber != (Subscriber{}) || rows[2].Subscription != nil {
		t.Fatalf("row 2 should be empty: %+v", rows[2])
	}
	if rows[3].Subscription != nil {
		t.Fatalf("row 3 should have no subscription")
	}
	if rows[4].Subscription == nil || rows[4].Subscription.Amount.Cents != 0 {
		t.Fatalf("row 4: %+v", rows[4].Subscription)
	}
}

func TestNormalizeFirstMatchWinsAndCountsDuplicates(t *testing.T) {
	items := []RawSubscriber{{
		ID: 1,
		Subscriptions: []RawSubscription{
			{ID: 10, Month: 5, Year: 2025, Status: "pending"},
			{ID: 11, Month: 5, Year: 2025, Status: "paid"},
			{ID: 12, Month: 5, Year: 2025, Status: "paid"},
		},
	}}
	rows := Normalize(items, Period{Month: 5, Year: 2025})
	if rows[0].Subscription.ID != 10 {
		t.Fatalf("expected first match, got id %d", rows[0].Subscription.ID)
	}
	if rows[0].Duplicates != 2 {
		t.Fatalf("expected 2 duplicates, got %d", rows[0].Duplicates)
	}
}

func TestNormalizePreservesOrderAndIsIdempotent(t *testing.T) {
	items := []RawSubscriber{
		{ID: 3, User: RawUser{Name: "c"}},
		{ID: 1, User: RawUser{Name: "a"}, Subscriptions: []RawSubscription{{ID: 9, Month: 1, Year: 2023, Status: "Paid"}}},
		{ID: 2, User: RawUser{Name: "b"}},
	}
	p := Period{Month: 1, Year: 2023}
	first := Normalize(items, p)
	second := Normalize(items, p)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("normalize is not idempotent")
	}
	for i, want := range []int64{3, 1, 2} {
		if first[i].Subscriber.ID != want {
			t.Fatalf("row %d id = %d, want %d", i, first[i].Subscriber.ID, want)
		}
	}
}

func TestNormalizeEmpty(t *testing.T) {
	rows := Normalize(nil, Period{Month: 1, Year: 2024})
	if rows == nil || len(rows) != 0 {
		t.Fatalf("expected empty non-nil rows, got %#v", rows)
	}
}

func TestRawSubscriptionPaidAtFallback(t *testing.T) {
	var r RawSubscription
	if err := json.Unmarshal([]byte(`{"paidAt": "2024-01-02 10:00:00", "payment_method": "CASH"}`), &r); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.PaidAt != "2024-01-02 10:00:00" {
		t.Fatalf("paidAt fallback not used: %q", r.PaidAt)
	}
	if r.PaymentMethod == nil || *r.PaymentMethod != "CASH" {
		t.Fatalf("payment method = %v", r.PaymentMethod)
	}
	if _, ok := ParsePaidAt(r.PaidAt); !ok {
		t.Fatalf("expected paid at to parse")
	}
}
