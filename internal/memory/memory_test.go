package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"talahum/internal/core"
)

func TestNewFromFileEmbeddedSeed(t *testing.T) {
	s, err := NewFromFile("")
	if err != nil {
		t.Fatalf("load embedded seed: %v", err)
	}
	items, err := s.ListSubscribers(context.Background(), core.Period{Month: 1, Year: 2024})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) == 0 {
		t.Fatalf("expected seeded subscribers")
	}
	rows := core.Normalize(items, core.Period{Month: 1, Year: 2024})
	sum := core.Summarize(rows)
	if sum.Total != len(items) || sum.Paid != 1 || sum.Pending != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}

func TestNewFromFileBareArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	if err := os.WriteFile(path, []byte(`[{"id": 9, "user": {"name": "x"}}]`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := NewFromFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	items, _ := s.ListSubscribers(context.Background(), core.Period{Month: 1, Year: 2024})
	if len(items) != 1 || items[0].ID != 9 {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestCreatePaymentAndSequence(t *testing.T) {
	s := New([]core.RawSubscriber{{ID: 1, Subscriptions: []core.RawSubscription{{ID: 5, Month: 1, Year: 2024}}}})
	ctx := context.Background()

	n, err := s.NextReceiptNumber(ctx)
	if err != nil || n != "000005" {
		t.Fatalf("receipt number = %q, %v", n, err)
	}

	p := core.Payment{
		FlowID:       "f1",
		SubscriberID: 1,
		Amount:       core.Money{Cents: 5000},
		Month:        2,
		Year:         2024,
		Method:       core.PaymentMethodCash,
		Status:       core.StatusPaid,
		PaidAt:       core.NewDate(2024, 2, 1),
	}
	if err := s.CreatePayment(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	// Retrying the same flow must not record a second payment.
	if err := s.CreatePayment(ctx, p); err != nil {
		t.Fatalf("retry: %v", err)
	}

	items, _ := s.ListSubscribers(ctx, core.Period{})
	rows := core.Normalize(items, core.Period{Month: 2, Year: 2024})
	if !rows[0].Paid() || rows[0].Duplicates != 0 {
		t.Fatalf("unexpected row: %+v", rows[0])
	}
	if rows[0].Subscription.ID != 6 {
		t.Fatalf("new id = %d", rows[0].Subscription.ID)
	}
}

func TestCreatePaymentErrors(t *testing.T) {
	s := New(nil)
	ctx := context.Background()
	err := s.CreatePayment(ctx, core.Payment{SubscriberID: 3, Amount: core.Money{Cents: 100}, Month: 1, Year: 2024})
	if !errors.Is(err, ErrSubscriberNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	err = s.CreatePayment(ctx, core.Payment{SubscriberID: 3, Month: 1, Year: 2024})
	if !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestListReturnsCopies(t *testing.T) {
	s := New([]core.RawSubscriber{{ID: 1, Subscriptions: []core.RawSubscription{{ID: 1}}}})
	items, _ := s.ListSubscribers(context.Background(), core.Period{})
	items[0].Subscriptions[0].ID = 99
	again, _ := s.ListSubscribers(context.Background(), core.Period{})
	if again[0].Subscriptions[0].ID != 1 {
		t.Fatalf("store was mutated through a listed copy")
	}
}
