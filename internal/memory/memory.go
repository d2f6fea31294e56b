// Package memory is an in-process subscriber store used for demos and tests.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"talahum/assets"
	"talahum/internal/core"
	"talahum/internal/ports"
)

var (
	_ ports.SubscriberSource = (*Store)(nil)
	_ ports.ReceiptSequencer = (*Store)(nil)
	_ ports.PaymentWriter    = (*Store)(nil)
)

// ErrSubscriberNotFound is returned when a payment names an unknown subscriber.
var ErrSubscriberNotFound = errors.New("subscriber not found")

type Store struct {
	mu    sync.Mutex
	items []core.RawSubscriber
	// flows remembers flow ids already written, so a retried submit is a no-op.
	flows map[string]struct{}
}

func New(items []core.RawSubscriber) *Store {
	return &Store{items: cloneSubscribers(items), flows: map[string]struct{}{}}
}

// NewFromFile loads subscribers from a JSON file. An empty path loads the
// embedded demo data set.
func NewFromFile(path string) (*Store, error) {
	var (
		data []byte
		err  error
	)
	if path == "" {
		data, err = fs.ReadFile(assets.SeedFS, assets.SeedFile)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	items, err := decodeSeed(data)
	if err != nil {
		return nil, err
	}
	return New(items), nil
}

// decodeSeed accepts either a bare array or the API's {"data": [...]} envelope.
func decodeSeed(data []byte) ([]core.RawSubscriber, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, &core.DecodeError{What: "seed", Err: err}
		}
		data = bytes.TrimSpace(env.Data)
		if len(data) == 0 || bytes.Equal(data, []byte("null")) {
			return nil, nil
		}
	}
	var items []core.RawSubscriber
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, &core.DecodeError{What: "seed", Err: err}
	}
	return items, nil
}

// ListSubscribers returns every subscriber with its full history, like the API does.
func (s *Store) ListSubscribers(ctx context.Context, _ core.Period) ([]core.RawSubscriber, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSubscribers(s.items), nil
}

func (s *Store) NextReceiptNumber(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.FormatReceiptNumber(s.maxSubscriptionID()), nil
}

// CreatePayment records a subscription for the payment's period.
func (s *Store) CreatePayment(ctx context.Context, p core.Payment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.Amount.Validate(); err != nil {
		return err
	}
	if err := (core.Period{Month: p.Month, Year: p.Year}).Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.FlowID != "" {
		if _, done := s.flows[p.FlowID]; done {
			return nil
		}
	}
	idx := -1
	for i := range s.items {
		if s.items[i].ID == p.SubscriberID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %d", ErrSubscriberNotFound, p.SubscriberID)
	}
	method := p.Method
	s.items[idx].Subscriptions = append(s.items[idx].Subscriptions, core.RawSubscription{
		ID:            s.maxSubscriptionID() + 1,
		Month:         p.Month,
		Year:          p.Year,
		Amount:        p.Amount,
		Status:        string(p.Status),
		PaymentMethod: &method,
		PaidAt:        p.PaidAt.String(),
	})
	if p.FlowID != "" {
		s.flows[p.FlowID] = struct{}{}
	}
	return nil
}

func (s *Store) maxSubscriptionID() int64 {
	var maxID int64
	for _, it := range s.items {
		for _, sub := range it.Subscriptions {
			if sub.ID > maxID {
				maxID = sub.ID
			}
		}
	}
	return maxID
}

func cloneSubscribers(in []core.RawSubscriber) []core.RawSubscriber {
	out := make([]core.RawSubscriber, len(in))
	for i, it := range in {
		out[i] = it
		out[i].Subscriptions = append([]core.RawSubscription(nil), it.Subscriptions...)
	}
	return out
}
