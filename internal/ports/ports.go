package ports

import (
	"context"

	"talahum/internal/core"
)

// Ports for outbound adapters.
type (
	// SubscriberSource lists subscribers with their subscription history for a period.
	SubscriberSource interface {
		ListSubscribers(ctx context.Context, p core.Period) ([]core.RawSubscriber, error)
	}

	// ReceiptSequencer hands out the next human-readable receipt number.
	ReceiptSequencer interface {
		NextReceiptNumber(ctx context.Context) (string, error)
	}

	// PaymentWriter persists a captured payment.
	PaymentWriter interface {
		CreatePayment(ctx context.Context, p core.Payment) error
	}
)
