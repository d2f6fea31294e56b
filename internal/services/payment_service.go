package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"talahum/internal/amqp"
	"talahum/internal/core"
	"talahum/internal/ports"
	"talahum/internal/storage"
)

// ReceiptJournal keeps a local copy of every captured payment.
type ReceiptJournal interface {
	RecordReceipt(ctx context.Context, p core.Payment) (storage.Receipt, error)
}

// ReceiptPublisher announces journaled receipts to the archive worker.
type ReceiptPublisher interface {
	PublishReceiptIssued(ctx context.Context, msg *amqp.ReceiptIssuedMessage) error
}

// PaymentService records a payment remotely, then journals it and publishes a
// ReceiptIssued event. Only the remote write decides the outcome; the payment
// is already on the server when the later steps run.
type PaymentService struct {
	writer    ports.PaymentWriter
	journal   ReceiptJournal
	publisher ReceiptPublisher
}

var _ ports.PaymentWriter = (*PaymentService)(nil)

// NewPaymentService wraps writer. journal and publisher may be nil.
func NewPaymentService(writer ports.PaymentWriter, journal ReceiptJournal, publisher ReceiptPublisher) *PaymentService {
	return &PaymentService{
		writer:    writer,
		journal:   journal,
		publisher: publisher,
	}
}

func (s *PaymentService) CreatePayment(ctx context.Context, p core.Payment) error {
	if s.writer == nil {
		return errors.New("payment service: no writer configured")
	}
	if err := s.writer.CreatePayment(ctx, p); err != nil {
		return err
	}

	if s.journal == nil {
		return nil
	}
	receipt, err := s.journal.RecordReceipt(ctx, p)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to journal receipt",
			"flow_id", p.FlowID,
			"receipt_number", p.ReceiptNumber,
			"error", err)
		return nil
	}

	if err := s.publishReceiptIssued(ctx, receipt); err != nil {
		slog.ErrorContext(ctx, "Failed to publish receipt issued message",
			"id", receipt.ID,
			"error", err)
		// The archive sweep picks the receipt up later.
	}
	return nil
}

func (s *PaymentService) publishReceiptIssued(ctx context.Context, r storage.Receipt) error {
	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP client not available, skipping receipt issued message")
		return nil
	}
	return s.publisher.PublishReceiptIssued(ctx, amqp.NewReceiptIssuedMessage(r.ID, r.FlowID, r.ReceiptNumber))
}

// Close releases the journal and publisher when they hold connections.
func (s *PaymentService) Close() error {
	var errs []error
	if c, ok := s.journal.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if c, ok := s.publisher.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close payment service: %w", errors.Join(errs...))
	}
	return nil
}
