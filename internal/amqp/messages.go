package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// ReceiptIssuedMessage announces a journaled receipt. It carries only
// identifiers; the worker reads the full entry from the journal.
type ReceiptIssuedMessage struct {
	ReceiptID     int64     `json:"receipt_id"`
	FlowID        string    `json:"flow_id"`
	ReceiptNumber string    `json:"receipt_number"`
	Timestamp     time.Time `json:"timestamp"`
}

var errMissingReceiptID = errors.New("message has no receipt id")

func NewReceiptIssuedMessage(receiptID int64, flowID, receiptNumber string) *ReceiptIssuedMessage {
	return &ReceiptIssuedMessage{
		ReceiptID:     receiptID,
		FlowID:        flowID,
		ReceiptNumber: receiptNumber,
		Timestamp:     time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ReceiptIssuedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ReceiptIssuedMessageFromJSON decodes and validates a message body.
func ReceiptIssuedMessageFromJSON(data []byte) (*ReceiptIssuedMessage, error) {
	var msg ReceiptIssuedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ReceiptID <= 0 {
		return nil, errMissingReceiptID
	}
	return &msg, nil
}
