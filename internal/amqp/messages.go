package amqp

import (
	"encoding/json"
	"time"
)

// PaymentRecordedMessage is the lightweight event published after a payment
// batch commits. It carries only ledger entry ids; consumers fetch the full
// transactions from the database.
type PaymentRecordedMessage struct {
	StudentID      string    `json:"studentId"`
	TransactionIDs []int64   `json:"transactionIds"`
	TotalCents     int64     `json:"totalCents"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewPaymentRecordedMessage creates an event for a committed batch.
func NewPaymentRecordedMessage(studentID string, txIDs []int64, totalCents int64) *PaymentRecordedMessage {
	return &PaymentRecordedMessage{
		StudentID:      studentID,
		TransactionIDs: txIDs,
		TotalCents:     totalCents,
		Timestamp:      time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *PaymentRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON creates a message from JSON bytes
func PaymentRecordedMessageFromJSON(data []byte) (*PaymentRecordedMessage, error) {
	var msg PaymentRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
