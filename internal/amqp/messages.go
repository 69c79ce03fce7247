package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventKind names the mutation a TransactionEvent reports.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

func (k EventKind) Valid() bool {
	switch k {
	case EventCreated, EventUpdated, EventDeleted:
		return true
	}
	return false
}

var ErrInvalidEvent = errors.New("invalid transaction event")

// TransactionEvent is a lightweight notification about a transaction change.
// It carries ids only; consumers load the current record from the store.
type TransactionEvent struct {
	Kind          EventKind `json:"kind"`
	TransactionID string    `json:"transactionId"`
	UserID        string    `json:"userId"`
	Version       int64     `json:"version"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewTransactionEvent(kind EventKind, transactionID, userID string, version int64) *TransactionEvent {
	return &TransactionEvent{
		Kind:          kind,
		TransactionID: transactionID,
		UserID:        userID,
		Version:       version,
		Timestamp:     time.Now(),
	}
}

func (e *TransactionEvent) Validate() error {
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: kind %q", ErrInvalidEvent, e.Kind)
	}
	if e.TransactionID == "" || e.UserID == "" {
		return fmt.Errorf("%w: missing ids", ErrInvalidEvent)
	}
	return nil
}

func (e *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// TransactionEventFromJSON decodes and validates a message body.
func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var ev TransactionEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return &ev, nil
}
