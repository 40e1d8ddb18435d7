package amqp

import (
	"encoding/json"
	"time"
)

// PendingWriteMessage announces that a write was queued in the outbox. It
// only carries the entry id; the worker reads the payload from the mirror.
type PendingWriteMessage struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

func NewPendingWriteMessage(id, kind string) *PendingWriteMessage {
	return &PendingWriteMessage{
		ID:        id,
		Kind:      kind,
		Timestamp: time.Now(),
	}
}

func (m *PendingWriteMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func PendingWriteMessageFromJSON(data []byte) (*PendingWriteMessage, error) {
	var msg PendingWriteMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
