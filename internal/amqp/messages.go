package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"ecocalc/internal/core"
)

// CalculationCreatedMessage announces a committed calculation. It carries
// only the ID and total; consumers fetch the full record from storage.
type CalculationCreatedMessage struct {
	ID        string    `json:"id"`
	Total     float64   `json:"total"`
	CreatedAt time.Time `json:"createdAt"`
	Timestamp time.Time `json:"timestamp"`
}

func NewCalculationCreatedMessage(r core.CalculationResult) *CalculationCreatedMessage {
	return &CalculationCreatedMessage{
		ID:        r.ID,
		Total:     r.Total,
		CreatedAt: r.Date,
		Timestamp: time.Now().UTC(),
	}
}

func (m *CalculationCreatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// CalculationCreatedMessageFromJSON decodes a message and rejects ones without an ID.
func CalculationCreatedMessageFromJSON(data []byte) (*CalculationCreatedMessage, error) {
	var msg CalculationCreatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, errors.New("calculation message without id")
	}
	return &msg, nil
}
