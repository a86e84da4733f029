package domain

import (
	"encoding/json"
	"time"
)

// Event is a custody protocol event shipped to reporting (Kafka, OTel logs, Loki).
type Event struct {
	ID        string          `json:"id"`
	ChequeID  string          `json:"chequeId"`
	ActorID   string          `json:"actorId,omitempty"`
	EventType string          `json:"eventType"`
	Resource  string          `json:"resource,omitempty"`
	Severity  string          `json:"severity,omitempty"`
	Source    string          `json:"source"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
