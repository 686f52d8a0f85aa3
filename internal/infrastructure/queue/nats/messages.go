package nats

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
)

// alertMessage is the wire form of a raised alert. It omits nothing the
// subscriber needs to route the notification.
type alertMessage struct {
	ID               int64     `json:"id"`
	Kind             string    `json:"alert_kind"`
	Severity         string    `json:"severity"`
	Message          string    `json:"message"`
	DocumentID       string    `json:"document_id,omitempty"`
	IntegrityCheckID int64     `json:"integrity_check_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func encodeAlert(alert domain.Alert) ([]byte, error) {
	msg := alertMessage{
		ID:        alert.ID,
		Kind:      alert.Kind,
		Severity:  string(alert.Severity),
		Message:   alert.Message,
		CreatedAt: alert.CreatedAt,
	}
	if alert.DocumentID != nil {
		msg.DocumentID = *alert.DocumentID
	}
	if alert.IntegrityCheckID != nil {
		msg.IntegrityCheckID = *alert.IntegrityCheckID
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode alert: %w", err)
	}
	return payload, nil
}

func decodeIntegrityRequest(data []byte) (domain.BatchCheckRequest, error) {
	var req domain.BatchCheckRequest
	if len(data) == 0 {
		return req, errors.New("empty integrity request")
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("decode integrity request: %w", err)
	}
	return req, nil
}
