package domain

import "time"

type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "LOW"
	SeverityMedium   AlertSeverity = "MEDIUM"
	SeverityHigh     AlertSeverity = "HIGH"
	SeverityCritical AlertSeverity = "CRITICAL"
)

func ParseAlertSeverity(raw string) (AlertSeverity, bool) {
	severity := AlertSeverity(raw)
	switch severity {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return severity, true
	default:
		return "", false
	}
}

const (
	AlertKindIntegrityFailure      = "INTEGRITY_FAILURE"
	AlertKindFileNotFound          = "FILE_NOT_FOUND"
	AlertKindSuspiciousActivity    = "SUSPICIOUS_ACTIVITY"
	AlertKindRepeatedVerifyFailure = "REPEATED_VERIFICATION_FAILURE"
)

type Alert struct {
	ID               int64         `json:"id"`
	Kind             string        `json:"alert_kind"`
	Severity         AlertSeverity `json:"severity"`
	Message          string        `json:"message"`
	DocumentID       *string       `json:"document_id,omitempty"`
	IntegrityCheckID *int64        `json:"integrity_check_id,omitempty"`
	Fingerprint      *string       `json:"-"`
	CreatedAt        time.Time     `json:"created_at"`
	Acknowledged     bool          `json:"acknowledged"`
	AcknowledgedBy   *string       `json:"acknowledged_by,omitempty"`
	AcknowledgedAt   *time.Time    `json:"acknowledged_at,omitempty"`
}

type AlertInput struct {
	Kind             string
	Severity         AlertSeverity
	Message          string
	DocumentID       string
	IntegrityCheckID int64
}

type AlertFilter struct {
	Acknowledged *bool
	Kind         string
}
