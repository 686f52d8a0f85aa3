package domain

import "time"

type IntegrityStatus string

const (
	IntegrityPass    IntegrityStatus = "PASS"
	IntegrityFail    IntegrityStatus = "FAIL"
	IntegrityPending IntegrityStatus = "PENDING"
)

func ParseIntegrityStatus(raw string) (IntegrityStatus, bool) {
	status := IntegrityStatus(raw)
	switch status {
	case IntegrityPass, IntegrityFail, IntegrityPending:
		return status, true
	default:
		return "", false
	}
}

const CheckKindHashMatch = "hash-match"

type IntegrityCheckResult struct {
	ID             int64           `json:"id"`
	DocumentID     string          `json:"document_id"`
	RunID          string          `json:"run_id"`
	CheckKind      string          `json:"check_kind"`
	Status         IntegrityStatus `json:"status"`
	StoredDigest   string          `json:"stored_digest"`
	ComputedDigest *string         `json:"computed_digest,omitempty"`
	CheckedAt      time.Time       `json:"checked_at"`
	Remarks        string          `json:"remarks,omitempty"`
}

type IntegrityCheckFilter struct {
	DocumentID   string
	Status       IntegrityStatus
	Organization string
}

type BatchCheckRequest struct {
	Organization string   `json:"organization,omitempty"`
	DocumentIDs  []string `json:"document_ids,omitempty"`
	RequestedBy  string   `json:"requested_by,omitempty"`
}

type FailedDocument struct {
	DocumentID     string          `json:"document_id"`
	DocumentNumber string          `json:"document_number"`
	Status         IntegrityStatus `json:"status"`
	StoredDigest   string          `json:"stored_digest"`
	ComputedDigest string          `json:"computed_digest,omitempty"`
	Reason         string          `json:"reason"`
}

type BatchCheckSummary struct {
	RunID           string                 `json:"run_id"`
	TotalChecked    int                    `json:"total_checked"`
	Passed          int                    `json:"passed"`
	Failed          int                    `json:"failed"`
	Pending         int                    `json:"pending"`
	FailedDocuments []FailedDocument       `json:"failed_documents"`
	Errors          []string               `json:"errors"`
	Results         []IntegrityCheckResult `json:"-"`
	StartedAt       time.Time              `json:"started_at"`
	FinishedAt      time.Time              `json:"finished_at"`
}

type IntegritySummary struct {
	TotalChecks int64   `json:"total_checks"`
	Passed      int64   `json:"passed"`
	Failed      int64   `json:"failed"`
	Pending     int64   `json:"pending"`
	PassRate    float64 `json:"pass_rate"`
}
