package domain

import "time"

type DocumentActivity struct {
	DocumentID string `json:"document_id"`
	EntryCount int64  `json:"entry_count"`
}

type ActorActivity struct {
	ActorID           string `json:"actor_id"`
	ActorOrganization string `json:"actor_organization"`
	EntryCount        int64  `json:"entry_count"`
}

type LedgerStats struct {
	TotalEntries             int64               `json:"total_entries"`
	EventKindBreakdown       map[EventKind]int64 `json:"event_kind_breakdown"`
	RecentActivity           int64               `json:"recent_activity"`
	RecentEventKindBreakdown map[EventKind]int64 `json:"recent_event_kind_breakdown"`
	WindowSeconds            int64               `json:"window_seconds"`
	MostActiveDocuments      []DocumentActivity  `json:"most_active_documents"`
	Integrity                IntegritySummary    `json:"integrity"`
	GeneratedAt              time.Time           `json:"generated_at"`
}
