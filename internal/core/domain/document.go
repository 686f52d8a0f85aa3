package domain

import (
	"strings"
	"time"
)

type DocumentCategory string

const (
	CategoryInvoice              DocumentCategory = "INVOICE"
	CategoryLetterOfCredit       DocumentCategory = "LETTER_OF_CREDIT"
	CategoryBillOfLading         DocumentCategory = "BILL_OF_LADING"
	CategoryPurchaseOrder        DocumentCategory = "PURCHASE_ORDER"
	CategoryCertificateOfOrigin  DocumentCategory = "CERTIFICATE_OF_ORIGIN"
	CategoryInsuranceCertificate DocumentCategory = "INSURANCE_CERTIFICATE"
)

var documentCategories = map[DocumentCategory]struct{}{
	CategoryInvoice:              {},
	CategoryLetterOfCredit:       {},
	CategoryBillOfLading:         {},
	CategoryPurchaseOrder:        {},
	CategoryCertificateOfOrigin:  {},
	CategoryInsuranceCertificate: {},
}

// ParseDocumentCategory accepts the canonical upper-case names as well as
// lower-case and dash separated spellings ("letter-of-credit").
func ParseDocumentCategory(raw string) (DocumentCategory, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	category := DocumentCategory(normalized)
	_, ok := documentCategories[category]
	return category, ok
}

// AllOrganizations is the listing scope sentinel used by auditors and
// system sweeps.
const AllOrganizations = "*"

type Document struct {
	ID             string           `json:"id"`
	OwnerID        string           `json:"owner_id"`
	Organization   string           `json:"organization"`
	Category       DocumentCategory `json:"category"`
	DocumentNumber string           `json:"document_number"`
	Digest         string           `json:"digest"`
	StorageLocator string           `json:"storage_locator"`
	TradeReference string           `json:"trade_reference,omitempty"`
	IssuedAt       *time.Time       `json:"issued_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}
