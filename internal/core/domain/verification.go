package domain

// VerificationOutcome is the result of comparing presented bytes against a
// claimed digest. A mismatch is a normal outcome, not an error.
type VerificationOutcome struct {
	ComputedDigest string    `json:"computed_digest"`
	ProvidedDigest string    `json:"provided_digest,omitempty"`
	HashesMatch    bool      `json:"hashes_match"`
	DocumentExists bool      `json:"document_exists"`
	DocumentID     string    `json:"document_id,omitempty"`
	Document       *Document `json:"-"`
}
