package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/tradedoc-ledger/internal/core/digest"
)

type EventKind string

const (
	EventCreated  EventKind = "CREATED"
	EventUploaded EventKind = "UPLOADED"
	EventVerified EventKind = "VERIFIED"
	EventAccessed EventKind = "ACCESSED"
	EventModified EventKind = "MODIFIED"
	EventShared   EventKind = "SHARED"
	EventDeleted  EventKind = "DELETED"
)

type digestRule int

const (
	digestForbidden digestRule = iota
	digestOptional
	digestRequired
)

type kindRules struct {
	before digestRule
	after  digestRule
}

var eventKindRules = map[EventKind]kindRules{
	EventCreated:  {before: digestForbidden, after: digestRequired},
	EventUploaded: {before: digestForbidden, after: digestRequired},
	EventVerified: {before: digestOptional, after: digestRequired},
	EventModified: {before: digestRequired, after: digestRequired},
	EventAccessed: {before: digestForbidden, after: digestOptional},
	EventShared:   {before: digestForbidden, after: digestOptional},
	EventDeleted:  {before: digestForbidden, after: digestOptional},
}

func ParseEventKind(raw string) (EventKind, bool) {
	kind := EventKind(strings.ToUpper(strings.TrimSpace(raw)))
	_, ok := eventKindRules[kind]
	return kind, ok
}

// LedgerEntry is one immutable lifecycle event. ID and CreatedAt are
// assigned by the store on append.
type LedgerEntry struct {
	ID                int64          `json:"id"`
	DocumentID        string         `json:"document_id"`
	Kind              EventKind      `json:"event_kind"`
	ActorID           string         `json:"actor_id"`
	ActorOrganization string         `json:"actor_organization"`
	OriginAddress     string         `json:"origin_address,omitempty"`
	UserAgent         string         `json:"user_agent,omitempty"`
	DigestBefore      *string        `json:"digest_before,omitempty"`
	DigestAfter       *string        `json:"digest_after,omitempty"`
	Description       string         `json:"description"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

// Validate checks the fields a caller controls. Digest presence depends on
// the event kind.
func (e *LedgerEntry) Validate() error {
	rules, ok := eventKindRules[e.Kind]
	if !ok {
		return WrapError(ErrInvalidInput, "validate ledger entry", fmt.Errorf("unknown event kind %q", e.Kind))
	}
	if strings.TrimSpace(e.DocumentID) == "" {
		return WrapError(ErrInvalidInput, "validate ledger entry", errors.New("document id is required"))
	}
	if strings.TrimSpace(e.ActorID) == "" || strings.TrimSpace(e.ActorOrganization) == "" {
		return WrapError(ErrInvalidInput, "validate ledger entry", errors.New("actor id and organization are required"))
	}
	if err := checkDigestField("digest_before", e.DigestBefore, rules.before, e.Kind); err != nil {
		return err
	}
	if err := checkDigestField("digest_after", e.DigestAfter, rules.after, e.Kind); err != nil {
		return err
	}
	if e.Kind == EventModified && *e.DigestBefore == *e.DigestAfter {
		return WrapError(ErrInvalidInput, "validate ledger entry", errors.New("MODIFIED requires differing digests"))
	}
	return nil
}

func checkDigestField(name string, value *string, rule digestRule, kind EventKind) error {
	switch {
	case value == nil && rule == digestRequired:
		return WrapError(ErrInvalidInput, "validate ledger entry", fmt.Errorf("%s is required for %s", name, kind))
	case value != nil && rule == digestForbidden:
		return WrapError(ErrInvalidInput, "validate ledger entry", fmt.Errorf("%s is not allowed for %s", name, kind))
	case value != nil && !digest.Valid(*value):
		return WrapError(ErrInvalidInput, "validate ledger entry", fmt.Errorf("%s is not a valid digest", name))
	}
	return nil
}

type LedgerFilter struct {
	Kind         EventKind
	DocumentID   string
	Organization string
}

type Page struct {
	Skip  int
	Limit int
}

const (
	DefaultPageLimit = 100
	MaxPageLimit     = 1000
)

func (p Page) Normalize() Page {
	out := p
	if out.Skip < 0 {
		out.Skip = 0
	}
	if out.Limit <= 0 {
		out.Limit = DefaultPageLimit
	}
	if out.Limit > MaxPageLimit {
		out.Limit = MaxPageLimit
	}
	return out
}

// StringPtr is a helper for optional digest fields.
func StringPtr(s string) *string {
	return &s
}
