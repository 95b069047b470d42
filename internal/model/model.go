// Package model defines the domain types used across the application.
package model

import "time"

// Item is a published listing that alerts are matched against.
// Immutable once the matching pipeline has run for it.
type Item struct {
	ID          int64
	Title       string
	Description string
	Category    string
	CreatedAt   time.Time
}

// RuleKind defines the type of alert rule predicate.
type RuleKind string

// Supported rule kinds.
const (
	KindCategory       RuleKind = "category"
	KindCoupon         RuleKind = "coupon"
	KindAffiliateStore RuleKind = "affiliate_store"
	KindKeyword        RuleKind = "keyword"
)

// AlertRule is a standing rule owned by exactly one recipient.
// The kind determines the matching predicate applied to its value.
type AlertRule struct {
	ID          int64
	RecipientID int64
	Kind        RuleKind
	Value       string
	CreatedAt   time.Time
}

// Recipient identifies who gets notified and where.
// Address is interpreted by the configured delivery transport
// (an email address or a Telegram chat ID).
type Recipient struct {
	ID        int64
	Address   string
	CreatedAt time.Time
}

// DeliveryPreference holds a recipient's two independent delivery flags.
// A recipient with neither flag enabled receives nothing.
type DeliveryPreference struct {
	RecipientID      int64
	ImmediateEnabled bool
	DigestEnabled    bool
}

// QueueEntry is one pending (recipient, item) digest obligation.
// SentAt is set at most once, by the digest scheduler, after a
// confirmed dispatch; entries are never deleted, only marked.
type QueueEntry struct {
	ID          int64
	RecipientID int64
	ItemID      int64
	CreatedAt   time.Time
	SentAt      *time.Time
}
