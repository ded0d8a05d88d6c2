// internal/domain/notification/candidate.go
package notification

import "time"

// Source identifies which channel observed a candidate.
type Source string

const (
	SourcePoll     Source = "poll"
	SourceRealtime Source = "realtime"
)

// Logical navigation targets carried as tap metadata.
const (
	ScreenInvitations   = "Invitations"
	ScreenNotifications = "Notifications"
)

// Candidate is a raw event observed by either source, not yet deduplicated or classified.
// Only its ID outlives processing (in the dedup history).
type Candidate struct {
	ID           string // stable across both channels for the same underlying event
	Title        string
	Body         string
	TargetScreen string
	RecipientKey string // email or user id used to scope the query; not part of identity
	Source       Source
	CreatedAt    time.Time
}

// Category is the classifier's verdict for a candidate.
type Category string

const (
	CategorySecurity       Category = "security"
	CategoryInviteAccepted Category = "invite-accepted"
	CategoryInviteDeclined Category = "invite-declined"
	CategoryGeneric        Category = "generic"
)

// Classified is a Candidate with its refined display text and category.
type Classified struct {
	Candidate
	RefinedTitle string
	RefinedBody  string
	Category     Category
}

// Delivery is what the engine hands to a Sink.
type Delivery struct {
	CandidateID  string
	Title        string
	Body         string
	TargetScreen string
	Silent       bool
	Category     Category
}

// Scope holds the recipient predicates both sources filter on.
type Scope struct {
	UserID string
	Email  string
}

// EmitFunc receives candidates from a source.
type EmitFunc func(c Candidate)

// Outcome is the terminal state of a candidate after one pass through the engine.
type Outcome string

const (
	OutcomeRejected  Outcome = "rejected"  // missing id or title; not marked processed
	OutcomeDuplicate Outcome = "duplicate" // id already processed
	OutcomeDelivered Outcome = "delivered"
	OutcomeSilenced  Outcome = "silenced" // delivered with Silent set
	OutcomeFailed    Outcome = "failed"   // sink error; id stays marked
)

// Collection names one of the two logical feeds both sources observe.
type Collection string

const (
	CollectionInvitations   Collection = "invitations"   // pending invites, scoped by email
	CollectionNotifications Collection = "notifications" // unread notifications, scoped by user id
)

// Collections lists the feeds in the order sources visit them.
var Collections = []Collection{CollectionInvitations, CollectionNotifications}

// Screen is the navigation target attached to candidates from this collection.
func (c Collection) Screen() string {
	if c == CollectionInvitations {
		return ScreenInvitations
	}
	return ScreenNotifications
}

// ScopeKey returns the predicate value this collection is filtered by.
func (c Collection) ScopeKey(s Scope) string {
	if c == CollectionInvitations {
		return s.Email
	}
	return s.UserID
}

// Candidate builds a candidate from a row. The id is prefixed with the collection so rows
// from different tables never collide, and is identical whichever source observed it.
func (c Collection) Candidate(row Row, src Source) Candidate {
	id := ""
	if row.ID != "" {
		id = string(c) + ":" + row.ID
	}
	return Candidate{
		ID:           id,
		Title:        row.Title,
		Body:         row.Body,
		TargetScreen: c.Screen(),
		RecipientKey: row.Recipient,
		Source:       src,
		CreatedAt:    row.CreatedAt,
	}
}
