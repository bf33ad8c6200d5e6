// Package relay contains the chat polling engine: the event classifier, the
// multi-subscriber fanout, and the adaptive poll scheduler. It turns the
// page-token chat API exposed by youtubeapi into a continuous stream of typed
// events delivered to every connected overlay client.
package relay

import (
	"time"
)

// EventType discriminates the payload kinds delivered to subscribers.
type EventType string

const (
	EventMessage    EventType = "message"
	EventSuperchat  EventType = "superchat"
	EventMembership EventType = "membership"
	EventGift       EventType = "gift"
	EventStatus     EventType = "status"
)

// Severity grades status notices for overlay/debug display.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Event is the unit broadcast to subscribers. Type selects which body field
// is populated; exactly one body is non-nil.
type Event struct {
	Type       EventType       `json:"type"`
	At         time.Time       `json:"at"`
	Message    *MessageBody    `json:"message,omitempty"`
	Superchat  *SuperchatBody  `json:"superchat,omitempty"`
	Membership *MembershipBody `json:"membership,omitempty"`
	Gift       *GiftBody       `json:"gift,omitempty"`
	Status     *StatusBody     `json:"status,omitempty"`
}

// MessageBody is the literal chat transcript entry. Role is empty for
// ordinary viewers; owner > moderator > sponsor otherwise.
type MessageBody struct {
	Author string `json:"author"`
	Text   string `json:"text"`
	Role   string `json:"role,omitempty"`
}

// SuperchatBody carries the displayed amount string as-is (e.g. "$5.00");
// the relay never parses currency.
type SuperchatBody struct {
	Author string `json:"author"`
	Amount string `json:"amount"`
	Tier   int64  `json:"tier"`
	Text   string `json:"text,omitempty"`
}

// MembershipBody reports a new or upgraded channel membership.
type MembershipBody struct {
	Author    string `json:"author"`
	Level     string `json:"level"`
	IsUpgrade bool   `json:"is_upgrade"`
}

// GiftBody is an inferred membership-gift system message. Text is the raw
// display string that matched one of the gift heuristics.
type GiftBody struct {
	Author string `json:"author"`
	Text   string `json:"text"`
}

// StatusBody describes engine health and progress.
type StatusBody struct {
	Severity Severity `json:"severity"`
	Text     string   `json:"text"`
}

// StatusEvent builds a status notice stamped with the current time.
func StatusEvent(sev Severity, text string) Event {
	return Event{Type: EventStatus, At: time.Now().UTC(), Status: &StatusBody{Severity: sev, Text: text}}
}

// ChatItem is one raw entry from a fetched chat page, already detached from
// the remote API's wire types so the classifier stays transport-agnostic.
type ChatItem struct {
	ID          string
	Author      string
	DisplayText string
	PublishedAt time.Time

	IsOwner     bool
	IsModerator bool
	IsSponsor   bool

	Superchat  *SuperchatDetail
	Membership *MembershipDetail
}

// SuperchatDetail mirrors the monetary fields of a paid chat message.
type SuperchatDetail struct {
	AmountDisplay string
	Tier          int64
}

// MembershipDetail mirrors the membership fields of a sponsor notice.
type MembershipDetail struct {
	Level     string
	IsUpgrade bool
}

// ChatPage is one fetch result: the items, the continuation token for the
// next fetch, and the server-suggested minimum delay before it.
type ChatPage struct {
	Items             []ChatItem
	NextPageToken     string
	SuggestedInterval time.Duration
}
