package relay

import (
	"regexp"
	"strings"
	"sync"
)

// Gift memberships are not exposed as structured fields on this API surface,
// so they are inferred from localized system-message phrasings. Best effort:
// YouTube changes these strings without notice, and a miss only costs a toast
// (the plain message still goes out).
var getGiftPatterns = sync.OnceValue(func() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`(?i)gifted\s+\d+\s+\S*\s*membership`),
		regexp.MustCompile(`(?i)sent\s+.+\s+a\s+membership\s+gift`),
		regexp.MustCompile(`(?i)was\s+gifted\s+a\s+membership`),
		regexp.MustCompile(`(?i)received\s+a\s+membership\s+gift`),
		regexp.MustCompile(`メンバーシップ\s*ギフト`),
		regexp.MustCompile(`\d+\s*件のメンバーシップ`),
		regexp.MustCompile(`メンバーシップを(贈|おく)りました`),
	}
})

// Classify maps one raw chat item to the events it produces, in emission
// order. A plain message event is always included when the display text is
// non-empty; at most one special event (superchat, membership, or inferred
// gift) follows it. Pure function: same item, same result.
func Classify(item ChatItem) []Event {
	events := make([]Event, 0, 2)

	text := strings.TrimSpace(item.DisplayText)
	if text != "" {
		events = append(events, Event{
			Type: EventMessage,
			At:   item.PublishedAt,
			Message: &MessageBody{
				Author: item.Author,
				Text:   item.DisplayText,
				Role:   authorRole(item),
			},
		})
	}

	switch {
	case item.Superchat != nil:
		events = append(events, Event{
			Type: EventSuperchat,
			At:   item.PublishedAt,
			Superchat: &SuperchatBody{
				Author: item.Author,
				Amount: item.Superchat.AmountDisplay,
				Tier:   item.Superchat.Tier,
				Text:   text,
			},
		})
	case item.Membership != nil:
		events = append(events, Event{
			Type: EventMembership,
			At:   item.PublishedAt,
			Membership: &MembershipBody{
				Author:    item.Author,
				Level:     item.Membership.Level,
				IsUpgrade: item.Membership.IsUpgrade,
			},
		})
	case text != "":
		for _, re := range getGiftPatterns() {
			if re.MatchString(text) {
				events = append(events, Event{
					Type: EventGift,
					At:   item.PublishedAt,
					Gift: &GiftBody{Author: item.Author, Text: item.DisplayText},
				})
				break
			}
		}
	}

	return events
}

// authorRole derives the styling role from the item's boolean flags.
func authorRole(item ChatItem) string {
	switch {
	case item.IsOwner:
		return "owner"
	case item.IsModerator:
		return "moderator"
	case item.IsSponsor:
		return "sponsor"
	default:
		return ""
	}
}
