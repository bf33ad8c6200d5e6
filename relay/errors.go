package relay

import (
	"errors"
	"strings"

	"google.golang.org/api/googleapi"
)

// PollErrorClass drives the scheduler's recovery path after a failed cycle.
type PollErrorClass int

const (
	// PollErrorGeneric covers transient failures retried at the slowed
	// fixed interval.
	PollErrorGeneric PollErrorClass = iota
	// PollErrorQuota means the API call budget is exhausted; triggers
	// exponential backoff.
	PollErrorQuota
	// PollErrorChatEnded means the broadcast or its chat is gone; triggers
	// a full session reset and slowed re-resolution.
	PollErrorChatEnded
)

// String returns a label suitable for logs and metrics.
func (c PollErrorClass) String() string {
	switch c {
	case PollErrorQuota:
		return "quota"
	case PollErrorChatEnded:
		return "chat_ended"
	default:
		return "generic"
	}
}

// ClassifyPollError buckets a remote-call failure by its observable fields:
// HTTP status, machine reason strings, and the human message. The remote
// error shape is stringly-typed, so classification never depends on concrete
// error types beyond unwrapping the googleapi envelope to reach those fields.
//
// Quota exhaustion: quota/rate-limit reasons, or quota wording in the message.
// Chat ended: liveChat* reasons, 404s, or ended/not-found wording.
// Everything else: generic, retried at the slowed interval.
func ClassifyPollError(err error) PollErrorClass {
	if err == nil {
		return PollErrorGeneric
	}

	var code int
	var reasons []string
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		code = gerr.Code
		for _, item := range gerr.Errors {
			reasons = append(reasons, strings.ToLower(item.Reason))
		}
	}
	msg := strings.ToLower(err.Error())

	for _, r := range reasons {
		switch r {
		case "quotaexceeded", "ratelimitexceeded", "userratelimitexceeded", "dailylimitexceeded":
			return PollErrorQuota
		case "livechatended", "livechatnotfound", "livechatdisabled", "livebroadcastnotfound":
			return PollErrorChatEnded
		}
	}

	if strings.Contains(msg, "quota") ||
		strings.Contains(msg, "rate limit") ||
		code == 429 {
		return PollErrorQuota
	}

	if code == 404 ||
		strings.Contains(msg, "no longer live") ||
		strings.Contains(msg, "chat ended") ||
		strings.Contains(msg, "live chat is no longer live") ||
		strings.Contains(msg, "not found") {
		return PollErrorChatEnded
	}

	return PollErrorGeneric
}
