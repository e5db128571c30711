package provider

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Provider webhook payloads arrive as application/x-www-form-urlencoded. We
// parse them into typed events and reject shapes we don't recognize instead
// of silently defaulting.

// StatusEvent is one asynchronous status callback for a call.
//
// Delivery guarantees from the provider: at-least-once, possibly duplicated,
// possibly out of order, possibly before the local provisional write is
// visible. The processor owns all of that; this type only carries the data.
type StatusEvent struct {
	ProviderCallID string
	Status         string

	// LocalCallID is our own call id echoed back through the call_id query
	// parameter stamped into the callback URL at initiation. Empty for legs
	// we did not originate.
	LocalCallID string

	// DurationSeconds is -1 when the event did not carry a duration.
	DurationSeconds int

	RecordingID string

	To   string
	From string
}

// HasDuration reports whether the event carried an elapsed duration.
func (e StatusEvent) HasDuration() bool { return e.DurationSeconds >= 0 }

// knownStatuses is the exhaustive set of provider call statuses we accept.
var knownStatuses = map[string]struct{}{
	"queued":      {},
	"initiated":   {},
	"ringing":     {},
	"in-progress": {},
	"answered":    {},
	"completed":   {},
	"busy":        {},
	"no-answer":   {},
	"canceled":    {},
	"failed":      {},
}

// ParseStatusEvent extracts a status event from a provider callback request.
func ParseStatusEvent(r *http.Request) (StatusEvent, error) {
	if err := r.ParseForm(); err != nil {
		return StatusEvent{}, fmt.Errorf("provider: parse status form: %w", err)
	}

	ev := StatusEvent{
		ProviderCallID:  strings.TrimSpace(r.PostFormValue("CallSid")),
		LocalCallID:     strings.TrimSpace(r.URL.Query().Get("call_id")),
		Status:          strings.ToLower(strings.TrimSpace(r.PostFormValue("CallStatus"))),
		RecordingID:     strings.TrimSpace(r.PostFormValue("RecordingSid")),
		To:              strings.TrimSpace(r.PostFormValue("To")),
		From:            strings.TrimSpace(r.PostFormValue("From")),
		DurationSeconds: -1,
	}

	if ev.ProviderCallID == "" {
		return StatusEvent{}, fmt.Errorf("provider: status event missing CallSid")
	}
	if _, ok := knownStatuses[ev.Status]; !ok {
		return StatusEvent{}, fmt.Errorf("provider: unrecognized call status %q", ev.Status)
	}

	if d := strings.TrimSpace(r.PostFormValue("CallDuration")); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil || n < 0 {
			return StatusEvent{}, fmt.Errorf("provider: bad CallDuration %q", d)
		}
		ev.DurationSeconds = n
	}

	return ev, nil
}

// AnswerRequest is the provider asking what to do with a just-connected leg.
type AnswerRequest struct {
	ProviderCallID string
	To             string
	From           string

	// AnsweredBy is set when machine detection ran ("human", "machine_start", ...).
	AnsweredBy string
}

// ParseAnswerRequest extracts an answer webhook from a provider request.
func ParseAnswerRequest(r *http.Request) (AnswerRequest, error) {
	if err := r.ParseForm(); err != nil {
		return AnswerRequest{}, fmt.Errorf("provider: parse answer form: %w", err)
	}
	req := AnswerRequest{
		ProviderCallID: strings.TrimSpace(r.PostFormValue("CallSid")),
		To:             strings.TrimSpace(r.PostFormValue("To")),
		From:           strings.TrimSpace(r.PostFormValue("From")),
		AnsweredBy:     strings.TrimSpace(r.PostFormValue("AnsweredBy")),
	}
	if req.ProviderCallID == "" {
		return AnswerRequest{}, fmt.Errorf("provider: answer request missing CallSid")
	}
	return req, nil
}
