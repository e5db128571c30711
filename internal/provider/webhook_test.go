package provider

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestParseStatusEvent(t *testing.T) {
	form := url.Values{}
	form.Set("CallSid", "CA1")
	form.Set("CallStatus", "Completed")
	form.Set("CallDuration", "42")
	form.Set("To", "+15550102000")
	form.Set("From", "+15550000001")
	form.Set("RecordingSid", "RE1")

	r := httptest.NewRequest("POST", "/webhooks/voice/status", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	ev, err := ParseStatusEvent(r)
	if err != nil {
		t.Fatalf("ParseStatusEvent: %v", err)
	}
	if ev.ProviderCallID != "CA1" || ev.Status != "completed" {
		t.Fatalf("event = %+v", ev)
	}
	if !ev.HasDuration() || ev.DurationSeconds != 42 {
		t.Fatalf("duration = %d, HasDuration = %v", ev.DurationSeconds, ev.HasDuration())
	}
	if ev.RecordingID != "RE1" || ev.To != "+15550102000" || ev.From != "+15550000001" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestParseStatusEvent_LocalCallID(t *testing.T) {
	form := url.Values{}
	form.Set("CallSid", "CA1")
	form.Set("CallStatus", "ringing")

	r := httptest.NewRequest("POST", "/webhooks/voice/status?call_id=local-1", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	ev, err := ParseStatusEvent(r)
	if err != nil {
		t.Fatalf("ParseStatusEvent: %v", err)
	}
	if ev.LocalCallID != "local-1" {
		t.Fatalf("local call id = %q, want local-1 from the query string", ev.LocalCallID)
	}
}

func TestParseStatusEvent_NoDuration(t *testing.T) {
	form := url.Values{}
	form.Set("CallSid", "CA1")
	form.Set("CallStatus", "ringing")

	r := httptest.NewRequest("POST", "/webhooks/voice/status", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	ev, err := ParseStatusEvent(r)
	if err != nil {
		t.Fatalf("ParseStatusEvent: %v", err)
	}
	if ev.HasDuration() {
		t.Fatalf("HasDuration = true for an event without CallDuration")
	}
	if ev.DurationSeconds != -1 {
		t.Fatalf("duration sentinel = %d, want -1", ev.DurationSeconds)
	}
}

func TestParseStatusEvent_Rejections(t *testing.T) {
	cases := []struct {
		name string
		form url.Values
	}{
		{"missing CallSid", url.Values{"CallStatus": {"ringing"}}},
		{"unknown status", url.Values{"CallSid": {"CA1"}, "CallStatus": {"vibrating"}}},
		{"bad duration", url.Values{"CallSid": {"CA1"}, "CallStatus": {"completed"}, "CallDuration": {"fortytwo"}}},
		{"negative duration", url.Values{"CallSid": {"CA1"}, "CallStatus": {"completed"}, "CallDuration": {"-3"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/webhooks/voice/status", strings.NewReader(tc.form.Encode()))
			r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			if _, err := ParseStatusEvent(r); err == nil {
				t.Fatalf("expected rejection")
			}
		})
	}
}

func TestParseAnswerRequest(t *testing.T) {
	form := url.Values{}
	form.Set("CallSid", "CA1")
	form.Set("To", "+15550102000")
	form.Set("AnsweredBy", "human")

	r := httptest.NewRequest("POST", "/webhooks/voice/answer", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	req, err := ParseAnswerRequest(r)
	if err != nil {
		t.Fatalf("ParseAnswerRequest: %v", err)
	}
	if req.ProviderCallID != "CA1" || req.AnsweredBy != "human" {
		t.Fatalf("request = %+v", req)
	}
}

func TestParseAnswerRequest_MissingCallSid(t *testing.T) {
	r := httptest.NewRequest("POST", "/webhooks/voice/answer", strings.NewReader(""))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if _, err := ParseAnswerRequest(r); err == nil {
		t.Fatalf("expected rejection")
	}
}
