package provider

import (
	"context"
	"time"
)

// VoiceProvider is the contract the orchestrator requires from the external
// telephony provider.
//
// Rules:
// - No provider SDK calls outside this package.
// - Every method must observe ctx cancellation; adapters bound their own
//   HTTP timeouts so a hung provider cannot wedge webhook handling.
// - Request/response types stay provider-agnostic.
type VoiceProvider interface {
	Name() string

	CreateCall(ctx context.Context, req CreateCallRequest) (CallInfo, error)
	FetchCall(ctx context.Context, providerCallID string) (CallInfo, error)

	StartRecording(ctx context.Context, providerCallID string) (RecordingInfo, error)
	DeleteRecording(ctx context.Context, recordingID string) error

	TerminateCall(ctx context.Context, providerCallID string) error
}

// CreateCallRequest describes one outbound call to place.
type CreateCallRequest struct {
	// To and From are E.164.
	To   string
	From string

	// AnswerURL is invoked by the provider when a leg connects; it must carry
	// the local call id so flow decisions resolve without the provider id.
	AnswerURL string

	// StatusCallbackURL receives asynchronous status events.
	StatusCallbackURL string

	// RingTimeoutSeconds bounds how long the call may ring. Zero means the
	// provider default.
	RingTimeoutSeconds int
}

// CallInfo is the provider's view of a call, used both for the create
// response and for live-status re-checks.
type CallInfo struct {
	ProviderCallID string

	// Status is the provider's raw status string; callers fold it into the
	// local model.
	Status string

	To        string
	From      string
	Direction string

	DurationSeconds int
	StartedAt       time.Time
}

// Active reports whether the provider considers the call still running.
func (c CallInfo) Active() bool {
	switch c.Status {
	case "queued", "initiated", "ringing", "in-progress", "answered":
		return true
	default:
		return false
	}
}

type RecordingInfo struct {
	RecordingID string
}
