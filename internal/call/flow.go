package call

import (
	"errors"
	"fmt"

	"salescrm-platform/internal/provider"
)

// FlowParams qualifies a flow decision for one connected leg.
type FlowParams struct {
	// DialNumber is the lead's dialable number.
	DialNumber string

	// CallerID is presented on the bridged leg. For browser-client calls this
	// is the browser session's identity.
	CallerID string

	// RecordingEnabled reflects the organization's recording flag; bridges
	// record from the moment of connection when it is set.
	RecordingEnabled bool

	// VoicemailMessageURL is the audio played for voicemail drops. Empty
	// falls back to the operator default configured at the HTTP layer.
	VoicemailMessageURL string
}

var ErrFlowUndecidable = errors.New("call: flow undecidable for mode")

// DecideFlow answers the provider's "what do I do with this connected leg"
// request. Pure function: same inputs, same instruction, no writes.
func DecideFlow(mode Mode, p FlowParams) (provider.FlowInstruction, error) {
	switch mode {
	case ModeAgentFirst:
		// The leg that answered is the agent. Announce, then bridge out.
		if p.DialNumber == "" {
			return provider.FlowInstruction{}, fmt.Errorf("%w: %s needs a dial number", ErrFlowUndecidable, mode)
		}
		return provider.FlowInstruction{
			Action:       provider.FlowBridgeAgent,
			Announcement: "Connecting you to your lead now.",
			DialNumber:   p.DialNumber,
			CallerID:     p.CallerID,
			Record:       p.RecordingEnabled,
		}, nil

	case ModeBrowserClient:
		if p.DialNumber == "" {
			return provider.FlowInstruction{}, fmt.Errorf("%w: %s needs a dial number", ErrFlowUndecidable, mode)
		}
		return provider.FlowInstruction{
			Action:     provider.FlowBridgeClient,
			DialNumber: p.DialNumber,
			CallerID:   p.CallerID,
			Record:     p.RecordingEnabled,
		}, nil

	case ModeVoicemailDrop:
		if p.VoicemailMessageURL == "" {
			return provider.FlowInstruction{}, fmt.Errorf("%w: %s needs a message url", ErrFlowUndecidable, mode)
		}
		return provider.FlowInstruction{
			Action:     provider.FlowVoicemail,
			MessageURL: p.VoicemailMessageURL,
		}, nil

	default:
		return provider.FlowInstruction{}, fmt.Errorf("%w: unknown mode %q", ErrFlowUndecidable, mode)
	}
}
