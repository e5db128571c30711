package httpapi

import (
	"net/http"

	"salescrm-platform/internal/call"
	"salescrm-platform/internal/orgsettings"
	"salescrm-platform/internal/provider"
	"salescrm-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Webhooks handles provider callbacks. These endpoints are unauthenticated
// from the API's point of view (the provider signs requests at the transport
// layer) and must never make the provider retry storms worse: a processing
// failure is logged and acked, not surfaced as a 5xx.
type Webhooks struct {
	Processor *call.Processor
	Calls     call.Store
	Settings  *orgsettings.Service

	// VoicemailMessageURL is the default audio for voicemail drops.
	VoicemailMessageURL string
}

// hangupTwiML is the safe fallback when no flow can be decided: drop the leg
// instead of leaving the provider waiting on a dead call.
const hangupTwiML = `<?xml version="1.0" encoding="UTF-8"?>
<Response><Hangup/></Response>`

// VoiceStatus ingests one asynchronous status callback.
//
// Malformed payloads get a 400 so the provider's debugger surfaces them.
// Anything that parses is acked with 200 even if processing fails; the
// provider redelivers on 5xx and the processor is idempotent anyway, so
// retries buy nothing but noise.
func (w Webhooks) VoiceStatus(c *gin.Context) {
	ev, err := provider.ParseStatusEvent(c.Request)
	if err != nil {
		logger.FromGin(c).Warn("rejected status webhook", "err", err)
		c.String(http.StatusBadRequest, "bad status payload")
		return
	}

	if err := w.Processor.OnStatusEvent(c.Request.Context(), ev); err != nil {
		logger.FromGin(c).Error("status event processing failed",
			"provider_call_id", ev.ProviderCallID, "status", ev.Status, "err", err)
	}
	c.Status(http.StatusOK)
}

// VoiceAnswer answers the provider's "what do I do with this connected leg"
// request with call-flow markup.
//
// The call is resolved by the call_id query parameter stamped into the
// callback URL at initiation, falling back to the provider id for legs we
// did not originate.
func (w Webhooks) VoiceAnswer(c *gin.Context) {
	req, err := provider.ParseAnswerRequest(c.Request)
	if err != nil {
		logger.FromGin(c).Warn("rejected answer webhook", "err", err)
		c.String(http.StatusBadRequest, "bad answer payload")
		return
	}

	rec, err := w.resolveCall(c, req.ProviderCallID)
	if err != nil {
		logger.FromGin(c).Error("answer webhook for unknown call",
			"provider_call_id", req.ProviderCallID, "err", err)
		c.Data(http.StatusOK, "text/xml", []byte(hangupTwiML))
		return
	}

	recording := false
	if w.Settings != nil {
		if s, err := w.Settings.Resolve(c.Request.Context(), rec.OrganizationID); err == nil {
			recording = s.RecordingEnabled
		} else {
			logger.FromGin(c).Warn("settings lookup failed, recording off",
				"org_id", rec.OrganizationID, "err", err)
		}
	}

	instr, err := call.DecideFlow(rec.Mode, call.FlowParams{
		DialNumber:          rec.Phone,
		CallerID:            rec.CallerID,
		RecordingEnabled:    recording,
		VoicemailMessageURL: w.VoicemailMessageURL,
	})
	if err != nil {
		logger.FromGin(c).Error("flow undecidable", "call_id", rec.ID, "mode", rec.Mode, "err", err)
		c.Data(http.StatusOK, "text/xml", []byte(hangupTwiML))
		return
	}

	markup, err := provider.RenderFlowTwiML(instr)
	if err != nil {
		logger.FromGin(c).Error("flow render failed", "call_id", rec.ID, "err", err)
		c.Data(http.StatusOK, "text/xml", []byte(hangupTwiML))
		return
	}
	c.Data(http.StatusOK, "text/xml", []byte(markup))
}

func (w Webhooks) resolveCall(c *gin.Context, providerCallID string) (call.Call, error) {
	if id := c.Query("call_id"); id != "" {
		if rec, err := w.Calls.FindByID(c.Request.Context(), id); err == nil {
			return rec, nil
		}
	}
	return w.Calls.FindByProviderCallID(c.Request.Context(), providerCallID)
}
