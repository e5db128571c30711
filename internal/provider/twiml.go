package provider

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// FlowInstruction is the provider-agnostic answer to "what do I do with this
// connected leg". Exactly one action applies; the other fields qualify it.
type FlowInstruction struct {
	Action FlowAction

	// Announcement is spoken to the agent before bridging (BridgeAgent only).
	Announcement string

	// DialNumber is the lead's dialable number (bridge actions).
	DialNumber string

	// CallerID overrides the outbound caller id on the bridged leg.
	CallerID string

	// Record enables recording from the moment of bridge.
	Record bool

	// MessageURL is the audio to play before hanging up (VoicemailDrop only).
	MessageURL string
}

type FlowAction string

const (
	FlowBridgeAgent  FlowAction = "bridge_agent"
	FlowBridgeClient FlowAction = "bridge_client"
	FlowVoicemail    FlowAction = "voicemail_drop"
)

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Text    string   `xml:",chardata"`
}

type twimlPlay struct {
	XMLName xml.Name `xml:"Play"`
	URL     string   `xml:",chardata"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlDial struct {
	XMLName  xml.Name `xml:"Dial"`
	CallerID string   `xml:"callerId,attr,omitempty"`
	Record   string   `xml:"record,attr,omitempty"`
	Number   string   `xml:"Number,omitempty"`
}

// RenderFlowTwiML maps a flow instruction to the provider's markup response.
func RenderFlowTwiML(in FlowInstruction) (string, error) {
	var r twimlResponse

	switch in.Action {
	case FlowBridgeAgent:
		if strings.TrimSpace(in.DialNumber) == "" {
			return "", errors.New("provider: dial number required for agent bridge")
		}
		if in.Announcement != "" {
			r.Verbs = append(r.Verbs, twimlSay{Text: in.Announcement})
		}
		d := twimlDial{Number: in.DialNumber, CallerID: in.CallerID}
		if in.Record {
			d.Record = "record-from-answer-dual"
		}
		r.Verbs = append(r.Verbs, d)

	case FlowBridgeClient:
		if strings.TrimSpace(in.DialNumber) == "" {
			return "", errors.New("provider: dial number required for client bridge")
		}
		d := twimlDial{Number: in.DialNumber, CallerID: in.CallerID}
		if in.Record {
			d.Record = "record-from-answer-dual"
		}
		r.Verbs = append(r.Verbs, d)

	case FlowVoicemail:
		if strings.TrimSpace(in.MessageURL) == "" {
			return "", errors.New("provider: message url required for voicemail drop")
		}
		r.Verbs = append(r.Verbs, twimlPlay{URL: in.MessageURL}, twimlHangup{})

	default:
		return "", errors.New("provider: unknown flow action")
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
