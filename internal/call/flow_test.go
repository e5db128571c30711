package call

import (
	"errors"
	"testing"

	"salescrm-platform/internal/provider"
)

func TestDecideFlow_AgentFirst(t *testing.T) {
	got, err := DecideFlow(ModeAgentFirst, FlowParams{
		DialNumber:       "+15550102000",
		CallerID:         "+15550000001",
		RecordingEnabled: true,
	})
	if err != nil {
		t.Fatalf("DecideFlow() error = %v", err)
	}
	if got.Action != provider.FlowBridgeAgent {
		t.Fatalf("action = %q, want bridge_agent", got.Action)
	}
	if got.Announcement == "" {
		t.Fatalf("agent bridge must announce before dialing out")
	}
	if got.DialNumber != "+15550102000" || got.CallerID != "+15550000001" || !got.Record {
		t.Fatalf("instruction = %+v", got)
	}
}

func TestDecideFlow_BrowserClient(t *testing.T) {
	got, err := DecideFlow(ModeBrowserClient, FlowParams{DialNumber: "+15550102000", CallerID: "client:agent-1"})
	if err != nil {
		t.Fatalf("DecideFlow() error = %v", err)
	}
	if got.Action != provider.FlowBridgeClient || got.Announcement != "" {
		t.Fatalf("instruction = %+v", got)
	}
	if got.Record {
		t.Fatalf("record must follow the recording flag, got true for false")
	}
}

func TestDecideFlow_VoicemailDrop(t *testing.T) {
	got, err := DecideFlow(ModeVoicemailDrop, FlowParams{VoicemailMessageURL: "https://cdn.example.com/vm.mp3"})
	if err != nil {
		t.Fatalf("DecideFlow() error = %v", err)
	}
	if got.Action != provider.FlowVoicemail || got.MessageURL != "https://cdn.example.com/vm.mp3" {
		t.Fatalf("instruction = %+v", got)
	}
}

func TestDecideFlow_Undecidable(t *testing.T) {
	cases := []struct {
		name string
		mode Mode
		p    FlowParams
	}{
		{"agent without number", ModeAgentFirst, FlowParams{}},
		{"client without number", ModeBrowserClient, FlowParams{}},
		{"voicemail without message", ModeVoicemailDrop, FlowParams{}},
		{"unknown mode", "speed_dial", FlowParams{DialNumber: "+15550102000"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecideFlow(tc.mode, tc.p); !errors.Is(err, ErrFlowUndecidable) {
				t.Fatalf("error = %v, want ErrFlowUndecidable", err)
			}
		})
	}
}

func TestDecideFlow_Pure(t *testing.T) {
	p := FlowParams{DialNumber: "+15550102000", RecordingEnabled: true}
	a, err := DecideFlow(ModeAgentFirst, p)
	if err != nil {
		t.Fatalf("DecideFlow() error = %v", err)
	}
	b, err := DecideFlow(ModeAgentFirst, p)
	if err != nil {
		t.Fatalf("DecideFlow() error = %v", err)
	}
	if a != b {
		t.Fatalf("same inputs produced different instructions: %+v vs %+v", a, b)
	}
}
